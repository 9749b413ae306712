package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/chaluvadis/schemasync/internal/config"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize a new configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   "schemasync.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration file",
				Action: runConfigValidate,
			},
			{
				Name:   "show",
				Usage:  "Show the effective configuration",
				Action: runConfigShow,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")

	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Created configuration file at %s\n", outputPath)
	return nil
}

func runConfigValidate(c *cli.Context) error {
	configPath := c.String("config")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Println("Configuration is valid")
	return nil
}

func runConfigShow(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Printf("general.log_level               = %q\n", cfg.General.LogLevel)
	fmt.Printf("general.log_dir                 = %q\n", cfg.General.LogDir)
	fmt.Printf("server.listen_addr              = %q\n", cfg.Server.ListenAddr)
	fmt.Printf("server.rate_limit               = %d\n", cfg.Server.RateLimit)
	fmt.Printf("server.jwt_secret               = %s\n", redacted(cfg.Server.JWTSecret))
	fmt.Printf("database.url                    = %s\n", redacted(cfg.Database.URL))
	fmt.Printf("resolution.auto_resolve_enabled = %v\n", cfg.Resolution.AutoResolveEnabled)
	fmt.Printf("resolution.confidence_threshold = %g\n", cfg.Resolution.ConfidenceThreshold)
	for name := range cfg.Connections {
		fmt.Printf("connections.%s configured\n", name)
	}

	return nil
}

func redacted(value string) string {
	if value == "" {
		return "(unset)"
	}
	return "(set)"
}
