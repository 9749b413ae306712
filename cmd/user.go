package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/chaluvadis/schemasync/internal/api/auth"
	"github.com/chaluvadis/schemasync/internal/store"
)

// UserCommand returns the user command
func UserCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage API users",
		Subcommands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create an API user",
				ArgsUsage: "EMAIL PASSWORD",
				Action:    runUserCreate,
			},
		},
	}
}

func runUserCreate(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("missing required arguments: EMAIL PASSWORD")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	db, err := store.OpenDB(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	tokenService := auth.NewTokenService(db, cfg.Server.JWTSecret)
	if err := tokenService.EnsureSchema(); err != nil {
		return err
	}

	user, err := tokenService.CreateUser(c.Args().Get(0), c.Args().Get(1))
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("Created user %s (id %d)\n", user.Email, user.ID)
	return nil
}
