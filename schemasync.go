package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/chaluvadis/schemasync/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "schemasync",
		Usage:   "Compare PostgreSQL schemas and resolve synchronization conflicts",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Human-readable console logging",
			},
		},
		Commands: []*cli.Command{
			cmd.CompareCommand(),
			cmd.ResolveCommand(),
			cmd.SessionsCommand(),
			cmd.ScriptCommand(),
			cmd.ServeCommand(),
			cmd.UserCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
