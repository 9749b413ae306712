package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/chaluvadis/schemasync/internal/config"
	"github.com/chaluvadis/schemasync/internal/jobqueue"
	"github.com/chaluvadis/schemasync/internal/logging"
	"github.com/chaluvadis/schemasync/internal/session"
	"github.com/chaluvadis/schemasync/internal/store"
)

// loadConfig loads and validates configuration for a command invocation,
// and wires up the global logger from it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Setup(cfg.General.LogLevel, c.Bool("pretty"))

	return cfg, nil
}

// resolveConnection turns a CLI argument into a database URL. Arguments
// containing "://" are used verbatim; anything else is looked up as a named
// connection in the config file.
func resolveConnection(cfg *config.Config, arg string) (string, error) {
	if strings.Contains(arg, "://") {
		return arg, nil
	}
	return cfg.ConnectionURL(arg)
}

// connResolverFromConfig adapts the config lookup into the job queue's
// resolver shape.
func connResolverFromConfig(cfg *config.Config) jobqueue.ConnResolver {
	return func(connID string) (string, error) {
		return resolveConnection(cfg, connID)
	}
}

// openManager opens the application database and returns a session manager
// backed by it, along with a close function.
func openManager(ctx context.Context, cfg *config.Config) (*session.Manager, func(), error) {
	db, err := store.OpenDB(cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	pgStore := store.NewPostgresStore(db)
	if err := pgStore.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to prepare session tables: %w", err)
	}

	return session.NewManager(pgStore), func() { db.Close() }, nil
}
