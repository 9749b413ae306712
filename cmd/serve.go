package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/chaluvadis/schemasync/internal/api"
	"github.com/chaluvadis/schemasync/internal/api/auth"
	"github.com/chaluvadis/schemasync/internal/jobqueue"
	"github.com/chaluvadis/schemasync/internal/script"
	"github.com/chaluvadis/schemasync/internal/session"
	"github.com/chaluvadis/schemasync/internal/store"
)

// ServeCommand returns the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the schemasync API server and job queue workers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "Override the listen address from the config file",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret must be configured")
	}

	listenAddr := cfg.Server.ListenAddr
	if override := c.String("listen"); override != "" {
		listenAddr = override
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := store.OpenDB(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	pgStore := store.NewPostgresStore(db)
	if err := pgStore.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to prepare session tables: %w", err)
	}

	tokenService := auth.NewTokenService(db, cfg.Server.JWTSecret)
	if err := tokenService.EnsureSchema(); err != nil {
		return err
	}

	manager := session.NewManager(pgStore)

	queue, err := jobqueue.NewJobQueue(cfg.Database.URL, manager, connResolverFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create job queue: %w", err)
	}
	if err := queue.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start job queue: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := queue.Stop(stopCtx); err != nil {
			log.Warn().Err(err).Msg("job queue did not stop cleanly")
		}
	}()

	server := api.NewServer(api.ServerConfig{
		ListenAddr: listenAddr,
		RateLimit:  cfg.Server.RateLimit,
	}, manager, script.NewGenerator(), tokenService, queue)

	log.Info().Str("addr", listenAddr).Msg("starting schemasync server")
	return server.Start()
}
