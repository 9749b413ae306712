package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/chaluvadis/schemasync/pkg/models"
)

// ResolveCommand returns the resolve command
func ResolveCommand() *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Work on conflicts in a resolution session",
		Subcommands: []*cli.Command{
			{
				Name:      "auto",
				Usage:     "Resolve all automatically resolvable conflicts in a session",
				ArgsUsage: "SESSION_ID",
				Action:    runResolveAuto,
			},
			{
				Name:      "record",
				Usage:     "Record a manual resolution for a conflict",
				ArgsUsage: "SESSION_ID CONFLICT_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "decision",
						Usage: "Resolution decision: source_wins, target_wins, merge, custom, skip",
						Value: "source_wins",
					},
					&cli.StringFlag{
						Name:  "script",
						Usage: "Custom SQL for this resolution",
					},
					&cli.StringFlag{
						Name:  "notes",
						Usage: "Free-form notes for the session log",
					},
					&cli.StringFlag{
						Name:  "by",
						Usage: "Who resolved this conflict",
						Value: "cli",
					},
				},
				Action: runResolveRecord,
			},
			{
				Name:      "escalate",
				Usage:     "Flag a conflict for human attention",
				ArgsUsage: "SESSION_ID CONFLICT_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "to",
						Usage: "Who should look at this conflict",
					},
				},
				Action: runResolveEscalate,
			},
			{
				Name:      "advance",
				Usage:     "Advance a session to its next phase",
				ArgsUsage: "SESSION_ID",
				Action:    runAdvancePhase,
			},
			{
				Name:      "complete",
				Usage:     "Mark a session as completed",
				ArgsUsage: "SESSION_ID",
				Action:    runComplete,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a session",
				ArgsUsage: "SESSION_ID",
				Action:    runCancel,
			},
		},
	}
}

func runResolveAuto(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: SESSION_ID")
	}
	sessionID := c.Args().Get(0)

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	manager, closeStore, err := openManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	outcomes, err := manager.ResolveAutomatically(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("automatic resolution failed: %w", err)
	}

	resolved := 0
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			fmt.Printf("  %s: %v\n", outcome.ConflictID, outcome.Err)
			continue
		}
		resolved++
		fmt.Printf("  %s: resolved with %s\n", outcome.ConflictID, outcome.Resolution.Strategy.Name)
	}
	fmt.Printf("Resolved %d of %d conflicts automatically\n", resolved, len(outcomes))

	return nil
}

func runResolveRecord(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("missing required arguments: SESSION_ID CONFLICT_ID")
	}
	sessionID := c.Args().Get(0)
	conflictID := c.Args().Get(1)

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	manager, closeStore, err := openManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sess, err := manager.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	resolution := models.ConflictResolution{
		ConflictID:     conflictID,
		Resolution:     models.ResolutionKind(c.String("decision")),
		CustomScript:   c.String("script"),
		ResolvedBy:     c.String("by"),
		ResolvedAt:     time.Now(),
		ExecutionOrder: len(sess.Resolutions) + 1,
		Notes:          c.String("notes"),
	}

	if err := manager.RecordResolution(ctx, sessionID, resolution); err != nil {
		return fmt.Errorf("failed to record resolution: %w", err)
	}

	fmt.Printf("Recorded %s resolution for conflict %s\n", resolution.Resolution, conflictID)
	return nil
}

func runResolveEscalate(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("missing required arguments: SESSION_ID CONFLICT_ID")
	}
	sessionID := c.Args().Get(0)
	conflictID := c.Args().Get(1)

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	manager, closeStore, err := openManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := manager.Escalate(ctx, sessionID, conflictID, c.String("to")); err != nil {
		return fmt.Errorf("failed to escalate conflict: %w", err)
	}

	fmt.Printf("Escalated conflict %s\n", conflictID)
	return nil
}

func runAdvancePhase(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: SESSION_ID")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	manager, closeStore, err := openManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	phase, err := manager.AdvancePhase(ctx, c.Args().Get(0))
	if err != nil {
		return fmt.Errorf("failed to advance phase: %w", err)
	}

	fmt.Printf("Session is now in phase: %s\n", phase)
	return nil
}

func runComplete(c *cli.Context) error {
	return finishSession(c, "completed", func(ctx context.Context, m sessionCloser, id string) error {
		return m.Complete(ctx, id)
	})
}

func runCancel(c *cli.Context) error {
	return finishSession(c, "cancelled", func(ctx context.Context, m sessionCloser, id string) error {
		return m.Cancel(ctx, id)
	})
}

// sessionCloser is the slice of the session manager the finish commands use.
type sessionCloser interface {
	Complete(ctx context.Context, sessionID string) error
	Cancel(ctx context.Context, sessionID string) error
}

func finishSession(c *cli.Context, verb string, finish func(context.Context, sessionCloser, string) error) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: SESSION_ID")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	manager, closeStore, err := openManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := finish(ctx, manager, c.Args().Get(0)); err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}

	fmt.Printf("Session %s %s\n", c.Args().Get(0), verb)
	return nil
}
