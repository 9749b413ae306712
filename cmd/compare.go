package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/chaluvadis/schemasync/internal/compare"
	"github.com/chaluvadis/schemasync/internal/config"
	"github.com/chaluvadis/schemasync/internal/conflict"
	"github.com/chaluvadis/schemasync/internal/inspect"
	"github.com/chaluvadis/schemasync/internal/logging"
	"github.com/chaluvadis/schemasync/internal/script"
	"github.com/chaluvadis/schemasync/internal/session"
	"github.com/chaluvadis/schemasync/internal/store"
	"github.com/chaluvadis/schemasync/pkg/models"
)

// CompareCommand returns the compare command
func CompareCommand() *cli.Command {
	return &cli.Command{
		Name:  "compare",
		Usage: "Compare two database schemas and open a resolution session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "Name for the resolution session",
			},
			&cli.BoolFlag{
				Name:  "auto-resolve",
				Usage: "Resolve automatically resolvable conflicts immediately",
			},
			&cli.StringFlag{
				Name:    "script",
				Aliases: []string{"s"},
				Usage:   "Write the resolution script to `FILE` (implies --auto-resolve)",
			},
			&cli.BoolFlag{
				Name:  "in-memory",
				Usage: "Keep the session in memory instead of the application database",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Overall timeout for the comparison",
				Value: 10 * time.Minute,
			},
		},
		ArgsUsage: "SOURCE TARGET",
		Action:    runCompare,
	}
}

func runCompare(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("missing required arguments: SOURCE TARGET (connection names or URLs)")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	sourceID := c.Args().Get(0)
	targetID := c.Args().Get(1)
	autoResolve := c.Bool("auto-resolve") || c.String("script") != ""

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()

	var manager *session.Manager
	if c.Bool("in-memory") {
		manager = session.NewManager(store.NewMemoryStore())
	} else {
		var closeStore func()
		manager, closeStore, err = openManager(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()
	}

	sourceSnap, err := snapshotDatabase(ctx, cfg, sourceID)
	if err != nil {
		return fmt.Errorf("failed to inspect source %s: %w", sourceID, err)
	}
	targetSnap, err := snapshotDatabase(ctx, cfg, targetID)
	if err != nil {
		return fmt.Errorf("failed to inspect target %s: %w", targetID, err)
	}

	differences := compare.Compare(sourceSnap, targetSnap)
	fmt.Printf("Found %d schema differences between %s and %s\n", len(differences), sourceID, targetID)

	detector := conflict.NewDetector()
	conflicts := detector.Detect(ctx, differences)
	conflict.LinkDependencies(conflicts)

	sess, err := manager.CreateSession(ctx, sourceID, targetID, conflicts, session.Options{
		Name:                  c.String("name"),
		CreatedBy:             "cli",
		AutoResolutionEnabled: autoResolve,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	sessionLog, err := logging.StartSessionLogging(cfg.General.LogDir, sess.ID)
	if err != nil {
		return fmt.Errorf("failed to start session log: %w", err)
	}
	defer sessionLog.Close()

	sessionLog.Log("compared %s against %s: %d differences, %d conflicts",
		sourceID, targetID, len(differences), len(conflicts))
	for i := range sess.Conflicts {
		cf := &sess.Conflicts[i]
		sessionLog.LogConflict(cf.ID, cf.Type.SubType, string(cf.Priority), cf.Type.Description)
	}

	printSessionSummary(sess)

	if !autoResolve {
		return nil
	}

	if len(conflicts) > 0 {
		outcomes, err := manager.ResolveAutomatically(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("automatic resolution failed: %w", err)
		}
		for _, outcome := range outcomes {
			if outcome.Err != nil {
				sessionLog.LogError("auto-resolve "+outcome.ConflictID, outcome.Err)
				fmt.Printf("  %s: %v\n", outcome.ConflictID, outcome.Err)
				continue
			}
			sessionLog.LogResolution(outcome.ConflictID, outcome.Resolution.Strategy.ID, string(outcome.Resolution.Resolution))
		}
	}

	if scriptPath := c.String("script"); scriptPath != "" {
		// Reload so the script covers the resolutions recorded above
		sess, err = manager.GetSession(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("failed to reload session: %w", err)
		}

		sql, err := script.NewGenerator().Generate(sess, sess.Resolutions)
		if err != nil {
			return fmt.Errorf("failed to generate script: %w", err)
		}
		sessionLog.LogScript(sql)

		if err := os.WriteFile(scriptPath, []byte(sql), 0644); err != nil {
			return fmt.Errorf("failed to write script: %w", err)
		}
		fmt.Printf("Wrote resolution script to %s\n", scriptPath)
	}

	return nil
}

func snapshotDatabase(ctx context.Context, cfg *config.Config, connID string) (*models.Snapshot, error) {
	url, err := resolveConnection(cfg, connID)
	if err != nil {
		return nil, err
	}

	inspector, err := inspect.Connect(ctx, connID, url)
	if err != nil {
		return nil, err
	}
	defer inspector.Close()

	return inspector.Snapshot(ctx)
}

func printSessionSummary(sess *models.ResolutionSession) {
	fmt.Printf("Session %s created\n", sess.ID)
	fmt.Printf("  Conflicts:            %d\n", sess.Progress.TotalConflicts)
	fmt.Printf("  Manual review needed: %v\n", sess.ManualReviewRequired)
	fmt.Printf("  Estimated time:       %d minutes\n", sess.EstimatedCompletionTime)
}
