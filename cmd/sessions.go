package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/chaluvadis/schemasync/internal/script"
)

// SessionsCommand returns the sessions command
func SessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "List and inspect resolution sessions",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all resolution sessions, newest first",
				Action: runSessionsList,
			},
			{
				Name:      "show",
				Usage:     "Show one session with its conflicts",
				ArgsUsage: "SESSION_ID",
				Action:    runSessionsShow,
			},
			{
				Name:      "script",
				Usage:     "Generate the resolution script for a session",
				ArgsUsage: "SESSION_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the script to `FILE` instead of stdout",
					},
				},
				Action: runSessionsScript,
			},
		},
	}
}

// ScriptCommand returns the top-level script command, a shorthand for
// `sessions script`.
func ScriptCommand() *cli.Command {
	return &cli.Command{
		Name:      "script",
		Usage:     "Generate the resolution script for a session",
		ArgsUsage: "SESSION_ID",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the script to `FILE` instead of stdout",
			},
		},
		Action: runSessionsScript,
	}
}

func runSessionsList(c *cli.Context) error {
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

	sessions, err := manager.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions found")
		return nil
	}

	for _, sess := range sessions {
		fmt.Printf("%s  %-10s %-9s  %d conflicts  %s\n",
			sess.CreatedAt.Format("2006-01-02 15:04"),
			sess.Status,
			sess.Progress.CurrentPhase,
			sess.Progress.TotalConflicts,
			sess.ID)
	}

	return nil
}

func runSessionsShow(c *cli.Context) error {
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

	sess, err := manager.GetSession(ctx, c.Args().Get(0))
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	fmt.Printf("Session:   %s (%s)\n", sess.ID, sess.Name)
	fmt.Printf("Status:    %s, phase %s\n", sess.Status, sess.Progress.CurrentPhase)
	fmt.Printf("Source:    %s\n", sess.SourceConnectionID)
	fmt.Printf("Target:    %s\n", sess.TargetConnectionID)
	fmt.Printf("Progress:  %d resolved, %d skipped, %d manual of %d\n",
		sess.Progress.ResolvedConflicts, sess.Progress.SkippedConflicts,
		sess.Progress.ManualConflicts, sess.Progress.TotalConflicts)
	fmt.Printf("Estimate:  %d minutes, manual review: %v\n",
		sess.EstimatedCompletionTime, sess.ManualReviewRequired)

	if len(sess.Conflicts) > 0 {
		fmt.Println("Conflicts:")
		for i := range sess.Conflicts {
			cf := &sess.Conflicts[i]
			fmt.Printf("  [%s] %-20s %-8s %s.%s\n",
				cf.ID, cf.Type.SubType, cf.Priority, cf.SourceObject.Schema, cf.SourceObject.Name)
		}
	}

	return nil
}

func runSessionsScript(c *cli.Context) error {
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

	sess, err := manager.GetSession(ctx, c.Args().Get(0))
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	sql, err := script.NewGenerator().Generate(sess, sess.Resolutions)
	if err != nil {
		return fmt.Errorf("failed to generate script: %w", err)
	}

	if output := c.String("output"); output != "" {
		if err := os.WriteFile(output, []byte(sql), 0644); err != nil {
			return fmt.Errorf("failed to write script: %w", err)
		}
		fmt.Printf("Wrote resolution script to %s\n", output)
		return nil
	}

	fmt.Print(sql)
	return nil
}
