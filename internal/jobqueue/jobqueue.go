/*
Package jobqueue provides a River-based job queue for running schema
comparisons in the background.

For configuration options, retry policies, and tuning parameters, see
queue_config.go.
*/
package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/chaluvadis/schemasync/internal/compare"
	"github.com/chaluvadis/schemasync/internal/conflict"
	"github.com/chaluvadis/schemasync/internal/inspect"
	"github.com/chaluvadis/schemasync/internal/logging"
	"github.com/chaluvadis/schemasync/internal/session"
	"github.com/chaluvadis/schemasync/pkg/models"
)

// CompareJobArgs represents the arguments for a schema comparison job.
// Connection URLs are looked up by ID through the worker's resolver so
// credentials never land in the River jobs table.
type CompareJobArgs struct {
	SessionName  string `json:"session_name"`
	SourceConnID string `json:"source_conn_id"`
	TargetConnID string `json:"target_conn_id"`
	RequestedBy  string `json:"requested_by"`
	AutoResolve  bool   `json:"auto_resolve"`
}

// Kind returns the job kind for River
func (CompareJobArgs) Kind() string {
	return "schema_compare"
}

// ConnResolver maps a connection ID to a database URL.
type ConnResolver func(connID string) (string, error)

// CompareWorker handles schema comparison jobs
type CompareWorker struct {
	river.WorkerDefaults[CompareJobArgs]
	sessions *session.Manager
	resolve  ConnResolver
	config   *QueueConfig
}

// Timeout bounds one comparison run; River cancels the work context when it
// elapses.
func (w *CompareWorker) Timeout(*river.Job[CompareJobArgs]) time.Duration {
	return w.config.JobTimeout
}

// Work runs the full comparison pipeline for one job: snapshot both
// databases, diff them, classify conflicts, link dependencies, and open a
// resolution session. When the job asks for it, automatic resolution runs
// immediately after.
func (w *CompareWorker) Work(ctx context.Context, job *river.Job[CompareJobArgs]) error {
	args := job.Args

	log.Info().
		Str("source", args.SourceConnID).
		Str("target", args.TargetConnID).
		Msg("processing schema comparison job")

	sourceSnap, err := w.snapshot(ctx, args.SourceConnID)
	if err != nil {
		return fmt.Errorf("failed to snapshot source %s: %w", args.SourceConnID, err)
	}
	targetSnap, err := w.snapshot(ctx, args.TargetConnID)
	if err != nil {
		return fmt.Errorf("failed to snapshot target %s: %w", args.TargetConnID, err)
	}

	differences := compare.Compare(sourceSnap, targetSnap)

	detector := conflict.NewDetector()
	conflicts := detector.Detect(ctx, differences)
	conflict.LinkDependencies(conflicts)

	sess, err := w.sessions.CreateSession(ctx, args.SourceConnID, args.TargetConnID, conflicts, session.Options{
		Name:                  args.SessionName,
		CreatedBy:             args.RequestedBy,
		AutoResolutionEnabled: args.AutoResolve,
	})
	if err != nil {
		return fmt.Errorf("failed to create resolution session: %w", err)
	}

	sessionLog, err := logging.StartSessionLogging(w.config.SessionLogDir, sess.ID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("session log unavailable, continuing without it")
	}
	defer sessionLog.Close()

	sessionLog.Log("compared %s against %s: %d differences, %d conflicts",
		args.SourceConnID, args.TargetConnID, len(differences), len(conflicts))
	for i := range sess.Conflicts {
		cf := &sess.Conflicts[i]
		sessionLog.LogConflict(cf.ID, cf.Type.SubType, string(cf.Priority), cf.Type.Description)
	}

	log.Info().
		Str("session_id", sess.ID).
		Int("differences", len(differences)).
		Int("conflicts", len(conflicts)).
		Msg("comparison job completed")

	if args.AutoResolve && len(conflicts) > 0 {
		outcomes, err := w.sessions.ResolveAutomatically(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("failed to auto-resolve session %s: %w", sess.ID, err)
		}
		resolved := 0
		for _, outcome := range outcomes {
			if outcome.Err != nil {
				sessionLog.LogError("auto-resolve "+outcome.ConflictID, outcome.Err)
				continue
			}
			resolved++
			sessionLog.LogResolution(outcome.ConflictID, outcome.Resolution.Strategy.ID, string(outcome.Resolution.Resolution))
		}
		log.Info().
			Str("session_id", sess.ID).
			Int("resolved", resolved).
			Int("attempted", len(outcomes)).
			Msg("automatic resolution finished")
	}

	return nil
}

func (w *CompareWorker) snapshot(ctx context.Context, connID string) (*models.Snapshot, error) {
	url, err := w.resolve(connID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve connection %s: %w", connID, err)
	}

	inspector, err := inspect.Connect(ctx, connID, url)
	if err != nil {
		return nil, err
	}
	defer inspector.Close()

	return inspector.Snapshot(ctx)
}

// JobQueue manages the River job queue
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewJobQueue creates a new job queue instance
func NewJobQueue(databaseURL string, sessions *session.Manager, resolve ConnResolver) (*JobQueue, error) {
	config := GetQueueConfig()

	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &CompareWorker{
		sessions: sessions,
		resolve:  resolve,
		config:   config,
	})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		// MaxRetries counts retries, River counts total attempts
		MaxAttempts: config.MaxRetries + 1,
		Queues:      config.RiverQueueConfig(),
		RetryPolicy: config.ClientRetryPolicy(),
		Workers:     workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{
		client: client,
		pool:   pool,
		config: config,
	}, nil
}

// Start starts the job queue workers
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers and releases the pool
func (jq *JobQueue) Stop(ctx context.Context) error {
	err := jq.client.Stop(ctx)
	jq.pool.Close()
	return err
}

// QueueCompareJob queues a schema comparison job
func (jq *JobQueue) QueueCompareJob(ctx context.Context, args CompareJobArgs) error {
	_, err := jq.client.Insert(ctx, args, nil)
	if err != nil {
		return fmt.Errorf("failed to queue schema compare job: %w", err)
	}

	return nil
}
