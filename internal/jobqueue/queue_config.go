/*
Package jobqueue configuration - tunable parameters for the River job queue.

Comparison jobs hold two live database connections while they introspect, so
MaxWorkers directly bounds the number of concurrent connection pairs. Retry
policy is deliberately short: a comparison that fails repeatedly is almost
always a connectivity or permission problem that retrying will not fix.
*/
package jobqueue

import (
	"os"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// QueueConfig holds all configurable parameters for the job queue
type QueueConfig struct {
	// Worker Configuration
	MaxWorkers int // Number of concurrent comparison jobs (default: 4)

	// Retry Configuration
	MaxRetries  int           // Maximum retry attempts per job (default: 5)
	RetryPolicy RetryPolicy   // Retry timing and backoff configuration
	JobTimeout  time.Duration // Maximum time a single comparison can run (default: 10 minutes)

	// SessionLogDir is where per-session audit logs are written.
	SessionLogDir string
}

// RetryPolicy defines how failed jobs are retried
type RetryPolicy struct {
	// InitialInterval is the time to wait before the first retry
	InitialInterval time.Duration // default: 5 seconds

	// MaxInterval is the maximum time to wait between retries
	MaxInterval time.Duration // default: 10 minutes

	// Multiplier is the factor by which the interval increases after each retry
	Multiplier float64 // default: 2.0 (exponential backoff)

	// MaxElapsedTime is the total time after which retries stop
	MaxElapsedTime time.Duration // default: 1 hour
}

// DefaultQueueConfig returns the default configuration
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		// Each worker pins a connection to both source and target while it
		// introspects, so keep this low by default.
		MaxWorkers: 4,

		MaxRetries: 5,
		RetryPolicy: RetryPolicy{
			InitialInterval: 5 * time.Second,
			MaxInterval:     10 * time.Minute,
			Multiplier:      2.0,
			MaxElapsedTime:  1 * time.Hour,
		},

		// A comparison of a large schema with many functions can take a
		// while, but anything past this is stuck.
		JobTimeout: 10 * time.Minute,

		SessionLogDir: "session_logs",
	}
}

// ProductionQueueConfig returns a configuration optimized for production use
func ProductionQueueConfig() *QueueConfig {
	config := DefaultQueueConfig()

	config.MaxWorkers = 8
	config.JobTimeout = 20 * time.Minute
	config.RetryPolicy.MaxElapsedTime = 6 * time.Hour

	return config
}

// DevelopmentQueueConfig returns a configuration optimized for development
func DevelopmentQueueConfig() *QueueConfig {
	config := DefaultQueueConfig()

	config.MaxWorkers = 2
	config.MaxRetries = 2
	config.RetryPolicy.MaxElapsedTime = 5 * time.Minute
	config.JobTimeout = 2 * time.Minute

	return config
}

// GetQueueConfig returns the configuration for the current environment,
// selected by the SCHEMASYNC_ENV environment variable.
func GetQueueConfig() *QueueConfig {
	switch os.Getenv("SCHEMASYNC_ENV") {
	case "production":
		return ProductionQueueConfig()
	case "development":
		return DevelopmentQueueConfig()
	default:
		return DefaultQueueConfig()
	}
}

// RiverQueueConfig converts our config to River's queue configuration format
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {
			MaxWorkers: c.MaxWorkers,
		},
	}
}

// ClientRetryPolicy adapts RetryPolicy to River's retry scheduling hook.
func (c *QueueConfig) ClientRetryPolicy() river.ClientRetryPolicy {
	return &backoffRetryPolicy{policy: c.RetryPolicy}
}

type backoffRetryPolicy struct {
	policy RetryPolicy
}

// NextRetry schedules the next attempt with exponential backoff, capped at
// MaxInterval. No retry is ever scheduled past the MaxElapsedTime budget
// counted from when the job was created.
func (p *backoffRetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	interval := p.policy.InitialInterval
	for i := 1; i < job.Attempt && interval < p.policy.MaxInterval; i++ {
		interval = time.Duration(float64(interval) * p.policy.Multiplier)
	}
	if interval > p.policy.MaxInterval {
		interval = p.policy.MaxInterval
	}

	next := time.Now().Add(interval)
	if cutoff := job.CreatedAt.Add(p.policy.MaxElapsedTime); next.After(cutoff) {
		next = cutoff
	}
	return next
}
