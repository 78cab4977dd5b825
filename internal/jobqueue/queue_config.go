/*
Package jobqueue configuration - tunable parameters for the River-based
tracking queue.

Worker count bounds how many classifications run concurrently; each in-flight
job holds one LLM request and one database connection, so size MaxWorkers
against both the provider rate limit and the connection pool.

Failed jobs are retried by River with its default exponential backoff until
MaxAttempts is reached; error details stay queryable in the river_job table.
Delivery is at-least-once: a job that completes but whose acknowledgment is
lost will run again and record a duplicate interaction. There is no
idempotency key in the payload, so consumers of the data should tolerate
rare duplicates.
*/
package jobqueue

import (
	"time"

	"github.com/riverqueue/river"
)

// QueueConfig holds all configurable parameters for the tracking queue.
type QueueConfig struct {
	MaxWorkers  int           // concurrent jobs processed (default: 10)
	MaxAttempts int           // delivery attempts per job before discard (default: 10)
	JobTimeout  time.Duration // upper bound for one full pipeline run (default: 2 minutes)
}

// DefaultQueueConfig returns the default configuration.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers:  10,
		MaxAttempts: 10,
		JobTimeout:  2 * time.Minute,
	}
}

// DevelopmentQueueConfig fails faster and uses fewer resources.
func DevelopmentQueueConfig() *QueueConfig {
	cfg := DefaultQueueConfig()
	cfg.MaxWorkers = 3
	cfg.MaxAttempts = 3
	cfg.JobTimeout = 1 * time.Minute
	return cfg
}

// RiverQueueConfig converts our config to River's queue configuration format.
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {
			MaxWorkers: c.MaxWorkers,
		},
	}
}
