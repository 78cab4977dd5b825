package jobqueue

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/zerolog/log"

	"github.com/tracklens/internal/tracker"
)

// TrackJobArgs is the payload of one queued interaction-tracking job.
type TrackJobArgs struct {
	ProjectID      string          `json:"projectId"`
	OrganizationID string          `json:"organizationId"`
	Data           tracker.Request `json:"data"`
}

// Kind returns the job kind for River.
func (TrackJobArgs) Kind() string { return "interaction_track" }

// TrackWorker drives the enrichment pipeline for one job. Returning an
// error leaves the job unacknowledged; River schedules redelivery up to
// MaxAttempts.
type TrackWorker struct {
	river.WorkerDefaults[TrackJobArgs]
	service *tracker.Service
	config  *QueueConfig
}

// Work runs the full assemble-classify-reconcile pipeline to completion.
func (w *TrackWorker) Work(ctx context.Context, job *river.Job[TrackJobArgs]) error {
	args := job.Args

	log.Info().
		Int64("job_id", job.ID).
		Int("attempt", job.Attempt).
		Str("project_id", args.ProjectID).
		Str("event", args.Data.Event).
		Msg("Processing tracking job")

	if w.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.JobTimeout)
		defer cancel()
	}

	interaction, err := w.service.Track(ctx, args.ProjectID, args.OrganizationID, args.Data)
	if err != nil {
		log.Error().
			Err(err).
			Int64("job_id", job.ID).
			Int("attempt", job.Attempt).
			Str("project_id", args.ProjectID).
			Str("organization_id", args.OrganizationID).
			Str("event", args.Data.Event).
			Msg("Tracking job failed")
		return err
	}

	log.Info().
		Int64("job_id", job.ID).
		Str("interaction_id", interaction.ID).
		Msg("Tracking job completed")
	return nil
}

// JobQueue manages the River client and its worker pool.
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewJobQueue creates the queue. With a nil service the queue can only
// insert jobs (API-only deployments); with a service it also registers the
// tracking worker.
func NewJobQueue(ctx context.Context, databaseURL string, service *tracker.Service, config *QueueConfig) (*JobQueue, error) {
	if config == nil {
		config = DefaultQueueConfig()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	riverCfg := &river.Config{}
	if service != nil {
		workers := river.NewWorkers()
		river.AddWorker(workers, &TrackWorker{service: service, config: config})
		riverCfg.Queues = config.RiverQueueConfig()
		riverCfg.Workers = workers
	}

	client, err := river.NewClient(riverpgxv5.New(pool), riverCfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{client: client, pool: pool, config: config}, nil
}

// Migrate applies River's own schema migrations so the job tables exist
// before the first insert.
func (jq *JobQueue) Migrate(ctx context.Context) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(jq.pool), nil)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("failed to run queue migrations: %w", err)
	}
	return nil
}

// Start starts the worker pool.
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop drains in-flight jobs and stops the worker pool.
func (jq *JobQueue) Stop(ctx context.Context) error {
	err := jq.client.Stop(ctx)
	jq.pool.Close()
	return err
}

// EnqueueTrack inserts one tracking job. The caller has already been
// acknowledged; from here delivery is the queue's responsibility.
func (jq *JobQueue) EnqueueTrack(ctx context.Context, projectID, orgID string, data tracker.Request) error {
	args := TrackJobArgs{ProjectID: projectID, OrganizationID: orgID, Data: data}
	_, err := jq.client.Insert(ctx, args, &river.InsertOpts{MaxAttempts: jq.config.MaxAttempts})
	if err != nil {
		return fmt.Errorf("failed to queue tracking job: %w", err)
	}
	return nil
}
