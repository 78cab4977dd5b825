package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/tracklens/internal/api"
	"github.com/tracklens/internal/config"
	"github.com/tracklens/internal/database"
	"github.com/tracklens/internal/jobqueue"
	"github.com/tracklens/internal/llm"
	"github.com/tracklens/internal/store"
	"github.com/tracklens/internal/tracker"
)

// ServeCommand returns the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the ingestion API, optionally with an embedded worker pool",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Override the listen port",
			},
			&cli.BoolFlag{
				Name:  "no-worker",
				Usage: "Accept and enqueue only; run workers in a separate process",
			},
			&cli.BoolFlag{
				Name:  "dev",
				Usage: "Use the development queue profile (fewer workers, faster failure)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadValidConfig(c)
	if err != nil {
		return err
	}
	if port := c.Int("port"); port > 0 {
		cfg.Server.Port = port
	}

	ctx := context.Background()

	deps, err := buildPipeline(ctx, cfg, !c.Bool("no-worker"), c.Bool("dev"))
	if err != nil {
		return err
	}
	defer deps.close()

	if deps.workers {
		if err := deps.queue.Start(ctx); err != nil {
			return fmt.Errorf("failed to start workers: %w", err)
		}
		log.Info().Int("max_workers", cfg.Worker.MaxWorkers).Msg("Worker pool started")
	}

	server := api.NewServer(cfg.Server.Port, deps.resolver, deps.queue, &api.Options{
		RateLimitPerSecond: cfg.Server.RateLimitPerSecond,
		RateLimitBurst:     cfg.Server.RateLimitBurst,
	})

	log.Info().Int("port", cfg.Server.Port).Msg("Starting ingestion API")
	if err := server.Start(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	if deps.workers {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := deps.queue.Stop(stopCtx); err != nil {
			log.Error().Err(err).Msg("Worker pool did not stop cleanly")
		}
	}
	return nil
}

// pipeline bundles everything serve and worker share: the store, the queue
// and the API key resolver, all bound to the same database.
type pipeline struct {
	queue    *jobqueue.JobQueue
	resolver *api.StoreResolver
	workers  bool
	closeFns []func()
}

func (p *pipeline) close() {
	for i := len(p.closeFns) - 1; i >= 0; i-- {
		p.closeFns[i]()
	}
}

func buildPipeline(ctx context.Context, cfg *config.Config, withWorkers, dev bool) (*pipeline, error) {
	dbURL := cfg.Database.URL
	if dbURL == "" {
		var err error
		dbURL, err = database.URL()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database URL: %w", err)
		}
	}

	db, err := database.Open(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := store.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	st := store.NewPostgresStore(db)

	var service *tracker.Service
	if withWorkers {
		client, err := llm.NewLangchainClient(ctx, llm.Config{
			Provider:    llm.Provider(cfg.LLM.Provider),
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		timeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
		service = tracker.NewService(st, llm.NewResilientClient(client), timeout)
	}

	var queueCfg *jobqueue.QueueConfig
	if dev {
		queueCfg = jobqueue.DevelopmentQueueConfig()
	} else {
		queueCfg = jobqueue.DefaultQueueConfig()
		queueCfg.MaxWorkers = cfg.Worker.MaxWorkers
		queueCfg.MaxAttempts = cfg.Worker.MaxAttempts
	}

	queue, err := jobqueue.NewJobQueue(ctx, dbURL, service, queueCfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create job queue: %w", err)
	}
	if err := queue.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &pipeline{
		queue:    queue,
		resolver: api.NewStoreResolver(st),
		workers:  withWorkers,
		closeFns: []func(){func() { db.Close() }},
	}, nil
}

func loadValidConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
