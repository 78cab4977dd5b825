package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// WorkerCommand returns the worker command
func WorkerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run the classification worker pool without the ingestion API",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dev",
				Usage: "Use the development queue profile (fewer workers, faster failure)",
			},
		},
		Action: runWorker,
	}
}

func runWorker(c *cli.Context) error {
	cfg, err := loadValidConfig(c)
	if err != nil {
		return err
	}

	ctx := context.Background()

	deps, err := buildPipeline(ctx, cfg, true, c.Bool("dev"))
	if err != nil {
		return err
	}
	defer deps.close()

	if err := deps.queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	log.Info().Int("max_workers", cfg.Worker.MaxWorkers).Msg("Worker pool started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker pool")
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return deps.queue.Stop(stopCtx)
}
