package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/tracklens/internal/api"
	"github.com/tracklens/internal/config"
	"github.com/tracklens/internal/database"
	"github.com/tracklens/internal/store"
)

// ProjectCommand returns the project command
func ProjectCommand() *cli.Command {
	return &cli.Command{
		Name:  "project",
		Usage: "Manage projects and their API keys",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a project and print its API key",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Aliases:  []string{"n"},
						Usage:    "Project name",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "org",
						Aliases:  []string{"g"},
						Usage:    "Organization identifier",
						Required: true,
					},
				},
				Action: runProjectCreate,
			},
		},
	}
}

func runProjectCreate(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dbURL := cfg.Database.URL
	if dbURL == "" {
		dbURL, err = database.URL()
		if err != nil {
			return fmt.Errorf("failed to resolve database URL: %w", err)
		}
	}

	db, err := database.Open(dbURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := store.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	project, key, err := api.ProvisionProject(ctx, store.NewPostgresStore(db), c.String("name"), c.String("org"))
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	fmt.Printf("Created project %s (id: %s)\n", project.Name, project.ID)
	fmt.Printf("API key (shown once, store it now): %s\n", key)
	return nil
}
