package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Nexgear75/MacScribe/internal/services"
	"github.com/Nexgear75/MacScribe/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase creates the config file when it is missing, then initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath
	if configPath == "" {
		configPath = cmd.String("config")
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			r.logger.Info("config file not found, creating from template", "path", configPath)
			if err := shared.CreateConfigFile(configPath); err != nil {
				r.logger.Warn("failed to create config file, using defaults", "error", err)
			} else {
				r.logger.Info("config file created", "path", configPath)
				if config, err := shared.LoadConfig(configPath); err != nil {
					r.logger.Warn("failed to load created config, using defaults", "error", err)
				} else {
					r.config = config
				}
			}
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	versions, err := shared.AppliedVersions(db)
	if err != nil {
		return err
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	r.writePlain("✓ Database ready: %s (migrations applied: %v)\n", r.config.Database.Path, versions)
	return nil
}

// SetupRollback reverts the most recently applied migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RollbackMigration(db); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}

	versions, err := shared.AppliedVersions(db)
	if err != nil {
		return err
	}
	r.writePlain("✓ Rolled back; applied migrations: %v\n", versions)
	return nil
}

// SetupTools reports whether the external binaries the pipeline needs can run.
func (r *Runner) SetupTools(ctx context.Context, cmd *cli.Command) error {
	statuses := r.checkTools(ctx)

	r.writePlainHeader("External tools")
	missing := 0
	for _, s := range statuses {
		if s.OK() {
			r.writePlain("✓ %-12s %s\n", s.Tool.Name, s.Resolved)
			if s.Banner != "" {
				r.writePlain("  %s\n", s.Banner)
			}
			continue
		}
		missing++
		r.writePlain("✗ %-12s %v\n", s.Tool.Name, s.Err)
	}

	if key := r.config.LLM.APIKey(); key == "" && !strings.EqualFold(r.config.LLM.Provider, services.ProviderOllama) {
		r.writePlainln("! no API key found for llm provider %q", r.config.LLM.Provider)
	}

	if missing > 0 {
		return fmt.Errorf("%w: %d of %d tools unavailable", shared.ErrServiceUnavailable, missing, len(statuses))
	}
	return nil
}

func (r *Runner) checkTools(ctx context.Context) []services.ToolStatus {
	tools := services.RequiredTools(services.MediaOptsFromConfig(r.config, r.logger))
	return services.CheckTools(ctx, tools)
}
