package main

import (
	"context"
	"fmt"

	"github.com/Nexgear75/MacScribe/internal/server"
	"github.com/Nexgear75/MacScribe/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve runs the processing server until ctx is cancelled.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config.Server
	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = int(cmd.Int("port"))
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("%w: port out of range: %d", shared.ErrInvalidArgument, cfg.Port)
	}

	hub := server.NewHub(shared.WithLogger(r.logger, "component", "hub"))

	pipeline, cleanup, err := r.newPipeline(ctx, hub)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer cleanup()

	for _, status := range r.checkTools(ctx) {
		if !status.OK() {
			r.logger.Warn("external tool unavailable", "tool", status.Tool.Name, "error", status.Err)
		}
	}

	r.logger.Info("starting server", "addr", cfg.Addr(), "temp", r.config.Paths.TempFolder, "output", r.config.Paths.OutputFolder)
	srv := server.New(cfg, pipeline, hub, shared.WithLogger(r.logger, "component", "server"))
	return srv.ListenAndServe(ctx)
}
