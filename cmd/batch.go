package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Nexgear75/MacScribe/internal/formatter"
	"github.com/Nexgear75/MacScribe/internal/models"
	"github.com/Nexgear75/MacScribe/internal/shared"
	"github.com/Nexgear75/MacScribe/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Batch processes every positional input in-process, without a server.
func (r *Runner) Batch(ctx context.Context, cmd *cli.Command) error {
	reqs, err := batchRequests(cmd.Args().Slice(), cmd.String("action"), cmd.String("format"), cmd.String("output"))
	if err != nil {
		return err
	}

	manifest := cmd.String("manifest")
	if manifest != "" {
		if ext := strings.ToLower(filepath.Ext(manifest)); ext != ".json" && ext != ".csv" {
			return fmt.Errorf("%w: manifest must end in .json or .csv", shared.ErrInvalidArgument)
		}
	}

	pipeline, cleanup, err := r.newPipeline(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer cleanup()

	r.logger.Info("starting batch", "inputs", len(reqs), "workers", cmd.Int("workers"))
	r.writePlain("Processing %d inputs...\n\n", len(reqs))

	updates := make(chan tasks.BatchUpdate, len(reqs))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range updates {
			if u.Result.Success {
				r.writePlain("[%d/%d] ✓ %s → %s\n", u.Completed, u.Total, u.Result.Input, u.Result.OutputPath)
			} else {
				r.writePlain("[%d/%d] ✗ %s: %s\n", u.Completed, u.Total, u.Result.Input, u.Result.Error)
			}
		}
	}()

	opts := tasks.BatchOpts{NumWorkers: int(cmd.Int("workers")), RateLimit: cmd.Float("rate")}
	result, err := pipeline.Batch(ctx, reqs, opts, updates)
	close(updates)
	<-done

	if result != nil {
		r.writePlain("\n")
		r.writePlainHeader("Batch Complete")
		r.writePlain("Succeeded: %d/%d\n", result.Succeeded, result.Total)
		if result.Failed > 0 {
			r.writePlain("Failed: %d\n", result.Failed)
		}

		if manifest != "" {
			if werr := writeManifest(result, manifest); werr != nil {
				r.logger.Error("failed to write manifest", "path", manifest, "error", werr)
			} else {
				r.writePlain("Manifest: %s\n", manifest)
			}
		}
	}

	return err
}

// batchRequests builds one request per input. Remote inputs with a generating
// action still download first; the pipeline answers the decision with action.
func batchRequests(inputs []string, action, format, output string) ([]models.ProcessRequest, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one input file or URL", shared.ErrMissingArgument)
	}

	a := models.Action(action)
	if !a.Valid() {
		return nil, fmt.Errorf("%w: unsupported action %q", shared.ErrInvalidArgument, action)
	}
	if !models.ValidOutputFormat(format) {
		return nil, fmt.Errorf("%w: format must be one of %v", shared.ErrInvalidArgument, models.OutputFormats)
	}

	reqs := make([]models.ProcessRequest, 0, len(inputs))
	for _, input := range inputs {
		if !shared.IsURL(input) {
			if a == models.ActionDownloadVideo {
				return nil, fmt.Errorf("%w: download_video needs a URL, got %s", shared.ErrInvalidArgument, input)
			}
			if abs, err := filepath.Abs(input); err == nil {
				input = abs
			}
		}
		reqs = append(reqs, models.ProcessRequest{Action: a, FilePath: input, OutputFormat: format, OutputPath: output})
	}
	return reqs, nil
}

// writeManifest saves result as JSON or CSV depending on the extension of path.
func writeManifest(result *tasks.BatchResult, path string) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return formatter.WriteJSON(result, path)
	}

	headers := []string{"input", "session_id", "success", "output_path", "error", "elapsed"}
	rows := make([][]string, 0, len(result.Results))
	for _, res := range result.Results {
		rows = append(rows, []string{
			res.Input,
			res.SessionID,
			strconv.FormatBool(res.Success),
			res.OutputPath,
			res.Error,
			res.Elapsed.String(),
		})
	}
	return formatter.WriteCSV(headers, rows, path)
}
