package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nexgear75/MacScribe/internal/models"
	"github.com/Nexgear75/MacScribe/internal/repositories"
	"github.com/Nexgear75/MacScribe/internal/shared"
	"github.com/Nexgear75/MacScribe/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"
)

// HistoryList prints recorded sessions, newest first.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	status := models.JobStatus(cmd.String("status"))
	switch status {
	case "", models.JobCompleted, models.JobFailed, models.JobAbandoned:
	default:
		return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidArgument, status)
	}

	repo, db, err := r.openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	jobs, err := repo.List(status, int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	if cmd.Bool("tui") {
		if _, err := tea.NewProgram(ui.NewHistoryModel(jobs), tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
			return fmt.Errorf("error running TUI: %w", err)
		}
		return nil
	}

	if cmd.Bool("json") {
		return r.writeJSON(jobs, cmd.Bool("pretty"))
	}

	if len(jobs) == 0 {
		r.writePlain("No sessions recorded yet.\n")
		return nil
	}

	r.writePlain("Found %d sessions:\n\n", len(jobs))
	for _, job := range jobs {
		r.writeJob(job)
	}
	return nil
}

// HistoryShow prints one recorded session.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: session id", shared.ErrMissingArgument)
	}

	repo, db, err := r.openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	job, err := repo.Get(id)
	if errors.Is(err, repositories.ErrJobNotFound) {
		return fmt.Errorf("%w: no session %s in %s", shared.ErrInvalidArgument, id, r.config.Database.Path)
	}
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(job, true)
	}
	r.writeJob(job)
	return nil
}

// HistoryPurge deletes sessions that finished before now minus --older-than.
func (r *Runner) HistoryPurge(ctx context.Context, cmd *cli.Command) error {
	age := cmd.Duration("older-than")
	if age <= 0 {
		return fmt.Errorf("%w: --older-than must be positive", shared.ErrInvalidArgument)
	}

	repo, db, err := r.openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	cutoff := time.Now().Add(-age)
	n, err := repo.Purge(cutoff)
	if err != nil {
		return err
	}

	r.logger.Info("history purged", "cutoff", cutoff.Format(time.RFC3339), "deleted", n)
	r.writePlain("Deleted %d sessions finished before %s\n", n, cutoff.Format("2006-01-02 15:04"))
	return nil
}

func (r *Runner) writeJob(job *models.Job) {
	r.writePlain("#%d %s\n", job.Sequence, job.Input)
	if job.Title != "" {
		r.writePlain("   Title: %s\n", job.Title)
	}
	r.writePlain("   ID: %s\n", job.ID)
	r.writePlain("   Action: %s\n", job.Action)
	r.writePlain("   Status: %s\n", job.Status)
	if job.OutputPath != "" {
		r.writePlain("   Output: %s\n", job.OutputPath)
	}
	if job.ErrorMessage != "" {
		r.writePlain("   Error: %s\n", job.ErrorMessage)
	}
	r.writePlain("   Finished: %s (%s)\n", job.FinishedAt.Local().Format("2006-01-02 15:04:05"), job.Elapsed().Round(time.Second))
	r.writePlain("\n")
}
