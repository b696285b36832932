package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Nexgear75/MacScribe/internal/models"
	"github.com/Nexgear75/MacScribe/internal/services"
	"github.com/Nexgear75/MacScribe/internal/shared"
	"github.com/Nexgear75/MacScribe/internal/ui"
	"github.com/urfave/cli/v3"
)

// Process sends one input to a running server and follows its progress.
func (r *Runner) Process(ctx context.Context, cmd *cli.Command) error {
	req, err := r.processRequest(cmd.StringArg("input"), cmd.String("action"), cmd.String("format"), cmd.String("output"))
	if err != nil {
		return err
	}

	decision := models.Action(cmd.String("decision"))
	if decision != "" && !decision.Generates() && decision != models.ActionDone {
		return fmt.Errorf("%w: decision must be create_course, create_summary or done", shared.ErrInvalidArgument)
	}

	baseURL := cmd.String("server")
	if baseURL == "" {
		baseURL = "http://" + r.config.Server.Addr()
	}
	client := services.NewProcessClient(baseURL, r.httpClient)

	if _, err := client.Health(ctx); err != nil {
		return err
	}

	session, err := client.Open(ctx, req)
	if err != nil {
		return err
	}
	defer session.Close()

	r.logger.Info("session opened", "server", baseURL, "input", req.FilePath, "action", req.Action)

	if cmd.Bool("tui") {
		return r.processTUI(ctx, session, req)
	}
	return r.processPlain(ctx, session, req, decision, cmd.Bool("json"))
}

// processRequest validates the command line and builds the first client message.
// Remote inputs always start with a download.
func (r *Runner) processRequest(input, action, format, output string) (models.ProcessRequest, error) {
	if input == "" {
		return models.ProcessRequest{}, fmt.Errorf("%w: input file or URL", shared.ErrMissingArgument)
	}
	if !models.ValidOutputFormat(format) {
		return models.ProcessRequest{}, fmt.Errorf("%w: format must be one of %v", shared.ErrInvalidArgument, models.OutputFormats)
	}

	req := models.ProcessRequest{
		Action:       models.Action(action),
		FilePath:     input,
		OutputFormat: format,
		OutputPath:   output,
	}

	if shared.IsURL(input) {
		req.Action = models.ActionDownloadVideo
		return req, nil
	}

	if !req.Action.Generates() {
		return req, fmt.Errorf("%w: action must be create_course or create_summary", shared.ErrInvalidArgument)
	}

	abs, err := filepath.Abs(input)
	if err != nil {
		return req, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return req, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	req.FilePath = abs
	return req, nil
}

func (r *Runner) processTUI(ctx context.Context, session *services.Session, req models.ProcessRequest) error {
	fileLogger, err := shared.NewFileLogger("./tmp/macscribe-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	m, err := ui.Run(ctx, session, ui.Options{OutputFormat: req.OutputFormat, OutputPath: req.OutputPath})
	if err != nil {
		return err
	}
	if m.Output() != "" {
		r.writePlain("%s\n", m.Output())
	}
	return nil
}

func (r *Runner) processPlain(ctx context.Context, session *services.Session, req models.ProcessRequest, decision models.Action, asJSON bool) error {
	printer := &eventPrinter{r: r, json: asJSON}

	for {
		last, err := session.Events(ctx, printer.print)
		if err != nil {
			return fmt.Errorf("session ended early: %w", err)
		}

		switch last.Type {
		case models.MsgError:
			return fmt.Errorf("task failed: %s", last.Message)
		case models.MsgComplete:
			return nil
		case models.MsgDownloadComplete:
			choice := decision
			if choice == "" {
				if choice, err = r.promptDecision(); err != nil {
					return err
				}
			}
			r.logger.Info("sending decision", "continue_action", choice)
			d := models.DecisionMessage{ContinueAction: choice, OutputFormat: req.OutputFormat, OutputPath: req.OutputPath}
			if err := session.Decide(d); err != nil {
				return err
			}
		}
	}
}

// promptDecision asks on the runner's input what to do with a finished download.
func (r *Runner) promptDecision() (models.Action, error) {
	scanner := bufio.NewScanner(r.input)
	for {
		r.writePlain("Next step? [c]ourse, [s]ummary, [d]one: ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("failed to read decision: %w", err)
			}
			return "", fmt.Errorf("%w: no decision given", shared.ErrMissingArgument)
		}

		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "c", "course", string(models.ActionCreateCourse):
			return models.ActionCreateCourse, nil
		case "s", "summary", string(models.ActionCreateSummary):
			return models.ActionCreateSummary, nil
		case "d", "done", "":
			return models.ActionDone, nil
		}
	}
}

// eventPrinter renders server messages as plain lines.
type eventPrinter struct {
	r         *Runner
	json      bool
	tasks     []models.SubTask
	milestone map[int]int
}

func (p *eventPrinter) print(e models.Event) {
	if p.json {
		p.r.writeJSON(e, false)
		return
	}

	switch e.Type {
	case models.MsgConnected:
		p.r.writePlain("Connected (session %s)\n", e.SessionID())
	case models.MsgInit:
		p.tasks = e.Tasks
		p.milestone = make(map[int]int)
		names := make([]string, len(e.Tasks))
		for i, t := range e.Tasks {
			names[i] = t.Name
		}
		p.r.writePlain("Tasks: %s\n", strings.Join(names, " → "))
	case models.MsgStatus:
		switch e.Status {
		case models.StatusRunning:
			p.r.writePlain("▸ %s\n", p.name(e))
		case models.StatusCompleted:
			p.r.writePlain("✓ %s\n", p.name(e))
		}
	case models.MsgProgress:
		idx, ok := e.Index()
		if !ok || e.Progress == nil {
			return
		}
		if p.milestone == nil {
			p.milestone = make(map[int]int)
		}
		// quarter steps only
		step := *e.Progress / 25
		if step > 0 && step < 4 && step > p.milestone[idx] {
			p.milestone[idx] = step
			p.r.writePlain("  %s %d%%\n", p.name(e), step*25)
		}
	case models.MsgDownloadComplete:
		p.r.writePlain("Downloaded %q to %s\n", e.Title, e.VideoPath)
	case models.MsgGenerationStart:
		p.r.writePlain("%s\n", e.Prompt)
	case models.MsgError:
		p.r.writePlain("✗ %s\n", e.Message)
	case models.MsgComplete:
		p.r.writePlain("✓ Output: %s\n", e.OutputPath)
	}
}

func (p *eventPrinter) name(e models.Event) string {
	idx, ok := e.Index()
	if !ok || idx < 0 || idx >= len(p.tasks) {
		return fmt.Sprintf("task %d", idx)
	}
	return p.tasks[idx].Name
}
