package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/Nexgear75/MacScribe/internal/formatter"
	"github.com/Nexgear75/MacScribe/internal/repositories"
	"github.com/Nexgear75/MacScribe/internal/services"
	"github.com/Nexgear75/MacScribe/internal/shared"
	"github.com/Nexgear75/MacScribe/internal/tasks"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	input      io.Reader
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Input      io.Reader
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		input:      opts.Input,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, processCommand, batchCommand, historyCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig reads the file named by --config before any command runs.
// A missing file falls back to the embedded defaults.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")

	config, err := shared.LoadConfigOrDefault(path)
	if err != nil {
		return ctx, err
	}

	r.config = config
	r.configPath = path
	level := shared.ParseLogLevel(config.Log.Level)
	if cmd.Bool("debug") {
		level = log.DebugLevel
	}
	shared.SetLogLevel(r.logger, level)
	r.logger.Debug("configuration loaded", "path", path)
	return ctx, nil
}

// SetLogger replaces the logger, e.g. to keep log lines out of the terminal UI.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// openHistory opens the migrated history database.
func (r *Runner) openHistory() (*repositories.HistoryRepository, *sql.DB, error) {
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, nil, err
	}
	return repositories.NewHistoryRepository(db), db, nil
}

// newPipeline wires the media, download, generation, export and history
// collaborators into a [tasks.Pipeline] reporting through channel.
//
// History is optional: when the database cannot be opened the pipeline runs without it.
// The returned func releases the database.
func (r *Runner) newPipeline(ctx context.Context, channel tasks.Channel) (*tasks.Pipeline, func(), error) {
	cfg := r.config

	generator, err := services.NewChatGenerator(ctx, cfg.LLM, r.httpClient, shared.WithLogger(r.logger, "component", "generator"))
	if err != nil {
		return nil, nil, err
	}

	opts := tasks.PipelineOpts{
		Channel:    channel,
		Downloader: services.NewYTDLPDownloader(cfg.Downloader, shared.WithLogger(r.logger, "component", "downloader")),
		Media:      services.NewFFmpegProcessor(services.MediaOptsFromConfig(cfg, shared.WithLogger(r.logger, "component", "media"))),
		Generator:  generator,
		Exporter:   formatter.NewExporter(cfg.Paths.OutputFolder),
		Pacing:     tasks.PacingFromConfig(cfg.Pipeline, cfg.Downloader),
		TempDir:    cfg.Paths.TempFolder,
		Logger:     r.logger,
	}

	cleanup := func() {}
	history, db, err := r.openHistory()
	if err != nil {
		r.logger.Warn("task history disabled", "error", err)
	} else {
		opts.History = history
		cleanup = func() { db.Close() }
	}

	return tasks.NewPipeline(opts), cleanup, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
