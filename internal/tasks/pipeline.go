package tasks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Nexgear75/MacScribe/internal/models"
	"github.com/Nexgear75/MacScribe/internal/shared"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// defaultFormat is used when a request or decision omits output_format.
const defaultFormat = "md"

// Pacing holds the pauses between client-visible transitions.
type Pacing struct {
	Init         time.Duration // after an "init"
	Phase        time.Duration // after each completed subtask
	Final        time.Duration // before "complete"
	Teardown     time.Duration // before the connection is closed
	PollInterval time.Duration // synthetic transcription progress period
	PollStep     int
	TokenBatch   int     // emit generation_token every TokenBatch tokens
	DownloadRate float64 // max download progress messages per second
}

// PacingFromConfig converts the [shared.PipelineConfig] section.
func PacingFromConfig(pc shared.PipelineConfig, dc shared.DownloaderConfig) Pacing {
	return Pacing{
		Init:         pc.InitDelay,
		Phase:        pc.PhaseDelay,
		Final:        pc.FinalDelay,
		Teardown:     pc.TeardownDelay,
		PollInterval: pc.PollInterval,
		PollStep:     pc.PollStep,
		TokenBatch:   pc.TokenBatch,
		DownloadRate: dc.ProgressRate,
	}
}

// Pipeline drives sessions through download, audio preparation, transcription,
// generation and export.
type Pipeline struct {
	registry   *Registry
	channel    Channel
	downloader Downloader
	media      MediaProcessor
	generator  Generator
	exporter   Exporter
	history    HistoryRecorder
	pacing     Pacing
	tempDir    string
	logger     *log.Logger
}

// PipelineOpts contains the dependencies of a [Pipeline].
type PipelineOpts struct {
	Channel    Channel
	Downloader Downloader
	Media      MediaProcessor
	Generator  Generator
	Exporter   Exporter
	History    HistoryRecorder
	Pacing     Pacing
	TempDir    string
	Logger     *log.Logger
}

// NewPipeline creates a [Pipeline] and the [Registry] it reports through.
func NewPipeline(opts PipelineOpts) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Pacing.TokenBatch <= 0 {
		opts.Pacing.TokenBatch = 3
	}
	if opts.Pacing.PollStep <= 0 {
		opts.Pacing.PollStep = 5
	}
	if opts.TempDir == "" {
		opts.TempDir = ".temp"
	}

	return &Pipeline{
		registry:   NewRegistry(opts.Channel, opts.Logger),
		channel:    opts.Channel,
		downloader: opts.Downloader,
		media:      opts.Media,
		generator:  opts.Generator,
		exporter:   opts.Exporter,
		history:    opts.History,
		pacing:     opts.Pacing,
		tempDir:    opts.TempDir,
		logger:     opts.Logger,
	}
}

// Registry returns the task registry shared by all sessions of p.
func (p *Pipeline) Registry() *Registry {
	return p.registry
}

// Open registers the task for req and returns the new session id. A missing output
// format defaults to markdown.
func (p *Pipeline) Open(req models.ProcessRequest) string {
	format := req.OutputFormat
	if format == "" {
		format = defaultFormat
	}
	return p.registry.Create(req.FilePath, req.Action, format, req.OutputPath)
}

// Serve owns session id until teardown: it announces the session, runs the pipeline,
// waits out the teardown pause, records history, removes the task, and disconnects.
func (p *Pipeline) Serve(ctx context.Context, id string) {
	p.channel.Send(id, connectedMessage(id))

	if err := p.Run(ctx, id); err != nil {
		shared.WithLogger(p.logger, "session", id).Warn("pipeline stopped", "error", err)
	}

	p.pause(ctx, p.pacing.Teardown)

	if state, ok := p.registry.Remove(id); ok {
		p.record(state)
	}
	p.channel.Disconnect(id)
}

// Run executes the pipeline for session id. Any failure is recorded on the task
// (and sent to the client) before it is returned.
func (p *Pipeline) Run(ctx context.Context, id string) error {
	state, ok := p.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, id)
	}

	r := &run{
		p:          p,
		id:         id,
		phase:      Idle,
		input:      state.Input,
		action:     state.Action,
		format:     state.OutputFormat,
		outputPath: state.OutputPath,
		workDir:    filepath.Join(p.tempDir, id),
		logger:     shared.WithLogger(p.logger, "session", id),
	}

	err := r.execute(ctx)
	if err != nil {
		r.fail(err)
	}
	return err
}

func (p *Pipeline) record(state models.TaskState) {
	if p.history == nil {
		return
	}

	status := models.JobAbandoned
	switch {
	case state.Completed:
		status = models.JobCompleted
	case state.Failed():
		status = models.JobFailed
	}

	if err := p.history.Record(models.JobFromTask(state, status, time.Now())); err != nil {
		p.logger.Warn("failed to record job history", "session", state.ID, "error", err)
	}
}

// pause sleeps for d or until ctx ends.
func (p *Pipeline) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// run is the per-session state of one pipeline execution.
type run struct {
	p          *Pipeline
	id         string
	phase      Phase
	input      string
	action     models.Action
	format     string
	outputPath string
	workDir    string
	step       int // index of the next subtask
	logger     *log.Logger
}

func (r *run) transition(ctx context.Context, next Phase) error {
	if !validTransition(r.phase, next) {
		return fmt.Errorf("%w: %s -> %s", shared.ErrInvalidPhase, r.phase, next)
	}
	if next != Done && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", shared.ErrConnectionLost, ctx.Err())
	}
	r.logger.Debug("phase transition", "from", r.phase, "to", next)
	r.phase = next
	return nil
}

func (r *run) fail(err error) {
	if !r.phase.Terminal() {
		r.phase = Failed
	}
	r.p.registry.SetError(r.id, err.Error())
}

func (r *run) execute(ctx context.Context) error {
	if shared.IsURL(r.input) {
		return r.remote(ctx)
	}

	if !r.action.Generates() {
		return fmt.Errorf("%w: %q needs a remote URL", shared.ErrInvalidInput, r.action)
	}

	switch kind := r.p.media.DetectType(r.input); kind {
	case models.MediaVideo:
		return r.process(ctx, r.input, true)
	case models.MediaAudio:
		return r.process(ctx, r.input, false)
	default:
		return fmt.Errorf("%w: %s", shared.ErrUnsupportedMedia, filepath.Base(r.input))
	}
}

func (r *run) initialize(ctx context.Context, names []string) {
	r.p.registry.InitializeSubTasks(r.id, names)
	r.step = 0
	r.p.pause(ctx, r.p.pacing.Init)
}

// remote downloads the input, hands control to the client, and continues with its choice.
func (r *run) remote(ctx context.Context) error {
	if err := r.transition(ctx, Downloading); err != nil {
		return err
	}
	r.initialize(ctx, downloadSubTasks)
	idx := r.begin()

	limiter := newDownloadLimiter(r.p.pacing.DownloadRate)
	pending := RunBlocking(ctx, func(ctx context.Context, report func(models.DownloadProgress)) (*models.DownloadResult, error) {
		return r.p.downloader.Download(ctx, r.input, r.workDir, report)
	})
	result, err := Await(pending, func(dp models.DownloadProgress) {
		if dp.Percent >= 100 || limiter.Allow() {
			r.p.registry.UpdateDownloadProgress(r.id, idx, dp)
		}
	}, nil, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrDownloadFailed, err)
	}
	if result == nil || result.FilePath == "" {
		return fmt.Errorf("%w: downloader returned no file", shared.ErrDownloadFailed)
	}

	r.p.registry.UpdateProgress(r.id, idx, 100)
	r.end(ctx, idx)
	r.p.registry.SetTitle(r.id, result.Title)
	r.p.channel.Send(r.id, downloadCompleteMessage(result))
	r.logger.Info("download complete, waiting for decision", "path", result.FilePath, "title", result.Title)

	if err := r.transition(ctx, AwaitingDecision); err != nil {
		return err
	}

	var decision models.DecisionMessage
	if err := r.p.channel.ReceiveNext(ctx, r.id, &decision); err != nil {
		if errors.Is(err, shared.ErrMalformedMessage) || errors.Is(err, shared.ErrConnectionLost) {
			return err
		}
		return fmt.Errorf("%w: %v", shared.ErrConnectionLost, err)
	}

	choice := decision.Choice()
	r.logger.Info("decision received", "action", choice)

	switch {
	case choice == models.ActionDone:
		if err := r.transition(ctx, Done); err != nil {
			return err
		}
		r.p.registry.ApplyDecision(r.id, choice, "", result.FilePath)
		r.p.pause(ctx, r.p.pacing.Final)
		r.p.registry.CompleteAll(r.id, result.FilePath)
		return nil
	case choice.Generates():
		format := decision.OutputFormat
		if format == "" {
			format = defaultFormat
		}
		if !models.ValidOutputFormat(format) {
			return fmt.Errorf("%w: unsupported output format %q", shared.ErrInvalidInput, format)
		}
		r.action = choice
		r.format = format
		r.outputPath = decision.OutputPath
		r.p.registry.ApplyDecision(r.id, r.action, r.format, r.outputPath)

		return r.process(ctx, result.FilePath, true)
	default:
		return fmt.Errorf("%w: %q", shared.ErrUnknownAction, choice)
	}
}

// process announces the subtasks, then runs extraction (for video), normalization,
// transcription, generation and export.
func (r *run) process(ctx context.Context, source string, video bool) error {
	audio := source

	if video {
		if err := r.transition(ctx, ExtractingAudio); err != nil {
			return err
		}
		r.initialize(ctx, videoSubTasks)
		extracted, err := blocking(ctx, r, shared.ErrExtractionFailed, func(ctx context.Context) (string, error) {
			return r.p.media.ExtractAudio(ctx, source, r.workDir)
		})
		if err != nil {
			return err
		}
		audio = extracted
	}

	if err := r.transition(ctx, Normalizing); err != nil {
		return err
	}
	if !video {
		r.initialize(ctx, audioSubTasks)
	}
	normalized, err := blocking(ctx, r, shared.ErrNormalizationFailed, func(ctx context.Context) (string, error) {
		return r.p.media.Normalize(ctx, audio, r.workDir)
	})
	if err != nil {
		return err
	}

	if err := r.transition(ctx, Transcribing); err != nil {
		return err
	}
	transcription, err := r.transcribe(ctx, normalized)
	if err != nil {
		return err
	}

	if err := r.transition(ctx, Generating); err != nil {
		return err
	}
	content, err := r.generate(ctx, transcription.Text)
	if err != nil {
		return err
	}

	if err := r.transition(ctx, Exporting); err != nil {
		return err
	}
	outFile, err := blocking(ctx, r, shared.ErrExportFailed, func(context.Context) (string, error) {
		written, err := r.p.exporter.Export(content, source, r.format, r.outputPath)
		if err != nil {
			return "", err
		}
		if err := r.p.media.CleanTemp(r.workDir); err != nil {
			r.logger.Warn("failed to clean temp folder", "dir", r.workDir, "error", err)
		}
		return written, nil
	})
	if err != nil {
		return err
	}
	r.logger.Info("file saved", "path", outFile)

	if err := r.transition(ctx, Done); err != nil {
		return err
	}
	r.p.pause(ctx, r.p.pacing.Final)
	r.p.registry.CompleteAll(r.id, outFile)
	return nil
}

func (r *run) transcribe(ctx context.Context, audio string) (*models.Transcription, error) {
	idx := r.begin()

	estimate := NewSyntheticProgress(r.p.pacing.PollInterval, r.p.pacing.PollStep)
	pending := RunBlocking(ctx, func(ctx context.Context, _ func(struct{})) (*models.Transcription, error) {
		return r.p.media.Transcribe(ctx, audio)
	})
	result, err := Await(pending, nil, estimate, func(progress int) {
		r.p.registry.UpdateProgress(r.id, idx, progress)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrTranscriptionFailed, err)
	}
	if result == nil {
		result = &models.Transcription{}
	}

	r.p.registry.UpdateProgress(r.id, idx, 100)
	r.end(ctx, idx)
	r.logger.Info("transcription complete", "chars", len(result.Text), "language", result.Language)
	return result, nil
}

func (r *run) generate(ctx context.Context, transcription string) (string, error) {
	idx := r.begin()

	prompt, err := buildPrompt(r.action, transcription)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrGenerationFailed, err)
	}

	r.p.channel.Send(r.id, generationStartMessage(r.p.generator.Describe()))
	r.logger.Info("starting generation", "generator", r.p.generator.Describe())

	batch := r.p.pacing.TokenBatch
	pending := RunStreaming(ctx, func(ctx context.Context, report func(GenerationChunk)) (string, error) {
		var b strings.Builder
		count := 0
		for token, err := range r.p.generator.Stream(ctx, prompt) {
			if err != nil {
				return b.String(), err
			}
			b.WriteString(token)
			count++
			if count%batch == 0 {
				report(GenerationChunk{Token: token, Content: b.String(), Count: count})
			}
		}
		return b.String(), nil
	})
	content, err := Await(pending, func(chunk GenerationChunk) {
		r.p.channel.Send(r.id, generationTokenMessage(chunk))
	}, nil, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrGenerationFailed, err)
	}

	r.p.channel.Send(r.id, generationContentMessage(content))
	r.p.registry.UpdateProgress(r.id, idx, 100)
	r.end(ctx, idx)
	return content, nil
}

// begin starts the next subtask and returns its index.
func (r *run) begin() int {
	idx := r.step
	r.p.registry.StartSubTask(r.id, idx)
	return idx
}

// end completes subtask idx, advances to the next one, and waits the phase pause.
func (r *run) end(ctx context.Context, idx int) {
	r.p.registry.CompleteSubTask(r.id, idx)
	r.step = idx + 1
	r.p.pause(ctx, r.p.pacing.Phase)
}

// blocking runs fn as the next subtask on a worker goroutine, wrapping failures with stage.
func blocking[T any](ctx context.Context, r *run, stage error, fn func(context.Context) (T, error)) (T, error) {
	idx := r.begin()

	pending := RunBlocking(ctx, func(ctx context.Context, _ func(struct{})) (T, error) {
		return fn(ctx)
	})
	result, err := Await(pending, nil, nil, nil)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %v", stage, err)
	}

	r.end(ctx, idx)
	return result, nil
}

// newDownloadLimiter returns a limiter for download progress messages. A non-positive
// rate disables throttling.
func newDownloadLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}
