package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/Nexgear75/MacScribe/internal/models"
	"github.com/Nexgear75/MacScribe/internal/shared"
	"github.com/charmbracelet/log"
)

const (
	extractedAudioName  = "extracted_audio.wav"
	normalizedAudioName = "normalized_audio.wav"
	transcriptBase      = "transcript"

	// pcm_s16le mono at 16 kHz
	wavHeaderSize  = 44
	wavBytesPerSec = 16000 * 2
)

// normalizeFilter is a single-pass EBU R128 loudness normalization.
const normalizeFilter = "loudnorm=I=-16:TP=-1.5:LRA=11"

var detectedLanguage = regexp.MustCompile(`auto-detected language:\s*([a-z]{2,3})`)

// CommandLog captures one external command invocation.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exit_code"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// CommandError is a stage-aware failure of an external tool.
type CommandError struct {
	Stage      string
	Message    string
	CommandLog CommandLog
	Err        error
}

func (e *CommandError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s (cmd=%s exit=%d)", e.Stage, e.Message, e.CommandLog.Command, e.CommandLog.ExitCode)
}

func (e *CommandError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for tests.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// MediaOpts configures an [FFmpegProcessor].
type MediaOpts struct {
	FFmpegPath   string
	WhisperPath  string
	WhisperModel string // model name (large-v3-turbo) or path to a .bin/.gguf file
	ModelDir     string
	Language     string // "auto" lets whisper detect it
	Logger       *log.Logger
}

// MediaOptsFromConfig builds [MediaOpts] from the media and transcription sections.
func MediaOptsFromConfig(cfg *shared.Config, logger *log.Logger) MediaOpts {
	return MediaOpts{
		FFmpegPath:   cfg.Media.FFmpegPath,
		WhisperPath:  cfg.Transcription.WhisperPath,
		WhisperModel: cfg.Transcription.WhisperModel,
		ModelDir:     cfg.Transcription.ModelDir,
		Language:     cfg.Transcription.Language,
		Logger:       logger,
	}
}

// FFmpegProcessor prepares audio with ffmpeg and transcribes it with whisper.cpp.
type FFmpegProcessor struct {
	opts     MediaOpts
	runner   commandRunner
	stat     func(name string) (os.FileInfo, error)
	readFile func(name string) ([]byte, error)
	readDir  func(name string) ([]os.DirEntry, error)
	logger   *log.Logger
}

// NewFFmpegProcessor creates an [FFmpegProcessor] that runs real binaries.
func NewFFmpegProcessor(opts MediaOpts) *FFmpegProcessor {
	return newFFmpegProcessor(opts, &execRunner{})
}

func newFFmpegProcessor(opts MediaOpts, runner commandRunner) *FFmpegProcessor {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.WhisperPath == "" {
		opts.WhisperPath = "whisper-cli"
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &FFmpegProcessor{
		opts:     opts,
		runner:   runner,
		stat:     os.Stat,
		readFile: os.ReadFile,
		readDir:  os.ReadDir,
		logger:   opts.Logger,
	}
}

// DetectType classifies path by extension.
func (p *FFmpegProcessor) DetectType(path string) models.MediaType {
	kind := models.DetectMediaType(path)
	if kind == models.MediaUnknown {
		p.logger.Error("not a video or audio file", "file", filepath.Base(path))
	} else {
		p.logger.Info("file format detected", "file", filepath.Base(path), "type", kind)
	}
	return kind
}

// ExtractAudio decodes the audio track of videoPath into {workDir}/extracted_audio.wav.
func (p *FFmpegProcessor) ExtractAudio(ctx context.Context, videoPath, workDir string) (string, error) {
	out := filepath.Join(workDir, extractedAudioName)
	if err := p.ffmpeg(ctx, "extracting", videoPath, out); err != nil {
		return "", err
	}
	p.logger.Info("audio extracted", "path", out)
	return out, nil
}

// Normalize applies loudness normalization and writes 16 kHz mono PCM to
// {workDir}/normalized_audio.wav.
func (p *FFmpegProcessor) Normalize(ctx context.Context, audioPath, workDir string) (string, error) {
	out := filepath.Join(workDir, normalizedAudioName)
	if err := p.ffmpeg(ctx, "normalizing", audioPath, out, "-af", normalizeFilter); err != nil {
		return "", err
	}
	p.logger.Info("audio normalized", "path", out)
	return out, nil
}

func (p *FFmpegProcessor) ffmpeg(ctx context.Context, stage, in, out string, filter ...string) error {
	if _, err := p.stat(in); err != nil {
		return &CommandError{Stage: stage, Message: fmt.Sprintf("cannot access input media: %s", in), Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return &CommandError{Stage: stage, Message: "failed to create temp folder", Err: err}
	}

	args := buildFFmpegArgs(in, out, filter...)
	res, err := p.runner.Run(ctx, p.opts.FFmpegPath, args...)
	cmdLog := newCommandLog(p.opts.FFmpegPath, args, res)
	if err != nil {
		return &CommandError{Stage: stage, Message: "ffmpeg audio conversion failed", CommandLog: cmdLog, Err: err}
	}
	if _, err := p.stat(out); err != nil {
		return &CommandError{Stage: stage, Message: "ffmpeg completed but output file is missing", CommandLog: cmdLog, Err: err}
	}
	return nil
}

// Transcribe runs whisper.cpp on audioPath and reads back the text transcript.
func (p *FFmpegProcessor) Transcribe(ctx context.Context, audioPath string) (*models.Transcription, error) {
	modelPath, err := p.resolveModelPath()
	if err != nil {
		return nil, &CommandError{Stage: "transcribing", Message: err.Error(), Err: err}
	}

	base := filepath.Join(filepath.Dir(audioPath), transcriptBase)
	args := buildWhisperArgs(modelPath, audioPath, base, p.opts.Language)

	start := time.Now()
	res, err := p.runner.Run(ctx, p.opts.WhisperPath, args...)
	cmdLog := newCommandLog(p.opts.WhisperPath, args, res)
	if err != nil {
		return nil, &CommandError{Stage: "transcribing", Message: "whisper.cpp transcription failed", CommandLog: cmdLog, Err: err}
	}

	content, err := p.readFile(base + ".txt")
	if err != nil {
		return nil, &CommandError{Stage: "transcribing", Message: "whisper.cpp completed but transcript .txt file is missing", CommandLog: cmdLog, Err: err}
	}

	t := &models.Transcription{
		Text:     strings.TrimSpace(string(content)),
		Language: p.language(res),
		Duration: p.audioDuration(audioPath),
	}
	p.logger.Info("transcription completed", "language", t.Language, "duration", t.Duration, "took", time.Since(start).Round(time.Millisecond))
	return t, nil
}

// CleanTemp removes every entry of workDir and then workDir itself.
//
// Failures are logged per entry and returned joined.
func (p *FFmpegProcessor) CleanTemp(workDir string) error {
	entries, err := p.readDir(workDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read temp folder: %w", err)
	}

	var errs []error
	for _, entry := range entries {
		path := filepath.Join(workDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			p.logger.Error("failed to delete temp entry", "path", path, "error", err)
			errs = append(errs, err)
			continue
		}
		p.logger.Debug("temp entry removed", "name", entry.Name())
	}
	if len(errs) == 0 {
		if err := os.Remove(workDir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// resolveModelPath finds the whisper model file.
//
// WhisperModel may be a file path, a model name found as ggml-{name}.bin in ModelDir,
// or empty, in which case the first .bin or .gguf file in ModelDir is used.
func (p *FFmpegProcessor) resolveModelPath() (string, error) {
	model := strings.TrimSpace(p.opts.WhisperModel)
	if model != "" {
		if info, err := p.stat(model); err == nil && !info.IsDir() {
			return model, nil
		}
		for _, name := range []string{"ggml-" + model + ".bin", model + ".bin", model + ".gguf"} {
			candidate := filepath.Join(p.opts.ModelDir, name)
			if _, err := p.stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}

	if p.opts.ModelDir == "" {
		return "", fmt.Errorf("model %q not found and no model directory configured", model)
	}
	entries, err := p.readDir(p.opts.ModelDir)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory: %s", p.opts.ModelDir)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".bin" || ext == ".gguf" {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no .bin or .gguf model files found in: %s", p.opts.ModelDir)
	}
	slices.Sort(names)

	if model != "" {
		p.logger.Warn("configured model not found, using first available", "model", model, "using", names[0])
	}
	return filepath.Join(p.opts.ModelDir, names[0]), nil
}

func (p *FFmpegProcessor) language(res commandResult) string {
	if lang := normalizeLanguage(p.opts.Language); lang != "" {
		return lang
	}
	if m := detectedLanguage.FindStringSubmatch(res.Stderr + res.Stdout); m != nil {
		return m[1]
	}
	return ""
}

func (p *FFmpegProcessor) audioDuration(path string) time.Duration {
	info, err := p.stat(path)
	if err != nil || info.Size() <= wavHeaderSize {
		return 0
	}
	samples := float64(info.Size()-wavHeaderSize) / wavBytesPerSec
	return time.Duration(samples * float64(time.Second))
}

func newCommandLog(name string, args []string, res commandResult) CommandLog {
	return CommandLog{Command: name, Args: args, ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}
}

// normalizeLanguage maps "auto" and empty language to no CLI override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

// buildFFmpegArgs builds conversion args for mono 16k PCM WAV output.
func buildFFmpegArgs(inputPath, outPath string, filter ...string) []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-i", inputPath, "-vn"}
	args = append(args, filter...)
	return append(args, "-ac", "1", "-ar", "16000", "-c:a", "pcm_s16le", outPath)
}

// buildWhisperArgs builds whisper.cpp args for txt transcript export.
func buildWhisperArgs(modelPath, audioPath, textBase, language string) []string {
	args := []string{"-m", modelPath, "-f", audioPath, "-of", textBase, "-otxt"}
	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}
	return args
}
