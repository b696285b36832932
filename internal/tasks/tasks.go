package tasks

import (
	"context"
	"iter"

	"github.com/Nexgear75/MacScribe/internal/models"
)

// Channel is the duplex connection to a session's client.
type Channel interface {
	Sender

	// ReceiveNext blocks until the client's next message and decodes it into v.
	ReceiveNext(ctx context.Context, sessionID string, v any) error

	// Disconnect closes the session's connection. Safe to call more than once.
	Disconnect(sessionID string)
}

// Downloader fetches a remote video into dir.
type Downloader interface {
	Download(ctx context.Context, url, dir string, onProgress func(models.DownloadProgress)) (*models.DownloadResult, error)
}

// MediaProcessor prepares audio and turns it into text.
//
// Intermediate files are written under workDir, which CleanTemp empties.
type MediaProcessor interface {
	DetectType(path string) models.MediaType
	ExtractAudio(ctx context.Context, videoPath, workDir string) (string, error)
	Normalize(ctx context.Context, audioPath, workDir string) (string, error)
	Transcribe(ctx context.Context, audioPath string) (*models.Transcription, error)
	CleanTemp(workDir string) error
}

// Generator streams generated text for a prompt.
//
// The sequence is finite and not restartable; a non-nil error ends it.
type Generator interface {
	Stream(ctx context.Context, prompt string) iter.Seq2[string, error]
	Describe() string // provider/model, shown to clients
}

// Exporter writes generated content and returns the file it wrote.
type Exporter interface {
	Export(content, sourcePath, format, outputPath string) (string, error)
}

// HistoryRecorder persists finished sessions. Optional.
type HistoryRecorder interface {
	Record(job *models.Job) error
}

// GenerationChunk is the progress value of the generation worker.
type GenerationChunk struct {
	Token   string // latest token
	Content string // everything generated so far
	Count   int    // tokens received so far
}
