package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")
	ErrMissingAPIKey = fmt.Errorf("missing API key")

	// Session and protocol errors
	ErrSessionNotFound  = fmt.Errorf("session not found")
	ErrConnectionLost   = fmt.Errorf("connection lost while waiting for decision")
	ErrMalformedMessage = fmt.Errorf("malformed message")
	ErrUnknownAction    = fmt.Errorf("unknown action")
	ErrInvalidPhase     = fmt.Errorf("invalid phase transition")

	// Pipeline stage errors
	ErrUnsupportedMedia    = fmt.Errorf("unsupported file format")
	ErrDownloadFailed      = fmt.Errorf("download failed")
	ErrExtractionFailed    = fmt.Errorf("audio extraction failed")
	ErrNormalizationFailed = fmt.Errorf("audio normalization failed")
	ErrTranscriptionFailed = fmt.Errorf("transcription failed")
	ErrGenerationFailed    = fmt.Errorf("generation failed")
	ErrExportFailed        = fmt.Errorf("export failed")
	ErrWorkerPanic         = fmt.Errorf("worker panicked")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
