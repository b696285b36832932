// Package services implements the external collaborators of the processing pipeline.
//
// # Media
//
// [FFmpegProcessor] converts video to audio and normalizes loudness with ffmpeg, then
// transcribes with whisper.cpp. Every intermediate file lives in the session's work
// directory:
//   - extracted_audio.wav : audio track of a video input
//   - normalized_audio.wav : 16 kHz mono PCM after loudnorm
//   - transcript.txt : whisper.cpp text output
//
// Tool failures are returned as [CommandError] carrying the stage and a [CommandLog].
//
// # Downloads
//
// [YTDLPDownloader] fetches remote videos through go-ytdlp and reports byte progress
// sampled every 500ms.
//
// # Generation
//
// [ChatGenerator] streams completions over HTTP:
//   - deepseek, openai : chat completions with server-sent events
//   - ollama : /api/chat with newline-delimited JSON, no API key
//   - anything else : one non-streaming completion against base_url
//
// Keyed providers authenticate with a static bearer token from <PROVIDER>_API_KEY.
//
// # Client
//
// [ProcessClient] speaks the WebSocket protocol from the other side and is used by the
// CLI and terminal UI.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrMissingAPIKey] : provider key not set
//   - [shared.ErrAPIRequest] : HTTP request or stream failed
//   - [shared.ErrServiceUnavailable] : server not reachable
package services
