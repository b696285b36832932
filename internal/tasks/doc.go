// Package tasks runs the media processing pipeline of one session with real-time progress reporting.
//
// # Core Operations
//
// [Pipeline] owns a session from its first request to teardown:
//
//  1. [Pipeline.Open] : Register a task for a [models.ProcessRequest]
//     - Returns the session id echoed in the "connected" message
//
//  2. [Pipeline.Serve] : Run the pipeline and tear the session down
//     - Remote inputs are downloaded, then the client decides what happens next
//     - Local inputs go straight to audio preparation
//     - Records the outcome in history and closes the connection
//
//  3. [Pipeline.Run] : Execute the phases without teardown
//     - Extract audio (video only), normalize, transcribe, generate, export
//     - Any failure is recorded on the task and sent to the client
//
// # Progress Reporting
//
// [Registry] holds the task state of every live session. Each mutation emits one protocol
// message through a [Sender]. Subtask progress never decreases and at most one subtask
// runs at a time.
//
// # Blocking Work
//
// Collaborator calls (download, ffmpeg, whisper, LLM streaming) run on worker goroutines
// through [RunBlocking]. Workers publish progress on a bounded channel that the session
// goroutine drains in [Await]; they never touch the registry or the connection.
// Transcription reports nothing, so [SyntheticProgress] estimates it.
//
// # Implementation
//
// [Pipeline] depends on:
//   - [Channel] : the session's WebSocket (server.Hub)
//   - [Downloader] : yt-dlp (services.YTDLPDownloader)
//   - [MediaProcessor] : ffmpeg and whisper.cpp (services.FFmpegProcessor)
//   - [Generator] : streaming LLM client (services.ChatGenerator)
//   - [Exporter] : output writer (formatter.Exporter)
//   - [HistoryRecorder] : optional job history (repositories.HistoryRepository)
package tasks
