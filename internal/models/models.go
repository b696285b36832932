// package models defines the task, subtask and job records of the processing service
package models

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Action is the kind of work a client requests.
type Action string

const (
	ActionCreateCourse  Action = "create_course"
	ActionCreateSummary Action = "create_summary"
	ActionDownloadVideo Action = "download_video" // remote inputs only; the real choice comes after download
	ActionDone          Action = "done"           // decision: keep the download, stop here
)

// Generates reports whether the action leads to transcription and text generation.
func (a Action) Generates() bool {
	return a == ActionCreateCourse || a == ActionCreateSummary
}

// Valid reports whether a is accepted as an initial request action.
func (a Action) Valid() bool {
	return a.Generates() || a == ActionDownloadVideo
}

// SubTaskStatus is the lifecycle state of one [SubTask].
type SubTaskStatus int

const (
	StatusPending SubTaskStatus = iota
	StatusRunning
	StatusCompleted
	StatusError
)

func (s SubTaskStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	default:
		return ""
	}
}

// MarshalText encodes the status as its wire name.
func (s SubTaskStatus) MarshalText() ([]byte, error) {
	name := s.String()
	if name == "" {
		return nil, fmt.Errorf("unknown subtask status %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a wire name.
func (s *SubTaskStatus) UnmarshalText(b []byte) error {
	for _, candidate := range []SubTaskStatus{StatusPending, StatusRunning, StatusCompleted, StatusError} {
		if candidate.String() == string(b) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown subtask status %q", string(b))
}

// MediaType classifies a local input file.
type MediaType int

const (
	MediaUnknown MediaType = iota
	MediaVideo
	MediaAudio
)

func (m MediaType) String() string {
	switch m {
	case MediaVideo:
		return "video"
	case MediaAudio:
		return "audio"
	default:
		return "unknown"
	}
}

var (
	videoExtensions = []string{"mp4", "mkv", "mov", "avi", "3gp", "m4v", "webm", "wmv", "mpg", "flv"}
	audioExtensions = []string{"mp3", "m4a", "wav", "aac", "mid", "ogg", "flac", "amr", "aiff"}
)

// DetectMediaType classifies path by its extension. Matching is case-sensitive.
func DetectMediaType(path string) MediaType {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	switch {
	case ext == "":
		return MediaUnknown
	case slices.Contains(videoExtensions, ext):
		return MediaVideo
	case slices.Contains(audioExtensions, ext):
		return MediaAudio
	default:
		return MediaUnknown
	}
}

// SubTask is one client-visible step of a pipeline.
type SubTask struct {
	ID       int           `json:"id"`
	Name     string        `json:"name"`
	Status   SubTaskStatus `json:"status"`
	Progress int           `json:"progress"`
	Message  string        `json:"message,omitempty"`
}

// TaskState is the in-memory record of one session's pipeline.
type TaskState struct {
	ID           string
	Input        string
	Action       Action
	OutputFormat string
	OutputPath   string
	SubTasks     []SubTask
	Current      int // index of the running subtask, -1 when none
	Completed    bool
	Error        string
	Title        string
	CreatedAt    time.Time
}

// NewTaskState creates a task with no subtasks.
func NewTaskState(id, input string, action Action, format, outputPath string) *TaskState {
	return &TaskState{
		ID:           id,
		Input:        input,
		Action:       action,
		OutputFormat: format,
		OutputPath:   outputPath,
		Current:      -1,
		CreatedAt:    time.Now(),
	}
}

// Clone returns a copy whose SubTasks slice is not shared with t.
func (t *TaskState) Clone() TaskState {
	c := *t
	c.SubTasks = slices.Clone(t.SubTasks)
	return c
}

// Failed reports whether an error has been recorded.
func (t *TaskState) Failed() bool {
	return t.Error != ""
}

// Running returns the indexes of subtasks currently running.
func (t *TaskState) Running() []int {
	var idx []int
	for i, st := range t.SubTasks {
		if st.Status == StatusRunning {
			idx = append(idx, i)
		}
	}
	return idx
}

// Transcription is the text recognized from normalized audio.
type Transcription struct {
	Text     string
	Language string
	Duration time.Duration
}

// DownloadResult describes a file fetched from a remote URL.
type DownloadResult struct {
	FilePath string
	Title    string
	Duration time.Duration
}

// DownloadProgress is one byte-transfer sample from the downloader.
type DownloadProgress struct {
	Percent float64 // 0-100
	Speed   float64 // bytes per second, 0 when unknown
}

// JobStatus is the terminal outcome recorded in job history.
type JobStatus string

const (
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "error"
	JobAbandoned JobStatus = "abandoned"
)

// Job is a finished session as stored in history.
type Job struct {
	ID           string    `json:"id"`
	Sequence     int       `json:"sequence"`
	Input        string    `json:"input"`
	Action       Action    `json:"action"`
	OutputFormat string    `json:"output_format"`
	OutputPath   string    `json:"output_path,omitempty"`
	Title        string    `json:"title,omitempty"`
	Status       JobStatus `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Validate checks the fields the history table requires.
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job id is required")
	}
	if j.Input == "" {
		return fmt.Errorf("job input is required")
	}
	switch j.Status {
	case JobCompleted, JobFailed, JobAbandoned:
	default:
		return fmt.Errorf("invalid job status %q", j.Status)
	}
	return nil
}

// Elapsed returns the wall time the job took.
func (j *Job) Elapsed() time.Duration {
	return j.FinishedAt.Sub(j.StartedAt)
}

// JobFromTask builds a history record from a finished task.
func JobFromTask(t TaskState, status JobStatus, finished time.Time) *Job {
	return &Job{
		ID:           t.ID,
		Input:        t.Input,
		Action:       t.Action,
		OutputFormat: t.OutputFormat,
		OutputPath:   t.OutputPath,
		Title:        t.Title,
		Status:       status,
		ErrorMessage: t.Error,
		StartedAt:    t.CreatedAt,
		FinishedAt:   finished,
	}
}
