package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// MessageType is the "type" discriminator of every server message.
type MessageType string

const (
	MsgConnected         MessageType = "connected"
	MsgInit              MessageType = "init"
	MsgStatus            MessageType = "status"
	MsgProgress          MessageType = "progress"
	MsgDownloadComplete  MessageType = "download_complete"
	MsgGenerationStart   MessageType = "generation_start"
	MsgGenerationToken   MessageType = "generation_token"
	MsgGenerationContent MessageType = "generation_content"
	MsgError             MessageType = "error"
	MsgComplete          MessageType = "complete"
)

// ProcessRequest is the first message a client sends on a new connection.
type ProcessRequest struct {
	Action       Action `json:"action"`
	FilePath     string `json:"file_path"`
	OutputFormat string `json:"output_format"`
	OutputPath   string `json:"output_path"`
}

// OutputFormats lists the formats generated content can be exported as.
var OutputFormats = []string{"md", "txt", "json"}

// ValidOutputFormat reports whether format, with or without a leading dot, is one of
// [OutputFormats].
func ValidOutputFormat(format string) bool {
	return slices.Contains(OutputFormats, strings.ToLower(strings.TrimPrefix(format, ".")))
}

// Validate checks the required fields. An empty output_format is allowed and means md.
func (r ProcessRequest) Validate() error {
	if r.FilePath == "" {
		return fmt.Errorf("file_path is required")
	}
	if !r.Action.Valid() {
		return fmt.Errorf("unsupported action %q", r.Action)
	}
	if r.OutputFormat != "" && !ValidOutputFormat(r.OutputFormat) {
		return fmt.Errorf("unsupported output_format %q", r.OutputFormat)
	}
	return nil
}

// DecisionMessage is the client's answer after a remote download.
//
// ContinueAction is preferred; Action is accepted when it is empty.
type DecisionMessage struct {
	ContinueAction Action `json:"continue_action,omitempty"`
	Action         Action `json:"action,omitempty"`
	OutputFormat   string `json:"output_format,omitempty"`
	OutputPath     string `json:"output_path,omitempty"`
}

// Choice returns the effective decision.
func (d DecisionMessage) Choice() Action {
	if d.ContinueAction != "" {
		return d.ContinueAction
	}
	return d.Action
}

type ConnectedMessage struct {
	Type   MessageType `json:"type"`
	TaskID string      `json:"task_id"`
}

type InitMessage struct {
	Type  MessageType `json:"type"`
	Tasks []SubTask   `json:"tasks"`
}

type StatusMessage struct {
	Type     MessageType   `json:"type"`
	TaskID   int           `json:"task_id"`
	Status   SubTaskStatus `json:"status"`
	Progress *int          `json:"progress,omitempty"`
}

type ProgressMessage struct {
	Type            MessageType `json:"type"`
	TaskID          int         `json:"task_id"`
	Progress        int         `json:"progress"`
	DownloadPercent *float64    `json:"download_percent,omitempty"`
	DownloadSpeed   *float64    `json:"download_speed,omitempty"`
}

type DownloadCompleteMessage struct {
	Type      MessageType `json:"type"`
	VideoPath string      `json:"video_path"`
	Title     string      `json:"title"`
}

type GenerationStartMessage struct {
	Type   MessageType `json:"type"`
	Prompt string      `json:"prompt"`
}

type GenerationTokenMessage struct {
	Type    MessageType `json:"type"`
	Token   string      `json:"token"`
	Content string      `json:"content"`
}

type GenerationContentMessage struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

// ErrorMessage reports a failure. TaskID is nil for task-level errors and encodes as null.
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	TaskID  *int        `json:"task_id"`
	Message string      `json:"message"`
}

type CompleteMessage struct {
	Type       MessageType `json:"type"`
	OutputPath string      `json:"output_path"`
}

// Event is the client-side view of any server message.
//
// task_id is a session id string in "connected" and a subtask index elsewhere,
// so it is kept raw and read through [Event.SessionID] or [Event.Index].
type Event struct {
	Type            MessageType     `json:"type"`
	TaskID          json.RawMessage `json:"task_id,omitempty"`
	Tasks           []SubTask       `json:"tasks,omitempty"`
	Status          SubTaskStatus   `json:"status,omitempty"`
	Progress        *int            `json:"progress,omitempty"`
	DownloadPercent *float64        `json:"download_percent,omitempty"`
	DownloadSpeed   *float64        `json:"download_speed,omitempty"`
	VideoPath       string          `json:"video_path,omitempty"`
	Title           string          `json:"title,omitempty"`
	Prompt          string          `json:"prompt,omitempty"`
	Token           string          `json:"token,omitempty"`
	Content         string          `json:"content,omitempty"`
	Message         string          `json:"message,omitempty"`
	OutputPath      string          `json:"output_path,omitempty"`
}

// SessionID returns task_id as a string, or "" when it is not one.
func (e Event) SessionID() string {
	var id string
	if err := json.Unmarshal(e.TaskID, &id); err != nil {
		return ""
	}
	return id
}

// Index returns task_id as a subtask index. ok is false for null or non-numeric ids.
func (e Event) Index() (idx int, ok bool) {
	if len(e.TaskID) == 0 || string(e.TaskID) == "null" {
		return 0, false
	}
	n, err := strconv.Atoi(string(e.TaskID))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Terminal reports whether the event ends a session.
func (e Event) Terminal() bool {
	return e.Type == MsgComplete || e.Type == MsgError
}
