package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDetectMediaType(t *testing.T) {
	tests := []struct {
		path string
		want MediaType
	}{
		{"/videos/lecture.mp4", MediaVideo},
		{"clip.webm", MediaVideo},
		{"old.flv", MediaVideo},
		{"/audio/podcast.mp3", MediaAudio},
		{"memo.m4a", MediaAudio},
		{"voice.aiff", MediaAudio},
		{"notes.pdf", MediaUnknown},
		{"README", MediaUnknown},
		{"LECTURE.MP4", MediaUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := DetectMediaType(tt.path); got != tt.want {
				t.Errorf("DetectMediaType(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestSubTaskStatus(t *testing.T) {
	t.Run("encodes wire names", func(t *testing.T) {
		data, err := json.Marshal(SubTask{ID: 1, Name: "Transcription", Status: StatusRunning, Progress: 40})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(string(data), `"status":"running"`) {
			t.Errorf("expected running status in %s", data)
		}
	})

	t.Run("rejects unknown names", func(t *testing.T) {
		var s SubTaskStatus
		if err := s.UnmarshalText([]byte("paused")); err == nil {
			t.Error("expected error for unknown status")
		}
	})

	t.Run("rejects unknown values", func(t *testing.T) {
		if _, err := SubTaskStatus(42).MarshalText(); err == nil {
			t.Error("expected error for out of range status")
		}
	})
}

func TestActions(t *testing.T) {
	tests := []struct {
		action    Action
		valid     bool
		generates bool
	}{
		{ActionCreateCourse, true, true},
		{ActionCreateSummary, true, true},
		{ActionDownloadVideo, true, false},
		{ActionDone, false, false},
		{Action("translate"), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			if got := tt.action.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
			if got := tt.action.Generates(); got != tt.generates {
				t.Errorf("Generates() = %v, want %v", got, tt.generates)
			}
		})
	}
}

func TestProcessRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     ProcessRequest
		wantErr string
	}{
		{name: "format omitted", req: ProcessRequest{Action: ActionCreateSummary, FilePath: "/media/a.mp3"}},
		{name: "json", req: ProcessRequest{Action: ActionCreateCourse, FilePath: "/media/a.mp3", OutputFormat: "json"}},
		{name: "dotted", req: ProcessRequest{Action: ActionCreateCourse, FilePath: "/media/a.mp3", OutputFormat: ".TXT"}},
		{name: "no path", req: ProcessRequest{Action: ActionCreateCourse}, wantErr: "file_path"},
		{name: "bad action", req: ProcessRequest{Action: "translate", FilePath: "a.mp3"}, wantErr: "action"},
		{name: "pdf", req: ProcessRequest{Action: ActionCreateCourse, FilePath: "a.mp3", OutputFormat: "pdf"}, wantErr: "output_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDecisionMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Action
	}{
		{"continue_action", `{"continue_action":"create_course"}`, ActionCreateCourse},
		{"action fallback", `{"action":"done"}`, ActionDone},
		{"continue_action wins", `{"continue_action":"create_summary","action":"done"}`, ActionCreateSummary},
		{"empty", `{}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d DecisionMessage
			if err := json.Unmarshal([]byte(tt.raw), &d); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got := d.Choice(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestEvent(t *testing.T) {
	t.Run("connected carries session id", func(t *testing.T) {
		var e Event
		if err := json.Unmarshal([]byte(`{"type":"connected","task_id":"abc-123"}`), &e); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if e.SessionID() != "abc-123" {
			t.Errorf("expected abc-123, got %q", e.SessionID())
		}
		if _, ok := e.Index(); ok {
			t.Error("expected string task_id not to parse as index")
		}
	})

	t.Run("status carries index", func(t *testing.T) {
		var e Event
		if err := json.Unmarshal([]byte(`{"type":"status","task_id":2,"status":"completed","progress":100}`), &e); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		idx, ok := e.Index()
		if !ok || idx != 2 {
			t.Errorf("expected index 2, got %d (ok=%v)", idx, ok)
		}
		if e.Status != StatusCompleted {
			t.Errorf("expected completed, got %v", e.Status)
		}
		if e.Progress == nil || *e.Progress != 100 {
			t.Errorf("expected progress 100, got %v", e.Progress)
		}
	})

	t.Run("task level error has null index", func(t *testing.T) {
		data, err := json.Marshal(ErrorMessage{Type: MsgError, Message: "boom"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(string(data), `"task_id":null`) {
			t.Errorf("expected null task_id in %s", data)
		}

		var e Event
		if err := json.Unmarshal(data, &e); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, ok := e.Index(); ok {
			t.Error("expected null task_id not to parse as index")
		}
		if !e.Terminal() {
			t.Error("expected error event to be terminal")
		}
	})
}

func TestTaskState(t *testing.T) {
	t.Run("Clone does not share subtasks", func(t *testing.T) {
		ts := NewTaskState("id", "in.mp3", ActionCreateSummary, "md", "out")
		ts.SubTasks = []SubTask{{ID: 0, Name: "a"}}

		c := ts.Clone()
		c.SubTasks[0].Progress = 50

		if ts.SubTasks[0].Progress != 0 {
			t.Error("expected original subtasks to be unchanged")
		}
		if ts.Current != -1 {
			t.Errorf("expected current -1, got %d", ts.Current)
		}
	})

	t.Run("JobFromTask", func(t *testing.T) {
		ts := NewTaskState("id", "in.mp3", ActionCreateSummary, "md", "out")
		ts.Error = "boom"
		finished := ts.CreatedAt.Add(3 * time.Second)

		job := JobFromTask(ts.Clone(), JobFailed, finished)
		if err := job.Validate(); err != nil {
			t.Fatalf("expected valid job, got %v", err)
		}
		if job.ErrorMessage != "boom" {
			t.Errorf("expected error message boom, got %s", job.ErrorMessage)
		}
		if job.Elapsed() != 3*time.Second {
			t.Errorf("expected 3s elapsed, got %v", job.Elapsed())
		}
	})

	t.Run("Job validation", func(t *testing.T) {
		job := &Job{ID: "x", Input: "in", Status: "paused"}
		if err := job.Validate(); err == nil {
			t.Error("expected invalid status to fail validation")
		}
	})
}
