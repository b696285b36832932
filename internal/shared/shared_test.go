package shared

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
)

func TestIsURL(t *testing.T) {
	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "https", path: "https://www.youtube.com/watch?v=abc", want: true},
		{name: "http", path: "http://example.com/video.mp4", want: true},
		{name: "local absolute", path: "/home/user/lecture.mp4", want: false},
		{name: "local relative", path: "lecture.mp3", want: false},
		{name: "other scheme", path: "ftp://example.com/a.mp4", want: false},
		{name: "uppercase scheme", path: "HTTPS://example.com", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsURL(tt.path); got != tt.want {
				t.Errorf("IsURL(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"INFO", log.InfoLevel},
		{" warn ", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"", log.InfoLevel},
		{"verbose", log.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLogLevel(tt.in); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestGenerateID(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := GenerateID()
		if len(id) != 36 {
			t.Fatalf("expected 36 character uuid, got %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "client.log")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	logger.Info("hello")

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
	if info.Size() == 0 {
		t.Error("expected log entry to be written")
	}
}
