package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Nexgear75/MacScribe/internal/models"
	"github.com/Nexgear75/MacScribe/internal/shared"
	tu "github.com/Nexgear75/MacScribe/internal/testing"
	"github.com/lrstanley/go-ytdlp"
)

func ptr[T any](v T) *T { return &v }

func newTestDownloader(fetch fetchFunc) *YTDLPDownloader {
	d := NewYTDLPDownloader(shared.DownloaderConfig{Format: "best"}, shared.NewLogger(&strings.Builder{}))
	d.fetch = fetch
	return d
}

func TestYTDLPDownloader_Download(t *testing.T) {
	t.Run("Reports Progress And Result", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "session")
		started := time.Now().Add(-2 * time.Second)

		d := newTestDownloader(func(ctx context.Context, url, gotDir string, onProgress func(ytdlp.ProgressUpdate)) ([]*ytdlp.ExtractedInfo, error) {
			if gotDir != dir {
				t.Errorf("expected dir %s, got %s", dir, gotDir)
			}
			onProgress(ytdlp.ProgressUpdate{DownloadedBytes: 250, TotalBytes: 1000, Started: started})
			onProgress(ytdlp.ProgressUpdate{DownloadedBytes: 1000, TotalBytes: 1000, Started: started})
			return []*ytdlp.ExtractedInfo{{
				Filename: ptr(filepath.Join(gotDir, "Intro_Lecture.mp4")),
				Title:    ptr("Intro Lecture"),
				Duration: ptr(90.5),
			}}, nil
		})

		var updates []models.DownloadProgress
		result, err := d.Download(context.Background(), "https://example.com/v", dir, func(p models.DownloadProgress) {
			updates = append(updates, p)
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		tu.AssertDirExists(t, dir)
		if result.Title != "Intro Lecture" {
			t.Errorf("expected title 'Intro Lecture', got %q", result.Title)
		}
		if result.FilePath != filepath.Join(dir, "Intro_Lecture.mp4") {
			t.Errorf("unexpected file path %s", result.FilePath)
		}
		if result.Duration != 90500*time.Millisecond {
			t.Errorf("expected 90.5s, got %v", result.Duration)
		}
		if len(updates) != 2 {
			t.Fatalf("expected 2 updates, got %d", len(updates))
		}
		if updates[0].Percent != 25 || updates[1].Percent != 100 {
			t.Errorf("expected 25 then 100, got %v and %v", updates[0].Percent, updates[1].Percent)
		}
		if updates[0].Speed <= 0 {
			t.Error("expected positive speed")
		}
	})

	t.Run("Fetch Failure", func(t *testing.T) {
		boom := errors.New("HTTP Error 403")
		d := newTestDownloader(func(context.Context, string, string, func(ytdlp.ProgressUpdate)) ([]*ytdlp.ExtractedInfo, error) {
			return nil, boom
		})

		_, err := d.Download(context.Background(), "https://example.com/v", t.TempDir(), nil)
		if !errors.Is(err, boom) {
			t.Errorf("expected wrapped fetch error, got %v", err)
		}
	})

	t.Run("No File Reported", func(t *testing.T) {
		d := newTestDownloader(func(context.Context, string, string, func(ytdlp.ProgressUpdate)) ([]*ytdlp.ExtractedInfo, error) {
			return []*ytdlp.ExtractedInfo{{Title: ptr("only metadata")}}, nil
		})

		_, err := d.Download(context.Background(), "https://example.com/v", t.TempDir(), nil)
		if err == nil || !strings.Contains(err.Error(), "no downloaded file") {
			t.Errorf("expected no file error, got %v", err)
		}
	})
}

func TestToDownloadProgress(t *testing.T) {
	tests := []struct {
		name        string
		update      ytdlp.ProgressUpdate
		wantPercent float64
		wantSpeed   bool
	}{
		{name: "unknown total", update: ytdlp.ProgressUpdate{DownloadedBytes: 10}},
		{name: "half", update: ytdlp.ProgressUpdate{DownloadedBytes: 50, TotalBytes: 100}, wantPercent: 50},
		{name: "overshoot capped", update: ytdlp.ProgressUpdate{DownloadedBytes: 120, TotalBytes: 100}, wantPercent: 100},
		{
			name:        "with start time",
			update:      ytdlp.ProgressUpdate{DownloadedBytes: 10, TotalBytes: 100, Started: time.Now().Add(-time.Second)},
			wantPercent: 10,
			wantSpeed:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toDownloadProgress(tt.update)
			if got.Percent != tt.wantPercent {
				t.Errorf("expected percent %v, got %v", tt.wantPercent, got.Percent)
			}
			if (got.Speed > 0) != tt.wantSpeed {
				t.Errorf("expected speed set=%v, got %v", tt.wantSpeed, got.Speed)
			}
		})
	}
}

func TestResultFromInfo(t *testing.T) {
	result := resultFromInfo([]*ytdlp.ExtractedInfo{nil, {Filename: ptr("/tmp/x/My_Talk.webm")}})
	if result.FilePath != "/tmp/x/My_Talk.webm" {
		t.Errorf("expected file path, got %s", result.FilePath)
	}
	if result.Title != "My_Talk" {
		t.Errorf("expected title from file name, got %q", result.Title)
	}
}
