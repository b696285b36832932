package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Nexgear75/MacScribe/internal/models"
	"github.com/Nexgear75/MacScribe/internal/shared"
	"github.com/Nexgear75/MacScribe/internal/tasks"
	tu "github.com/Nexgear75/MacScribe/internal/testing"
	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"
)

// run executes args against a root command built from r, the way main does minus config loading.
func run(t *testing.T, r *Runner, args ...string) error {
	t.Helper()
	app := &cli.Command{Name: "macscribe", Commands: r.register()}
	return app.Run(context.Background(), append([]string{"macscribe"}, args...))
}

func testConfig(t *testing.T) *shared.Config {
	t.Helper()
	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(t.TempDir(), "history.db")
	return config
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			input := strings.NewReader("")
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Input:      input,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.input != input {
				t.Error("expected input to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.input != os.Stdin {
				t.Error("expected input to default to os.Stdin")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writePlain("hello %s", "world"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if output.String() != "hello world" {
			t.Errorf("expected 'hello world', got %q", output.String())
		}

		failing := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
		if err := failing.writePlain("test"); err == nil {
			t.Error("expected error from failing writer")
		}
	})

	t.Run("register", func(t *testing.T) {
		commands := NewRunner(RunnerOpts{}).register()

		want := []string{"serve", "process", "batch", "history", "setup"}
		if len(commands) != len(want) {
			t.Fatalf("expected %d commands, got %d", len(want), len(commands))
		}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			if cmd.Name != want[i] {
				t.Errorf("expected command %s at index %d, got %s", want[i], i, cmd.Name)
			}
		}
	})

	t.Run("loadConfig", func(t *testing.T) {
		t.Run("reads the file named by --config", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			data := "[server]\nport = 9100\n\n[log]\nlevel = \"debug\"\n"
			if err := os.WriteFile(path, []byte(data), 0644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(&bytes.Buffer{})})
			app := &cli.Command{
				Name:   "macscribe",
				Flags:  []cli.Flag{&cli.StringFlag{Name: "config", Value: "config.toml"}},
				Before: runner.loadConfig,
				Action: func(context.Context, *cli.Command) error { return nil },
			}
			if err := app.Run(context.Background(), []string{"macscribe", "--config", path}); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if runner.config.Server.Port != 9100 {
				t.Errorf("expected port 9100, got %d", runner.config.Server.Port)
			}
			if runner.config.LLM.Provider != "deepseek" {
				t.Errorf("expected default provider to survive, got %s", runner.config.LLM.Provider)
			}
			if runner.configPath != path {
				t.Errorf("expected configPath %s, got %s", path, runner.configPath)
			}
		})

		t.Run("rejects an invalid file", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			os.WriteFile(path, []byte("[server]\nport = 0\n"), 0644)

			runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(&bytes.Buffer{})})
			app := &cli.Command{
				Name:   "macscribe",
				Flags:  []cli.Flag{&cli.StringFlag{Name: "config"}},
				Before: runner.loadConfig,
				Action: func(context.Context, *cli.Command) error { return nil },
			}
			err := app.Run(context.Background(), []string{"macscribe", "--config", path})
			if !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	})
}

func TestProcessRequest(t *testing.T) {
	dir := t.TempDir()
	lecture := filepath.Join(dir, "lecture.mp4")
	os.WriteFile(lecture, []byte("video"), 0644)

	tests := []struct {
		name       string
		input      string
		action     string
		format     string
		wantAction models.Action
		wantErr    error
	}{
		{name: "missing input", action: "create_course", wantErr: shared.ErrMissingArgument},
		{name: "url downloads first", input: "https://youtu.be/abc", action: "create_summary", wantAction: models.ActionDownloadVideo},
		{name: "local file", input: lecture, action: "create_summary", wantAction: models.ActionCreateSummary},
		{name: "local file needs generating action", input: lecture, action: "done", wantErr: shared.ErrInvalidArgument},
		{name: "local file must exist", input: filepath.Join(dir, "nope.mp4"), action: "create_course", wantErr: shared.ErrInvalidInput},
		{name: "json format", input: lecture, action: "create_course", format: "json", wantAction: models.ActionCreateCourse},
		{name: "pdf is not exported", input: lecture, action: "create_course", format: "pdf", wantErr: shared.ErrInvalidArgument},
		{name: "empty format", input: "https://youtu.be/abc", action: "create_course", format: " ", wantErr: shared.ErrInvalidArgument},
	}

	runner := NewRunner(RunnerOpts{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format := tt.format
			if format == "" {
				format = "md"
			}
			req, err := runner.processRequest(tt.input, tt.action, format, "")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if req.Action != tt.wantAction {
				t.Errorf("expected action %s, got %s", tt.wantAction, req.Action)
			}
			if !shared.IsURL(req.FilePath) && !filepath.IsAbs(req.FilePath) {
				t.Errorf("expected absolute path, got %s", req.FilePath)
			}
		})
	}
}

func TestPromptDecision(t *testing.T) {
	tests := []struct {
		input   string
		want    models.Action
		wantErr bool
	}{
		{input: "s\n", want: models.ActionCreateSummary},
		{input: "what\ncourse\n", want: models.ActionCreateCourse},
		{input: "\n", want: models.ActionDone},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Input: strings.NewReader(tt.input), Output: output})

			got, err := runner.promptDecision()
			if tt.wantErr {
				if !errors.Is(err, shared.ErrMissingArgument) {
					t.Errorf("expected ErrMissingArgument, got %v", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
			if !strings.Contains(output.String(), "Next step?") {
				t.Errorf("expected a prompt, got %q", output.String())
			}
		})
	}
}

func TestEventPrinter(t *testing.T) {
	output := &bytes.Buffer{}
	printer := &eventPrinter{r: NewRunner(RunnerOpts{Output: output})}

	decode := func(raw string) models.Event {
		var e models.Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			t.Fatalf("bad event %s: %v", raw, err)
		}
		return e
	}

	for _, raw := range []string{
		`{"type":"connected","task_id":"abc"}`,
		`{"type":"init","tasks":[{"id":0,"name":"Extract audio","status":"pending","progress":0},{"id":1,"name":"Transcribe","status":"pending","progress":0}]}`,
		`{"type":"status","task_id":0,"status":"running"}`,
		`{"type":"progress","task_id":0,"progress":30}`,
		`{"type":"progress","task_id":0,"progress":40}`,
		`{"type":"status","task_id":0,"status":"completed","progress":100}`,
		`{"type":"complete","output_path":"/out/lecture_generated.md"}`,
	} {
		printer.print(decode(raw))
	}

	got := output.String()
	for _, want := range []string{
		"Connected (session abc)",
		"Tasks: Extract audio → Transcribe",
		"▸ Extract audio",
		"Extract audio 25%",
		"✓ Extract audio",
		"✓ Output: /out/lecture_generated.md",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, got)
		}
	}
	if strings.Count(got, "25%") != 1 {
		t.Errorf("expected one 25%% milestone, got:\n%s", got)
	}
}

// processServer speaks the URL flow and ends with final.
func processServer(t *testing.T, final any) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"Online"}`))
	})
	mux.HandleFunc("/ws/process", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req models.ProcessRequest
		if err := conn.ReadJSON(&req); err != nil {
			t.Errorf("failed to read request: %v", err)
			return
		}
		conn.WriteJSON(models.ConnectedMessage{Type: models.MsgConnected, TaskID: "s1"})
		conn.WriteJSON(models.DownloadCompleteMessage{Type: models.MsgDownloadComplete, VideoPath: "/tmp/talk.mp4", Title: "Talk"})

		var d models.DecisionMessage
		if err := conn.ReadJSON(&d); err != nil {
			t.Errorf("failed to read decision: %v", err)
			return
		}
		if d.Choice() != models.ActionCreateSummary || d.OutputFormat != "txt" {
			t.Errorf("unexpected decision %+v", d)
		}
		conn.WriteJSON(final)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})
	return httptest.NewServer(mux)
}

func TestProcessCommand(t *testing.T) {
	t.Run("url flow with decision flag", func(t *testing.T) {
		server := processServer(t, models.CompleteMessage{Type: models.MsgComplete, OutputPath: "/out/Talk_generated.txt"})
		defer server.Close()

		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output, Logger: shared.NewLogger(&bytes.Buffer{})})

		err := run(t, runner, "process", "--server", server.URL, "--decision", "create_summary", "--format", "txt", "https://youtu.be/abc")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), `Downloaded "Talk" to /tmp/talk.mp4`) {
			t.Errorf("expected download line, got:\n%s", output.String())
		}
		if !strings.Contains(output.String(), "✓ Output: /out/Talk_generated.txt") {
			t.Errorf("expected output line, got:\n%s", output.String())
		}
	})

	t.Run("url flow with prompt and task error", func(t *testing.T) {
		server := processServer(t, models.ErrorMessage{Type: models.MsgError, Message: "generation failed: quota"})
		defer server.Close()

		runner := NewRunner(RunnerOpts{
			Input:  strings.NewReader("s\n"),
			Output: &bytes.Buffer{},
			Logger: shared.NewLogger(&bytes.Buffer{}),
		})

		err := run(t, runner, "process", "--server", server.URL, "-f", "txt", "https://youtu.be/abc")
		if err == nil || !strings.Contains(err.Error(), "quota") {
			t.Errorf("expected task error, got %v", err)
		}
	})

	t.Run("server down", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		server.Close()

		runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}, Logger: shared.NewLogger(&bytes.Buffer{})})
		err := run(t, runner, "process", "--server", server.URL, "https://youtu.be/abc")
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("invalid decision", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
		err := run(t, runner, "process", "--decision", "later", "https://youtu.be/abc")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestBatchRequests(t *testing.T) {
	t.Run("mixed inputs", func(t *testing.T) {
		reqs, err := batchRequests([]string{"https://youtu.be/a", "notes/audio.mp3"}, "create_course", "md", "out/")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(reqs) != 2 {
			t.Fatalf("expected 2 requests, got %d", len(reqs))
		}
		if reqs[0].FilePath != "https://youtu.be/a" || reqs[0].Action != models.ActionCreateCourse {
			t.Errorf("unexpected remote request %+v", reqs[0])
		}
		if !filepath.IsAbs(reqs[1].FilePath) {
			t.Errorf("expected absolute local path, got %s", reqs[1].FilePath)
		}
		if reqs[1].OutputPath != "out/" || reqs[1].OutputFormat != "md" {
			t.Errorf("expected output options to be copied, got %+v", reqs[1])
		}
	})

	tests := []struct {
		name   string
		inputs []string
		action string
		format string
		want   error
	}{
		{name: "no inputs", action: "create_course", want: shared.ErrMissingArgument},
		{name: "unknown action", inputs: []string{"a.mp4"}, action: "translate", want: shared.ErrInvalidArgument},
		{name: "download needs url", inputs: []string{"a.mp4"}, action: "download_video", want: shared.ErrInvalidArgument},
		{name: "unsupported format", inputs: []string{"a.mp4"}, action: "create_course", format: "pdf", want: shared.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format := tt.format
			if format == "" {
				format = "md"
			}
			if _, err := batchRequests(tt.inputs, tt.action, format, ""); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestWriteManifest(t *testing.T) {
	result := &tasks.BatchResult{
		Total: 2, Succeeded: 1, Failed: 1,
		Results: []tasks.BatchItemResult{
			{Input: "a.mp4", SessionID: "s1", Success: true, OutputPath: "/out/a_generated.md", Elapsed: 1500 * time.Millisecond},
			{Input: "b.mp4", SessionID: "s2", Error: "transcription failed"},
		},
	}
	dir := t.TempDir()

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "batch.json")
		if err := writeManifest(result, path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, path)

		var got tasks.BatchResult
		if err := json.Unmarshal([]byte(tu.MustReadFile(t, path)), &got); err != nil {
			t.Fatalf("invalid JSON manifest: %v", err)
		}
		if got.Succeeded != 1 || len(got.Results) != 2 {
			t.Errorf("unexpected manifest %+v", got)
		}
	})

	t.Run("csv", func(t *testing.T) {
		path := filepath.Join(dir, "batch.CSV")
		if err := writeManifest(result, path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		lines := strings.Split(strings.TrimSpace(tu.MustReadFile(t, path)), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected header and 2 rows, got %d lines", len(lines))
		}
		if lines[0] != "input,session_id,success,output_path,error,elapsed" {
			t.Errorf("unexpected header %q", lines[0])
		}
		if lines[1] != "a.mp4,s1,true,/out/a_generated.md,,1.5s" {
			t.Errorf("unexpected row %q", lines[1])
		}
	})
}

func TestHistoryCommands(t *testing.T) {
	config := testConfig(t)
	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Config: config, Output: output, Logger: shared.NewLogger(&bytes.Buffer{})})

	repo, db, err := runner.openHistory()
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}
	now := time.Now()
	for _, job := range []*models.Job{
		{ID: "old", Input: "/in/old.mp4", Action: models.ActionCreateCourse, Status: models.JobCompleted, StartedAt: now.Add(-49 * time.Hour), FinishedAt: now.Add(-48 * time.Hour)},
		{ID: "new", Input: "/in/new.mp4", Action: models.ActionCreateSummary, Status: models.JobFailed, ErrorMessage: "boom", StartedAt: now.Add(-time.Minute), FinishedAt: now},
	} {
		if err := repo.Record(job); err != nil {
			t.Fatalf("failed to seed job: %v", err)
		}
	}
	db.Close()

	t.Run("list", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "history", "list"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		got := output.String()
		if !strings.Contains(got, "Found 2 sessions") {
			t.Errorf("expected 2 sessions, got:\n%s", got)
		}
		if strings.Index(got, "/in/new.mp4") > strings.Index(got, "/in/old.mp4") {
			t.Errorf("expected newest first, got:\n%s", got)
		}
		if !strings.Contains(got, "Error: boom") {
			t.Errorf("expected error message, got:\n%s", got)
		}
	})

	t.Run("list json filtered", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "history", "list", "--status", "error", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		var jobs []models.Job
		if err := json.Unmarshal(output.Bytes(), &jobs); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(jobs) != 1 || jobs[0].ID != "new" {
			t.Errorf("expected only the failed job, got %+v", jobs)
		}
	})

	t.Run("list unknown status", func(t *testing.T) {
		if err := run(t, runner, "history", "list", "--status", "weird"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("show", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "history", "show", "old"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "ID: old") {
			t.Errorf("expected job details, got:\n%s", output.String())
		}

		if err := run(t, runner, "history", "show", "missing"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for unknown id, got %v", err)
		}
	})

	t.Run("purge", func(t *testing.T) {
		output.Reset()
		if err := run(t, runner, "history", "purge", "--older-than", "24h"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "Deleted 1 sessions") {
			t.Errorf("expected one deletion, got:\n%s", output.String())
		}
	})
}

func TestSetupDatabase(t *testing.T) {
	dir := t.TempDir()
	wd := tu.MustGetwd(t)
	tu.MustChdir(t, dir)
	defer tu.MustChdir(t, wd)

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{ConfigPath: "config.toml", Output: output, Logger: shared.NewLogger(&bytes.Buffer{})})

	if err := run(t, runner, "setup", "database"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	tu.AssertFileExists(t, filepath.Join(dir, "config.toml"))
	tu.AssertFileExists(t, filepath.Join(dir, "macscribe.db"))
	if !strings.Contains(output.String(), "Database ready") {
		t.Errorf("expected confirmation, got %q", output.String())
	}

	if err := run(t, runner, "setup", "rollback"); err != nil {
		t.Fatalf("expected rollback to succeed, got %v", err)
	}
	if !strings.Contains(output.String(), "Rolled back") {
		t.Errorf("expected rollback confirmation, got %q", output.String())
	}
}
