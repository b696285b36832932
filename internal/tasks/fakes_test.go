package tasks

import (
	"context"
	"encoding/json"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Nexgear75/MacScribe/internal/formatter"
	"github.com/Nexgear75/MacScribe/internal/models"
	"github.com/Nexgear75/MacScribe/internal/shared"
)

type sent struct {
	id  string
	msg any
}

// fakeChannel records every message and serves queued decisions.
type fakeChannel struct {
	mu           sync.Mutex
	sent         []sent
	decisions    []json.RawMessage
	recvErr      error
	disconnected []string
	tokenDelay   time.Duration // simulates a slow client on generation_token writes
}

func (c *fakeChannel) Send(id string, msg any) {
	if _, ok := msg.(models.GenerationTokenMessage); ok && c.tokenDelay > 0 {
		time.Sleep(c.tokenDelay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sent{id: id, msg: msg})
}

func (c *fakeChannel) ReceiveNext(ctx context.Context, id string, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recvErr != nil {
		return c.recvErr
	}
	if len(c.decisions) == 0 {
		return shared.ErrConnectionLost
	}
	raw := c.decisions[0]
	c.decisions = c.decisions[1:]
	if err := json.Unmarshal(raw, v); err != nil {
		return shared.ErrMalformedMessage
	}
	return nil
}

func (c *fakeChannel) Disconnect(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = append(c.disconnected, id)
}

func (c *fakeChannel) decide(t *testing.T, d models.DecisionMessage) {
	t.Helper()
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("failed to encode decision: %v", err)
	}
	c.decisions = append(c.decisions, b)
}

// events decodes every sent message the way a client would.
func (c *fakeChannel) events(t *testing.T) []models.Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	events := make([]models.Event, 0, len(c.sent))
	for _, s := range c.sent {
		b, err := json.Marshal(s.msg)
		if err != nil {
			t.Fatalf("failed to encode %T: %v", s.msg, err)
		}
		var e models.Event
		if err := json.Unmarshal(b, &e); err != nil {
			t.Fatalf("failed to decode %s: %v", b, err)
		}
		events = append(events, e)
	}
	return events
}

func (c *fakeChannel) sessionIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, len(c.sent))
	for i, s := range c.sent {
		ids[i] = s.id
	}
	return ids
}

type fakeDownloader struct {
	progress []models.DownloadProgress
	result   *models.DownloadResult
	err      error
	urls     []string
}

func (d *fakeDownloader) Download(ctx context.Context, url, dir string, onProgress func(models.DownloadProgress)) (*models.DownloadResult, error) {
	d.urls = append(d.urls, url)
	for _, p := range d.progress {
		onProgress(p)
	}
	return d.result, d.err
}

type fakeMedia struct {
	mu             sync.Mutex
	calls          []string
	extractErr     error
	normalizeErr   error
	transcribeErr  error
	transcribeWait time.Duration
	panicOn        string
	text           string
	cleaned        []string
	cleanErr       error
}

func (m *fakeMedia) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if m.panicOn == call {
		panic(call + " exploded")
	}
}

func (m *fakeMedia) DetectType(path string) models.MediaType {
	return models.DetectMediaType(path)
}

func (m *fakeMedia) ExtractAudio(ctx context.Context, videoPath, workDir string) (string, error) {
	m.record("extract")
	return filepath.Join(workDir, "extracted_audio.wav"), m.extractErr
}

func (m *fakeMedia) Normalize(ctx context.Context, audioPath, workDir string) (string, error) {
	m.record("normalize")
	return filepath.Join(workDir, "normalized_audio.wav"), m.normalizeErr
}

func (m *fakeMedia) Transcribe(ctx context.Context, audioPath string) (*models.Transcription, error) {
	m.record("transcribe")
	if m.transcribeWait > 0 {
		time.Sleep(m.transcribeWait)
	}
	if m.transcribeErr != nil {
		return nil, m.transcribeErr
	}
	return &models.Transcription{Text: m.text, Language: "en"}, nil
}

func (m *fakeMedia) CleanTemp(workDir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleaned = append(m.cleaned, workDir)
	return m.cleanErr
}

func (m *fakeMedia) called() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

type fakeGenerator struct {
	mu      sync.Mutex
	tokens  []string
	err     error
	prompts []string
}

func (g *fakeGenerator) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	return func(yield func(string, error) bool) {
		for _, tok := range g.tokens {
			if !yield(tok, nil) {
				return
			}
		}
		if g.err != nil {
			yield("", g.err)
		}
	}
}

func (g *fakeGenerator) Describe() string { return "fake/model" }

type fakeHistory struct {
	mu   sync.Mutex
	jobs []*models.Job
	err  error
}

func (h *fakeHistory) Record(job *models.Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobs = append(h.jobs, job)
	return h.err
}

type fixture struct {
	pipeline   *Pipeline
	channel    *fakeChannel
	downloader *fakeDownloader
	media      *fakeMedia
	generator  *fakeGenerator
	history    *fakeHistory
	outDir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		channel: &fakeChannel{},
		downloader: &fakeDownloader{
			progress: []models.DownloadProgress{{Percent: 10, Speed: 1024}, {Percent: 60}, {Percent: 100}},
			result:   &models.DownloadResult{FilePath: "/tmp/downloads/Intro Lecture.mp4", Title: "Intro Lecture"},
		},
		media:     &fakeMedia{text: "the lecture transcript"},
		generator: &fakeGenerator{tokens: []string{"# ", "Sum", "mary", "\n", "- ", "point", "\n"}},
		history:   &fakeHistory{},
		outDir:    t.TempDir(),
	}

	f.pipeline = NewPipeline(PipelineOpts{
		Channel:    f.channel,
		Downloader: f.downloader,
		Media:      f.media,
		Generator:  f.generator,
		Exporter:   formatter.NewExporter(f.outDir),
		History:    f.history,
		Pacing:     Pacing{PollInterval: 5 * time.Millisecond, PollStep: 5, TokenBatch: 3},
		TempDir:    t.TempDir(),
		Logger:     shared.NewLogger(os.Stderr),
	})
	return f
}

func (f *fixture) open(req models.ProcessRequest) string {
	return f.pipeline.Open(req)
}

// checkProtocol verifies the ordering properties every session must satisfy.
func checkProtocol(t *testing.T, events []models.Event) {
	t.Helper()

	status := map[int]models.SubTaskStatus{}
	progress := map[int]int{}
	terminal := 0

	for i, e := range events {
		if terminal > 0 {
			t.Errorf("event %d (%s) sent after terminal message", i, e.Type)
		}

		switch e.Type {
		case models.MsgInit:
			status = map[int]models.SubTaskStatus{}
			progress = map[int]int{}
		case models.MsgStatus:
			idx, _ := e.Index()
			if e.Status == models.StatusRunning {
				for other, st := range status {
					if other != idx && st == models.StatusRunning {
						t.Errorf("subtask %d started while %d is running", idx, other)
					}
				}
				progress[idx] = 0
			}
			if e.Status == models.StatusCompleted {
				if e.Progress == nil || *e.Progress != 100 {
					t.Errorf("expected completed status of %d to carry progress 100", idx)
				}
			}
			status[idx] = e.Status
		case models.MsgProgress:
			idx, _ := e.Index()
			if status[idx] != models.StatusRunning {
				t.Errorf("progress for subtask %d which is not running", idx)
			}
			if e.Progress == nil {
				t.Fatalf("progress message without progress")
			}
			if *e.Progress < progress[idx] {
				t.Errorf("progress of %d decreased from %d to %d", idx, progress[idx], *e.Progress)
			}
			progress[idx] = *e.Progress
		case models.MsgComplete, models.MsgError:
			terminal++
		}
	}

	if terminal != 1 {
		t.Errorf("expected exactly one terminal message, got %d", terminal)
	}
}

func ofType(events []models.Event, typ models.MessageType) []models.Event {
	var out []models.Event
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
