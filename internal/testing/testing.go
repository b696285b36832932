// package testing contains shared testing utilities
package testing

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/Nexgear75/MacScribe/internal/models"
)

// FakeConn is an in-memory stand-in for a WebSocket connection.
//
// Messages queued with [FakeConn.Push] are returned by ReadJSON in order; once the queue
// is drained ReadJSON blocks until [FakeConn.Close] or [FakeConn.Fail].
type FakeConn struct {
	mu      sync.Mutex
	written [][]byte
	inbox   chan []byte
	closed  chan struct{}
	once    sync.Once
	failErr error

	WriteErr error // returned by every WriteJSON when set
}

// NewFakeConn creates a [FakeConn] that can hold up to 16 unread client messages.
func NewFakeConn() *FakeConn {
	return &FakeConn{inbox: make(chan []byte, 16), closed: make(chan struct{})}
}

// Push queues v (or raw bytes) as the next client message.
func (c *FakeConn) Push(v any) {
	if b, ok := v.([]byte); ok {
		c.inbox <- b
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	c.inbox <- b
}

// Fail makes pending and future reads return err.
func (c *FakeConn) Fail(err error) {
	c.mu.Lock()
	c.failErr = err
	c.mu.Unlock()
	c.Close()
}

func (c *FakeConn) WriteJSON(v any) error {
	if c.WriteErr != nil {
		return c.WriteErr
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, b)
	return nil
}

func (c *FakeConn) ReadJSON(v any) error {
	select {
	case b := <-c.inbox:
		return json.Unmarshal(b, v)
	default:
	}

	select {
	case b := <-c.inbox:
		return json.Unmarshal(b, v)
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.failErr != nil {
			return c.failErr
		}
		return io.EOF
	}
}

func (c *FakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Closed reports whether Close has been called.
func (c *FakeConn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Events decodes every written message.
func (c *FakeConn) Events() []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]models.Event, 0, len(c.written))
	for _, b := range c.written {
		var e models.Event
		if err := json.Unmarshal(b, &e); err == nil {
			events = append(events, e)
		}
	}
	return events
}

// Written returns the raw JSON of every written message.
func (c *FakeConn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.written))
	for i, b := range c.written {
		out[i] = string(b)
	}
	return out
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
