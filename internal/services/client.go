package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/Nexgear75/MacScribe/internal/models"
	"github.com/Nexgear75/MacScribe/internal/shared"
	"github.com/gorilla/websocket"
)

// ProcessClient is the client side of the processing WebSocket.
type ProcessClient struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// NewProcessClient creates a client for the server at baseURL (http or https).
func NewProcessClient(baseURL string, client *http.Client) *ProcessClient {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &ProcessClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		dialer:     websocket.DefaultDialer,
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Message string `json:"message"`
}

// Health checks that the server is reachable.
func (c *ProcessClient) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", shared.ErrServiceUnavailable, resp.StatusCode)
	}

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &health, nil
}

// Session is one open processing connection.
type Session struct {
	conn *websocket.Conn
	mu   sync.Mutex
	once sync.Once
}

// Open dials the processing endpoint and sends req as the first message.
func (c *ProcessClient) Open(ctx context.Context, req models.ProcessRequest) (*Session, error) {
	wsURL, err := c.websocketURL("/ws/process")
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: handshake status %d: %v", shared.ErrServiceUnavailable, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}

	s := &Session{conn: conn}
	if err := s.send(req); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (c *ProcessClient) websocketURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("%w: bad server url: %v", shared.ErrInvalidArgument, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	return u.String(), nil
}

// Next blocks until the next server message.
//
// It returns io.EOF once the server has closed the connection normally.
func (s *Session) Next() (models.Event, error) {
	var e models.Event
	if err := s.conn.ReadJSON(&e); err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return e, io.EOF
		}
		return e, err
	}
	return e, nil
}

// Decide answers the post-download prompt.
func (s *Session) Decide(d models.DecisionMessage) error {
	return s.send(d)
}

func (s *Session) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close closes the connection. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.mu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// Events reads messages until a terminal one, passing each to fn.
//
// A remote session stops at download_complete so the caller can [Session.Decide];
// call Events again afterwards. ctx cancellation closes the connection.
func (s *Session) Events(ctx context.Context, fn func(models.Event)) (models.Event, error) {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		e, err := s.Next()
		if err != nil {
			if ctx.Err() != nil {
				return e, ctx.Err()
			}
			return e, err
		}
		if fn != nil {
			fn(e)
		}
		if e.Terminal() || e.Type == models.MsgDownloadComplete {
			return e, nil
		}
	}
}
