package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Nexgear75/MacScribe/internal/shared"
	"github.com/charmbracelet/log"
)

// inboxSize bounds client messages buffered between reads.
const inboxSize = 8

// Conn is the subset of [websocket.Conn] the hub uses.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// Hub maps session ids to live connections.
//
// Each registered connection gets a read pump goroutine that feeds an inbox; the
// session context is cancelled as soon as the pump sees the connection fail.
// Writes to one connection are serialized, so delivery is FIFO in Send order.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*session
	logger   *log.Logger
}

type session struct {
	id      string
	conn    Conn
	writeMu sync.Mutex
	inbox   chan json.RawMessage
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
	gone    atomic.Bool // read side failed; the client is no longer there
}

// NewHub creates an empty [Hub].
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Hub{
		sessions: make(map[string]*session),
		logger:   logger,
	}
}

// Register binds conn to id and starts reading from it.
//
// The returned context is cancelled when the connection fails or [Hub.Disconnect] is called.
func (h *Hub) Register(parent context.Context, id string, conn Conn) context.Context {
	ctx, cancel := context.WithCancel(parent)
	s := &session{
		id:     id,
		conn:   conn,
		inbox:  make(chan json.RawMessage, inboxSize),
		ctx:    ctx,
		cancel: cancel,
	}

	h.mu.Lock()
	if old, ok := h.sessions[id]; ok {
		h.mu.Unlock()
		h.logger.Warn("replacing existing connection", "session", id)
		old.close()
		h.mu.Lock()
	}
	h.sessions[id] = s
	h.mu.Unlock()

	go h.readPump(s)

	h.logger.Info("connection registered", "session", id)
	return ctx
}

func (h *Hub) readPump(s *session) {
	defer close(s.inbox)
	defer s.cancel()
	defer s.gone.Store(true)

	for {
		var raw json.RawMessage
		if err := s.conn.ReadJSON(&raw); err != nil {
			if s.ctx.Err() == nil {
				h.logger.Debug("read pump stopped", "session", s.id, "error", err)
			}
			return
		}

		select {
		case s.inbox <- raw:
		default:
			h.logger.Warn("inbox full, dropping client message", "session", s.id)
		}
	}
}

func (h *Hub) lookup(id string) (*session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Send writes msg to the session's connection as JSON.
//
// Messages for unknown or disconnected sessions are dropped with a warning.
func (h *Hub) Send(id string, msg any) {
	s, ok := h.lookup(id)
	if !ok {
		h.logger.Warn("dropping message for unknown session", "session", id, "message", fmt.Sprintf("%T", msg))
		return
	}

	if s.gone.Load() || s.ctx.Err() != nil {
		h.logger.Warn("dropping message for disconnected session", "session", id, "message", fmt.Sprintf("%T", msg))
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.WriteJSON(msg); err != nil {
		h.logger.Warn("failed to send message", "session", id, "error", err)
	}
}

// ReceiveNext blocks until the next client message for id arrives and decodes it into v.
//
// It fails with [shared.ErrConnectionLost] when the connection closes or ctx ends first,
// and with [shared.ErrMalformedMessage] when the payload does not decode into v.
func (h *Hub) ReceiveNext(ctx context.Context, id string, v any) error {
	s, ok := h.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, id)
	}

	select {
	case raw, open := <-s.inbox:
		if !open {
			return shared.ErrConnectionLost
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrMalformedMessage, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", shared.ErrConnectionLost, ctx.Err())
	}
}

// Disconnect closes and forgets the connection for id. Safe to call more than once.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	s.close()
	h.logger.Info("connection closed", "session", id)
}

// Connected reports whether id has a live connection.
func (h *Hub) Connected(id string) bool {
	s, ok := h.lookup(id)
	return ok && !s.gone.Load()
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (s *session) close() {
	s.once.Do(func() {
		s.cancel()
		s.writeMu.Lock()
		_ = s.conn.Close()
		s.writeMu.Unlock()
	})
}
