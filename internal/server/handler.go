package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/Nexgear75/MacScribe/internal/models"
	"github.com/Nexgear75/MacScribe/internal/shared"
	"github.com/Nexgear75/MacScribe/internal/tasks"
	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// requestTimeout bounds the wait for the first client message.
const requestTimeout = 30 * time.Second

// ProcessHandler upgrades /ws/process requests and runs one pipeline session per connection.
// Implements the Handler interface for registration with a Router.
type ProcessHandler struct {
	pipeline *tasks.Pipeline
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewProcessHandler creates a handler that accepts WebSocket upgrades from allowedOrigins.
//
// An empty allowedOrigins accepts any origin.
func NewProcessHandler(pipeline *tasks.Pipeline, hub *Hub, allowedOrigins []string, logger *log.Logger) *ProcessHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &ProcessHandler{
		pipeline: pipeline,
		hub:      hub,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *ProcessHandler) Routes() []string {
	return []string{"/ws/process"}
}

// ServeHTTP reads the initial [models.ProcessRequest], registers the connection and blocks
// until the session is torn down.
func (h *ProcessHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	var req models.ProcessRequest
	conn.SetReadDeadline(time.Now().Add(requestTimeout))
	if err := conn.ReadJSON(&req); err != nil {
		h.reject(conn, fmt.Errorf("%w: %v", shared.ErrMalformedMessage, err))
		return
	}
	conn.SetReadDeadline(time.Time{})

	if err := req.Validate(); err != nil {
		h.reject(conn, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
		return
	}

	id := h.pipeline.Open(req)
	ctx := h.hub.Register(r.Context(), id, conn)
	h.logger.Info("session opened", "session", id, "action", req.Action, "input", req.FilePath)

	h.pipeline.Serve(ctx, id)
}

func (h *ProcessHandler) reject(conn *websocket.Conn, err error) {
	h.logger.Warn("rejecting connection", "error", err)
	conn.WriteJSON(models.ErrorMessage{Type: models.MsgError, Message: err.Error()})
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""))
	conn.Close()
}

// HealthHandler answers GET /health.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Online"})
	})
}

// originChecker matches the Origin header against allowed, with or without scheme.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		host := origin
		if _, rest, ok := strings.Cut(origin, "://"); ok {
			host = rest
		}
		return slices.Contains(allowed, origin) || slices.Contains(allowed, host)
	}
}
