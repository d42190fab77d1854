package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/datalens/datalens-ai/internal/analytics/progress"
	"github.com/datalens/datalens-ai/internal/metrics"
)

// WebSocket message types
const (
	MessageTypeProgress  = "progress"
	MessageTypeError     = "error"
	MessageTypeHeartbeat = "heartbeat"
)

// WSMessage is one outbound WebSocket frame.
type WSMessage struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Percent   float64   `json:"percent,omitempty"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// defaultOrigins are the dashboard dev-server origins accepted when no
// explicit allow list is configured.
var defaultOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// originAllowed reports whether origin may open a connection. An empty
// origin (non-browser clients) is always allowed; "*" in the list allows
// everything; comparison is case-insensitive.
func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	if len(allowed) == 0 {
		allowed = defaultOrigins
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// newUpgrader builds a WebSocket upgrader restricted to the allowed origins.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), allowedOrigins)
		},
	}
}

// progressHub fans engine progress events out to WebSocket subscribers. Each
// subscriber names the run it cares about; events for other runs are not
// delivered to it.
type progressHub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan WSMessage]struct{} // run ID → subscriber channels
	logger *zap.Logger
}

func newProgressHub(logger *zap.Logger) *progressHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &progressHub{
		subs:   make(map[string]map[chan WSMessage]struct{}),
		logger: logger,
	}
}

// Subscribe registers interest in one run's events. The returned channel is
// buffered; events overflowing the buffer are dropped rather than blocking
// the engine.
func (h *progressHub) Subscribe(runID string) chan WSMessage {
	ch := make(chan WSMessage, 16)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[chan WSMessage]struct{})
	}
	h.subs[runID][ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *progressHub) Unsubscribe(runID string, ch chan WSMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[runID]; ok {
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(h.subs, runID)
		}
	}
}

// Broadcast delivers one engine event to the run's subscribers.
func (h *progressHub) Broadcast(runID string, e progress.Event) {
	msg := WSMessage{
		Type:      MessageTypeProgress,
		RunID:     runID,
		Stage:     e.Stage,
		Percent:   e.Percent,
		Message:   e.Message,
		Timestamp: time.Now(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[runID] {
		select {
		case ch <- msg:
		default:
			// Slow subscriber, drop the event.
		}
	}
}

// handleProgressWS upgrades the connection and streams progress events for
// the run named in the "run" query parameter.
func (s *Server) handleProgressWS(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run")
	if runID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "run query parameter is required", Code: "input_error"})
		return
	}

	upgrader := newUpgrader(s.config.Server.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.WebSocketConnections.Inc()
	defer metrics.WebSocketConnections.Dec()

	sub := s.hub.Subscribe(runID)
	defer s.hub.Unsubscribe(runID, sub)

	s.logger.Debug("progress subscriber connected", zap.String("run_id", runID))

	// Drain (and ignore) client frames so close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.Unsubscribe(runID, sub)
				return
			}
			metrics.WebSocketMessagesTotal.WithLabelValues("inbound").Inc()
		}
	}()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg, ok := <-sub:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			metrics.WebSocketMessagesTotal.WithLabelValues("outbound").Inc()
			// The engine's terminal stage ends the stream.
			if msg.Stage == "complete" {
				return
			}

		case <-heartbeat.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(WSMessage{Type: MessageTypeHeartbeat, Timestamp: time.Now()}); err != nil {
				return
			}
		}
	}
}
