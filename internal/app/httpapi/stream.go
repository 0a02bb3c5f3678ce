package httpapi

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/getdatasurge/frostguard/internal/app/domain/alert"
	"github.com/getdatasurge/frostguard/internal/app/domain/reading"
	"github.com/getdatasurge/frostguard/internal/middleware"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

// StreamEvent is the envelope pushed to websocket subscribers.
type StreamEvent struct {
	Type    string           `json:"type"`
	Reading *reading.Reading `json:"reading,omitempty"`
	Alert   *alert.Alert     `json:"alert,omitempty"`
	Level   int              `json:"level,omitempty"`
}

// Hub fans accepted readings and alert events out to websocket
// subscribers. It implements the ingest publisher and the alert monitor's
// notifier so dashboards see both as they happen.
type Hub struct {
	upgrader websocket.Upgrader
	log      *logger.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]string // connection -> org filter
}

// NewHub constructs a streaming hub.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("stream")
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced by the CORS middleware in front.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:   log,
		conns: make(map[*websocket.Conn]string),
	}
}

// ServeHTTP upgrades the connection and subscribes it to the caller's
// tenant. Unauthenticated connections may filter with ?org_id=.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		orgID = r.URL.Query().Get("org_id")
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.conns[conn] = orgID
	count := len(h.conns)
	h.mu.Unlock()
	h.log.WithField("subscribers", count).Debug("stream subscriber connected")

	// Drain control frames; the client never sends data.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

// PublishReading sends the reading to every subscriber whose org filter
// matches. Implements ingest.Publisher.
func (h *Hub) PublishReading(r reading.Reading) {
	h.publish(r.OrgID, StreamEvent{Type: "reading", Reading: &r})
}

// NotifyAlert pushes alert state changes to subscribers. Implements the
// alert monitor's notifier; delivery is best effort.
func (h *Hub) NotifyAlert(_ context.Context, a alert.Alert, level int) error {
	h.publish(a.OrgID, StreamEvent{Type: "alert", Alert: &a, Level: level})
	return nil
}

func (h *Hub) publish(org string, ev StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, orgID := range h.conns {
		if orgID != "" && orgID != org {
			continue
		}
		if err := conn.WriteJSON(ev); err != nil {
			delete(h.conns, conn)
			_ = conn.Close()
		}
	}
}

// Close disconnects all subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		_ = conn.Close()
		delete(h.conns, conn)
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		_ = conn.Close()
	}
}
