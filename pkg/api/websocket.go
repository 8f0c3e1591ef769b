package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/jervis-ai/jervis/pkg/config"
	"github.com/jervis-ai/jervis/pkg/events"
)

const defaultWSWriteTimeout = 10 * time.Second

// Envelope frames every outbound WebSocket message.
type Envelope struct {
	Channel string       `json:"channel"`
	Event   events.Event `json:"event"`
}

// InboundMessage is what a WebSocket client may send: dialog answers and
// dialog closes. Everything else is ignored.
type InboundMessage struct {
	Type     events.EventType `json:"type"`
	DialogID string           `json:"dialogId"`
	Answer   string           `json:"answer,omitempty"`
	Accepted bool             `json:"accepted,omitempty"`
}

// Hub fans bus events out to connected WebSocket clients and feeds inbound
// dialog messages back onto the bus.
type Hub struct {
	bus *events.Bus
	cfg *config.ServerConfig

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

// NewHub creates the hub and subscribes it to the bus.
func NewHub(bus *events.Bus, cfg *config.ServerConfig) *Hub {
	h := &Hub{
		bus:   bus,
		cfg:   cfg,
		conns: make(map[*websocket.Conn]struct{}),
	}
	bus.Subscribe(h.onEvent)
	return h
}

// onEvent broadcasts outbound event types on the NOTIFICATIONS channel.
// Inbound dialog traffic is not echoed back to clients.
func (h *Hub) onEvent(ctx context.Context, event events.Event) {
	switch event.EventType() {
	case events.TypeUserDialogResponse, events.TypeUserDialogClose:
		return
	}

	data, err := json.Marshal(&Envelope{Channel: events.ChannelNotifications, Event: event})
	if err != nil {
		slog.Error("Marshalling event for broadcast failed", "type", event.EventType(), "error", err)
		return
	}
	h.broadcast(ctx, data)
}

func (h *Hub) broadcast(ctx context.Context, data []byte) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	timeout := h.cfg.WSWriteTimeout
	if timeout <= 0 {
		timeout = defaultWSWriteTimeout
	}
	for _, conn := range conns {
		writeCtx, cancel := context.WithTimeout(ctx, timeout)
		err := conn.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			h.drop(conn)
		}
	}
}

// HandleConnection registers the connection and blocks reading inbound
// messages until the client disconnects.
func (h *Hub) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	defer h.drop(conn)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		h.dispatch(ctx, data)
	}
}

// dispatch publishes a client message as the matching bus event.
func (h *Hub) dispatch(ctx context.Context, data []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("Discarding malformed WebSocket message", "error", err)
		return
	}
	switch msg.Type {
	case events.TypeUserDialogResponse:
		h.bus.Publish(ctx, events.UserDialogResponseEvent{
			Type:      events.TypeUserDialogResponse,
			DialogID:  msg.DialogID,
			Answer:    msg.Answer,
			Accepted:  msg.Accepted,
			Timestamp: time.Now().UTC(),
		})
	case events.TypeUserDialogClose:
		h.bus.Publish(ctx, events.UserDialogCloseEvent{
			Type:      events.TypeUserDialogClose,
			DialogID:  msg.DialogID,
			Timestamp: time.Now().UTC(),
		})
	default:
		slog.Warn("Discarding WebSocket message of unexpected type", "type", msg.Type)
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.conns[conn]
	delete(h.conns, conn)
	h.mu.Unlock()
	if ok {
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

// Connections returns the number of connected clients.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every client and refuses new registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// wsHandler upgrades GET /ws. Connections are rejected unless the Origin
// matches the configured allowlist; an empty allowlist means same-origin only.
func (s *Server) wsHandler(c *echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedWSOrigins,
	})
	if err != nil {
		return err
	}
	s.hub.HandleConnection(c.Request().Context(), conn)
	return nil
}
