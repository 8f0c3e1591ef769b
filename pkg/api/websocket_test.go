package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jervis-ai/jervis/pkg/events"
	"github.com/jervis-ai/jervis/pkg/models"
)

func dialWS(t *testing.T, ts *testServer) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(ts.server.Handler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)

	return conn, func() {
		cancel()
		conn.Close(websocket.StatusNormalClosure, "")
		srv.Close()
	}
}

func TestWebSocketBroadcastsBusEvents(t *testing.T) {
	ts := newTestServer(t)
	conn, cleanup := dialWS(t, ts)
	defer cleanup()

	// Wait until the hub has registered the connection.
	deadline := time.Now().Add(2 * time.Second)
	for ts.server.hub.Connections() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.NotZero(t, ts.server.hub.Connections())

	planID := models.NewPlanID()
	ts.bus.Publish(context.Background(), events.AgentResponseEvent{
		Type:      events.TypeAgentResponse,
		ContextID: models.NewContextID().Hex(),
		PlanID:    planID.Hex(),
		Answer:    "all systems nominal",
		Timestamp: time.Now().UTC(),
	})

	readCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(readCtx)
	require.NoError(t, err)

	var envelope struct {
		Channel string `json:"channel"`
		Event   struct {
			Type   events.EventType `json:"type"`
			PlanID string           `json:"planId"`
			Answer string           `json:"answer"`
		} `json:"event"`
	}
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, events.ChannelNotifications, envelope.Channel)
	assert.Equal(t, events.TypeAgentResponse, envelope.Event.Type)
	assert.Equal(t, planID.Hex(), envelope.Event.PlanID)
	assert.Equal(t, "all systems nominal", envelope.Event.Answer)
}

func TestWebSocketIngestsDialogResponses(t *testing.T) {
	ts := newTestServer(t)

	var mu sync.Mutex
	var received []events.UserDialogResponseEvent
	ts.bus.Subscribe(func(_ context.Context, ev events.Event) {
		if resp, ok := ev.(events.UserDialogResponseEvent); ok {
			mu.Lock()
			received = append(received, resp)
			mu.Unlock()
		}
	})

	conn, cleanup := dialWS(t, ts)
	defer cleanup()

	msg, err := json.Marshal(InboundMessage{
		Type:     events.TypeUserDialogResponse,
		DialogID: "dlg-1",
		Answer:   "yes, proceed",
		Accepted: true,
	})
	require.NoError(t, err)

	writeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(writeCtx, websocket.MessageText, msg))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "dlg-1", received[0].DialogID)
	assert.Equal(t, "yes, proceed", received[0].Answer)
	assert.True(t, received[0].Accepted)
}
