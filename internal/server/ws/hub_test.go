package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictpool/internal/events"
)

func startHub(t *testing.T) (*Hub, *events.MemoryBus, *httptest.Server) {
	t.Helper()
	bus := events.NewMemoryBus()
	h := NewHub(bus, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Run(ctx)
	}()

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return h, bus, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, typ)
	require.NoError(t, json.Unmarshal(data, v))
}

func (h *Hub) subscribed(channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.isSubscribed(channel) {
			return true
		}
	}
	return false
}

func betEvent(t *testing.T, betID string) []byte {
	t.Helper()
	payload, err := events.Encode(events.TypeBetPlaced, events.BetPlaced{
		BetID:       betID,
		MarketID:    "m1",
		UserID:      "u1",
		Position:    "yes",
		StakeAmount: 10,
	}, time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return payload
}

func TestHub_RelaysSubscribedChannelOnly(t *testing.T) {
	h, bus, srv := startHub(t)
	conn := dial(t, srv, "?channels=bets")

	var hello struct {
		Type     string   `json:"type"`
		Channels []string `json:"channels"`
	}
	readJSON(t, conn, &hello)
	assert.Equal(t, "hello", hello.Type)
	assert.Equal(t, []string{events.ChannelBets}, hello.Channels)

	require.Eventually(t, func() bool { return h.clientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, events.ChannelMarkets, []byte(`{"type":"market_created"}`)))
	require.NoError(t, bus.Publish(ctx, events.ChannelBets, betEvent(t, "b1")))

	var frame Frame
	readJSON(t, conn, &frame)
	assert.Equal(t, events.ChannelBets, frame.Channel)
	assert.Empty(t, frame.ID)

	var env events.Envelope
	require.NoError(t, json.Unmarshal(frame.Event, &env))
	assert.Equal(t, events.TypeBetPlaced, env.Type)
}

func TestHub_ReplaysStreamSince(t *testing.T) {
	_, bus, srv := startHub(t)
	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, events.ChannelBets, betEvent(t, "b1")))
	require.NoError(t, bus.Publish(ctx, events.ChannelBets, betEvent(t, "b2")))

	conn := dial(t, srv, "?channels=bets&since=1")

	var hello map[string]any
	readJSON(t, conn, &hello)
	assert.Equal(t, "hello", hello["type"])

	var frame Frame
	readJSON(t, conn, &frame)
	assert.Equal(t, "2", frame.ID)

	var env events.Envelope
	require.NoError(t, json.Unmarshal(frame.Event, &env))
	var bet events.BetPlaced
	require.NoError(t, json.Unmarshal(env.Data, &bet))
	assert.Equal(t, "b2", bet.BetID)
}

func TestHub_SubscribeMessage(t *testing.T) {
	h, bus, srv := startHub(t)
	conn := dial(t, srv, "?channels=markets")

	var hello map[string]any
	readJSON(t, conn, &hello)
	require.Eventually(t, func() bool { return h.clientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, h.subscribed(events.ChannelSettlements))

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "subscribe", Channels: []string{events.ChannelSettlements, "bogus"}}))
	require.Eventually(t, func() bool { return h.subscribed(events.ChannelSettlements) }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, h.subscribed("bogus"))

	require.NoError(t, bus.Publish(context.Background(), events.ChannelSettlements, []byte(`{"type":"market_settled"}`)))

	var frame Frame
	readJSON(t, conn, &frame)
	assert.Equal(t, events.ChannelSettlements, frame.Channel)
	assert.JSONEq(t, `{"type":"market_settled"}`, string(frame.Event))
}
