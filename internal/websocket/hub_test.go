package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireEvent struct {
	Type      EventType       `json:"type"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

func startHub(t *testing.T, cfg *HubConfig) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev wireEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestHubBroadcastsRedactions(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, srv, nil)

	require.Eventually(t, func() bool { return hub.ActiveConnections() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.PublishRedaction(RedactionEvent{
		RequestID:    "req-1",
		Source:       "http",
		Counts:       map[string]int{"phone": 2},
		TotalMatches: 2,
	})

	ev := readEvent(t, conn)
	assert.Equal(t, EventTypeRedaction, ev.Type)
	assert.Equal(t, "req-1", ev.RequestID)

	var data RedactionEvent
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, 2, data.TotalMatches)
	assert.Equal(t, 2, data.Counts["phone"])

	stats := hub.GetStats()
	assert.Equal(t, int64(1), stats.TotalConnections)
}

func TestHubConnectionEvents(t *testing.T) {
	hub, srv := startHub(t, nil)
	first := dial(t, srv, nil)
	require.Eventually(t, func() bool { return hub.ActiveConnections() == 1 }, 2*time.Second, 10*time.Millisecond)

	second := dial(t, srv, nil)
	ev := readEvent(t, first)
	assert.Equal(t, EventTypeConnection, ev.Type)

	var data ConnectionEvent
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, "connected", data.Action)

	second.Close()
	ev = readEvent(t, first)
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, "disconnected", data.Action)
	require.Eventually(t, func() bool { return hub.ActiveConnections() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubPing(t *testing.T) {
	_, srv := startHub(t, nil)
	conn := dial(t, srv, nil)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "ping"}))
	ev := readEvent(t, conn)
	assert.Equal(t, EventTypePong, ev.Type)
}

func TestHubSubscription(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, srv, nil)

	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type: "subscribe",
		Data: &SubscriptionRequest{
			Events: []EventType{EventTypeRedaction},
			Filter: &EventFilter{Categories: []string{"email"}},
		},
	}))
	// The pong proves the subscription was processed first.
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "ping"}))
	require.Equal(t, EventTypePong, readEvent(t, conn).Type)

	hub.PublishReload(RulesReloadedEvent{Path: "rules.json"})
	hub.PublishRedaction(RedactionEvent{RequestID: "phone-only", Counts: map[string]int{"phone": 1}, TotalMatches: 1})
	hub.PublishRedaction(RedactionEvent{RequestID: "with-email", Counts: map[string]int{"email": 1}, TotalMatches: 1})

	ev := readEvent(t, conn)
	assert.Equal(t, EventTypeRedaction, ev.Type)
	assert.Equal(t, "with-email", ev.RequestID)
}

func TestHubBasicAuth(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.Username = "admin"
	cfg.Password = "s3cret"
	_, srv := startHub(t, cfg)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	bad := http.Header{"Authorization": {"Basic " + base64.StdEncoding.EncodeToString([]byte("admin:wrong"))}}
	_, resp, err = websocket.DefaultDialer.Dial(url, bad)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	good := http.Header{"Authorization": {"Basic " + base64.StdEncoding.EncodeToString([]byte("admin:s3cret"))}}
	conn, _, err := websocket.DefaultDialer.Dial(url, good)
	require.NoError(t, err)
	conn.Close()
}

func TestHubMaxConnections(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.MaxConnections = 1
	hub, srv := startHub(t, cfg)
	dial(t, srv, nil)
	require.Eventually(t, func() bool { return hub.ActiveConnections() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCheckOrigin(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.AllowedOrigins = []string{"https://dash.example.com"}
	hub := NewHub(cfg, nil)

	tests := map[string]bool{
		"":                         true,
		"https://dash.example.com": true,
		"https://DASH.example.com": true,
		"https://evil.example.com": false,
	}
	for origin, want := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		assert.Equal(t, want, hub.checkOrigin(r), origin)
	}
}

func TestEventFilter(t *testing.T) {
	ev := Event{Type: EventTypeRedaction, Data: RedactionEvent{
		Source:       "batch",
		Counts:       map[string]int{"name": 2, "phone": 1},
		TotalMatches: 3,
	}}

	tests := []struct {
		name   string
		filter EventFilter
		want   bool
	}{
		{"empty", EventFilter{}, true},
		{"category hit", EventFilter{Categories: []string{"email", "phone"}}, true},
		{"category miss", EventFilter{Categories: []string{"email"}}, false},
		{"source hit", EventFilter{Sources: []string{"batch"}}, true},
		{"source miss", EventFilter{Sources: []string{"http"}}, false},
		{"min matches", EventFilter{MinMatches: 4}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, applyEventFilter(&tt.filter, ev))
		})
	}
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	assert.Equal(t, "10.0.0.1", getClientIP(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1:1234", getClientIP(r))
}

func TestHubPublishStatus(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, srv, nil)
	require.Eventually(t, func() bool { return hub.ActiveConnections() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.PublishStatus(SystemStatusEvent{Status: "healthy", ActiveRules: 3})

	ev := readEvent(t, conn)
	require.Equal(t, EventTypeSystemStatus, ev.Type)
	var data SystemStatusEvent
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, 3, data.ActiveRules)
	assert.Equal(t, 1, data.ConnectedClients)
}
