// Package websocket streams redaction activity to dashboard clients.
package websocket

import (
	"context"
	"crypto/subtle"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const sendBuffer = 256

// HubConfig contains configuration for the WebSocket hub
type HubConfig struct {
	BroadcastRedactions  bool
	BroadcastReloads     bool
	BroadcastSystem      bool
	BroadcastConnections bool

	MaxConnections  int
	ReadBufferSize  int
	WriteBufferSize int
	PingInterval    time.Duration
	PongTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageSize  int64
	AllowedOrigins  []string

	// Basic auth is required when Username is set
	Username string
	Password string
}

// DefaultHubConfig broadcasts every event type with conservative socket limits
func DefaultHubConfig() *HubConfig {
	return &HubConfig{
		BroadcastRedactions:  true,
		BroadcastReloads:     true,
		BroadcastSystem:      true,
		BroadcastConnections: true,
		MaxConnections:       100,
		ReadBufferSize:       1024,
		WriteBufferSize:      1024,
		PingInterval:         54 * time.Second,
		PongTimeout:          60 * time.Second,
		WriteTimeout:         10 * time.Second,
		MaxMessageSize:       512,
		AllowedOrigins:       []string{"*"},
	}
}

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	// Registered clients, owned by Run
	clients map[*Client]bool

	broadcast  chan Event
	direct     chan directEvent
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	config   *HubConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	stats HubStats
}

type directEvent struct {
	client *Client
	event  Event
}

// HubStats tracks WebSocket hub statistics
type HubStats struct {
	TotalConnections   int64     `json:"total_connections"`
	ActiveConnections  int64     `json:"active_connections"`
	TotalMessages      int64     `json:"total_messages"`
	TotalBroadcasts    int64     `json:"total_broadcasts"`
	DroppedClients     int64     `json:"dropped_clients"`
	LastConnectionTime time.Time `json:"last_connection_time"`
}

// NewHub creates a new WebSocket hub
func NewHub(config *HubConfig, logger *zap.Logger) *Hub {
	if config == nil {
		config = DefaultHubConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, sendBuffer),
		direct:     make(chan directEvent, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		config:     config,
		logger:     logger.With(zap.String("component", "websocket")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Run dispatches registrations and broadcasts until ctx is done, then
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.dropClient(client)
			}
			h.logger.Info("WebSocket hub stopped")
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case event := <-h.broadcast:
			h.broadcastEvent(event, nil)
		case d := <-h.direct:
			if h.clients[d.client] {
				select {
				case d.client.Send <- d.event:
				default:
				}
			}
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.clients[client] = true

	h.mu.Lock()
	h.stats.TotalConnections++
	h.stats.ActiveConnections = int64(len(h.clients))
	h.stats.LastConnectionTime = time.Now()
	h.mu.Unlock()

	h.logger.Info("WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("client_ip", client.IP),
		zap.Int("active_clients", len(h.clients)),
	)

	if h.shouldBroadcastEvent(EventTypeConnection) {
		h.broadcastEvent(Event{
			Type:      EventTypeConnection,
			Timestamp: time.Now(),
			Data: ConnectionEvent{
				Action:    "connected",
				ClientID:  client.ID,
				ClientIP:  client.IP,
				UserAgent: client.UserAgent,
			},
		}, client)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	if !h.clients[client] {
		return
	}
	h.dropClient(client)

	h.logger.Info("WebSocket client disconnected",
		zap.String("client_id", client.ID),
		zap.Duration("session_duration", time.Since(client.ConnectedAt)),
		zap.Int("active_clients", len(h.clients)),
	)

	if h.shouldBroadcastEvent(EventTypeConnection) {
		h.broadcastEvent(Event{
			Type:      EventTypeConnection,
			Timestamp: time.Now(),
			Data: ConnectionEvent{
				Action:   "disconnected",
				ClientID: client.ID,
				ClientIP: client.IP,
			},
		}, nil)
	}
}

// dropClient removes a client and closes its send channel, which makes the
// write pump send a close frame.
func (h *Hub) dropClient(client *Client) {
	delete(h.clients, client)
	close(client.Send)

	h.mu.Lock()
	h.stats.ActiveConnections = int64(len(h.clients))
	h.mu.Unlock()
}

// broadcastEvent delivers event to every interested client except exclude.
// Clients whose buffer is full are dropped.
func (h *Hub) broadcastEvent(event Event, exclude *Client) {
	sent := 0
	for client := range h.clients {
		if client == exclude || !shouldSendToClient(client, event) {
			continue
		}
		select {
		case client.Send <- event:
			sent++
		default:
			h.logger.Warn("Dropping slow WebSocket client", zap.String("client_id", client.ID))
			h.dropClient(client)
			h.mu.Lock()
			h.stats.DroppedClients++
			h.mu.Unlock()
		}
	}

	h.mu.Lock()
	h.stats.TotalBroadcasts++
	h.stats.TotalMessages += int64(sent)
	h.mu.Unlock()
}

func shouldSendToClient(client *Client, event Event) bool {
	sub := client.Subscription()
	if sub == nil {
		return true
	}
	if len(sub.Events) > 0 && !slices.Contains(sub.Events, event.Type) {
		return false
	}
	if sub.Filter != nil && event.Type == EventTypeRedaction {
		return applyEventFilter(sub.Filter, event)
	}
	return true
}

func applyEventFilter(filter *EventFilter, event Event) bool {
	var re RedactionEvent
	switch data := event.Data.(type) {
	case RedactionEvent:
		re = data
	case *RedactionEvent:
		re = *data
	default:
		return true
	}

	if re.TotalMatches < filter.MinMatches {
		return false
	}
	if len(filter.Sources) > 0 && !slices.Contains(filter.Sources, re.Source) {
		return false
	}
	if len(filter.Categories) > 0 {
		for _, category := range filter.Categories {
			if re.Counts[category] > 0 {
				return true
			}
		}
		return false
	}
	return true
}

// BroadcastEvent queues an event for all subscribed clients. It never
// blocks; events are discarded when the queue is full.
func (h *Hub) BroadcastEvent(event Event) {
	if !h.shouldBroadcastEvent(event.Type) {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Broadcast queue full, dropping event", zap.String("event_type", string(event.Type)))
	}
}

// PublishRedaction broadcasts a redaction summary
func (h *Hub) PublishRedaction(ev RedactionEvent) {
	h.BroadcastEvent(Event{Type: EventTypeRedaction, RequestID: ev.RequestID, Data: ev})
}

// PublishReload broadcasts the outcome of a rule reload
func (h *Hub) PublishReload(ev RulesReloadedEvent) {
	h.BroadcastEvent(Event{Type: EventTypeRulesReloaded, Data: ev})
}

// PublishStatus broadcasts a periodic service status snapshot
func (h *Hub) PublishStatus(ev SystemStatusEvent) {
	ev.ConnectedClients = h.ActiveConnections()
	h.BroadcastEvent(Event{Type: EventTypeSystemStatus, Data: ev})
}

func (h *Hub) shouldBroadcastEvent(eventType EventType) bool {
	switch eventType {
	case EventTypeRedaction:
		return h.config.BroadcastRedactions
	case EventTypeRulesReloaded:
		return h.config.BroadcastReloads
	case EventTypeSystemStatus:
		return h.config.BroadcastSystem
	case EventTypeConnection:
		return h.config.BroadcastConnections
	default:
		return false
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (h *Hub) authorized(r *http.Request) bool {
	if h.config.Username == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.config.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(h.config.Password)) == 1
	return userOK && passOK
}

// HandleWebSocket handles WebSocket connections
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="piiredact"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if h.config.MaxConnections > 0 && h.ActiveConnections() >= h.config.MaxConnections {
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.NewString(),
		Conn:        conn,
		Send:        make(chan Event, sendBuffer),
		ConnectedAt: time.Now(),
		IP:          getClientIP(r),
		UserAgent:   r.UserAgent(),
		lastPing:    time.Now(),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go h.handleClientWrite(client)
	go h.handleClientRead(client)
}

func (h *Hub) handleClientWrite(client *Client) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteJSON(event); err != nil {
				h.logger.Debug("Failed to write WebSocket message",
					zap.String("client_id", client.ID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleClientRead(client *Client) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		client.Conn.Close()
	}()

	conn := client.Conn
	conn.SetReadLimit(h.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	conn.SetPongHandler(func(string) error {
		client.touch()
		return conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket error",
					zap.String("client_id", client.ID),
					zap.Error(err),
				)
			}
			return
		}
		h.handleClientMessage(client, msg)
	}
}

func (h *Hub) handleClientMessage(client *Client, msg ClientMessage) {
	switch msg.Type {
	case "subscribe":
		client.setSubscription(msg.Data)
		h.logger.Debug("Client subscription updated",
			zap.String("client_id", client.ID),
			zap.Any("subscription", msg.Data),
		)
	case "ping":
		client.touch()
		h.sendTo(client, Event{Type: EventTypePong, Timestamp: time.Now(), Data: map[string]string{"message": "pong"}})
	}
}

// sendTo routes a reply through Run so it never races with dropClient.
func (h *Hub) sendTo(client *Client, event Event) {
	select {
	case h.direct <- directEvent{client: client, event: event}:
	case <-h.done:
	default:
	}
}

// ActiveConnections returns the number of registered clients
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return int(h.stats.ActiveConnections)
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
