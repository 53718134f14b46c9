// Package gateway delivers bot notifications to connected WebSocket
// clients. A client subscribes to one or more channel ids and optionally a
// user id for direct messages.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/atmx/stocker/internal/metrics"
	"github.com/atmx/stocker/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Message types.
const (
	TypeChannel = "channel_message"
	TypeDirect  = "direct_message"
)

// Message is the JSON frame sent to clients.
type Message struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ChannelID int64     `json:"channel_id,omitempty,string"`
	UserID    int64     `json:"user_id,omitempty,string"`
	Content   string    `json:"content"`
	SentAt    time.Time `json:"sent_at"`
}

type client struct {
	conn     *websocket.Conn
	channels map[int64]bool
	userID   int64

	writeMu sync.Mutex
}

func (c *client) write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub tracks subscribed clients. It implements the alert sink and the
// command notifier.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	log     *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     log.With("component", "gateway"),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// HandleWS handles GET /api/v1/gateway?channel_id=..&user_id=..
// channel_id may repeat. At least one of channel_id or user_id is required.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	channels := make(map[int64]bool)
	for _, raw := range q["channel_id"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid channel_id", http.StatusBadRequest)
			return
		}
		channels[id] = true
	}
	var userID int64
	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid user_id", http.StatusBadRequest)
			return
		}
		userID = id
	}
	if len(channels) == 0 && userID == 0 {
		http.Error(w, "channel_id or user_id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("ws upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, channels: channels, userID: userID}
	h.register(c)

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer h.unregister(c)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for range ticker.C {
			if !h.connected(c) {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.GatewayClients.Set(float64(total))
	h.log.Info("gateway client connected", "user", c.userID, "channels", len(c.channels), "total", total)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.conn.Close()
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.GatewayClients.Set(float64(total))
}

func (h *Hub) connected(c *client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[c]
	return ok
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SendChannel delivers text to every client subscribed to channelID.
func (h *Hub) SendChannel(ctx context.Context, channelID int64, text string) error {
	msg := Message{Type: TypeChannel, ChannelID: channelID, Content: text}
	return h.deliver(ctx, msg, func(c *client) bool { return c.channels[channelID] })
}

// SendDirect delivers text to every client connected as userID.
func (h *Hub) SendDirect(ctx context.Context, userID int64, text string) error {
	msg := Message{Type: TypeDirect, UserID: userID, Content: text}
	return h.deliver(ctx, msg, func(c *client) bool { return c.userID == userID })
}

// deliver writes msg to matching clients. It fails when nobody matches or
// every write fails; clients whose write failed are dropped.
func (h *Hub) deliver(ctx context.Context, msg Message, match func(*client) bool) error {
	msg.ID = uuid.New().String()
	msg.SentAt = time.Now().UTC()
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encode message: %w", model.ErrDelivery, err)
	}

	h.mu.RLock()
	var targets []*client
	for c := range h.clients {
		if match(c) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return fmt.Errorf("%w: no subscriber for %s", model.ErrDelivery, describe(msg))
	}

	delivered := 0
	var lastErr error
	for _, c := range targets {
		if err := c.write(ctx, data); err != nil {
			lastErr = err
			h.log.Warn("gateway write failed", "msg_id", msg.ID, "err", err)
			h.unregister(c)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("%w: %s: %w", model.ErrDelivery, describe(msg), lastErr)
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	for c := range h.clients {
		c.conn.Close()
		delete(h.clients, c)
	}
	h.mu.Unlock()
	metrics.GatewayClients.Set(0)
}

func describe(msg Message) string {
	if msg.Type == TypeDirect {
		return fmt.Sprintf("user %d", msg.UserID)
	}
	return fmt.Sprintf("channel %d", msg.ChannelID)
}
