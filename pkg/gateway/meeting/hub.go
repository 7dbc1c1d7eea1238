// Package meeting implements the gateway side of a live meeting: the
// connection hub, the per-participant session protocol, and the channel
// layer that fans frames out across gateway processes.
package meeting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ChannelLayer carries room broadcasts between gateway processes. The local
// layer short-circuits within one process; the redis layer spans many.
type ChannelLayer interface {
	Publish(ctx context.Context, roomID string, payload []byte) error
	Subscribe(roomID string)
	Unsubscribe(roomID string)
	Close() error
}

// Hub tracks which connections are in which meeting room and fans broadcast
// frames out to them through their send queues.
type Hub struct {
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*Client]bool
	layer ChannelLayer
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		rooms:  make(map[string]map[*Client]bool),
	}
}

// SetLayer installs the channel layer. Must be called before any Join.
func (h *Hub) SetLayer(layer ChannelLayer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.layer = layer
}

// Join adds a connection to a room, subscribing the room on first member.
func (h *Hub) Join(roomID string, c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[roomID] = room
	}
	room[c] = true
	layer := h.layer
	h.mu.Unlock()

	if !ok && layer != nil {
		layer.Subscribe(roomID)
	}
}

// Leave removes a connection; the last member unsubscribes the room.
func (h *Hub) Leave(roomID string, c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	var empty bool
	if ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, roomID)
			empty = true
		}
	}
	layer := h.layer
	h.mu.Unlock()

	if empty && layer != nil {
		layer.Unsubscribe(roomID)
	}
}

// Broadcast sends one frame to every member of a room, on every gateway
// process attached to the channel layer.
func (h *Hub) Broadcast(ctx context.Context, roomID string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal broadcast frame: %w", err)
	}

	h.mu.RLock()
	layer := h.layer
	h.mu.RUnlock()

	if layer == nil {
		h.DeliverLocal(roomID, payload)
		return nil
	}
	return layer.Publish(ctx, roomID, payload)
}

// DeliverLocal enqueues a frame to every local member of a room. Members
// whose send queue is full are disconnected rather than allowed to stall
// the room.
func (h *Hub) DeliverLocal(roomID string, payload []byte) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if !c.enqueue(payload) {
			h.logger.Warn("dropping slow meeting connection", "room", roomID, "participant", c.ParticipantName)
			c.CloseWithStatus(websocket.ClosePolicyViolation, "send queue overflow")
		}
	}
}

// LocalLayer keeps fan-out within one process.
type LocalLayer struct {
	hub *Hub
}

func NewLocalLayer(hub *Hub) *LocalLayer { return &LocalLayer{hub: hub} }

func (l *LocalLayer) Publish(_ context.Context, roomID string, payload []byte) error {
	l.hub.DeliverLocal(roomID, payload)
	return nil
}

func (l *LocalLayer) Subscribe(string)   {}
func (l *LocalLayer) Unsubscribe(string) {}
func (l *LocalLayer) Close() error       { return nil }

// ClientConfig carries the websocket timeouts shared by all connections.
type ClientConfig struct {
	SendQueueSize  int
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

// Client is one websocket connection in one meeting room. Writes go through
// the send queue so the room broadcast never blocks on a slow peer.
type Client struct {
	ParticipantID     string
	ParticipantName   string
	PreferredLanguage string

	conn   *websocket.Conn
	cfg    ClientConfig
	logger *slog.Logger

	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(conn *websocket.Conn, cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
		send:   make(chan []byte, cfg.SendQueueSize),
		done:   make(chan struct{}),
	}
}

// SendJSON queues a frame for this connection only, e.g. a meeting_info
// response or a suggestions result.
func (c *Client) SendJSON(v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("marshal direct frame failed", "error", err)
		return false
	}
	return c.enqueue(payload)
}

func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// CloseWithStatus sends a close frame and tears the connection down.
func (c *Client) CloseWithStatus(code int, reason string) {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(c.cfg.WriteTimeout)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		close(c.done)
		_ = c.conn.Close()
	})
}

// WritePump drains the send queue onto the wire and keeps the connection
// alive with pings. Runs until the connection closes.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.CloseWithStatus(websocket.CloseInternalServerErr, "write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.CloseWithStatus(websocket.CloseInternalServerErr, "ping failed")
				return
			}
		}
	}
}

// ReadPump delivers inbound frames to the handler until the peer goes away.
func (c *Client) ReadPump(handle func(data []byte)) {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.CloseWithStatus(websocket.CloseNormalClosure, "")
			return
		}
		handle(data)
	}
}
