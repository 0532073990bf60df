package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wricardo/morpion/game/session"
)

const (
	defaultSendBuffer     = 256
	defaultMaxMessageSize = 4096
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
)

// Dispatcher receives decoded frames and disconnects.
type Dispatcher interface {
	Submit(ctx context.Context, in session.Inbound) error
	Disconnect(ctx context.Context, connID string) error
}

// Options tunes the hub. Zero values fall back to defaults.
type Options struct {
	SendBuffer     int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	// PingPeriod must be less than PongWait.
	PingPeriod     time.Duration
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// Client is one WebSocket connection.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	dropOnce sync.Once
}

// Hub maintains the set of active clients and implements session.Sender.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex

	unregister chan *Client

	dispatcher Dispatcher
	upgrader   websocket.Upgrader
	opts       Options
	log        zerolog.Logger

	// ctx outlives any single request; read pumps submit with it
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub. Call SetDispatcher before serving connections.
func NewHub(opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultMaxMessageSize
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = defaultWriteWait
	}
	if opts.PongWait <= 0 {
		opts.PongWait = defaultPongWait
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = (opts.PongWait * 9) / 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[string]*Client),
		unregister: make(chan *Client),
		opts:       opts,
		log:        opts.Logger.With().Str("component", "hub").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// SetDispatcher sets where decoded frames go.
func (h *Hub) SetDispatcher(d Dispatcher) {
	h.dispatcher = d
}

// Run starts the hub's event loop and closes every connection when ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

// ServeWS upgrades the request and starts the client pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.dispatcher == nil {
		http.Error(w, "websocket hub not ready", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.opts.SendBuffer),
	}

	// registered before the pumps start so the first reply can find it
	if !h.registerClient(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Send queues an event for connID without blocking.
func (h *Hub) Send(connID, event string, payload any) bool {
	data, err := encodeEvent(event, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return false
	}
	return h.enqueue(connID, data)
}

// Ack queues an acknowledgement for connID without blocking.
func (h *Hub) Ack(connID string, ackID int64, payload any) bool {
	data, err := encodeAck(ackID, payload)
	if err != nil {
		h.log.Error().Err(err).Int64("ack", ackID).Msg("failed to encode ack")
		return false
	}
	return h.enqueue(connID, data)
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) enqueue(connID string, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[connID]
	if !ok {
		return false
	}
	select {
	case client.send <- data:
		return true
	default:
		// the read pump notices the closed socket and unregisters
		client.drop()
		return false
	}
}

func (h *Hub) registerClient(client *Client) bool {
	h.mu.Lock()
	if h.ctx.Err() != nil {
		h.mu.Unlock()
		return false
	}
	h.clients[client.id] = client
	total := len(h.clients)
	h.mu.Unlock()

	h.log.Debug().Str("conn", client.id).Int("clients", total).Msg("client registered")
	return true
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client.id]
	if ok {
		delete(h.clients, client.id)
		close(client.send)
	}
	remaining := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.log.Debug().Str("conn", client.id).Int("clients", remaining).Msg("client unregistered")
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancel()

	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.send)
	}
	h.log.Info().Msg("hub stopped")
}

// SetAllowedOrigins replaces the origins accepted for new connections.
// Open connections are kept.
func (h *Hub) SetAllowedOrigins(origins []string) {
	h.mu.Lock()
	h.opts.AllowedOrigins = append([]string(nil), origins...)
	h.mu.Unlock()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	h.mu.RLock()
	origins := h.opts.AllowedOrigins
	h.mu.RUnlock()

	if len(origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (c *Client) drop() {
	c.dropOnce.Do(func() {
		c.hub.log.Warn().Str("conn", c.id).Msg("send queue full, dropping connection")
		c.conn.Close()
	})
}

// readPump decodes frames from the connection and hands them to the
// dispatcher. It reports the disconnect when the connection ends.
func (c *Client) readPump() {
	h := c.hub
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
		}
		c.conn.Close()
		if err := h.dispatcher.Disconnect(h.ctx, c.id); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, session.ErrStopped) {
			h.log.Warn().Err(err).Str("conn", c.id).Msg("failed to report disconnect")
		}
	}()

	c.conn.SetReadLimit(h.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug().Err(err).Str("conn", c.id).Msg("websocket read error")
			}
			return
		}

		env, err := DecodeEnvelope(frame)
		if err != nil {
			h.log.Debug().Err(err).Str("conn", c.id).Msg("dropping undecodable frame")
			continue
		}

		err = h.dispatcher.Submit(h.ctx, session.Inbound{
			ConnID: c.id,
			Event:  env.Event,
			Ack:    env.Ack,
			Data:   env.Data,
		})
		if err != nil {
			h.log.Debug().Err(err).Str("conn", c.id).Msg("dispatcher stopped, closing connection")
			return
		}
	}
}

// writePump writes queued frames to the connection, one frame per message.
func (c *Client) writePump() {
	opts := c.hub.opts
	ticker := time.NewTicker(opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
