// Package stream pushes composed frames to browsers over WebSocket.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/internal/scene"
)

// Message types sent to clients.
const (
	MessageScene = "scene"
	MessageFrame = "frame"
)

const (
	DefaultQueueSize    = 16
	DefaultPingInterval = 20 * time.Second
	DefaultWriteTimeout = 5 * time.Second
	maxInboundBytes     = 1024
)

var errClosed = errors.New("stream: hub closed")

// Message is the envelope of everything written to a client.
type Message struct {
	Type  string      `json:"type"`
	Frame scene.Frame `json:"frame"`
}

// Metrics receives client and drop accounting.
type Metrics interface {
	StreamClientDelta(delta int)
	StreamFrameDropped()
}

type client struct {
	id        string
	conn      *safeConn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) stop() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub tracks connected clients and fans frames out to them. Broadcast never
// blocks on a client: a full queue drops the frame for that client.
type Hub struct {
	scene    *scene.Manager
	log      logging.Logger
	metrics  Metrics
	upgrader websocket.Upgrader

	every        uint64
	queueSize    int
	pingInterval time.Duration
	writeTimeout time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// Option configures a Hub.
type Option func(*Hub)

func WithLogger(log logging.Logger) Option {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithBroadcastEvery sends a frame only on ticks divisible by n.
func WithBroadcastEvery(n uint64) Option {
	return func(h *Hub) {
		if n > 0 {
			h.every = n
		}
	}
}

// WithQueueSize sets the per-client send buffer.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithAllowedOrigins restricts upgrades to the listed origins. An empty
// list or "*" accepts any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			if o == "*" {
				return
			}
			allowed[o] = struct{}{}
		}
		if len(allowed) == 0 {
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	}
}

// NewHub returns a hub streaming frames of m.
func NewHub(m *scene.Manager, opts ...Option) *Hub {
	h := &Hub{
		scene: m,
		log:   logging.Noop(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		every:        1,
		queueSize:    DefaultQueueSize,
		pingInterval: DefaultPingInterval,
		writeTimeout: DefaultWriteTimeout,
		clients:      make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and streams until the client goes away.
// The first message is the full scene; frames follow.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx, h.log)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn(ctx, "websocket upgrade failed", logging.Err(err))
		return
	}

	c := &client{
		id:   logging.NewRequestID(),
		conn: newSafeConn(conn),
		send: make(chan []byte, h.queueSize),
		done: make(chan struct{}),
	}
	log = log.With(logging.String("client_id", c.id))

	if err := h.register(c); err != nil {
		if errors.Is(err, errClosed) {
			_ = c.conn.CloseWithCode(websocket.CloseGoingAway, "shutting down", h.writeTimeout)
		} else {
			log.Error(ctx, "failed to encode scene", logging.Err(err))
			_ = c.conn.Close()
		}
		return
	}
	log.Info(ctx, "stream client connected", logging.String("remote", conn.RemoteAddr().String()))

	go h.writePump(ctx, c, log)
	h.readPump(c)

	h.unregister(c)
	log.Info(ctx, "stream client disconnected")
}

// Broadcast sends the current frame to every client when tick falls on
// the broadcast interval. It returns the number of clients the frame was
// queued for.
func (h *Hub) Broadcast(tick uint64) int {
	if tick%h.every != 0 {
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return 0
	}

	payload, err := encode(MessageFrame, scene.BuildFrame(h.scene, scene.WithoutPolylines(), scene.WithoutStatics()))
	if err != nil {
		h.log.Error(context.Background(), "failed to encode frame", logging.Err(err))
		return 0
	}

	sent := 0
	for c := range h.clients {
		select {
		case c.send <- payload:
			sent++
		default:
			if h.metrics != nil {
				h.metrics.StreamFrameDropped()
			}
			h.log.Debug(context.Background(), "dropped frame for slow client",
				logging.String("client_id", c.id),
				logging.Uint64("tick", tick),
			)
		}
	}
	return sent
}

// Resync sends the full scene, orbit polylines included, to every client.
// It runs when the scene is populated so clients that connected while
// loading receive the orbits. A client with a full queue loses its oldest
// pending frame instead of the scene. It returns the number of clients
// the scene was queued for.
func (h *Hub) Resync() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return 0
	}

	payload, err := encode(MessageScene, scene.BuildFrame(h.scene))
	if err != nil {
		h.log.Error(context.Background(), "failed to encode scene", logging.Err(err))
		return 0
	}

	sent := 0
	for c := range h.clients {
		if h.enqueueScene(c, payload) {
			sent++
		}
	}
	return sent
}

func (h *Hub) enqueueScene(c *client, payload []byte) bool {
	for {
		select {
		case c.send <- payload:
			return true
		case <-c.done:
			return false
		default:
		}
		select {
		case <-c.send:
			if h.metrics != nil {
				h.metrics.StreamFrameDropped()
			}
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.stop()
		_ = c.conn.CloseWithCode(websocket.CloseGoingAway, "shutting down", h.writeTimeout)
	}
}

// register adds c and queues the current scene as its first message. Both
// happen under the hub lock so no frame or resync can overtake the scene.
func (h *Hub) register(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errClosed
	}
	payload, err := encode(MessageScene, scene.BuildFrame(h.scene))
	if err != nil {
		return err
	}
	c.send <- payload
	h.clients[c] = struct{}{}
	if h.metrics != nil {
		h.metrics.StreamClientDelta(1)
	}
	return nil
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		if h.metrics != nil {
			h.metrics.StreamClientDelta(-1)
		}
	}
	h.mu.Unlock()

	c.stop()
	_ = c.conn.Close()
}

// readPump discards inbound messages; it exists to notice disconnects and
// to process control frames.
func (h *Hub) readPump(c *client) {
	c.conn.conn.SetReadLimit(maxInboundBytes)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(ctx context.Context, c *client, log logging.Logger) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, payload, h.writeTimeout); err != nil {
				log.Debug(ctx, "stream write failed", logging.Err(err))
				c.stop()
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil, h.writeTimeout); err != nil {
				c.stop()
				_ = c.conn.Close()
				return
			}
		}
	}
}

func encode(kind string, frame scene.Frame) ([]byte, error) {
	return json.Marshal(Message{Type: kind, Frame: frame})
}
