// Package server owns live connections: it admits players into the session,
// feeds their inputs to the simulation and broadcasts snapshots.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"coinrush/internal/proto"
	"coinrush/internal/sim"
	"coinrush/internal/telemetry"
	"coinrush/logging"
	"coinrush/logging/lifecycle"
)

const (
	connectionsMetricKey      = "hub_connections_total"
	connectionsRefusedKey     = "hub_connections_refused_total"
	broadcastsMetricKey       = "hub_broadcasts_total"
	framesMalformedMetricKey  = "frames_malformed_total"
	framesDecodeFailedKey     = "frames_decode_failed_total"
	framesUnexpectedMetricKey = "frames_unexpected_total"
	sendDroppedMetricKey      = "hub_send_dropped_total"

	DefaultMaxPlayers        = 16
	DefaultBroadcastInterval = 50 * time.Millisecond
	DefaultSendQueue         = 64
)

var (
	// ErrHubFull is returned by Serve when the session has no free slot.
	ErrHubFull = errors.New("server: session is full")
	// ErrHubClosed is returned by Serve after Close.
	ErrHubClosed = errors.New("server: hub closed")
)

// Conn is a bidirectional byte stream carrying protocol frames. net.Conn
// satisfies it; the websocket gateway adapts to it.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

type Config struct {
	MaxPlayers        int
	BroadcastInterval time.Duration
	// Latency delays every inbound input and outbound frame. Zero delivers
	// immediately.
	Latency   time.Duration
	SendQueue int
}

func DefaultConfig() Config {
	return Config{
		MaxPlayers:        DefaultMaxPlayers,
		BroadcastInterval: DefaultBroadcastInterval,
		SendQueue:         DefaultSendQueue,
	}
}

type Deps struct {
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Clock     logging.Clock
}

// Hub is the connection arena. Player ids start at 1 and are never reused.
type Hub struct {
	cfg     Config
	deps    Deps
	session *sim.Session

	mu     sync.Mutex
	conns  map[uint32]*conn
	nextID uint32
	closed bool
}

func NewHub(session *sim.Session, cfg Config, deps Deps) *Hub {
	def := DefaultConfig()
	if cfg.MaxPlayers <= 0 || cfg.MaxPlayers > proto.MaxEntities {
		cfg.MaxPlayers = def.MaxPlayers
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = def.BroadcastInterval
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = def.SendQueue
	}
	if cfg.Latency < 0 {
		cfg.Latency = 0
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock{}
	}
	return &Hub{
		cfg:     cfg,
		deps:    deps,
		session: session,
		conns:   make(map[uint32]*conn),
	}
}

// Session exposes the simulation the hub feeds.
func (h *Hub) Session() *sim.Session {
	return h.session
}

// Run drives the simulation and the broadcast ticker until ctx is
// cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.session.Run(ctx)
	}()

	ticker := time.NewTicker(h.cfg.BroadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Close()
			wg.Wait()
			return
		case <-ticker.C:
			h.Broadcast()
		}
	}
}

// Serve admits transport as a new player and blocks until the connection
// ends. The transport is always closed on return.
func (h *Hub) Serve(ctx context.Context, transport Conn) error {
	c, err := h.admit(ctx, transport)
	if err != nil {
		transport.Close()
		return err
	}
	go c.writeLoop()
	err = c.readLoop(ctx)
	reason := "closed"
	if err != nil {
		reason = err.Error()
	}
	h.disconnect(c, reason)
	return nil
}

func (h *Hub) admit(ctx context.Context, transport Conn) (*conn, error) {
	remote := remoteString(transport)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	if len(h.conns) >= h.cfg.MaxPlayers {
		h.mu.Unlock()
		h.addMetric(connectionsRefusedKey, 1)
		lifecycle.ConnectionRefused(ctx, h.deps.Publisher, lifecycle.ConnectionRefusedPayload{
			Remote:     remote,
			MaxPlayers: h.cfg.MaxPlayers,
		})
		return nil, ErrHubFull
	}
	h.nextID++
	c := newConn(h, h.nextID, transport)
	h.conns[c.id] = c
	h.mu.Unlock()
	c.sendStartGame()

	h.addMetric(connectionsMetricKey, 1)
	if _, err := h.session.AddPlayer(ctx, c.id, remote); err != nil {
		h.mu.Lock()
		delete(h.conns, c.id)
		h.mu.Unlock()
		c.close()
		return nil, err
	}
	return c, nil
}

// Broadcast encodes one snapshot and queues it for every connection.
func (h *Hub) Broadcast() {
	conns := h.connections()
	if len(conns) == 0 {
		return
	}
	frame, err := proto.EncodeGameState(h.session.Snapshot(h.deps.Clock.Now()))
	if err != nil {
		if h.deps.Logger != nil {
			h.deps.Logger.Printf("[hub] encode snapshot: %v", err)
		}
		return
	}
	h.addMetric(broadcastsMetricKey, 1)
	for _, c := range conns {
		c.send(frame)
	}
}

// Close tears down every connection. Serve rejects new connections afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	for _, c := range h.connections() {
		h.disconnect(c, "server shutdown")
	}
}

// ConnectionCount reports the number of admitted connections.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// connections returns the live connections ordered by id.
func (h *Hub) connections() []*conn {
	h.mu.Lock()
	out := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// disconnect removes c from the arena and the session. Safe to call more
// than once.
func (h *Hub) disconnect(c *conn, reason string) {
	if !c.close() {
		return
	}
	h.mu.Lock()
	if current, ok := h.conns[c.id]; ok && current == c {
		delete(h.conns, c.id)
	}
	h.mu.Unlock()
	h.session.RemovePlayer(context.Background(), c.id, reason)
}

// after runs fn once the configured latency has elapsed. Each call owns its
// timer, so queued deliveries never cancel each other.
func (h *Hub) after(fn func()) {
	if h.cfg.Latency <= 0 {
		fn()
		return
	}
	time.AfterFunc(h.cfg.Latency, fn)
}

func (h *Hub) addMetric(key string, delta uint64) {
	if h.deps.Metrics != nil {
		h.deps.Metrics.Add(key, delta)
	}
}

func remoteString(c Conn) string {
	if c == nil {
		return ""
	}
	addr := c.RemoteAddr()
	if addr == nil {
		return ""
	}
	return addr.String()
}
