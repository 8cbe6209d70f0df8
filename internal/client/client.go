// Package client keeps a player's view of the session: it predicts the local
// player, reconciles against authoritative snapshots and interpolates
// everyone else.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"coinrush/internal/proto"
	"coinrush/internal/telemetry"
	"coinrush/logging"
	"coinrush/logging/network"
)

const (
	framesMalformedMetricKey = "client_frames_malformed_total"
	decodeFailedMetricKey    = "client_decode_failed_total"
	snapshotsMetricKey       = "client_snapshots_total"
)

// ErrNotConnected is returned when an operation needs a live connection.
var ErrNotConnected = errors.New("client: not connected")

type Config struct {
	// Latency delays every outbound input and inbound frame. Zero delivers
	// immediately.
	Latency            time.Duration
	InterpolationDelay time.Duration
	SnapshotHistory    time.Duration
	DialTimeout        time.Duration
}

func DefaultConfig() Config {
	return Config{
		InterpolationDelay: DefaultInterpolationDelay,
		SnapshotHistory:    DefaultSnapshotHistory,
		DialTimeout:        5 * time.Second,
	}
}

type Deps struct {
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Clock     logging.Clock
}

// Player is the client's estimate of one player. Current is the predicted
// or reconciled position, Target is where smoothing is heading and Render is
// what gets drawn.
type Player struct {
	ID         uint32
	Current    proto.Vec2
	Target     proto.Vec2
	Render     proto.Vec2
	Score      uint32
	LastUpdate time.Time
}

// PendingInput is an input sent to the server but not yet acknowledged.
type PendingInput struct {
	Seq       uint32
	DX, DY    float32
	Timestamp uint32
}

// View is a detached copy of everything the render side needs.
type View struct {
	Connected bool
	MyID      uint32
	Players   []Player
	Coins     []proto.CoinState
	RTT       time.Duration
	Pending   int
}

type Client struct {
	cfg  Config
	deps Deps

	writeMu sync.Mutex

	mu          sync.Mutex
	conn        io.ReadWriteCloser
	connected   bool
	myID        uint32
	players     map[uint32]*Player
	coins       map[uint32]proto.CoinState
	pending     []PendingInput
	snapshots   []Snapshot
	nextSeq     uint32
	rttMillis   float64
	hasRTT      bool
	lastRTTSeq  uint32
	readerDone  chan struct{}
	cancelReads context.CancelFunc
}

func New(cfg Config, deps Deps) *Client {
	def := DefaultConfig()
	if cfg.InterpolationDelay <= 0 {
		cfg.InterpolationDelay = def.InterpolationDelay
	}
	if cfg.SnapshotHistory <= 0 {
		cfg.SnapshotHistory = def.SnapshotHistory
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.Latency < 0 {
		cfg.Latency = 0
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.WrapLogger(log.New(io.Discard, "", 0))
	}
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock{}
	}
	return &Client{
		cfg:     cfg,
		deps:    deps,
		players: make(map[uint32]*Player),
		coins:   make(map[uint32]proto.CoinState),
	}
}

// Connect dials host:port and starts reading. Resolution and dial failures
// are returned to the caller.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("connect %s:%d: %w", host, port, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	return c.Attach(ctx, conn)
}

// Attach adopts an already established stream, announces the client and
// starts the reader goroutine.
func (c *Client) Attach(ctx context.Context, conn io.ReadWriteCloser) error {
	readCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		cancel()
		return errors.New("client: already connected")
	}
	c.conn = conn
	c.connected = true
	c.readerDone = make(chan struct{})
	c.cancelReads = cancel
	done := c.readerDone
	c.mu.Unlock()

	if err := c.writeNow(conn, proto.EncodeConnect()); err != nil {
		c.markDisconnected(conn, err)
		cancel()
		close(done)
		return fmt.Errorf("send connect: %w", err)
	}
	go c.readLoop(readCtx, conn, done)
	return nil
}

// Close announces the disconnect on a best-effort basis and closes the
// stream. It waits for the reader goroutine to finish.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	wasConnected := c.connected
	done := c.readerDone
	cancel := c.cancelReads
	c.connected = false
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	if wasConnected {
		_ = c.writeNow(conn, proto.EncodeDisconnect())
	}
	err := conn.Close()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return err
}

func (c *Client) readLoop(ctx context.Context, conn io.ReadWriteCloser, done chan struct{}) {
	defer close(done)
	err := proto.ReadFrames(ctx, conn, func(frame []byte) {
		c.deliver(func() { c.handleFrame(ctx, frame) })
	}, func(discarded int) {
		c.addMetric(framesMalformedMetricKey, uint64(discarded))
		network.MalformedFrame(ctx, c.deps.Publisher, logging.EntityRef{Kind: logging.EntityKindConn}, network.MalformedFramePayload{
			Discarded: discarded,
		})
	})
	if err == nil {
		err = io.EOF
	}
	c.markDisconnected(conn, err)
}

// deliver runs fn after the configured latency, each on its own timer.
func (c *Client) deliver(fn func()) {
	if c.cfg.Latency <= 0 {
		fn()
		return
	}
	time.AfterFunc(c.cfg.Latency, fn)
}

func (c *Client) handleFrame(ctx context.Context, frame []byte) {
	h, err := proto.ParseHeader(frame)
	if err != nil {
		return
	}
	switch h.Type {
	case proto.ServerStartGame:
		msg, err := proto.DecodeStartGame(frame)
		if err != nil {
			c.decodeFailed(ctx, h, len(frame), err)
			return
		}
		c.mu.Lock()
		c.myID = msg.PlayerID
		c.mu.Unlock()
	case proto.ServerGameState:
		gs, err := proto.DecodeGameState(frame)
		if err != nil {
			c.decodeFailed(ctx, h, len(frame), err)
			return
		}
		c.addMetric(snapshotsMetricKey, 1)
		c.ApplyGameState(gs)
	}
}

func (c *Client) decodeFailed(ctx context.Context, h proto.Header, length int, err error) {
	c.addMetric(decodeFailedMetricKey, 1)
	network.DecodeFailed(ctx, c.deps.Publisher, logging.EntityRef{Kind: logging.EntityKindConn}, network.DecodeFailedPayload{
		MessageType: uint8(h.Type),
		Length:      length,
		Error:       err.Error(),
	})
}

// ApplyGameState folds an authoritative snapshot into the local view:
// players missing from it are dropped, coins are replaced, the snapshot is
// buffered and the local player is reconciled.
func (c *Client) ApplyGameState(gs proto.GameState) {
	now := c.deps.Clock.Now()
	nowMillis := uint32(now.UnixMilli())

	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[uint32]*Player, len(gs.Players))
	for _, ps := range gs.Players {
		p, ok := c.players[ps.ID]
		if !ok {
			p = &Player{ID: ps.ID, Current: ps.Position, Target: ps.Position, Render: ps.Position}
		} else if ps.ID == c.myID {
			c.reconcileLocked(p, ps, nowMillis)
		} else if distance(p.Target, ps.Position) >= RemoteDeadzone {
			p.Target = ps.Position
		}
		p.Score = ps.Score
		p.LastUpdate = now
		next[ps.ID] = p
	}
	c.players = next

	c.coins = make(map[uint32]proto.CoinState, len(gs.Coins))
	for _, coin := range gs.Coins {
		c.coins[coin.ID] = coin
	}
	c.insertSnapshotLocked(newSnapshot(gs))
}

func (c *Client) markDisconnected(conn io.ReadWriteCloser, err error) {
	c.mu.Lock()
	if c.conn != conn || !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.mu.Unlock()
	conn.Close()
	if err != nil && !errors.Is(err, io.EOF) {
		c.deps.Logger.Printf("[client] disconnected: %v", err)
	} else {
		c.deps.Logger.Printf("[client] server closed the connection")
	}
}

// send writes frame after the configured latency. Write failures mark the
// client disconnected.
func (c *Client) send(frame []byte) {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()
	if !connected || conn == nil {
		return
	}
	c.deliver(func() {
		if err := c.writeNow(conn, frame); err != nil {
			c.markDisconnected(conn, fmt.Errorf("write: %w", err))
		}
	})
}

func (c *Client) writeNow(conn io.Writer, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := conn.Write(frame)
	return err
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// MyID returns the id assigned by the server, or 0 before assignment.
func (c *Client) MyID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.myID
}

// RTT returns the smoothed round trip estimate and whether any sample exists.
func (c *Client) RTT() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Duration(c.rttMillis * float64(time.Millisecond)), c.hasRTT
}

// Players returns copies of every known player ordered by id.
func (c *Client) Players() []Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playersLocked()
}

func (c *Client) playersLocked() []Player {
	out := make([]Player, 0, len(c.players))
	for _, p := range c.players {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Coins returns copies of the active coins ordered by id.
func (c *Client) Coins() []proto.CoinState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coinsLocked()
}

func (c *Client) coinsLocked() []proto.CoinState {
	out := make([]proto.CoinState, 0, len(c.coins))
	for _, coin := range c.coins {
		out = append(out, coin)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Pending returns a copy of the unacknowledged inputs in ascending seq order.
func (c *Client) Pending() []PendingInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PendingInput, len(c.pending))
	copy(out, c.pending)
	return out
}

func (c *Client) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		Connected: c.connected,
		MyID:      c.myID,
		Players:   c.playersLocked(),
		Coins:     c.coinsLocked(),
		RTT:       time.Duration(c.rttMillis * float64(time.Millisecond)),
		Pending:   len(c.pending),
	}
}

func (c *Client) addMetric(key string, delta uint64) {
	if c.deps.Metrics != nil {
		c.deps.Metrics.Add(key, delta)
	}
}
