package sim

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"coinrush/internal/proto"
	"coinrush/internal/telemetry"
	"coinrush/logging"
	"coinrush/logging/lifecycle"
	"coinrush/logging/scoring"
	"coinrush/logging/simulation"
)

const (
	inputsDroppedIdleMetricKey    = "sim_inputs_dropped_idle_total"
	inputsDroppedUnknownMetricKey = "sim_inputs_dropped_unknown_total"
	coinsCollectedMetricKey       = "sim_coins_collected_total"
	tickOverrunMetricKey          = "sim_tick_overrun_total"
)

var (
	// ErrPlayerExists is returned when a player id is already in the session.
	ErrPlayerExists = errors.New("sim: player already in session")
	// ErrInvalidPlayerID is returned for the reserved id 0.
	ErrInvalidPlayerID = errors.New("sim: player id 0 is reserved")
)

// Config tunes the session timing and coin population.
type Config struct {
	TickInterval    time.Duration
	CoinInterval    time.Duration
	StartThreshold  int
	InitialCoins    int
	MinCoins        int
	MaxCoins        int
	CommandCapacity int
}

func DefaultConfig() Config {
	return Config{
		TickInterval:    DefaultTickInterval,
		CoinInterval:    DefaultCoinInterval,
		StartThreshold:  DefaultStartThreshold,
		InitialCoins:    DefaultInitialCoins,
		MinCoins:        DefaultMinCoins,
		MaxCoins:        DefaultMaxCoins,
		CommandCapacity: 1024,
	}
}

// Deps bundles the session's collaborators. Zero values are replaced with
// no-op or wall-clock implementations.
type Deps struct {
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Clock     logging.Clock
	Rand      *rand.Rand
}

type player struct {
	state       proto.PlayerState
	lastInputAt time.Time
	hasInput    bool
}

// Session is the authoritative game state. All methods are safe for
// concurrent use.
type Session struct {
	cfg  Config
	deps Deps

	inputs *CommandBuffer

	mu         sync.Mutex
	players    map[uint32]*player
	coins      []proto.CoinState
	nextCoinID uint32
	running    bool
	tick       uint64
	started    chan struct{}
}

func NewSession(cfg Config, deps Deps) *Session {
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.CoinInterval <= 0 {
		cfg.CoinInterval = def.CoinInterval
	}
	if cfg.StartThreshold <= 0 {
		cfg.StartThreshold = def.StartThreshold
	}
	if cfg.MaxCoins <= 0 {
		cfg.MaxCoins = def.MaxCoins
	}
	if cfg.CommandCapacity <= 0 {
		cfg.CommandCapacity = def.CommandCapacity
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock{}
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Session{
		cfg:        cfg,
		deps:       deps,
		inputs:     NewCommandBuffer(cfg.CommandCapacity, deps.Metrics),
		players:    make(map[uint32]*player),
		nextCoinID: 1,
		started:    make(chan struct{}),
	}
}

// AddPlayer places a new player at the spawn point. started reports whether
// this join moved the session from idle to running.
func (s *Session) AddPlayer(ctx context.Context, id uint32, remote string) (started bool, err error) {
	if id == 0 {
		return false, ErrInvalidPlayerID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[id]; ok {
		return false, ErrPlayerExists
	}
	s.players[id] = &player{state: proto.PlayerState{
		ID:       id,
		Position: proto.Vec2{X: SpawnX, Y: SpawnY},
	}}
	lifecycle.PlayerJoined(ctx, s.deps.Publisher, s.tick, logging.PlayerRef(id), lifecycle.PlayerJoinedPayload{
		SpawnX:  SpawnX,
		SpawnY:  SpawnY,
		Players: len(s.players),
		Remote:  remote,
	})
	if !s.running && len(s.players) >= s.cfg.StartThreshold {
		s.startLocked(ctx)
		return true, nil
	}
	return false, nil
}

func (s *Session) startLocked(ctx context.Context) {
	s.running = true
	for i := 0; i < s.cfg.InitialCoins; i++ {
		s.spawnCoinLocked(ctx)
	}
	close(s.started)
	simulation.SessionStarted(ctx, s.deps.Publisher, s.tick, simulation.SessionStartedPayload{
		Players:      len(s.players),
		Coins:        len(s.coins),
		TickMillis:   s.cfg.TickInterval.Milliseconds(),
		SpawnSeconds: int64(s.cfg.CoinInterval / time.Second),
	})
}

// RemovePlayer deletes the player and reports whether it existed.
func (s *Session) RemovePlayer(ctx context.Context, id uint32, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return false
	}
	delete(s.players, id)
	lifecycle.PlayerDisconnected(ctx, s.deps.Publisher, s.tick, logging.PlayerRef(id), lifecycle.PlayerDisconnectedPayload{
		Reason:  reason,
		Score:   p.state.Score,
		Players: len(s.players),
	})
	return true
}

// EnqueueInput stages an input for the next tick. Inputs are dropped while
// the session is idle or when the staging ring is full.
func (s *Session) EnqueueInput(id uint32, in proto.ClientInput, receivedAt time.Time) bool {
	if !s.Running() {
		s.addMetric(inputsDroppedIdleMetricKey, 1)
		return false
	}
	return s.inputs.Push(InputCommand{PlayerID: id, Input: in, ReceivedAt: receivedAt})
}

// Step applies every staged input in arrival order.
func (s *Session) Step(ctx context.Context) {
	cmds := s.inputs.Drain()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick++
	if !s.running {
		return
	}
	for _, cmd := range cmds {
		s.applyInputLocked(ctx, cmd)
	}
}

func (s *Session) applyInputLocked(ctx context.Context, cmd InputCommand) {
	p, ok := s.players[cmd.PlayerID]
	if !ok {
		s.addMetric(inputsDroppedUnknownMetricKey, 1)
		return
	}
	gap := cmd.ReceivedAt.Sub(p.lastInputAt).Seconds()
	dt := InputElapsed(gap, !p.hasInput)
	p.lastInputAt = cmd.ReceivedAt
	p.hasInput = true

	if dir, ok := Normalize(cmd.Input.DX, cmd.Input.DY, ServerInputDeadzone); ok {
		p.state.Position = Integrate(p.state.Position, dir, dt)
	}

	kept := s.coins[:0]
	for _, coin := range s.coins {
		if Touching(p.state.Position, coin.Position) {
			p.state.Score++
			s.addMetric(coinsCollectedMetricKey, 1)
			scoring.CoinCollected(ctx, s.deps.Publisher, s.tick, logging.PlayerRef(p.state.ID), logging.CoinRef(coin.ID), scoring.CoinCollectedPayload{
				Score: p.state.Score,
			})
			continue
		}
		kept = append(kept, coin)
	}
	s.coins = kept

	if cmd.Input.Seq >= p.state.LastProcessedInputSeq {
		p.state.LastProcessedInputSeq = cmd.Input.Seq
		p.state.LastProcessedInputTS = cmd.Input.Timestamp
	}
}

// SpawnCoin places one coin at a random position if the session is below
// its coin cap.
func (s *Session) SpawnCoin(ctx context.Context) (proto.CoinState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawnCoinLocked(ctx)
}

func (s *Session) spawnCoinLocked(ctx context.Context) (proto.CoinState, bool) {
	if len(s.coins) >= s.cfg.MaxCoins {
		return proto.CoinState{}, false
	}
	coin := proto.CoinState{
		ID: s.nextCoinID,
		Position: proto.Vec2{
			X: CoinRadius + s.deps.Rand.Float32()*(MapWidth-2*CoinRadius),
			Y: CoinRadius + s.deps.Rand.Float32()*(MapHeight-2*CoinRadius),
		},
	}
	s.nextCoinID++
	s.coins = append(s.coins, coin)
	scoring.CoinSpawned(ctx, s.deps.Publisher, s.tick, logging.CoinRef(coin.ID), scoring.CoinSpawnedPayload{
		X:      coin.Position.X,
		Y:      coin.Position.Y,
		Active: len(s.coins),
	})
	return coin, true
}

// spawnWave runs once per coin interval: one new coin, then top up to the
// configured minimum.
func (s *Session) spawnWave(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.spawnCoinLocked(ctx)
	for len(s.coins) < s.cfg.MinCoins {
		if _, ok := s.spawnCoinLocked(ctx); !ok {
			return
		}
	}
}

// Snapshot copies the current state, players and coins ordered by id.
func (s *Session) Snapshot(now time.Time) proto.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs := proto.GameState{
		Timestamp: uint32(now.UnixMilli()),
		Players:   make([]proto.PlayerState, 0, len(s.players)),
		Coins:     make([]proto.CoinState, len(s.coins)),
	}
	for _, p := range s.players {
		gs.Players = append(gs.Players, p.state)
	}
	sort.Slice(gs.Players, func(i, j int) bool { return gs.Players[i].ID < gs.Players[j].ID })
	copy(gs.Coins, s.coins)
	return gs
}

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Session) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

func (s *Session) CoinCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.coins)
}

func (s *Session) Tick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Player returns a copy of the player's state.
func (s *Session) Player(id uint32) (proto.PlayerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return proto.PlayerState{}, false
	}
	return p.state, true
}

// Started is closed when the session begins running.
func (s *Session) Started() <-chan struct{} {
	return s.started
}

func (s *Session) addMetric(key string, delta uint64) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.Add(key, delta)
	}
}
