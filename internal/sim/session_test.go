package sim

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"coinrush/internal/proto"
	"coinrush/internal/telemetry"
	"coinrush/logging/lifecycle"
	"coinrush/logging/scoring"
	"coinrush/logging/simulation"
	"coinrush/logging/sinks"
)

func newTestSession(t *testing.T) (*Session, *sinks.Memory, *telemetry.Counters) {
	t.Helper()
	mem := sinks.NewMemory()
	counters := telemetry.NewCounters()
	s := NewSession(DefaultConfig(), Deps{
		Publisher: mem,
		Metrics:   counters,
		Rand:      rand.New(rand.NewSource(1)),
	})
	return s, mem, counters
}

func startSession(t *testing.T, s *Session, ids ...uint32) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		if _, err := s.AddPlayer(ctx, id, ""); err != nil {
			t.Fatalf("add player %d: %v", id, err)
		}
	}
	if !s.Running() {
		t.Fatalf("expected session to be running after %d joins", len(ids))
	}
}

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-3
}

func TestSessionStartsAtThreshold(t *testing.T) {
	s, mem, _ := newTestSession(t)
	ctx := context.Background()
	started, err := s.AddPlayer(ctx, 1, "a")
	if err != nil || started {
		t.Fatalf("first join: started=%v err=%v", started, err)
	}
	if s.Running() {
		t.Fatalf("session running with one player")
	}
	select {
	case <-s.Started():
		t.Fatalf("started channel closed early")
	default:
	}
	started, err = s.AddPlayer(ctx, 2, "b")
	if err != nil || !started {
		t.Fatalf("second join: started=%v err=%v", started, err)
	}
	if got := s.CoinCount(); got != DefaultInitialCoins {
		t.Fatalf("expected %d initial coins, got %d", DefaultInitialCoins, got)
	}
	select {
	case <-s.Started():
	default:
		t.Fatalf("started channel not closed")
	}
	if len(mem.OfType(simulation.EventSessionStarted)) != 1 {
		t.Fatalf("expected one session started event")
	}
	if len(mem.OfType(lifecycle.EventPlayerJoined)) != 2 {
		t.Fatalf("expected two join events")
	}
	if started, _ := s.AddPlayer(ctx, 3, "c"); started {
		t.Fatalf("third join should not restart the session")
	}
}

func TestAddPlayerRejectsDuplicatesAndZero(t *testing.T) {
	s, _, _ := newTestSession(t)
	ctx := context.Background()
	if _, err := s.AddPlayer(ctx, 0, ""); err != ErrInvalidPlayerID {
		t.Fatalf("expected ErrInvalidPlayerID, got %v", err)
	}
	if _, err := s.AddPlayer(ctx, 4, ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.AddPlayer(ctx, 4, ""); err != ErrPlayerExists {
		t.Fatalf("expected ErrPlayerExists, got %v", err)
	}
	p, ok := s.Player(4)
	if !ok || p.Position != (proto.Vec2{X: SpawnX, Y: SpawnY}) || p.Score != 0 {
		t.Fatalf("unexpected spawn state %+v", p)
	}
}

func TestInputsDroppedWhileIdle(t *testing.T) {
	s, _, counters := newTestSession(t)
	if _, err := s.AddPlayer(context.Background(), 1, ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	if s.EnqueueInput(1, proto.ClientInput{DX: 1, Seq: 1}, time.Now()) {
		t.Fatalf("expected idle input to be dropped")
	}
	s.Step(context.Background())
	p, _ := s.Player(1)
	if p.Position.X != SpawnX || p.LastProcessedInputSeq != 0 {
		t.Fatalf("idle input moved the player: %+v", p)
	}
	if counters.Load(inputsDroppedIdleMetricKey) != 1 {
		t.Fatalf("expected idle drop to be counted")
	}
}

func TestInputElapsedRules(t *testing.T) {
	s, _, _ := newTestSession(t)
	startSession(t, s, 1, 2)
	s.coins = nil
	ctx := context.Background()
	base := time.Unix(1000, 0)

	steps := []struct {
		name  string
		at    time.Time
		wantX float32
	}{
		{"first input uses fallback", base, SpawnX + PlayerSpeed*FallbackInputElapsed},
		{"measured gap", base.Add(50 * time.Millisecond), SpawnX + PlayerSpeed*(FallbackInputElapsed+0.05)},
		{"long gap uses fallback", base.Add(650 * time.Millisecond), SpawnX + PlayerSpeed*(2*FallbackInputElapsed+0.05)},
		{"out of order gap moves nothing", base.Add(600 * time.Millisecond), SpawnX + PlayerSpeed*(2*FallbackInputElapsed+0.05)},
	}
	for i, step := range steps {
		if !s.EnqueueInput(1, proto.ClientInput{DX: 1, Seq: uint32(i + 1), Timestamp: uint32(100 + i)}, step.at) {
			t.Fatalf("%s: enqueue failed", step.name)
		}
		s.Step(ctx)
		p, _ := s.Player(1)
		if !near(p.Position.X, step.wantX) || p.Position.Y != SpawnY {
			t.Fatalf("%s: position %+v, want x=%v", step.name, p.Position, step.wantX)
		}
		if p.LastProcessedInputSeq != uint32(i+1) || p.LastProcessedInputTS != uint32(100+i) {
			t.Fatalf("%s: ack seq=%d ts=%d", step.name, p.LastProcessedInputSeq, p.LastProcessedInputTS)
		}
	}
}

func TestDiagonalInputIsNormalized(t *testing.T) {
	s, _, _ := newTestSession(t)
	startSession(t, s, 1, 2)
	s.coins = nil
	s.EnqueueInput(1, proto.ClientInput{DX: 3, DY: 4, Seq: 1}, time.Now())
	s.Step(context.Background())
	p, _ := s.Player(1)
	dist := PlayerSpeed * FallbackInputElapsed
	if !near(p.Position.X, SpawnX+0.6*dist) || !near(p.Position.Y, SpawnY+0.8*dist) {
		t.Fatalf("unexpected diagonal position %+v", p.Position)
	}
}

func TestTinyInputIsIgnoredButAcknowledged(t *testing.T) {
	s, _, _ := newTestSession(t)
	startSession(t, s, 1, 2)
	s.coins = nil
	s.EnqueueInput(1, proto.ClientInput{DX: 0.005, Seq: 7}, time.Now())
	s.Step(context.Background())
	p, _ := s.Player(1)
	if p.Position.X != SpawnX || p.LastProcessedInputSeq != 7 {
		t.Fatalf("unexpected state %+v", p)
	}
}

func TestPlayerStaysInsideMap(t *testing.T) {
	s, _, _ := newTestSession(t)
	startSession(t, s, 1, 2)
	s.coins = nil
	ctx := context.Background()
	at := time.Unix(0, 0)
	for i := 1; i <= 200; i++ {
		at = at.Add(90 * time.Millisecond)
		s.EnqueueInput(1, proto.ClientInput{DX: 1, DY: -1, Seq: uint32(i)}, at)
		s.Step(ctx)
		p, _ := s.Player(1)
		if p.Position.X < PlayerRadius || p.Position.X > MapWidth-PlayerRadius ||
			p.Position.Y < PlayerRadius || p.Position.Y > MapHeight-PlayerRadius {
			t.Fatalf("player left the map at step %d: %+v", i, p.Position)
		}
	}
	p, _ := s.Player(1)
	if p.Position.X != MapWidth-PlayerRadius || p.Position.Y != PlayerRadius {
		t.Fatalf("expected player pinned to the corner, got %+v", p.Position)
	}
}

func TestCoinCollectedExactlyOnce(t *testing.T) {
	s, mem, counters := newTestSession(t)
	startSession(t, s, 1, 2)
	s.coins = []proto.CoinState{{ID: 90, Position: proto.Vec2{X: SpawnX, Y: SpawnY + 40}}}
	now := time.Now()
	s.EnqueueInput(1, proto.ClientInput{Seq: 1}, now)
	s.EnqueueInput(2, proto.ClientInput{Seq: 1}, now)
	s.Step(context.Background())

	p1, _ := s.Player(1)
	p2, _ := s.Player(2)
	if p1.Score+p2.Score != 1 {
		t.Fatalf("expected exactly one point awarded, got %d and %d", p1.Score, p2.Score)
	}
	if p1.Score != 1 {
		t.Fatalf("expected the first input in arrival order to win the coin")
	}
	if s.CoinCount() != 0 {
		t.Fatalf("coin still present")
	}
	if len(mem.OfType(scoring.EventCoinCollected)) != 1 || counters.Load(coinsCollectedMetricKey) != 1 {
		t.Fatalf("expected one collection event and metric")
	}
}

func TestMultipleCoinsCollectedInOneStep(t *testing.T) {
	s, _, _ := newTestSession(t)
	startSession(t, s, 1, 2)
	s.coins = []proto.CoinState{
		{ID: 1, Position: proto.Vec2{X: SpawnX + 10, Y: SpawnY}},
		{ID: 2, Position: proto.Vec2{X: SpawnX - 10, Y: SpawnY}},
		{ID: 3, Position: proto.Vec2{X: SpawnX + 45, Y: SpawnY}},
		{ID: 4, Position: proto.Vec2{X: 50, Y: 50}},
	}
	s.EnqueueInput(1, proto.ClientInput{Seq: 1}, time.Now())
	s.Step(context.Background())
	p, _ := s.Player(1)
	if p.Score != 2 {
		t.Fatalf("expected score 2, got %d", p.Score)
	}
	gs := s.Snapshot(time.Now())
	if len(gs.Coins) != 2 || gs.Coins[0].ID != 3 || gs.Coins[1].ID != 4 {
		t.Fatalf("unexpected remaining coins %+v", gs.Coins)
	}
}

func TestSpawnWaveTopsUpAndIdsIncrease(t *testing.T) {
	s, mem, _ := newTestSession(t)
	startSession(t, s, 1, 2)
	ctx := context.Background()
	s.spawnWave(ctx)
	if s.CoinCount() != 4 {
		t.Fatalf("expected 4 coins, got %d", s.CoinCount())
	}
	s.mu.Lock()
	s.coins = nil
	s.mu.Unlock()
	s.spawnWave(ctx)
	gs := s.Snapshot(time.Now())
	if len(gs.Coins) != DefaultMinCoins {
		t.Fatalf("expected top up to %d coins, got %d", DefaultMinCoins, len(gs.Coins))
	}
	last := uint32(4)
	for _, c := range gs.Coins {
		if c.ID <= last {
			t.Fatalf("coin id %d not above %d", c.ID, last)
		}
		last = c.ID
		if c.Position.X < CoinRadius || c.Position.X > MapWidth-CoinRadius ||
			c.Position.Y < CoinRadius || c.Position.Y > MapHeight-CoinRadius {
			t.Fatalf("coin outside spawn area: %+v", c)
		}
	}
	if got := len(mem.OfType(scoring.EventCoinSpawned)); got != 3+1+3 {
		t.Fatalf("expected 7 spawn events, got %d", got)
	}
}

func TestSpawnRespectsMaximum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCoins = 4
	s := NewSession(cfg, Deps{Rand: rand.New(rand.NewSource(2))})
	startSession(t, s, 1, 2)
	ctx := context.Background()
	if _, ok := s.SpawnCoin(ctx); !ok {
		t.Fatalf("expected fourth coin to spawn")
	}
	if _, ok := s.SpawnCoin(ctx); ok {
		t.Fatalf("expected spawn to stop at the cap")
	}
	s.spawnWave(ctx)
	if s.CoinCount() != 4 {
		t.Fatalf("expected cap of 4, got %d", s.CoinCount())
	}
}

func TestSnapshotSortedAndDetached(t *testing.T) {
	s, _, _ := newTestSession(t)
	startSession(t, s, 9, 3, 5)
	now := time.UnixMilli(123456789)
	gs := s.Snapshot(now)
	if gs.Timestamp != uint32(now.UnixMilli()) {
		t.Fatalf("timestamp %d", gs.Timestamp)
	}
	if len(gs.Players) != 3 || gs.Players[0].ID != 3 || gs.Players[1].ID != 5 || gs.Players[2].ID != 9 {
		t.Fatalf("players not sorted: %+v", gs.Players)
	}
	gs.Players[0].Score = 99
	gs.Coins[0].ID = 99
	again := s.Snapshot(now)
	if again.Players[0].Score != 0 || again.Coins[0].ID == 99 {
		t.Fatalf("snapshot shares memory with the session")
	}
}

func TestRemovePlayer(t *testing.T) {
	s, mem, _ := newTestSession(t)
	startSession(t, s, 1, 2)
	ctx := context.Background()
	if !s.RemovePlayer(ctx, 1, "eof") {
		t.Fatalf("expected removal")
	}
	if s.RemovePlayer(ctx, 1, "eof") {
		t.Fatalf("second removal should report false")
	}
	if s.PlayerCount() != 1 || !s.Running() {
		t.Fatalf("unexpected state after removal")
	}
	s.EnqueueInput(1, proto.ClientInput{DX: 1, Seq: 1}, time.Now())
	s.Step(ctx)
	if len(mem.OfType(lifecycle.EventPlayerDisconnected)) != 1 {
		t.Fatalf("expected one disconnect event")
	}
}

func TestRunSpawnsOnInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TickInterval = time.Millisecond
	cfg.CoinInterval = 5 * time.Millisecond
	s := NewSession(cfg, Deps{Rand: rand.New(rand.NewSource(3))})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	startSession(t, s, 1, 2)
	deadline := time.After(2 * time.Second)
	for s.CoinCount() <= DefaultInitialCoins {
		select {
		case <-deadline:
			t.Fatalf("spawner never added a coin")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}
