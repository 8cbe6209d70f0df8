package client

import (
	"math"
	"time"

	"coinrush/internal/proto"
	"coinrush/internal/sim"
)

const (
	DefaultInterpolationDelay = 200 * time.Millisecond
	DefaultSnapshotHistory    = time.Second

	// RemoteDeadzone is the smallest correction applied to a remote player.
	RemoteDeadzone float32 = 0.5

	LocalSmoothingRate  = 15.0
	RemoteSmoothingRate = 8.0

	// SmoothingSnapDistance is the gap beyond which smoothing jumps straight
	// to the target.
	SmoothingSnapDistance float32 = 200
)

// SnapshotPlayer is one player as recorded in a buffered snapshot.
type SnapshotPlayer struct {
	Position proto.Vec2
	Score    uint32
	LastSeq  uint32
}

// Snapshot is a received game state kept for interpolation.
type Snapshot struct {
	Timestamp uint32
	Players   map[uint32]SnapshotPlayer
}

func newSnapshot(gs proto.GameState) Snapshot {
	snap := Snapshot{
		Timestamp: gs.Timestamp,
		Players:   make(map[uint32]SnapshotPlayer, len(gs.Players)),
	}
	for _, ps := range gs.Players {
		snap.Players[ps.ID] = SnapshotPlayer{
			Position: ps.Position,
			Score:    ps.Score,
			LastSeq:  ps.LastProcessedInputSeq,
		}
	}
	return snap
}

// InterpolationMode reports how InterpolateAt produced a position.
type InterpolationMode uint8

const (
	ModeNone InterpolationMode = iota
	ModeInterpolated
	ModeExtrapolated
	// ModeHeld means target precedes the player's first buffered sample.
	ModeHeld
)

func (m InterpolationMode) String() string {
	switch m {
	case ModeInterpolated:
		return "interpolated"
	case ModeExtrapolated:
		return "extrapolated"
	case ModeHeld:
		return "held"
	default:
		return "none"
	}
}

// InterpolateAt estimates where player id was at target. snaps must be
// ordered by timestamp. A bracketing pair containing the player is
// interpolated. A target past the newest snapshot is extrapolated from the
// last two, clamped to the map. A target before the player's first sample
// holds that sample.
func InterpolateAt(snaps []Snapshot, id uint32, target uint32) (proto.Vec2, InterpolationMode) {
	for i := 0; i+1 < len(snaps); i++ {
		a, b := snaps[i], snaps[i+1]
		if timeDiff(a.Timestamp, target) > 0 || timeDiff(target, b.Timestamp) > 0 {
			continue
		}
		pa, okA := a.Players[id]
		pb, okB := b.Players[id]
		if !okA || !okB {
			continue
		}
		span := timeDiff(b.Timestamp, a.Timestamp)
		if span <= 0 {
			return pb.Position, ModeInterpolated
		}
		frac := float32(timeDiff(target, a.Timestamp)) / float32(span)
		return lerp(pa.Position, pb.Position, frac), ModeInterpolated
	}

	n := len(snaps)
	if n == 0 {
		return proto.Vec2{}, ModeNone
	}
	if ahead := timeDiff(target, snaps[n-1].Timestamp); ahead > 0 {
		if n < 2 {
			return proto.Vec2{}, ModeNone
		}
		a, b := snaps[n-2], snaps[n-1]
		pa, okA := a.Players[id]
		pb, okB := b.Players[id]
		span := timeDiff(b.Timestamp, a.Timestamp)
		if !okA || !okB || span <= 0 {
			return proto.Vec2{}, ModeNone
		}
		vx := (pb.Position.X - pa.Position.X) / float32(span)
		vy := (pb.Position.Y - pa.Position.Y) / float32(span)
		pos := proto.Vec2{X: pb.Position.X + vx*float32(ahead), Y: pb.Position.Y + vy*float32(ahead)}
		return sim.ClampToMap(pos, sim.PlayerRadius), ModeExtrapolated
	}

	for _, snap := range snaps {
		p, ok := snap.Players[id]
		if !ok {
			continue
		}
		if timeDiff(snap.Timestamp, target) > 0 {
			return p.Position, ModeHeld
		}
		break
	}
	return proto.Vec2{}, ModeNone
}

// UpdateInterpolation advances every player's render position by dt
// seconds. Remote players follow the snapshot buffer when one exists; the
// local player always eases toward its reconciled target.
func (c *Client) UpdateInterpolation(dt float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.snapshots) == 0 {
		for id, p := range c.players {
			if id == c.myID {
				smoothToward(p, LocalSmoothingRate, dt)
			} else {
				smoothRemote(p, dt)
			}
		}
		return
	}

	latest := c.snapshots[len(c.snapshots)-1].Timestamp
	target := latest - uint32(c.cfg.InterpolationDelay.Milliseconds())
	for id, p := range c.players {
		if id == c.myID {
			smoothToward(p, LocalSmoothingRate, dt)
			continue
		}
		pos, mode := InterpolateAt(c.snapshots, id, target)
		if mode == ModeNone {
			smoothRemote(p, dt)
			continue
		}
		if distance(p.Render, pos) < RemoteDeadzone {
			continue
		}
		p.Render = pos
		p.Current = pos
	}
}

// insertSnapshotLocked keeps the buffer ordered by timestamp.
func (c *Client) insertSnapshotLocked(snap Snapshot) {
	i := len(c.snapshots)
	for i > 0 && timeDiff(c.snapshots[i-1].Timestamp, snap.Timestamp) > 0 {
		i--
	}
	c.snapshots = append(c.snapshots, Snapshot{})
	copy(c.snapshots[i+1:], c.snapshots[i:])
	c.snapshots[i] = snap
	c.trimSnapshotsLocked()
}

// trimSnapshotsLocked drops snapshots older than the history window,
// always keeping the newest.
func (c *Client) trimSnapshotsLocked() {
	latest := c.snapshots[len(c.snapshots)-1].Timestamp
	cutoff := latest - uint32(c.cfg.SnapshotHistory.Milliseconds())
	drop := 0
	for drop < len(c.snapshots)-1 && timeDiff(c.snapshots[drop].Timestamp, cutoff) < 0 {
		drop++
	}
	if drop > 0 {
		c.snapshots = append(c.snapshots[:0], c.snapshots[drop:]...)
	}
}

// Snapshots returns the buffered snapshot timestamps, oldest first.
func (c *Client) Snapshots() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint32, len(c.snapshots))
	for i, s := range c.snapshots {
		out[i] = s.Timestamp
	}
	return out
}

func smoothRemote(p *Player, dt float32) {
	if distance(p.Render, p.Target) < RemoteDeadzone {
		return
	}
	smoothToward(p, RemoteSmoothingRate, dt)
}

// smoothToward eases Render toward Target with an exponential rate per
// second, jumping when the gap exceeds SmoothingSnapDistance.
func smoothToward(p *Player, rate float64, dt float32) {
	dx := p.Target.X - p.Render.X
	dy := p.Target.Y - p.Render.Y
	if dx*dx+dy*dy > SmoothingSnapDistance*SmoothingSnapDistance {
		p.Render = p.Target
		return
	}
	if dt <= 0 {
		return
	}
	alpha := float32(1 - math.Exp(-rate*float64(dt)))
	p.Render.X += dx * alpha
	p.Render.Y += dy * alpha
}

func lerp(a, b proto.Vec2, t float32) proto.Vec2 {
	return proto.Vec2{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t}
}
