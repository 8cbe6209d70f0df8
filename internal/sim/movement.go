package sim

import (
	"math"

	"coinrush/internal/proto"
)

// Normalize returns the unit vector of (dx, dy). ok is false when the
// magnitude is not above deadzone.
func Normalize(dx, dy, deadzone float32) (dir proto.Vec2, ok bool) {
	length := float32(math.Sqrt(float64(dx*dx + dy*dy)))
	if length <= deadzone {
		return proto.Vec2{}, false
	}
	return proto.Vec2{X: dx / length, Y: dy / length}, true
}

// ClampToMap keeps a circle of the given radius fully inside the map.
func ClampToMap(pos proto.Vec2, radius float32) proto.Vec2 {
	pos.X = clamp(pos.X, radius, MapWidth-radius)
	pos.Y = clamp(pos.Y, radius, MapHeight-radius)
	return pos
}

// Integrate moves pos along dir for dt seconds at PlayerSpeed and clamps the
// result to the playable area.
func Integrate(pos, dir proto.Vec2, dt float32) proto.Vec2 {
	pos.X += dir.X * PlayerSpeed * dt
	pos.Y += dir.Y * PlayerSpeed * dt
	return ClampToMap(pos, PlayerRadius)
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Touching reports whether a player at p overlaps a coin at c.
func Touching(p, c proto.Vec2) bool {
	dx := p.X - c.X
	dy := p.Y - c.Y
	reach := PlayerRadius + CoinRadius
	return dx*dx+dy*dy < reach*reach
}

// InputElapsed converts the gap between two receive times into the seconds
// credited to an input.
func InputElapsed(gapSeconds float64, first bool) float32 {
	switch {
	case first || gapSeconds > MaxInputElapsed:
		return FallbackInputElapsed
	case gapSeconds < 0:
		return 0
	default:
		return float32(gapSeconds)
	}
}
