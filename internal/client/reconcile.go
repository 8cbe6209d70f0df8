package client

import (
	"math"

	"coinrush/internal/proto"
	"coinrush/internal/sim"
)

const (
	SnapThreshold   float32 = 100
	SmoothThreshold float32 = 5

	// replayFinalStep is the time credited to the newest pending input.
	replayFinalStep float32 = 1.0 / 60.0

	rttSmoothing = 0.2
)

// Correction is the reconciliation action chosen for a prediction error.
type Correction uint8

const (
	// CorrectionKeep leaves the prediction alone and only moves the target.
	CorrectionKeep Correction = iota
	// CorrectionSmooth restarts from the rendered position and eases toward
	// the server.
	CorrectionSmooth
	// CorrectionSnap discards the prediction.
	CorrectionSnap
)

func (c Correction) String() string {
	switch c {
	case CorrectionKeep:
		return "keep"
	case CorrectionSmooth:
		return "smooth"
	case CorrectionSnap:
		return "snap"
	default:
		return "unknown"
	}
}

// ReconcilePolicy picks the correction for the distance between the server
// position and the predicted one. Both thresholds are exclusive.
func ReconcilePolicy(predDiff float32) Correction {
	switch {
	case predDiff > SnapThreshold:
		return CorrectionSnap
	case predDiff > SmoothThreshold:
		return CorrectionSmooth
	default:
		return CorrectionKeep
	}
}

func (c *Client) reconcileLocked(p *Player, ps proto.PlayerState, nowMillis uint32) {
	c.sampleRTTLocked(ps, nowMillis)
	c.trimPendingLocked(ps.LastProcessedInputSeq)

	correction := ReconcilePolicy(distance(ps.Position, p.Current))
	replayed := ReplayInputs(ps.Position, c.pending)
	switch correction {
	case CorrectionSnap:
		p.Current = replayed
		p.Target = replayed
		p.Render = replayed
	case CorrectionSmooth:
		p.Current = p.Render
		p.Target = replayed
	default:
		p.Target = replayed
	}
}

// sampleRTTLocked takes one sample per newly acknowledged sequence.
func (c *Client) sampleRTTLocked(ps proto.PlayerState, nowMillis uint32) {
	ack := ps.LastProcessedInputSeq
	if ack == 0 || (c.hasRTT && ack <= c.lastRTTSeq) {
		return
	}
	sentAt := ps.LastProcessedInputTS
	if sentAt == 0 {
		found := false
		for _, in := range c.pending {
			if in.Seq == ack {
				sentAt = in.Timestamp
				found = true
				break
			}
		}
		if !found {
			return
		}
	}
	sample := float64(timeDiff(nowMillis, sentAt))
	if sample < 0 {
		sample = 0
	}
	if !c.hasRTT {
		c.rttMillis = sample
		c.hasRTT = true
	} else {
		c.rttMillis = (1-rttSmoothing)*c.rttMillis + rttSmoothing*sample
	}
	c.lastRTTSeq = ack
}

// trimPendingLocked drops every pending input the server has processed.
func (c *Client) trimPendingLocked(ack uint32) {
	drop := 0
	for drop < len(c.pending) && c.pending[drop].Seq <= ack {
		drop++
	}
	if drop == 0 {
		return
	}
	c.pending = append(c.pending[:0], c.pending[drop:]...)
}

// ReplayInputs re-applies pending inputs in order on top of base. Each input
// runs for the gap to the next one; the last runs for one frame.
func ReplayInputs(base proto.Vec2, pending []PendingInput) proto.Vec2 {
	pos := base
	for i, in := range pending {
		dt := replayFinalStep
		if i+1 < len(pending) {
			dt = float32(timeDiff(pending[i+1].Timestamp, in.Timestamp)) / 1000
			if dt < 0 {
				dt = 0
			}
		}
		if dir, ok := sim.Normalize(in.DX, in.DY, ClientInputDeadzone); ok {
			pos = sim.Integrate(pos, dir, dt)
		}
	}
	return pos
}

func distance(a, b proto.Vec2) float32 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return float32(math.Sqrt(float64(dx*dx + dy*dy)))
}

// timeDiff returns a-b for millisecond timestamps that may have wrapped.
func timeDiff(a, b uint32) int32 {
	return int32(a - b)
}
