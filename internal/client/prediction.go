package client

import (
	"coinrush/internal/proto"
	"coinrush/internal/sim"
)

// ClientInputDeadzone is the direction magnitude at or below which local
// prediction does nothing.
const ClientInputDeadzone float32 = 0.001

// MaxPendingInputs bounds the unacknowledged input queue. An idle session
// never acks, so the oldest entries are dropped past this size.
const MaxPendingInputs = 256

// ApplyLocalInput moves the local player immediately, before the server has
// seen the input. Target moves with it so an in-flight correction keeps its
// offset.
func (c *Client) ApplyLocalInput(dx, dy, dt float32) {
	dir, ok := sim.Normalize(dx, dy, ClientInputDeadzone)
	if !ok || dt <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.myID == 0 {
		return
	}
	p, ok := c.players[c.myID]
	if !ok {
		return
	}
	p.Current = sim.Integrate(p.Current, dir, dt)
	p.Render = sim.Integrate(p.Render, dir, dt)
	p.Target = sim.Integrate(p.Target, dir, dt)
}

// SendInput records the input as pending and sends it. It returns the
// assigned sequence number, or false when disconnected.
func (c *Client) SendInput(dx, dy float32) (uint32, bool) {
	now := uint32(c.deps.Clock.Now().UnixMilli())
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return 0, false
	}
	c.nextSeq++
	in := proto.ClientInput{DX: dx, DY: dy, Timestamp: now, Seq: c.nextSeq}
	c.pending = append(c.pending, PendingInput{Seq: in.Seq, DX: dx, DY: dy, Timestamp: now})
	if over := len(c.pending) - MaxPendingInputs; over > 0 {
		c.pending = append(c.pending[:0], c.pending[over:]...)
	}
	c.mu.Unlock()

	c.send(proto.EncodeInput(in))
	return in.Seq, true
}
