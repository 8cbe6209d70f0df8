package server

import (
	"context"
	"fmt"
	"sync"

	"coinrush/internal/proto"
	"coinrush/logging"
	"coinrush/logging/network"
)

type conn struct {
	hub       *Hub
	id        uint32
	transport Conn
	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// sendMu orders START_GAME ahead of every snapshot in the queue.
	sendMu  sync.Mutex
	started bool
}

func newConn(h *Hub, id uint32, transport Conn) *conn {
	return &conn{
		hub:       h,
		id:        id,
		transport: transport,
		queue:     make(chan []byte, h.cfg.SendQueue),
		done:      make(chan struct{}),
	}
}

// close shuts the transport and reports whether this call did it.
func (c *conn) close() bool {
	closed := false
	c.closeOnce.Do(func() {
		close(c.done)
		c.transport.Close()
		closed = true
	})
	return closed
}

func (c *conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// send queues frame after the hub's latency. Frames that land before
// START_GAME are dropped. A full queue tears the connection down.
func (c *conn) send(frame []byte) {
	c.hub.after(func() {
		c.sendMu.Lock()
		defer c.sendMu.Unlock()
		if c.started {
			c.enqueue(frame)
		}
	})
}

// sendStartGame delivers the player's id. Latency timers may fire out of
// order, so snapshots are held back until this frame is queued.
func (c *conn) sendStartGame() {
	frame := proto.EncodeStartGame(proto.StartGame{PlayerID: c.id})
	c.hub.after(func() {
		c.sendMu.Lock()
		defer c.sendMu.Unlock()
		c.started = c.enqueue(frame)
	})
}

func (c *conn) enqueue(frame []byte) bool {
	if c.closed() {
		return false
	}
	select {
	case c.queue <- frame:
		return true
	default:
		c.hub.addMetric(sendDroppedMetricKey, 1)
		network.SendDropped(context.Background(), c.hub.deps.Publisher, logging.PlayerRef(c.id), network.SendDroppedPayload{
			QueueDepth: len(c.queue),
		})
		c.hub.disconnect(c, "send queue full")
		return false
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.queue:
			if _, err := c.transport.Write(frame); err != nil {
				c.hub.disconnect(c, fmt.Sprintf("write: %v", err))
				return
			}
		}
	}
}

func (c *conn) readLoop(ctx context.Context) error {
	err := proto.ReadFrames(ctx, c.transport, func(frame []byte) {
		c.handleFrame(ctx, frame)
	}, func(discarded int) {
		c.hub.addMetric(framesMalformedMetricKey, uint64(discarded))
		network.MalformedFrame(ctx, c.hub.deps.Publisher, logging.PlayerRef(c.id), network.MalformedFramePayload{
			Discarded: discarded,
		})
	})
	if c.closed() {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return nil
}

func (c *conn) handleFrame(ctx context.Context, frame []byte) {
	h, err := proto.ParseHeader(frame)
	if err != nil {
		return
	}
	if h.Type != proto.ClientInputMsg {
		c.hub.addMetric(framesUnexpectedMetricKey, 1)
		return
	}
	in, err := proto.DecodeInput(frame)
	if err != nil {
		c.hub.addMetric(framesDecodeFailedKey, 1)
		network.DecodeFailed(ctx, c.hub.deps.Publisher, logging.PlayerRef(c.id), network.DecodeFailedPayload{
			MessageType: uint8(h.Type),
			Length:      len(frame),
			Error:       err.Error(),
		})
		return
	}
	c.hub.after(func() {
		if c.closed() {
			return
		}
		c.hub.session.EnqueueInput(c.id, in, c.hub.deps.Clock.Now())
	})
}
