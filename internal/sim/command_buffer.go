package sim

import (
	"sync"
	"time"

	"coinrush/internal/proto"
)

const (
	inputBufferOccupancyMetricKey = "sim_input_buffer_occupancy"
	inputBufferOverflowMetricKey  = "sim_input_buffer_overflow_total"
)

// InputCommand is a decoded client input waiting for the next tick.
type InputCommand struct {
	PlayerID   uint32
	Input      proto.ClientInput
	ReceivedAt time.Time
}

// CommandBuffer stores staged inputs in a fixed-size ring. It is safe for
// concurrent producers and a single consumer.
type CommandBuffer struct {
	mu      sync.Mutex
	data    []InputCommand
	head    int
	tail    int
	count   int
	metrics metrics
}

type metrics interface {
	Add(string, uint64)
	Store(string, uint64)
}

func NewCommandBuffer(capacity int, m metrics) *CommandBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &CommandBuffer{
		data:    make([]InputCommand, capacity),
		metrics: m,
	}
}

func (b *CommandBuffer) Capacity() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Push stages a command, returning false if the buffer is full.
func (b *CommandBuffer) Push(cmd InputCommand) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == len(b.data) {
		if b.metrics != nil {
			b.metrics.Add(inputBufferOverflowMetricKey, 1)
		}
		return false
	}
	b.data[b.tail] = cmd
	b.tail = (b.tail + 1) % len(b.data)
	b.count++
	b.storeOccupancyLocked()
	return true
}

// Drain returns all staged commands in FIFO order and clears the buffer.
func (b *CommandBuffer) Drain() []InputCommand {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return nil
	}
	out := make([]InputCommand, b.count)
	for i := range out {
		out[i] = b.data[(b.head+i)%len(b.data)]
	}
	b.head, b.tail, b.count = 0, 0, 0
	b.storeOccupancyLocked()
	return out
}

func (b *CommandBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *CommandBuffer) storeOccupancyLocked() {
	if b.metrics == nil {
		return
	}
	b.metrics.Store(inputBufferOccupancyMetricKey, uint64(b.count))
}
