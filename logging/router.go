package logging

import (
	"context"
	"log"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

type NamedSink struct {
	Name string
	Sink Sink
}

const (
	defaultQueueSize = 512
	minOutletBuffer  = 32
	maxOutletBuffer  = 1024
	maxRetryDelay    = 3200 * time.Millisecond
)

// Router accepts events from the session and the hub without blocking them.
// A single dispatcher stamps and filters events, then hands a copy to one
// outlet per sink. Saturated queues drop and count.
type Router struct {
	clock    Clock
	minimum  Severity
	fields   map[string]any
	warnGap  time.Duration
	fallback *log.Logger

	queue   chan Event
	quit    chan struct{}
	outlets []*outlet
	wg      sync.WaitGroup
	closed  atomic.Bool

	accepted atomic.Uint64
	filtered atomic.Uint64
	dropped  atomic.Uint64
	nextWarn atomic.Int64

	catMu      sync.Mutex
	byCategory map[string]uint64
}

// RouterStats reports what the router has seen since it started.
type RouterStats struct {
	Accepted   uint64            `json:"accepted"`
	Filtered   uint64            `json:"filtered"`
	Dropped    uint64            `json:"dropped"`
	ByCategory map[string]uint64 `json:"byCategory,omitempty"`
	Sinks      []SinkStats       `json:"sinks,omitempty"`
}

// SinkStats reports one sink's delivery counts.
type SinkStats struct {
	Name      string `json:"name"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}

func NewRouter(clock Clock, cfg Config, namedSinks []NamedSink) *Router {
	if clock == nil {
		clock = SystemClock{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultQueueSize
	}
	warnGap := cfg.DropWarnInterval
	if warnGap <= 0 {
		warnGap = 5 * time.Second
	}
	r := &Router{
		clock:      clock,
		minimum:    cfg.MinimumSeverity,
		fields:     cfg.CloneFields(),
		warnGap:    warnGap,
		fallback:   log.New(os.Stderr, "[logging] ", log.LstdFlags),
		queue:      make(chan Event, size),
		quit:       make(chan struct{}),
		byCategory: make(map[string]uint64),
	}
	buffer := min(max(size, minOutletBuffer), maxOutletBuffer)
	for _, named := range namedSinks {
		if named.Sink != nil {
			r.outlets = append(r.outlets, newOutlet(named, buffer, r.fallback))
		}
	}

	for _, o := range r.outlets {
		o := o
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			o.run()
		}()
	}
	r.wg.Add(1)
	go r.dispatch()
	return r
}

// Publish queues event for the sinks. Events without a type and events
// published after Close are ignored.
func (r *Router) Publish(_ context.Context, event Event) {
	if event.Type == "" || r.closed.Load() {
		return
	}
	select {
	case r.queue <- event:
		r.accepted.Add(1)
		r.countCategory(event.Category)
	default:
		r.dropped.Add(1)
		r.warnDrop(event)
	}
}

func (r *Router) countCategory(category string) {
	if category == "" {
		category = "uncategorized"
	}
	r.catMu.Lock()
	r.byCategory[category]++
	r.catMu.Unlock()
}

// warnDrop reports a saturated queue at most once per warn interval.
func (r *Router) warnDrop(event Event) {
	now := r.clock.Now().UnixNano()
	next := r.nextWarn.Load()
	if now < next || !r.nextWarn.CompareAndSwap(next, now+r.warnGap.Nanoseconds()) {
		return
	}
	r.fallback.Printf("queue full, dropping %s (tick %d, %d dropped so far)", event.Type, event.Tick, r.dropped.Load())
}

func (r *Router) dispatch() {
	defer r.wg.Done()
	defer func() {
		for _, o := range r.outlets {
			close(o.events)
		}
	}()
	for {
		select {
		case event := <-r.queue:
			r.route(event)
		case <-r.quit:
			for {
				select {
				case event := <-r.queue:
					r.route(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Router) route(event Event) {
	if event.Severity < r.minimum {
		r.filtered.Add(1)
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = mergeFields(event, r.fields)
	for _, o := range r.outlets {
		o.offer(event)
	}
}

// Close flushes queued events through every sink, then closes the sinks.
// It returns ctx's error if the flush does not finish in time.
func (r *Router) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(r.quit)
	flushed := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
	case <-ctx.Done():
		return ctx.Err()
	}
	var firstErr error
	for _, o := range r.outlets {
		if err := o.sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) Stats() RouterStats {
	stats := RouterStats{
		Accepted: r.accepted.Load(),
		Filtered: r.filtered.Load(),
		Dropped:  r.dropped.Load(),
	}
	r.catMu.Lock()
	if len(r.byCategory) > 0 {
		stats.ByCategory = make(map[string]uint64, len(r.byCategory))
		for k, v := range r.byCategory {
			stats.ByCategory[k] = v
		}
	}
	r.catMu.Unlock()
	for _, o := range r.outlets {
		stats.Sinks = append(stats.Sinks, SinkStats{
			Name:      o.name,
			Delivered: o.delivered.Load(),
			Dropped:   o.dropped.Load(),
			Failed:    o.failed.Load(),
		})
	}
	sort.Slice(stats.Sinks, func(i, j int) bool { return stats.Sinks[i].Name < stats.Sinks[j].Name })
	return stats
}

func (r *Router) Sink(name string) Sink {
	for _, o := range r.outlets {
		if o.name == name {
			return o.sink
		}
	}
	return nil
}

// outlet feeds one sink from its own buffer. After a write error it pauses
// before the next write, doubling the pause per consecutive failure.
type outlet struct {
	name     string
	sink     Sink
	events   chan Event
	fallback *log.Logger

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

func newOutlet(named NamedSink, buffer int, fallback *log.Logger) *outlet {
	return &outlet{
		name:     named.Name,
		sink:     named.Sink,
		events:   make(chan Event, buffer),
		fallback: fallback,
	}
}

func (o *outlet) offer(event Event) {
	select {
	case o.events <- cloneEvent(event):
	default:
		if o.dropped.Add(1) == 1 {
			o.fallback.Printf("sink %s is behind, dropping events", o.name)
		}
	}
}

func (o *outlet) run() {
	var pause time.Duration
	for event := range o.events {
		if pause > 0 {
			time.Sleep(pause)
		}
		if err := o.sink.Write(event); err != nil {
			o.failed.Add(1)
			pause = min(max(2*pause, 100*time.Millisecond), maxRetryDelay)
			o.fallback.Printf("sink %s: %v (pausing %s)", o.name, err, pause)
			continue
		}
		o.delivered.Add(1)
		pause = 0
	}
}
