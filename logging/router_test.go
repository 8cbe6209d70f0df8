package logging_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"coinrush/logging"
	"coinrush/logging/sinks"
)

func TestRouterDeliversToSinks(t *testing.T) {
	mem := sinks.NewMemory()
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityDebug
	cfg.Fields = map[string]any{"session": "abc"}
	router := logging.NewRouter(logging.ClockFunc(func() time.Time { return fixed }), cfg, []logging.NamedSink{{Name: "memory", Sink: mem}})

	router.Publish(context.Background(), logging.Event{Type: "test.one", Severity: logging.SeverityInfo})
	router.Publish(context.Background(), logging.Event{Type: "test.two", Severity: logging.SeverityDebug, Extra: map[string]any{"session": "override"}})

	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	events := mem.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if !events[0].Time.Equal(fixed) {
		t.Fatalf("expected router clock to stamp events, got %v", events[0].Time)
	}
	if got := events[0].Extra["session"]; got != "abc" {
		t.Fatalf("expected configured field to be merged, got %v", got)
	}
	if got := events[1].Extra["session"]; got != "override" {
		t.Fatalf("expected event field to win over configured field, got %v", got)
	}
	if stats := router.Stats(); stats.Accepted != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRouterFiltersBelowMinimumSeverity(t *testing.T) {
	mem := sinks.NewMemory()
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityWarn
	router := logging.NewRouter(nil, cfg, []logging.NamedSink{{Name: "memory", Sink: mem}})

	router.Publish(context.Background(), logging.Event{Type: "debug", Severity: logging.SeverityDebug})
	router.Publish(context.Background(), logging.Event{Type: "info", Severity: logging.SeverityInfo})
	router.Publish(context.Background(), logging.Event{Type: "warn", Severity: logging.SeverityWarn})
	router.Publish(context.Background(), logging.Event{Severity: logging.SeverityError})

	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	events := mem.Events()
	if len(events) != 1 || events[0].Type != "warn" {
		t.Fatalf("expected only the warn event, got %+v", events)
	}
}

func TestRouterIgnoresPublishAfterClose(t *testing.T) {
	mem := sinks.NewMemory()
	router := logging.NewRouter(nil, logging.DefaultConfig(), []logging.NamedSink{{Name: "memory", Sink: mem}})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	router.Publish(context.Background(), logging.Event{Type: "late", Severity: logging.SeverityError})
	if len(mem.Events()) != 0 {
		t.Fatalf("expected no events after close")
	}
	if router.Sink("memory") != mem {
		t.Fatalf("expected named sink lookup to return the memory sink")
	}
}

type failingSink struct{}

func (failingSink) Write(logging.Event) error   { return errors.New("disk full") }
func (failingSink) Close(context.Context) error { return nil }

func TestRouterStatsTrackCategoriesAndSinks(t *testing.T) {
	mem := sinks.NewMemory()
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityInfo
	router := logging.NewRouter(nil, cfg, []logging.NamedSink{
		{Name: "memory", Sink: mem},
		{Name: "broken", Sink: failingSink{}},
	})

	ctx := context.Background()
	router.Publish(ctx, logging.Event{Type: "lifecycle.player_joined", Severity: logging.SeverityInfo, Category: logging.CategoryLifecycle})
	router.Publish(ctx, logging.Event{Type: "scoring.coin_collected", Severity: logging.SeverityInfo, Category: logging.CategoryScoring})
	router.Publish(ctx, logging.Event{Type: "network.malformed_frame", Severity: logging.SeverityDebug, Category: logging.CategoryNetwork})
	if err := router.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	stats := router.Stats()
	if stats.Accepted != 3 || stats.Filtered != 1 || stats.Dropped != 0 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	for _, cat := range []string{logging.CategoryLifecycle, logging.CategoryScoring, logging.CategoryNetwork} {
		if stats.ByCategory[cat] != 1 {
			t.Fatalf("category %s counted %d times", cat, stats.ByCategory[cat])
		}
	}
	if len(stats.Sinks) != 2 {
		t.Fatalf("expected two sinks, got %+v", stats.Sinks)
	}
	broken, memory := stats.Sinks[0], stats.Sinks[1]
	if broken.Name != "broken" || broken.Failed != 2 || broken.Delivered != 0 {
		t.Fatalf("unexpected failing sink stats %+v", broken)
	}
	if memory.Name != "memory" || memory.Delivered != 2 || len(mem.Events()) != 2 {
		t.Fatalf("unexpected memory sink stats %+v", memory)
	}
}

func TestWithFieldsDecoratesPublisher(t *testing.T) {
	mem := sinks.NewMemory()
	pub := logging.WithFields(mem, map[string]any{"conn": 7})
	pub.Publish(context.Background(), logging.Event{Type: "x"})

	events := mem.Events()
	if len(events) != 1 || events[0].Extra["conn"] != 7 {
		t.Fatalf("expected decorated event, got %+v", events)
	}
}

func TestParseSeverity(t *testing.T) {
	cases := map[string]logging.Severity{
		"debug":   logging.SeverityDebug,
		"":        logging.SeverityInfo,
		"WARN":    logging.SeverityWarn,
		" error ": logging.SeverityError,
	}
	for raw, want := range cases {
		got, err := logging.ParseSeverity(raw)
		if err != nil {
			t.Fatalf("ParseSeverity(%q) failed: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseSeverity(%q) = %v, want %v", raw, got, want)
		}
	}
	if _, err := logging.ParseSeverity("loud"); err == nil {
		t.Fatalf("expected unknown level to fail")
	}
}
