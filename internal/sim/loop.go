package sim

import (
	"context"
	"sync"
	"time"

	"coinrush/logging/simulation"
)

// Run drives the tick loop and the coin spawner until ctx is cancelled. The
// spawner's first interval starts counting when the session starts.
func (s *Session) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.runTicks(ctx)
	}()
	go func() {
		defer wg.Done()
		s.runSpawner(ctx)
	}()
	wg.Wait()
}

func (s *Session) runTicks(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	budget := s.cfg.TickInterval
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := s.deps.Clock.Now()
			s.Step(ctx)
			if elapsed := s.deps.Clock.Now().Sub(start); elapsed > budget {
				s.addMetric(tickOverrunMetricKey, 1)
				simulation.TickBudgetOverrun(ctx, s.deps.Publisher, s.Tick(), simulation.TickBudgetOverrunPayload{
					DurationMicros: elapsed.Microseconds(),
					BudgetMicros:   budget.Microseconds(),
					Ratio:          float64(elapsed) / float64(budget),
				})
				if s.deps.Logger != nil {
					s.deps.Logger.Printf("[sim] tick took %s (budget %s)", elapsed, budget)
				}
			}
		}
	}
}

func (s *Session) runSpawner(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-s.started:
	}
	ticker := time.NewTicker(s.cfg.CoinInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.spawnWave(ctx)
		}
	}
}
