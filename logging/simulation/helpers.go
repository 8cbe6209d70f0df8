package simulation

import (
	"context"

	"coinrush/logging"
)

const (
	// EventSessionStarted is emitted when enough players joined to start the game loop.
	EventSessionStarted logging.EventType = "simulation.session_started"
	// EventTickBudgetOverrun is emitted when a tick takes longer than its interval.
	EventTickBudgetOverrun logging.EventType = "simulation.tick_budget_overrun"
)

// SessionStartedPayload captures the session state at start.
type SessionStartedPayload struct {
	Players      int   `json:"players"`
	Coins        int   `json:"coins"`
	TickMillis   int64 `json:"tickMillis"`
	SpawnSeconds int64 `json:"spawnSeconds"`
}

// TickBudgetOverrunPayload captures timing details for a tick budget breach.
type TickBudgetOverrunPayload struct {
	DurationMicros int64   `json:"durationMicros"`
	BudgetMicros   int64   `json:"budgetMicros"`
	Ratio          float64 `json:"ratio"`
}

// SessionStarted publishes the idle to running transition.
func SessionStarted(ctx context.Context, pub logging.Publisher, tick uint64, payload SessionStartedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSessionStarted,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindSession},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}

// TickBudgetOverrun publishes a warning when the simulation exceeds its tick interval.
func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetOverrunPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickBudgetOverrun,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindSession},
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}
