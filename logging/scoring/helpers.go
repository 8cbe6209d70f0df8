package scoring

import (
	"context"

	"coinrush/logging"
)

const (
	// EventCoinSpawned is emitted whenever the spawner places a coin.
	EventCoinSpawned logging.EventType = "scoring.coin_spawned"
	// EventCoinCollected is emitted when a player picks up a coin.
	EventCoinCollected logging.EventType = "scoring.coin_collected"
)

// CoinSpawnedPayload describes where a coin appeared.
type CoinSpawnedPayload struct {
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Active int     `json:"active"`
}

// CoinCollectedPayload describes the collecting player's new score.
type CoinCollectedPayload struct {
	Score uint32 `json:"score"`
}

// CoinSpawned publishes a debug event for a spawned coin.
func CoinSpawned(ctx context.Context, pub logging.Publisher, tick uint64, coin logging.EntityRef, payload CoinSpawnedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCoinSpawned,
		Tick:     tick,
		Actor:    coin,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryScoring,
		Payload:  payload,
	})
}

// CoinCollected publishes a coin pickup.
func CoinCollected(ctx context.Context, pub logging.Publisher, tick uint64, player logging.EntityRef, coin logging.EntityRef, payload CoinCollectedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCoinCollected,
		Tick:     tick,
		Actor:    player,
		Targets:  []logging.EntityRef{coin},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryScoring,
		Payload:  payload,
	})
}
