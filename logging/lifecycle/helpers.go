package lifecycle

import (
	"context"

	"coinrush/logging"
)

const (
	// EventPlayerJoined is emitted when a connection is admitted as a player.
	EventPlayerJoined logging.EventType = "lifecycle.player_joined"
	// EventPlayerDisconnected is emitted when a player's connection is torn down.
	EventPlayerDisconnected logging.EventType = "lifecycle.player_disconnected"
	// EventConnectionRefused is emitted when the session is full.
	EventConnectionRefused logging.EventType = "lifecycle.connection_refused"
)

// PlayerJoinedPayload captures spawn metadata for a new player.
type PlayerJoinedPayload struct {
	SpawnX  float32 `json:"spawnX"`
	SpawnY  float32 `json:"spawnY"`
	Players int     `json:"players"`
	Remote  string  `json:"remote,omitempty"`
}

// PlayerDisconnectedPayload captures why a player left.
type PlayerDisconnectedPayload struct {
	Reason  string `json:"reason"`
	Score   uint32 `json:"score"`
	Players int    `json:"players"`
}

// ConnectionRefusedPayload describes a rejected connection.
type ConnectionRefusedPayload struct {
	Remote     string `json:"remote,omitempty"`
	MaxPlayers int    `json:"maxPlayers"`
}

// PlayerJoined publishes a player join event.
func PlayerJoined(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PlayerJoinedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPlayerJoined,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

// PlayerDisconnected publishes a player disconnect event.
func PlayerDisconnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PlayerDisconnectedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPlayerDisconnected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

// ConnectionRefused publishes a warning when a connection cannot be admitted.
func ConnectionRefused(ctx context.Context, pub logging.Publisher, payload ConnectionRefusedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventConnectionRefused,
		Actor:    logging.EntityRef{Kind: logging.EntityKindConn},
		Severity: logging.SeverityWarn,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}
