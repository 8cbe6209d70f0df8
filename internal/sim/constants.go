package sim

import "time"

const (
	MapWidth  float32 = 800
	MapHeight float32 = 600

	PlayerSpeed  float32 = 200
	PlayerRadius float32 = 25
	CoinRadius   float32 = 20

	SpawnX float32 = 400
	SpawnY float32 = 300

	DefaultTickInterval   = 16 * time.Millisecond
	DefaultCoinInterval   = 3 * time.Second
	DefaultInitialCoins   = 3
	DefaultMinCoins       = 3
	DefaultMaxCoins       = 50
	DefaultStartThreshold = 2

	// MaxInputElapsed bounds the time credited to a single input. Longer gaps
	// fall back to FallbackInputElapsed.
	MaxInputElapsed      = 0.1
	FallbackInputElapsed = 0.016

	// ServerInputDeadzone is the direction magnitude below which an input moves nothing.
	ServerInputDeadzone float32 = 0.01
)
