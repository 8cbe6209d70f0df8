package server

import "time"

// PlayerDiagnostics is the JSON view of one player.
type PlayerDiagnostics struct {
	ID      uint32  `json:"id"`
	X       float32 `json:"x"`
	Y       float32 `json:"y"`
	Score   uint32  `json:"score"`
	LastSeq uint32  `json:"lastSeq"`
}

// Diagnostics summarizes the hub and session for operators.
type Diagnostics struct {
	Running     bool                `json:"running"`
	Tick        uint64              `json:"tick"`
	Connections int                 `json:"connections"`
	Coins       int                 `json:"coins"`
	Players     []PlayerDiagnostics `json:"players"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

func (h *Hub) Diagnostics() Diagnostics {
	now := h.deps.Clock.Now()
	gs := h.session.Snapshot(now)
	diag := Diagnostics{
		Running:     h.session.Running(),
		Tick:        h.session.Tick(),
		Connections: h.ConnectionCount(),
		Coins:       len(gs.Coins),
		Players:     make([]PlayerDiagnostics, 0, len(gs.Players)),
		GeneratedAt: now,
	}
	for _, p := range gs.Players {
		diag.Players = append(diag.Players, PlayerDiagnostics{
			ID:      p.ID,
			X:       p.Position.X,
			Y:       p.Position.Y,
			Score:   p.Score,
			LastSeq: p.LastProcessedInputSeq,
		})
	}
	return diag
}
