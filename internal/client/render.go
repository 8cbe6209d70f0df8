package client

import (
	"fmt"

	"coinrush/internal/proto"
)

// Surface draws one frame. Implementations decide what a unit maps to.
type Surface interface {
	DrawPlayer(id uint32, pos proto.Vec2, score uint32, local bool)
	DrawCoin(id uint32, pos proto.Vec2)
	DrawText(x, y int, text string)
}

const notConnectedText = "Not connected to server"

// Render draws the current view onto s.
func (c *Client) Render(s Surface) {
	view := c.View()
	RenderView(s, view)
}

// RenderView draws a detached view. A disconnected view draws only a notice.
func RenderView(s Surface, view View) {
	if !view.Connected {
		s.DrawText(0, 0, notConnectedText)
		return
	}
	for _, coin := range view.Coins {
		s.DrawCoin(coin.ID, coin.Position)
	}
	var score uint32
	for _, p := range view.Players {
		local := p.ID == view.MyID
		if local {
			score = p.Score
		}
		s.DrawPlayer(p.ID, p.Render, p.Score, local)
	}
	s.DrawText(0, 0, fmt.Sprintf("Score: %d  Players: %d  RTT: %dms", score, len(view.Players), view.RTT.Milliseconds()))
}
