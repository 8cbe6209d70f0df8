package termui

import (
	"fmt"

	"github.com/nsf/termbox-go"

	"coinrush/internal/proto"
	"coinrush/internal/sim"
)

// Grid is the cell buffer a Screen draws into.
type Grid interface {
	Size() (int, int)
	SetCell(x, y int, ch rune, fg, bg termbox.Attribute)
}

type termboxGrid struct{}

func (termboxGrid) Size() (int, int) { return termbox.Size() }

func (termboxGrid) SetCell(x, y int, ch rune, fg, bg termbox.Attribute) {
	termbox.SetCell(x, y, ch, fg, bg)
}

// Screen scales the 800x600 arena onto a terminal grid. The top row is
// reserved for the status line.
type Screen struct {
	grid Grid
}

func NewScreen(grid Grid) *Screen {
	if grid == nil {
		grid = termboxGrid{}
	}
	return &Screen{grid: grid}
}

// Cell maps an arena position to a grid cell below the status row.
func (s *Screen) Cell(pos proto.Vec2) (int, int) {
	w, h := s.grid.Size()
	rows := h - 1
	if w <= 0 || rows <= 0 {
		return 0, 0
	}
	x := int(pos.X / sim.MapWidth * float32(w))
	y := int(pos.Y / sim.MapHeight * float32(rows))
	if x < 0 {
		x = 0
	}
	if x >= w {
		x = w - 1
	}
	if y < 0 {
		y = 0
	}
	if y >= rows {
		y = rows - 1
	}
	return x, y + 1
}

func (s *Screen) DrawPlayer(id uint32, pos proto.Vec2, score uint32, local bool) {
	x, y := s.Cell(pos)
	fg := termbox.ColorCyan
	ch := 'P'
	if local {
		fg = termbox.ColorGreen | termbox.AttrBold
		ch = '@'
	}
	s.grid.SetCell(x, y, ch, fg, termbox.ColorDefault)
	s.text(x+1, y, fmt.Sprintf("%d", score), fg)
}

func (s *Screen) DrawCoin(_ uint32, pos proto.Vec2) {
	x, y := s.Cell(pos)
	s.grid.SetCell(x, y, 'o', termbox.ColorYellow, termbox.ColorDefault)
}

func (s *Screen) DrawText(x, y int, text string) {
	s.text(x, y, text, termbox.ColorWhite)
}

func (s *Screen) text(x, y int, text string, fg termbox.Attribute) {
	w, _ := s.grid.Size()
	for _, r := range text {
		if x >= w {
			return
		}
		s.grid.SetCell(x, y, r, fg, termbox.ColorDefault)
		x++
	}
}
