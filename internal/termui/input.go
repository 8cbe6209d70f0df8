package termui

import (
	"sync"
	"time"

	"github.com/nsf/termbox-go"
)

// HoldWindow is how long a key press counts as held. Terminals report
// presses only, so a held key is one whose auto-repeat keeps arriving.
const HoldWindow = 150 * time.Millisecond

// Keyboard tracks the most recent movement keys.
type Keyboard struct {
	mu      sync.Mutex
	dx, dy  float32
	pressed time.Time
	quit    bool
}

// Handle records ev and reports whether the player asked to quit.
func (k *Keyboard) Handle(ev termbox.Event, now time.Time) bool {
	if ev.Type != termbox.EventKey {
		return k.Quit()
	}
	var dx, dy float32
	switch {
	case ev.Key == termbox.KeyEsc || ev.Key == termbox.KeyCtrlC:
		k.mu.Lock()
		k.quit = true
		k.mu.Unlock()
		return true
	case ev.Key == termbox.KeyArrowUp || ev.Ch == 'w' || ev.Ch == 'W':
		dy = -1
	case ev.Key == termbox.KeyArrowDown || ev.Ch == 's' || ev.Ch == 'S':
		dy = 1
	case ev.Key == termbox.KeyArrowLeft || ev.Ch == 'a' || ev.Ch == 'A':
		dx = -1
	case ev.Key == termbox.KeyArrowRight || ev.Ch == 'd' || ev.Ch == 'D':
		dx = 1
	default:
		return k.Quit()
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.dx, k.dy = dx, dy
	k.pressed = now
	return false
}

// Direction returns the held direction, or zero once the hold expires.
func (k *Keyboard) Direction(now time.Time) (float32, float32) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.pressed.IsZero() || now.Sub(k.pressed) >= HoldWindow {
		return 0, 0
	}
	return k.dx, k.dy
}

func (k *Keyboard) Quit() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.quit
}
