// Package scrolllock freezes page scrolling while modal surfaces are open.
//
// Locks are reference counted. Only the first Lock captures the page state
// and only the last Unlock restores it, so nested modals must balance their
// Lock and Unlock calls.
package scrolllock

import (
	"strconv"
	"sync"
)

// Style is the subset of body style the lock touches.
type Style struct {
	Position     string
	Top          string
	Width        string
	Overflow     string
	PaddingRight string
}

// Surface is the page being frozen.
type Surface interface {
	BodyStyle() Style
	SetBodyStyle(Style)
	ScrollY() int
	ScrollTo(y int)
	// ScrollbarWidth is the width the vertical scrollbar currently takes up.
	ScrollbarWidth() int
}

// Lock is a reference-counted scroll guard over one Surface.
type Lock struct {
	mu      sync.Mutex
	surface Surface
	depth   int
	saved   Style
	savedY  int
}

// New creates a Lock for surface.
func New(surface Surface) *Lock {
	return &Lock{surface: surface}
}

// Lock increments the counter. On the 0->1 transition it captures the scroll
// offset and body style, then pins the body in place.
func (l *Lock) Lock() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.depth++
	if l.depth != 1 {
		return
	}

	l.saved = l.surface.BodyStyle()
	l.savedY = l.surface.ScrollY()

	frozen := l.saved
	frozen.Position = "fixed"
	frozen.Top = "-" + strconv.Itoa(l.savedY) + "px"
	frozen.Width = "100%"
	frozen.Overflow = "hidden"
	if w := l.surface.ScrollbarWidth(); w > 0 {
		frozen.PaddingRight = strconv.Itoa(w) + "px"
	}
	l.surface.SetBodyStyle(frozen)
}

// Unlock decrements the counter. On reaching zero it restores the style and
// offset captured by the matching first Lock. Extra calls are ignored.
func (l *Lock) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.depth == 0 {
		return
	}
	l.depth--
	if l.depth == 0 {
		l.restore()
	}
}

// Reset drops every outstanding lock and restores the page if it was frozen.
func (l *Lock) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.depth == 0 {
		return
	}
	l.depth = 0
	l.restore()
}

// Depth returns the number of outstanding locks.
func (l *Lock) Depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.depth
}

// Locked reports whether scrolling is currently frozen.
func (l *Lock) Locked() bool {
	return l.Depth() > 0
}

func (l *Lock) restore() {
	l.surface.SetBodyStyle(l.saved)
	l.surface.ScrollTo(l.savedY)
}
