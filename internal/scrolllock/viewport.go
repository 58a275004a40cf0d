package scrolllock

import "sync"

// Viewport is an in-memory Surface. WindowWidth-ClientWidth is the scrollbar width.
type Viewport struct {
	mu          sync.Mutex
	style       Style
	scrollY     int
	WindowWidth int
	ClientWidth int
}

// NewViewport creates a Viewport with the given body style and scroll offset.
func NewViewport(style Style, scrollY int) *Viewport {
	return &Viewport{style: style, scrollY: scrollY}
}

// BodyStyle returns the current body style.
func (v *Viewport) BodyStyle() Style {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.style
}

// SetBodyStyle replaces the body style.
func (v *Viewport) SetBodyStyle(s Style) {
	v.mu.Lock()
	v.style = s
	v.mu.Unlock()
}

// ScrollY returns the vertical scroll offset.
func (v *Viewport) ScrollY() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scrollY
}

// ScrollTo moves the vertical scroll offset. Ignored while the body is pinned,
// the same way a fixed-position body does not scroll.
func (v *Viewport) ScrollTo(y int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.style.Position == "fixed" {
		return
	}
	v.scrollY = y
}

// ScrollbarWidth returns WindowWidth-ClientWidth, never negative.
func (v *Viewport) ScrollbarWidth() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if w := v.WindowWidth - v.ClientWidth; w > 0 {
		return w
	}
	return 0
}
