package scrolllock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var original = Style{Position: "relative", Top: "", Width: "auto", Overflow: "visible", PaddingRight: "4px"}

func newPage() *Viewport {
	v := NewViewport(original, 420)
	v.WindowWidth = 1280
	v.ClientWidth = 1265
	return v
}

func TestLock_FreezesOnFirstLock(t *testing.T) {
	page := newPage()
	l := New(page)

	l.Lock()

	assert.True(t, l.Locked())
	assert.Equal(t, Style{
		Position:     "fixed",
		Top:          "-420px",
		Width:        "100%",
		Overflow:     "hidden",
		PaddingRight: "15px",
	}, page.BodyStyle())
}

func TestLock_NoScrollbarKeepsPadding(t *testing.T) {
	page := NewViewport(original, 0)
	l := New(page)

	l.Lock()
	assert.Equal(t, "4px", page.BodyStyle().PaddingRight)
	assert.Equal(t, "-0px", page.BodyStyle().Top)
}

func TestLock_NestedBalancedRestoresExactly(t *testing.T) {
	for n := 1; n <= 8; n++ {
		page := newPage()
		l := New(page)

		for i := 0; i < n; i++ {
			l.Lock()
		}
		assert.Equal(t, n, l.Depth())

		for i := 0; i < n-1; i++ {
			l.Unlock()
			assert.True(t, l.Locked(), "n=%d: fewer than n unlocks must stay locked", n)
			assert.Equal(t, "fixed", page.BodyStyle().Position)
		}

		l.Unlock()
		assert.False(t, l.Locked())
		assert.Equal(t, original, page.BodyStyle(), "n=%d", n)
		assert.Equal(t, 420, page.ScrollY(), "n=%d", n)
	}
}

func TestLock_RestoresFirstCaptureNotLater(t *testing.T) {
	page := newPage()
	l := New(page)

	l.Lock()
	page.SetBodyStyle(Style{Position: "fixed", Overflow: "scroll"})
	l.Lock()
	l.Unlock()
	l.Unlock()

	assert.Equal(t, original, page.BodyStyle())
}

func TestUnlock_NeverNegative(t *testing.T) {
	page := newPage()
	l := New(page)

	l.Unlock()
	l.Unlock()
	assert.Equal(t, 0, l.Depth())
	assert.Equal(t, original, page.BodyStyle(), "unlock without lock must not touch the page")

	l.Lock()
	assert.Equal(t, 1, l.Depth())
	l.Unlock()
	assert.Equal(t, 0, l.Depth())
}

func TestReset(t *testing.T) {
	page := newPage()
	l := New(page)

	l.Lock()
	l.Lock()
	l.Lock()
	l.Reset()

	assert.Equal(t, 0, l.Depth())
	assert.Equal(t, original, page.BodyStyle())
	assert.Equal(t, 420, page.ScrollY())

	l.Reset()
	assert.Equal(t, 0, l.Depth())
}

func TestViewport_ScrollIgnoredWhileFixed(t *testing.T) {
	page := newPage()
	l := New(page)
	l.Lock()
	page.ScrollTo(10)
	assert.Equal(t, 420, page.ScrollY())
	l.Unlock()
	page.ScrollTo(10)
	assert.Equal(t, 10, page.ScrollY())
}
