// Package notice holds transient user notifications ("toasts").
package notice

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level is the severity shown to the user.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Default bounds used when a Center is built with zero values.
const (
	DefaultCapacity = 5
	DefaultTTL      = 5 * time.Second
)

// Notice is one notification.
type Notice struct {
	ID      string    `json:"id" yaml:"id"`
	Level   Level     `json:"level" yaml:"level"`
	Message string    `json:"message" yaml:"message"`
	At      time.Time `json:"at" yaml:"at"`
}

// Center is a bounded FIFO of notices. When full, the oldest is dropped.
// Notices older than the TTL are pruned on read.
type Center struct {
	mu       sync.Mutex
	items    []Notice
	capacity int
	ttl      time.Duration
	now      func() time.Time
	onPost   []func(Notice)
}

// NewCenter creates a Center. Non-positive values select the defaults.
func NewCenter(capacity int, ttl time.Duration) *Center {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Center{capacity: capacity, ttl: ttl, now: time.Now}
}

// OnPost registers fn to be called with every new notice, outside the lock.
func (c *Center) OnPost(fn func(Notice)) {
	c.mu.Lock()
	c.onPost = append(c.onPost, fn)
	c.mu.Unlock()
}

// Post adds a notice and returns it.
func (c *Center) Post(level Level, message string) Notice {
	c.mu.Lock()
	n := Notice{ID: uuid.NewString(), Level: level, Message: message, At: c.now()}
	c.pruneLocked()
	if len(c.items) >= c.capacity {
		c.items = append(c.items[:0:0], c.items[len(c.items)-c.capacity+1:]...)
	}
	c.items = append(c.items, n)
	hooks := append([]func(Notice){}, c.onPost...)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(n)
	}
	return n
}

// Info posts an informational notice.
func (c *Center) Info(format string, args ...any) Notice {
	return c.Post(LevelInfo, fmt.Sprintf(format, args...))
}

// Success posts a success notice.
func (c *Center) Success(format string, args ...any) Notice {
	return c.Post(LevelSuccess, fmt.Sprintf(format, args...))
}

// Error posts an error notice.
func (c *Center) Error(format string, args ...any) Notice {
	return c.Post(LevelError, fmt.Sprintf(format, args...))
}

// Active returns the unexpired notices, oldest first.
func (c *Center) Active() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()
	return append([]Notice(nil), c.items...)
}

// Dismiss removes the notice with id. It reports whether one was found.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, n := range c.items {
		if n.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// Clear removes every notice.
func (c *Center) Clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}

func (c *Center) pruneLocked() {
	cutoff := c.now().Add(-c.ttl)
	keep := c.items[:0]
	for _, n := range c.items {
		if n.At.After(cutoff) {
			keep = append(keep, n)
		}
	}
	c.items = keep
}
