package convert

import (
	"sync"

	"github.com/wippyai/wasm-bridge/signature"
)

// Tracker observes creation and release of call-scoped temporaries
type Tracker interface {
	Created(tag signature.Tag)
	Released(tag signature.Tag)
}

// CountingTracker counts temporaries per tag
type CountingTracker struct {
	created  map[signature.Tag]int
	released map[signature.Tag]int
	mu       sync.Mutex
}

// NewCountingTracker returns an empty tracker
func NewCountingTracker() *CountingTracker {
	return &CountingTracker{
		created:  make(map[signature.Tag]int),
		released: make(map[signature.Tag]int),
	}
}

func (c *CountingTracker) Created(tag signature.Tag) {
	c.mu.Lock()
	c.created[tag]++
	c.mu.Unlock()
}

func (c *CountingTracker) Released(tag signature.Tag) {
	c.mu.Lock()
	c.released[tag]++
	c.mu.Unlock()
}

// Totals returns the overall create and release counts.
func (c *CountingTracker) Totals() (created, released int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.created {
		created += n
	}
	for _, n := range c.released {
		released += n
	}
	return created, released
}

// Outstanding returns tags whose create count differs from their release count.
func (c *CountingTracker) Outstanding() map[signature.Tag]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[signature.Tag]int)
	for tag, n := range c.created {
		if d := n - c.released[tag]; d != 0 {
			out[tag] = d
		}
	}
	for tag, n := range c.released {
		if _, ok := c.created[tag]; !ok {
			out[tag] = -n
		}
	}
	return out
}
