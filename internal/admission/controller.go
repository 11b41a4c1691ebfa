// Package admission bounds the number of in-flight provisioning workflows.
package admission

import "sync"

// Controller is a non-blocking counting gate keyed by workflow identity.
// A rejected acquire returns immediately; callers are never queued.
type Controller struct {
	mu     sync.Mutex
	limit  int
	active map[string]struct{}
}

// New creates a controller admitting at most limit concurrent workflows.
func New(limit int) *Controller {
	if limit <= 0 {
		limit = 1
	}
	return &Controller{
		limit:  limit,
		active: make(map[string]struct{}, limit),
	}
}

// TryAcquire claims a slot for id. It returns false when the ceiling is
// reached or when id already holds a slot.
func (c *Controller) TryAcquire(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, held := c.active[id]; held {
		return false
	}
	if len(c.active) >= c.limit {
		return false
	}
	c.active[id] = struct{}{}
	return true
}

// Release frees the slot held by id. Releasing an unknown id is a no-op, so
// a duplicate release never drives the count below the number of holders.
func (c *Controller) Release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, id)
}

// Holds reports whether id currently owns a slot.
func (c *Controller) Holds(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, held := c.active[id]
	return held
}

// ActiveCount returns the number of held slots.
func (c *Controller) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// Limit returns the configured ceiling.
func (c *Controller) Limit() int {
	return c.limit
}
