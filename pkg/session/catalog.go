package session

import "sync"

// Catalog holds the catalog in effect for the next statement of a session.
// The zero value is unset.
type Catalog struct {
	mu   sync.RWMutex
	name string
	set  bool
}

// Get returns the current catalog and whether one is set.
func (c *Catalog) Get() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name, c.set
}

// Name returns the current catalog, or "" when unset.
func (c *Catalog) Name() string {
	name, _ := c.Get()
	return name
}

// Set records name as the current catalog.
func (c *Catalog) Set(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name, c.set = name, true
}

// Reset returns the catalog to unset.
func (c *Catalog) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name, c.set = "", false
}
