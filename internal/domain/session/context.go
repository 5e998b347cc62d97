package session

import "sync"

// Context holds the session's current working mode.
type Context struct {
	mu   sync.RWMutex
	mode Mode
}

// NewContext returns a context in Native mode.
func NewContext() *Context {
	return &Context{mode: Native}
}

// SwitchToMode records mode. Any mode is accepted.
func (c *Context) SwitchToMode(mode Mode) {
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
}

// Mode returns the current working mode.
func (c *Context) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}
