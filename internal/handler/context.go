package handler

import (
	"sync"

	"wrpl-inspect/pkg/wrpl"
)

// Context is shared by the handlers of one run. Values let handlers pass
// data down the chain.
type Context struct {
	Run wrpl.RunInfo

	mu     sync.RWMutex
	values map[string]any
}

// NewContext creates the context of a run.
func NewContext(info wrpl.RunInfo) *Context {
	return &Context{Run: info}
}

// Set stores a value.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = value
}

// Get returns a value and whether it exists.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *Context) GetString(key string) string {
	v, _ := GetValue[string](c, key)
	return v
}

func (c *Context) GetInt(key string) int {
	v, _ := GetValue[int](c, key)
	return v
}

func (c *Context) GetBool(key string) bool {
	v, _ := GetValue[bool](c, key)
	return v
}

// GetValue returns the value under key as T. ok is false when the key is
// missing or holds another type.
func GetValue[T any](c *Context, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
