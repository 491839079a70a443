// Package session tracks the host editor's current working context:
// which project is open and which set of scenes the active bookmark
// bucket belongs to.
package session

import (
	"sync"

	"github.com/viewmark/extension/pkg/core"
)

// Context holds the current project and scene context state.
type Context struct {
	mu          sync.RWMutex
	projectName string
	contextKey  core.ContextKey
	contextPath string
}

// NewContext creates a Context with placeholder values.
func NewContext() *Context {
	return &Context{
		projectName: "No project loaded",
		contextPath: "No context",
	}
}

// ProjectName returns the current project name.
func (c *Context) ProjectName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.projectName
}

// SetProjectName sets the current project name.
func (c *Context) SetProjectName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projectName = name
}

// ContextKey returns the active scene context key.
func (c *Context) ContextKey() core.ContextKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.contextKey
}

// ContextPath returns the display path of the active scene context.
func (c *Context) ContextPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.contextPath
}

// SetContext sets the active scene context key and display path.
func (c *Context) SetContext(key core.ContextKey, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contextKey = key
	c.contextPath = path
}
