// internal/storage/memory/memory.go
package memory

import (
	"sync"

	"github.com/viewmark/extension/pkg/core"
)

// Backend keeps the layout in memory. Used when persistence is disabled
// and as a stand-in in tests.
type Backend struct {
	mu     sync.RWMutex
	layout *core.Layout
	usage  []core.UsageEvent
}

// New creates a new memory backend.
func New() *Backend {
	return &Backend{}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// SaveLayout stores a deep copy of the layout.
func (b *Backend) SaveLayout(layout *core.Layout) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.layout = layout.Clone()
	return nil
}

// LoadLayout returns a deep copy of the stored layout, or an empty
// layout when nothing has been saved yet.
func (b *Backend) LoadLayout() (*core.Layout, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.layout == nil {
		return &core.Layout{}, nil
	}
	return b.layout.Clone(), nil
}

// RecordUsage appends a usage event.
func (b *Backend) RecordUsage(e *core.UsageEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage = append(b.usage, *e)
	return nil
}

// UsageEvents returns a copy of all recorded usage events.
func (b *Backend) UsageEvents() []core.UsageEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.UsageEvent(nil), b.usage...)
}
