package worker

import (
	"sync"
	"testing"
	"time"

	"github.com/viewmark/extension/internal/logging"
	"github.com/viewmark/extension/internal/runloop"
	"github.com/viewmark/extension/internal/session"
	"github.com/viewmark/extension/internal/store"
	"github.com/viewmark/extension/pkg/core"
)

// mockBackend implements storage.Backend for testing
type mockBackend struct {
	mu sync.Mutex

	savedLayouts []*core.Layout
	usageEvents  []*core.UsageEvent
	initCalled   bool
	closeCalled  bool
	writeDur     time.Duration
}

func (b *mockBackend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initCalled = true
	return nil
}

func (b *mockBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeCalled = true
	return nil
}

func (b *mockBackend) SaveLayout(layout *core.Layout) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.savedLayouts = append(b.savedLayouts, layout)
	return nil
}

func (b *mockBackend) LoadLayout() (*core.Layout, error) {
	return &core.Layout{}, nil
}

func (b *mockBackend) RecordUsage(e *core.UsageEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.usageEvents = append(b.usageEvents, e)
	return nil
}

func (b *mockBackend) GetLastDBWriteDuration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeDur
}

func (b *mockBackend) savedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.savedLayouts)
}

func newTestManager(t *testing.T) (*Manager, *store.Store, *Queues) {
	t.Helper()

	loop := runloop.New()
	s := store.New(loop)
	s.SetActiveContext("scene-a", "/scenes/a.scene")

	deps := Dependencies{
		Store:      s,
		Session:    session.NewContext(),
		LogManager: logging.NewSlogManager(),
	}
	queues := NewQueues()
	return NewManager(deps, queues), s, queues
}

func TestNewQueues(t *testing.T) {
	queues := NewQueues()

	if queues == nil {
		t.Fatal("expected non-nil queues")
	}
	if queues.Saves == nil {
		t.Error("expected Saves queue to be initialized")
	}
	if queues.Usage == nil {
		t.Error("expected Usage queue to be initialized")
	}
}

func TestSetBackend(t *testing.T) {
	manager, _, _ := newTestManager(t)

	if manager.hasBackend() {
		t.Error("expected no backend initially")
	}

	backend := &mockBackend{}
	manager.SetBackend(backend)

	if !manager.hasBackend() {
		t.Error("expected backend to be set")
	}
}

func TestFlush_NoBackend_LeavesQueuesAlone(t *testing.T) {
	manager, _, queues := newTestManager(t)

	manager.EnqueueSave()
	manager.EnqueueUsage(core.UsageEvent{Action: "add", Index: 0})

	manager.Flush()

	if queues.Saves.Len() != 1 {
		t.Errorf("expected save to remain queued, got %d", queues.Saves.Len())
	}
	if queues.Usage.Len() != 1 {
		t.Errorf("expected usage to remain queued, got %d", queues.Usage.Len())
	}
}

func TestFlush_CoalescesSaves(t *testing.T) {
	manager, s, queues := newTestManager(t)
	backend := &mockBackend{}
	manager.SetBackend(backend)

	s.Add(core.Bookmark{Name: "first"})
	manager.EnqueueSave()
	s.Add(core.Bookmark{Name: "second"})
	manager.EnqueueSave()
	s.Add(core.Bookmark{Name: "third"})
	manager.EnqueueSave()

	manager.Flush()

	if got := backend.savedCount(); got != 1 {
		t.Fatalf("expected 1 coalesced save, got %d", got)
	}
	saved := backend.savedLayouts[0]
	if len(saved.Buckets) != 1 || len(saved.Buckets[0].Records) != 3 {
		t.Errorf("expected the newest snapshot with 3 records, got %+v", saved)
	}
	if queues.Saves.Len() != 0 {
		t.Errorf("expected saves queue drained, got %d", queues.Saves.Len())
	}
}

func TestFlush_DrainsUsageEvents(t *testing.T) {
	manager, _, queues := newTestManager(t)
	backend := &mockBackend{}
	manager.SetBackend(backend)

	manager.EnqueueUsage(core.UsageEvent{Action: "add", Context: "scene-a", Index: 0})
	manager.EnqueueUsage(core.UsageEvent{Action: "recall", Context: "scene-a", Index: 0})

	manager.Flush()

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.usageEvents) != 2 {
		t.Fatalf("expected 2 usage events, got %d", len(backend.usageEvents))
	}
	if backend.usageEvents[0].Action != "add" || backend.usageEvents[1].Action != "recall" {
		t.Errorf("usage events out of order: %+v", backend.usageEvents)
	}
	if backend.usageEvents[0].Timestamp.IsZero() {
		t.Error("expected EnqueueUsage to stamp the event")
	}
	if queues.Usage.Len() != 0 {
		t.Errorf("expected usage queue drained, got %d", queues.Usage.Len())
	}
}

func TestStartStop_FlushesOnStop(t *testing.T) {
	manager, s, _ := newTestManager(t)
	backend := &mockBackend{}
	manager.SetBackend(backend)

	manager.Start(time.Hour) // interval never fires during the test

	s.Add(core.Bookmark{Name: "pending"})
	manager.EnqueueSave()
	manager.Stop()

	if got := backend.savedCount(); got != 1 {
		t.Errorf("expected final flush on Stop, got %d saves", got)
	}
}

func TestStop_WithoutStart(t *testing.T) {
	manager, _, _ := newTestManager(t)
	manager.Stop() // must not panic or block
}

func TestGetLastDBWriteDuration(t *testing.T) {
	manager, _, _ := newTestManager(t)

	if d := manager.GetLastDBWriteDuration(); d != 0 {
		t.Errorf("expected 0 without backend, got %v", d)
	}

	backend := &mockBackend{writeDur: 42 * time.Millisecond}
	manager.SetBackend(backend)

	if d := manager.GetLastDBWriteDuration(); d != 42*time.Millisecond {
		t.Errorf("expected 42ms, got %v", d)
	}
}
