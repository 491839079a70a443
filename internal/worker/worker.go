package worker

import (
	"context"
	"sync"
	"time"

	"github.com/viewmark/extension/internal/influx"
	"github.com/viewmark/extension/internal/logging"
	"github.com/viewmark/extension/internal/queue"
	"github.com/viewmark/extension/internal/session"
	"github.com/viewmark/extension/internal/storage"
	"github.com/viewmark/extension/internal/store"
	"github.com/viewmark/extension/pkg/core"
)

// DefaultFlushInterval is how often the worker drains its queues when
// no interval is configured.
const DefaultFlushInterval = 2 * time.Second

// Dependencies holds all dependencies for the worker manager.
type Dependencies struct {
	Store      *store.Store
	Session    *session.Context
	LogManager *logging.SlogManager
	Influx     *influx.Manager // optional, may be nil
}

// Queues holds the pending persistence work. Layout snapshots are
// coalesced on flush so only the newest one hits the backend.
type Queues struct {
	Saves *queue.Queue[*core.Layout]
	Usage *queue.Queue[core.UsageEvent]
}

// NewQueues creates initialized queues.
func NewQueues() *Queues {
	return &Queues{
		Saves: queue.New[*core.Layout](),
		Usage: queue.New[core.UsageEvent](),
	}
}

// Manager drains the persistence queues to the storage backend on a
// fixed interval, off the host runloop.
type Manager struct {
	deps   Dependencies
	queues *Queues

	mu      sync.RWMutex
	backend storage.Backend

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewManager creates a new worker manager.
func NewManager(deps Dependencies, queues *Queues) *Manager {
	return &Manager{
		deps:   deps,
		queues: queues,
	}
}

// SetBackend sets the storage backend used by flushes.
func (m *Manager) SetBackend(b storage.Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backend = b
}

func (m *Manager) hasBackend() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backend != nil
}

func (m *Manager) getBackend() storage.Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backend
}

// EnqueueSave captures the current store contents and queues them for
// the next flush.
func (m *Manager) EnqueueSave() {
	m.queues.Saves.Push(m.deps.Store.Snapshot())
}

// EnqueueUsage queues a usage event for the next flush.
func (m *Manager) EnqueueUsage(e core.UsageEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	m.queues.Usage.Push(e)
}

// Start launches the flush loop. Stop must be called to drain the
// queues one final time and release the goroutine.
func (m *Manager) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}

	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go func() {
		defer close(m.doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.Flush()
			case <-m.stopCh:
				m.Flush()
				return
			}
		}
	}()
}

// Stop signals the flush loop to drain and exit, then waits for it.
func (m *Manager) Stop() {
	if m.stopCh == nil {
		return
	}
	close(m.stopCh)
	<-m.doneCh
	m.stopCh = nil
}

// Flush drains both queues to the backend. Safe to call directly, the
// flush loop uses it too.
func (m *Manager) Flush() {
	backend := m.getBackend()
	if backend == nil {
		return
	}

	// Coalesce queued snapshots, only the newest needs persisting.
	if snapshots := m.queues.Saves.GetAndEmpty(); len(snapshots) > 0 {
		latest := snapshots[len(snapshots)-1]
		if err := backend.SaveLayout(latest); err != nil {
			m.deps.LogManager.Logger().Error("Failed to persist layout", "error", err)
		}
	}

	for _, e := range m.queues.Usage.GetAndEmpty() {
		if err := backend.RecordUsage(&e); err != nil {
			m.deps.LogManager.Logger().Error("Failed to record usage event",
				"action", e.Action, "error", err)
		}
		if m.deps.Influx != nil {
			err := m.deps.Influx.WriteUsage(context.Background(), m.deps.Session.ProjectName(), &e)
			if err != nil {
				m.deps.LogManager.Logger().Warn("Failed to write usage point",
					"action", e.Action, "error", err)
			}
		}
	}
}

// DBWriteDurationProvider is an optional interface that backends can implement
// to expose their last DB write duration for monitoring.
type DBWriteDurationProvider interface {
	GetLastDBWriteDuration() time.Duration
}

// GetLastDBWriteDuration returns the duration of the last DB write cycle.
// Returns 0 if the backend doesn't support this metric.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	backend := m.getBackend()
	if p, ok := backend.(DBWriteDurationProvider); ok {
		return p.GetLastDBWriteDuration()
	}
	return 0
}
