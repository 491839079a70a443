// Package runloop implements the cooperative turn model the engine runs
// under. The host ticks the loop once per editor frame; everything the
// engine defers (change notifications, recall side effects) is queued as
// a task and drained on the next tick. The core never spawns goroutines
// of its own.
package runloop

import (
	"github.com/viewmark/extension/internal/queue"
)

// Task is a unit of deferred work.
type Task func()

// Loop is a single-consumer task queue drained by host ticks.
type Loop struct {
	tasks *queue.Queue[Task]
}

// New creates an empty loop.
func New() *Loop {
	return &Loop{tasks: queue.New[Task]()}
}

// Post schedules fn to run on the next tick. Safe to call from a task
// already running inside Tick; such tasks run on the following turn.
func (l *Loop) Post(fn Task) {
	if fn == nil {
		return
	}
	l.tasks.Push(fn)
}

// Tick runs every task that was queued before this call and returns how
// many ran. Tasks posted while draining are left for the next turn.
func (l *Loop) Tick() int {
	batch := l.tasks.GetAndEmpty()
	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	return l.tasks.Len()
}
