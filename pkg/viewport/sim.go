package viewport

import (
	"sync"

	"github.com/viewmark/extension/pkg/core"
)

// Sim is an in-memory viewport used by the demo driver and tests. It
// records every applied pose so assertions can inspect the stream.
type Sim struct {
	mu      sync.Mutex
	pose    core.Pose
	focused bool
	applied []core.Pose
}

// NewSim creates a focused simulated viewport at the given pose.
func NewSim(initial core.Pose) *Sim {
	return &Sim{pose: initial, focused: true}
}

// SetFocused controls whether pose reads and writes succeed.
func (s *Sim) SetFocused(focused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focused = focused
}

// ReadCurrentPose implements Viewport.
func (s *Sim) ReadCurrentPose() (core.Pose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.focused {
		return core.Pose{}, core.ErrNoActiveViewport
	}
	return s.pose, nil
}

// ApplyPose implements Viewport.
func (s *Sim) ApplyPose(p core.Pose, instant bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.focused {
		return core.ErrNoActiveViewport
	}
	s.pose = p
	s.applied = append(s.applied, p)
	return nil
}

// Applied returns a copy of every pose pushed so far.
func (s *Sim) Applied() []core.Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Pose(nil), s.applied...)
}

var _ Viewport = (*Sim)(nil)
