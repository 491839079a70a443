// Package transition animates the viewport camera between two poses
// with a fixed-duration smoothstep tween. It is driven by host ticks
// (Update with a delta time) and produces interpolated poses until the
// destination is reached, at which point the output snaps exactly to the
// target with no floating point drift.
package transition

import (
	"time"

	"github.com/viewmark/extension/pkg/core"
)

// State of the transition machine.
type State int

const (
	Idle State = iota
	Animating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Animating:
		return "animating"
	default:
		return "unknown"
	}
}

// minDuration guards against division by zero when a caller asks for an
// instant jump through the animation path.
const minDuration = 100 * time.Microsecond

// Transition tweens between a source and destination camera pose.
type Transition struct {
	state    State
	from     core.Pose
	to       core.Pose
	duration time.Duration
	elapsed  time.Duration
	current  core.Pose
}

// New creates an idle transition.
func New() *Transition {
	return &Transition{}
}

// State returns the current machine state.
func (tr *Transition) State() State {
	return tr.state
}

// Current returns the most recent interpolated pose. Only meaningful
// after Begin has been called.
func (tr *Transition) Current() core.Pose {
	return tr.current
}

// Begin starts animating from one pose to another over the given
// duration. Durations of zero or less are clamped to a small epsilon so
// the first Update completes the transition. Beginning while a previous
// transition is still in flight replaces it.
func (tr *Transition) Begin(from, to core.Pose, duration time.Duration) {
	if duration <= 0 {
		duration = minDuration
	}
	tr.from = from
	tr.to = to
	tr.duration = duration
	tr.elapsed = 0
	tr.current = from
	tr.state = Animating
}

// Cancel stops an in-flight transition, leaving the current pose as is.
func (tr *Transition) Cancel() {
	tr.state = Idle
}

// Update advances the animation by dt and returns the pose for this
// frame along with whether the transition finished on this update. When
// the normalized time reaches 1 the destination pose is returned
// verbatim and the machine goes back to Idle.
func (tr *Transition) Update(dt time.Duration) (core.Pose, bool) {
	if tr.state != Animating {
		return tr.current, false
	}

	tr.elapsed += dt
	t := float32(tr.elapsed.Seconds() / tr.duration.Seconds())
	if t >= 1 {
		tr.current = tr.to
		tr.state = Idle
		return tr.current, true
	}

	s := t * t * (3 - 2*t) // smoothstep ease
	tr.current = lerpPose(tr.from, tr.to, s)
	return tr.current, false
}

// lerpPose interpolates every pose channel: pivot, distance and size
// linearly, rotation by slerp. The orthographic flag holds the source
// value until completion.
func lerpPose(from, to core.Pose, s float32) core.Pose {
	out := core.Pose{
		Pivot:        from.Pivot.Add(to.Pivot.Sub(from.Pivot).MulScalar(s)),
		Size:         from.Size + (to.Size-from.Size)*s,
		Distance:     from.Distance + (to.Distance-from.Distance)*s,
		Orthographic: from.Orthographic,
	}
	rot := from.Rotation
	rot.Slerp(to.Rotation, s)
	out.Rotation = rot
	return out
}
