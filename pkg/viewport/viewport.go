// Package viewport defines the collaborator boundary to the host's 3D
// view. The engine never owns a camera; it reads the current pose from
// and pushes poses to whatever the host registers here.
package viewport

import (
	"goki.dev/mat32/v2"

	"github.com/viewmark/extension/pkg/core"
)

// Viewport is implemented by the host editor for its focused 3D view.
type Viewport interface {
	// ReadCurrentPose returns the live camera pose. Returns
	// core.ErrNoActiveViewport when no 3D view has focus.
	ReadCurrentPose() (core.Pose, error)

	// ApplyPose pushes a camera pose to the view. With instant set the
	// host must cut straight to the pose; otherwise it may smooth the
	// move however it likes (the engine's own transitions always pass
	// instant, one eased step per tick).
	ApplyPose(p core.Pose, instant bool) error
}

// FallbackDistance computes the camera distance for hosts that do not
// track one: the projection of the camera-to-pivot offset onto the view
// direction. Negative projections clamp to zero.
func FallbackDistance(cameraPos, pivot mat32.Vec3, rotation mat32.Quat) float32 {
	d := pivot.Sub(cameraPos).Dot(core.Forward(rotation))
	if d < 0 {
		return 0
	}
	return d
}
