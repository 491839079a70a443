// pkg/core/bookmark.go
package core

import (
	"goki.dev/mat32/v2"
)

// ContextKey identifies a bucket of bookmarks. It is an opaque string
// derived from the set of open scene paths; the engine never inspects it.
type ContextKey string

// Color is an RGBA color with components in [0,1].
type Color struct {
	R float32 `json:"r"`
	G float32 `json:"g"`
	B float32 `json:"b"`
	A float32 `json:"a"`
}

// Pose is the full camera state of a viewport at one instant.
type Pose struct {
	Pivot        mat32.Vec3 `json:"pivot"`
	Rotation     mat32.Quat `json:"rotation"`
	Size         float32    `json:"size"`
	Orthographic bool       `json:"orthographic"`
	Distance     float32    `json:"distance"`
}

// Bookmark is a saved camera viewpoint.
//
// CameraPosition is stored alongside the pivot so the pivot can be
// recomputed after any field changes: Pivot must always equal
// CameraPosition + Forward(Rotation)*Distance.
type Bookmark struct {
	Name           string     `json:"name"`
	Pivot          mat32.Vec3 `json:"pivot"`
	Rotation       mat32.Quat `json:"rotation"`
	Size           float32    `json:"size"`
	Orthographic   bool       `json:"orthographic"`
	Color          Color      `json:"color"`
	Distance       float32    `json:"distance"`
	CameraPosition mat32.Vec3 `json:"cameraPosition"`
}

// Forward returns the view direction of a camera rotation: local -Z
// rotated into world space.
func Forward(q mat32.Quat) mat32.Vec3 {
	return mat32.Vec3{X: 0, Y: 0, Z: -1}.MulQuat(q)
}

// ReconcilePivot recomputes the pivot from the camera position, rotation
// and distance, restoring the bookmark invariant. Distance is clamped to
// be non-negative first.
func (b *Bookmark) ReconcilePivot() {
	if b.Distance < 0 {
		b.Distance = 0
	}
	b.Pivot = b.CameraPosition.Add(Forward(b.Rotation).MulScalar(b.Distance))
}

// Pose returns the camera pose stored in the bookmark.
func (b *Bookmark) Pose() Pose {
	return Pose{
		Pivot:        b.Pivot,
		Rotation:     b.Rotation,
		Size:         b.Size,
		Orthographic: b.Orthographic,
		Distance:     b.Distance,
	}
}

// FromPose builds a bookmark from a live viewport pose, deriving the
// camera position from the pivot and keeping the invariant intact.
func FromPose(name string, color Color, p Pose) Bookmark {
	if p.Distance < 0 {
		p.Distance = 0
	}
	b := Bookmark{
		Name:         name,
		Pivot:        p.Pivot,
		Rotation:     p.Rotation,
		Size:         p.Size,
		Orthographic: p.Orthographic,
		Color:        color,
		Distance:     p.Distance,
	}
	b.CameraPosition = p.Pivot.Sub(Forward(p.Rotation).MulScalar(p.Distance))
	return b
}

// ApplyPose replaces the pose fields of the bookmark while keeping its
// name and color, then reconciles the pivot.
func (b *Bookmark) ApplyPose(p Pose) {
	if p.Distance < 0 {
		p.Distance = 0
	}
	b.Rotation = p.Rotation
	b.Size = p.Size
	b.Orthographic = p.Orthographic
	b.Distance = p.Distance
	b.CameraPosition = p.Pivot.Sub(Forward(p.Rotation).MulScalar(p.Distance))
	b.Pivot = p.Pivot
}
