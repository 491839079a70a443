// pkg/core/errors.go
package core

import "errors"

var (
	// ErrIndexOutOfRange is returned by store operations addressing a
	// bookmark slot that does not exist in the active bucket.
	ErrIndexOutOfRange = errors.New("bookmark index out of range")

	// ErrNoActiveViewport is returned when the host has no focused 3D
	// view to read from or write to.
	ErrNoActiveViewport = errors.New("no active viewport")

	// ErrMalformedSnapshot is returned when a persisted layout cannot be
	// decoded; callers fall back to an empty store.
	ErrMalformedSnapshot = errors.New("malformed layout snapshot")
)
