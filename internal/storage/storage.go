// internal/storage/storage.go
package storage

import (
	"github.com/viewmark/extension/pkg/core"
	"github.com/viewmark/extension/pkg/streaming"
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Layout persistence
	SaveLayout(layout *core.Layout) error
	LoadLayout() (*core.Layout, error)

	// Usage recording
	RecordUsage(e *core.UsageEvent) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to a layout-sharing server.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}

// Mirror is an optional interface for backends that can stream
// individual mutations in addition to full snapshots.
type Mirror interface {
	MirrorChange(msgType string, payload streaming.BookmarkChangePayload) error
	MirrorContextChanged(key core.ContextKey, contextPath string) error
}
