package streaming

import (
	"encoding/json"

	"github.com/viewmark/extension/pkg/core"
)

// Message type constants matching the mirror protocol.
const (
	TypeLayoutSnapshot   = "layout_snapshot"
	TypeBookmarkAdded    = "bookmark_added"
	TypeBookmarkRemoved  = "bookmark_removed"
	TypeBookmarkRenamed  = "bookmark_renamed"
	TypeBookmarkReplaced = "bookmark_replaced"
	TypeBookmarkMoved    = "bookmark_moved"
	TypeContextChanged   = "context_changed"
	TypeUsageEvent       = "usage_event"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// LayoutSnapshotPayload carries a full bookmark layout together with the
// project it belongs to.
type LayoutSnapshotPayload struct {
	ProjectName string       `json:"projectName"`
	Layout      *core.Layout `json:"layout"`
}

// BookmarkChangePayload carries a single bookmark mutation.
type BookmarkChangePayload struct {
	Context  core.ContextKey `json:"context"`
	Index    int             `json:"index"`
	Bookmark *core.Bookmark  `json:"bookmark,omitempty"`
}

// ContextChangedPayload announces a switch of the active scene context.
type ContextChangedPayload struct {
	Context     core.ContextKey `json:"context"`
	ContextPath string          `json:"contextPath"`
}
