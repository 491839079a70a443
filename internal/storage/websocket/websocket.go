package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/viewmark/extension/pkg/core"
	"github.com/viewmark/extension/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL         string
	Secret      string
	ProjectName string
}

// Backend mirrors the bookmark layout over WebSocket to a layout server.
// It is write-only: layouts are pushed, never loaded back, so it is
// normally paired with a local backend. It implements storage.Backend
// but not storage.Uploadable.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config) *Backend {
	return &Backend{
		conn: newConnection(slog.Default()),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// SaveLayout sends the full layout and waits for a server ack. The
// message is cached so it can be replayed after a reconnect.
func (b *Backend) SaveLayout(layout *core.Layout) error {
	data, err := marshalEnvelope(streaming.TypeLayoutSnapshot, streaming.LayoutSnapshotPayload{
		ProjectName: b.cfg.ProjectName,
		Layout:      layout,
	})
	if err != nil {
		return err
	}

	// Cache for reconnect replay.
	b.conn.mu.Lock()
	b.conn.cachedSnapshotMsg = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(data, streaming.TypeLayoutSnapshot, ackTimeout)
}

// LoadLayout is not supported; the mirror never reads back.
func (b *Backend) LoadLayout() (*core.Layout, error) {
	return nil, fmt.Errorf("websocket backend is write-only")
}

// RecordUsage sends a usage event, fire-and-forget.
func (b *Backend) RecordUsage(e *core.UsageEvent) error {
	return b.sendEnvelope(streaming.TypeUsageEvent, e)
}

// MirrorChange streams a single bookmark mutation, fire-and-forget.
func (b *Backend) MirrorChange(msgType string, payload streaming.BookmarkChangePayload) error {
	return b.sendEnvelope(msgType, payload)
}

// MirrorContextChanged announces the active context switch, fire-and-forget.
func (b *Backend) MirrorContextChanged(key core.ContextKey, contextPath string) error {
	return b.sendEnvelope(streaming.TypeContextChanged, streaming.ContextChangedPayload{
		Context:     key,
		ContextPath: contextPath,
	})
}
