// internal/storage/factory.go
package storage

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/viewmark/extension/internal/config"
	"github.com/viewmark/extension/internal/storage/file"
	"github.com/viewmark/extension/internal/storage/gormdb"
	"github.com/viewmark/extension/internal/storage/memory"
	"github.com/viewmark/extension/internal/storage/websocket"
)

// Compile-time interface checks for all backends.
var (
	_ Backend    = (*file.Backend)(nil)
	_ Uploadable = (*file.Backend)(nil)
	_ Backend    = (*memory.Backend)(nil)
	_ Backend    = (*gormdb.Backend)(nil)
	_ Backend    = (*websocket.Backend)(nil)
)

// BackendInfo carries the identity strings backends stamp into their
// exports and database rows.
type BackendInfo struct {
	ProjectName   string
	EngineVersion string
	Logger        zerolog.Logger
}

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, info BackendInfo) (Backend, error) {
	switch cfg.Type {
	case "file":
		return file.New(cfg.File, info.ProjectName, info.EngineVersion), nil
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return gormdb.NewSQLite(cfg.SQLite, info.ProjectName, info.EngineVersion, info.Logger), nil
	case "postgres":
		return gormdb.NewPostgres(info.ProjectName, info.EngineVersion, info.Logger), nil
	case "websocket":
		return websocket.New(websocket.Config{
			URL:         cfg.Websocket.URL,
			Secret:      cfg.Websocket.Secret,
			ProjectName: info.ProjectName,
		}), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
