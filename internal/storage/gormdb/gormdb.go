// internal/storage/gormdb/gormdb.go
package gormdb

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/viewmark/extension/internal/config"
	"github.com/viewmark/extension/internal/database"
	"github.com/viewmark/extension/internal/model"
	"github.com/viewmark/extension/pkg/core"
)

// legacyBucketKey is the reserved context key used to persist the flat
// pre-bucket record list so a saved layout round-trips exactly.
const legacyBucketKey = "\x00legacy"

// Backend persists the layout in a relational database through gorm.
// The sqlite variant runs in memory and dumps to disk on an interval,
// so editor interaction never waits on disk IO.
type Backend struct {
	manager       *database.Manager
	projectName   string
	engineVersion string

	sqliteCfg    config.SQLiteConfig
	useSqlite    bool
	dumpStopCh   chan struct{}
	dumpDoneCh   chan struct{}

	mu            sync.Mutex
	lastWriteTime time.Duration
}

// NewSQLite creates a backend over an in-memory SQLite database that is
// periodically vacuumed to cfg.Path.
func NewSQLite(cfg config.SQLiteConfig, projectName, engineVersion string, log zerolog.Logger) *Backend {
	m := database.NewManager(log)
	m.SqliteFilePath = cfg.Path
	return &Backend{
		manager:       m,
		projectName:   projectName,
		engineVersion: engineVersion,
		sqliteCfg:     cfg,
		useSqlite:     true,
	}
}

// NewPostgres creates a backend that connects to Postgres, falling back
// to in-memory SQLite when the server is unreachable.
func NewPostgres(projectName, engineVersion string, log zerolog.Logger) *Backend {
	return &Backend{
		manager:       database.NewManager(log),
		projectName:   projectName,
		engineVersion: engineVersion,
	}
}

// Init connects, migrates the schema and starts the dump loop when the
// database lives in memory.
func (b *Backend) Init() error {
	if b.useSqlite {
		db, err := b.manager.GetSqliteDB("")
		if err != nil {
			return fmt.Errorf("failed to open in-memory sqlite: %w", err)
		}
		b.manager.DB = db
		b.manager.ShouldSaveLocal = true
		b.manager.IsValid = true
	} else {
		if err := b.manager.Connect(); err != nil {
			return err
		}
	}

	if err := b.manager.Setup(b.projectName, b.engineVersion); err != nil {
		return err
	}

	if b.manager.ShouldSaveLocal && b.manager.SqliteFilePath != "" {
		interval := b.sqliteCfg.DumpInterval
		if interval <= 0 {
			interval = 3 * time.Minute
		}
		b.dumpStopCh = make(chan struct{})
		b.dumpDoneCh = make(chan struct{})
		go b.dumpLoop(interval)
	}

	return nil
}

func (b *Backend) dumpLoop(interval time.Duration) {
	defer close(b.dumpDoneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.dumpStopCh:
			return
		case <-ticker.C:
			if err := b.manager.DumpMemoryToDisk(); err != nil {
				b.manager.Logger.Error().Err(err).Msg("Periodic DB dump failed")
			}
		}
	}
}

// Close stops the dump loop, writes a final dump and closes the database.
func (b *Backend) Close() error {
	if b.dumpStopCh != nil {
		close(b.dumpStopCh)
		<-b.dumpDoneCh
	}

	if b.manager.ShouldSaveLocal && b.manager.SqliteFilePath != "" {
		if err := b.manager.DumpMemoryToDisk(); err != nil {
			b.manager.Logger.Error().Err(err).Msg("Final DB dump failed")
		}
	}

	if b.manager.SqlDB != nil {
		return b.manager.SqlDB.Close()
	}
	return nil
}

// SaveLayout replaces the persisted layout with the given one in a
// single transaction.
func (b *Backend) SaveLayout(layout *core.Layout) error {
	start := time.Now()

	buckets := make([]model.LayoutBucket, 0, len(layout.Buckets)+1)
	for _, bucket := range layout.Buckets {
		row, err := model.BucketToRows(bucket)
		if err != nil {
			return err
		}
		buckets = append(buckets, row)
	}
	if len(layout.LegacyRecords) > 0 {
		row, err := model.BucketToRows(core.Bucket{
			Key:     legacyBucketKey,
			Records: layout.LegacyRecords,
		})
		if err != nil {
			return err
		}
		buckets = append(buckets, row)
	}

	err := b.manager.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Unscoped().Delete(&model.BookmarkRow{}).Error; err != nil {
			return fmt.Errorf("failed to clear bookmarks: %w", err)
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Unscoped().Delete(&model.LayoutBucket{}).Error; err != nil {
			return fmt.Errorf("failed to clear buckets: %w", err)
		}
		for i := range buckets {
			if err := tx.Create(&buckets[i]).Error; err != nil {
				return fmt.Errorf("failed to insert bucket %q: %w", buckets[i].ContextKey, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.lastWriteTime = time.Since(start)
	b.mu.Unlock()

	return nil
}

// LoadLayout reads the persisted layout back. Bucket creation order is
// preserved via the auto-increment IDs.
func (b *Backend) LoadLayout() (*core.Layout, error) {
	var rows []model.LayoutBucket
	err := b.manager.DB.Preload("Records").Order("id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query buckets: %w", err)
	}

	layout := &core.Layout{}
	for _, row := range rows {
		bucket, err := model.RowsToBucket(row)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrMalformedSnapshot, err)
		}
		if bucket.Key == legacyBucketKey {
			layout.LegacyRecords = bucket.Records
			continue
		}
		layout.Buckets = append(layout.Buckets, bucket)
	}
	return layout, nil
}

// RecordUsage inserts one usage row.
func (b *Backend) RecordUsage(e *core.UsageEvent) error {
	row := model.UsageToRow(*e)
	return b.manager.DB.Create(&row).Error
}

// GetLastDBWriteDuration returns the duration of the last layout save.
func (b *Backend) GetLastDBWriteDuration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastWriteTime
}
