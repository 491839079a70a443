package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&EngineInfo{},
	&LayoutBucket{},
	&BookmarkRow{},
	&UsageRow{},
}

// DatabaseModelsSQLite is the subset of models supported by the SQLite fallback.
// Currently identical to DatabaseModels since no column types need Postgres.
var DatabaseModelsSQLite = []interface{}{
	&EngineInfo{},
	&LayoutBucket{},
	&BookmarkRow{},
	&UsageRow{},
}

// EngineInfo contains information about this engine install
type EngineInfo struct {
	gorm.Model
	ProjectName   string `json:"projectName" gorm:"size:127"`
	EngineVersion string `json:"engineVersion" gorm:"size:63"`
	HostVersion   string `json:"hostVersion" gorm:"size:63"`
}

func (*EngineInfo) TableName() string {
	return "engine_infos"
}

// LayoutBucket is one persisted context bucket. Buckets are ordered by
// their auto-increment ID, which preserves creation order across reloads.
type LayoutBucket struct {
	gorm.Model
	ContextKey  string        `json:"contextKey" gorm:"size:127;uniqueIndex:idx_bucket_context_key"`
	ContextPath string        `json:"contextPath" gorm:"size:255"`
	Records     []BookmarkRow `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:BucketID"`
}

func (*LayoutBucket) TableName() string {
	return "layout_buckets"
}

// BookmarkRow is one persisted bookmark. Position is the record's index
// within its bucket; Data holds the full bookmark JSON so the camera pose
// round-trips without a column per field.
type BookmarkRow struct {
	gorm.Model
	BucketID uint           `json:"bucketId" gorm:"index:idx_bookmark_bucket_id"`
	Position int            `json:"position"`
	Name     string         `json:"name" gorm:"size:255"`
	Data     datatypes.JSON `json:"data"`
}

func (*BookmarkRow) TableName() string {
	return "bookmarks"
}

// UsageRow is one recorded store interaction.
type UsageRow struct {
	gorm.Model
	Action      string    `json:"action" gorm:"size:32;index:idx_usage_action"`
	ContextKey  string    `json:"contextKey" gorm:"size:127"`
	RecordIndex int       `json:"recordIndex"`
	Time        time.Time `json:"time" gorm:"index:idx_usage_time"`
}

func (*UsageRow) TableName() string {
	return "usage_events"
}
