// pkg/core/layout.go
package core

import "time"

// Bucket is the ordered list of bookmarks saved for one editor context.
type Bucket struct {
	Key         ContextKey `json:"key"`
	ContextPath string     `json:"contextPath"`
	Records     []Bookmark `json:"records"`
}

// Layout is the persisted snapshot of the whole store.
//
// LegacyRecords carries the pre-bucket flat list from old installs; on
// restore it is folded into the active context's bucket.
type Layout struct {
	Buckets       []Bucket   `json:"buckets"`
	LegacyRecords []Bookmark `json:"legacyRecords,omitempty"`
}

// Clone returns a deep copy of the layout.
func (l *Layout) Clone() *Layout {
	out := &Layout{
		Buckets:       make([]Bucket, len(l.Buckets)),
		LegacyRecords: append([]Bookmark(nil), l.LegacyRecords...),
	}
	for i, b := range l.Buckets {
		out.Buckets[i] = Bucket{
			Key:         b.Key,
			ContextPath: b.ContextPath,
			Records:     append([]Bookmark(nil), b.Records...),
		}
	}
	return out
}

// UsageEvent records one interaction with the store, for telemetry.
type UsageEvent struct {
	Action    string     `json:"action"` // "add", "recall", "remove", ...
	Context   ContextKey `json:"context"`
	Index     int        `json:"index"`
	Timestamp time.Time  `json:"timestamp"`
}

// UploadMetadata describes an exported layout file for the share server.
type UploadMetadata struct {
	ProjectName string `json:"projectName"`
	ContextPath string `json:"contextPath"`
	RecordCount int    `json:"recordCount"`
	Tag         string `json:"tag"`
}
