package model

import (
	"encoding/json"
	"fmt"
	"sort"

	"gorm.io/datatypes"

	"github.com/viewmark/extension/pkg/core"
)

// BookmarkToRow converts a bookmark to its database row. bucketID may be
// zero when the bucket has not been inserted yet; gorm fills it via the
// association.
func BookmarkToRow(bucketID uint, position int, b core.Bookmark) (BookmarkRow, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return BookmarkRow{}, fmt.Errorf("marshal bookmark %q: %w", b.Name, err)
	}
	return BookmarkRow{
		BucketID: bucketID,
		Position: position,
		Name:     b.Name,
		Data:     datatypes.JSON(data),
	}, nil
}

// RowToBookmark converts a database row back to a bookmark.
func RowToBookmark(row BookmarkRow) (core.Bookmark, error) {
	var b core.Bookmark
	if err := json.Unmarshal(row.Data, &b); err != nil {
		return core.Bookmark{}, fmt.Errorf("unmarshal bookmark row %d: %w", row.ID, err)
	}
	return b, nil
}

// BucketToRows converts one layout bucket into its bucket row with
// embedded bookmark rows, ordered by position.
func BucketToRows(b core.Bucket) (LayoutBucket, error) {
	row := LayoutBucket{
		ContextKey:  string(b.Key),
		ContextPath: b.ContextPath,
		Records:     make([]BookmarkRow, 0, len(b.Records)),
	}
	for i, rec := range b.Records {
		bookmarkRow, err := BookmarkToRow(0, i, rec)
		if err != nil {
			return LayoutBucket{}, err
		}
		row.Records = append(row.Records, bookmarkRow)
	}
	return row, nil
}

// RowsToBucket rebuilds a layout bucket from its rows. Records are
// ordered by their stored position.
func RowsToBucket(row LayoutBucket) (core.Bucket, error) {
	records := append([]BookmarkRow(nil), row.Records...)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Position < records[j].Position
	})

	bucket := core.Bucket{
		Key:         core.ContextKey(row.ContextKey),
		ContextPath: row.ContextPath,
		Records:     make([]core.Bookmark, 0, len(records)),
	}
	for _, rec := range records {
		b, err := RowToBookmark(rec)
		if err != nil {
			return core.Bucket{}, err
		}
		bucket.Records = append(bucket.Records, b)
	}
	return bucket, nil
}

// UsageToRow converts a usage event to its database row.
func UsageToRow(e core.UsageEvent) UsageRow {
	return UsageRow{
		Action:      e.Action,
		ContextKey:  string(e.Context),
		RecordIndex: e.Index,
		Time:        e.Timestamp,
	}
}
