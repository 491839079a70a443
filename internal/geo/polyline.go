package geo

import (
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/viewmark/extension/pkg/core"
)

// CameraPath builds a plan-view LineString through a bucket's camera
// positions in record order. Needs at least 2 bookmarks.
func CameraPath(records []core.Bookmark) (geom.LineString, error) {
	if len(records) < 2 {
		return geom.LineString{}, fmt.Errorf("camera path needs at least 2 bookmarks, got %d", len(records))
	}

	flatCoords := make([]float64, 0, len(records)*2)
	for _, rec := range records {
		flatCoords = append(flatCoords, float64(rec.CameraPosition.X), float64(rec.CameraPosition.Z))
	}

	seq := geom.NewSequence(flatCoords, geom.DimXY)
	return geom.NewLineString(seq), nil
}

// CameraPathWKT returns the WKT form of the bucket's camera path.
func CameraPathWKT(records []core.Bookmark) (string, error) {
	ls, err := CameraPath(records)
	if err != nil {
		return "", err
	}
	return ls.AsText(), nil
}
