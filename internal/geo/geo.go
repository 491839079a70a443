package geo

import (
	"errors"

	geom "github.com/peterstace/simplefeatures/geom"
	"goki.dev/mat32/v2"

	"github.com/viewmark/extension/pkg/core"
)

// Layout exports carry a plan-view footprint per context so external
// tools can show where in the world a bucket's bookmarks cluster.
// Plan view maps editor X/Z to geometry X/Y; editor Y (height) is kept
// as the Z coordinate.

// ErrNoPoints is returned when a footprint is requested for an empty bucket
var ErrNoPoints = errors.New("no points to build footprint from")

// PointFromVec3 converts an editor-space position into a plan-view point.
func PointFromVec3(v mat32.Vec3) geom.Point {
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: float64(v.X), Y: float64(v.Z)},
			Z:    float64(v.Y),
			Type: geom.DimXYZ,
		},
	)
}

// FootprintWKT returns the WKT of the convex hull around the given
// positions in plan view. A single position yields a POINT hull.
func FootprintWKT(positions []mat32.Vec3) (string, error) {
	if len(positions) == 0 {
		return "", ErrNoPoints
	}

	points := make([]geom.Point, 0, len(positions))
	for _, p := range positions {
		points = append(points, PointFromVec3(p))
	}

	hull := geom.NewMultiPoint(points).AsGeometry().ConvexHull()
	return hull.AsText(), nil
}

// BucketFootprintWKT returns the convex hull of a bucket's pivots.
func BucketFootprintWKT(bucket core.Bucket) (string, error) {
	pivots := make([]mat32.Vec3, 0, len(bucket.Records))
	for _, rec := range bucket.Records {
		pivots = append(pivots, rec.Pivot)
	}
	return FootprintWKT(pivots)
}
