// Package picking answers "which bookmark is the camera looking at":
// given a view ray it scores every bookmark pivot in a bucket by its
// perpendicular distance to the ray, penalizing pivots behind the
// origin.
package picking

import (
	"goki.dev/mat32/v2"

	"github.com/viewmark/extension/pkg/core"
)

// behindPenalty scales the score of pivots whose projection falls
// behind the ray origin, disfavoring without excluding them.
const behindPenalty = 2.0

// NearestLookTarget returns the index and score of the record whose
// pivot lies closest to the ray (origin, dir), and false when records
// is empty.
//
// dir must be normalized; that is a caller precondition, not checked
// here. Ties keep the lowest index: a later record only wins under a
// strictly smaller score.
func NearestLookTarget(records []core.Bookmark, origin, dir mat32.Vec3) (int, float32, bool) {
	if len(records) == 0 {
		return 0, 0, false
	}

	best := 0
	bestScore := scoreTarget(records[0].Pivot, origin, dir)
	for i := 1; i < len(records); i++ {
		if s := scoreTarget(records[i].Pivot, origin, dir); s < bestScore {
			best = i
			bestScore = s
		}
	}
	return best, bestScore, true
}

// scoreTarget ranks one pivot: its perpendicular distance to the ray
// line, doubled when the signed projection length is negative.
func scoreTarget(pivot, origin, dir mat32.Vec3) float32 {
	rel := pivot.Sub(origin)
	t := rel.Dot(dir)
	perp := rel.Sub(dir.MulScalar(t)).Length()
	if t < 0 {
		return perp * behindPenalty
	}
	return perp
}
