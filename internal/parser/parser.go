// Package parser converts the stringly-typed argument arrays the host
// editor sends over the bridge into engine types. The host serializes
// every value as text; vectors and quaternions arrive as bracketed
// float lists like "[1.5,0,-3]".
package parser

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"goki.dev/mat32/v2"

	"github.com/viewmark/extension/internal/util"
	"github.com/viewmark/extension/pkg/core"
)

// Parser parses host argument arrays.
type Parser struct {
	logger *slog.Logger
}

// New creates a parser that logs malformed input warnings to logger.
func New(logger *slog.Logger) *Parser {
	return &Parser{logger: logger}
}

// DigitToIndex maps a hotkey digit to a zero-based bookmark index:
// "1".."9" map to 0..8 and "0" maps to 9. Returns false for anything
// else. Validity against the bucket length is the caller's concern.
func DigitToIndex(digit string) (int, bool) {
	if len(digit) != 1 {
		return 0, false
	}
	c := digit[0]
	switch {
	case c == '0':
		return 9, true
	case c >= '1' && c <= '9':
		return int(c - '1'), true
	default:
		return 0, false
	}
}

// ParseIndex parses a zero-based bookmark index.
func ParseIndex(s string) (int, error) {
	i, err := strconv.Atoi(util.TrimQuotes(s))
	if err != nil {
		return 0, fmt.Errorf("error parsing index: %w", err)
	}
	return i, nil
}

// ParseBookmark parses a full bookmark argument array:
//
//	[0] name
//	[1] pivot "[x,y,z]"
//	[2] rotation "[x,y,z,w]"
//	[3] projection size
//	[4] orthographic flag
//	[5] color "[r,g,b,a]"
//	[6] camera distance
//	[7] camera position "[x,y,z]"
func (p *Parser) ParseBookmark(data []string) (core.Bookmark, error) {
	var b core.Bookmark

	if len(data) < 8 {
		return b, fmt.Errorf("bookmark args: expected 8 fields, got %d", len(data))
	}

	// fix received data
	for i, v := range data {
		data[i] = util.FixEscapeQuotes(util.TrimQuotes(v))
	}

	b.Name = data[0]

	pivot, err := ParseVec3(data[1])
	if err != nil {
		return b, fmt.Errorf("error parsing pivot: %w", err)
	}
	b.Pivot = pivot

	rot, err := ParseQuat(data[2])
	if err != nil {
		return b, fmt.Errorf("error parsing rotation: %w", err)
	}
	b.Rotation = rot

	size, err := parseFloat32(data[3])
	if err != nil {
		return b, fmt.Errorf("error parsing size: %w", err)
	}
	b.Size = size

	b.Orthographic = parseBool(data[4])

	color, err := ParseColor(data[5])
	if err != nil {
		p.logger.Warn("Error parsing bookmark color, using default", "error", err)
		color = core.Color{R: 1, G: 1, B: 1, A: 1}
	}
	b.Color = color

	dist, err := parseFloat32(data[6])
	if err != nil {
		return b, fmt.Errorf("error parsing distance: %w", err)
	}
	if dist < 0 {
		dist = 0
	}
	b.Distance = dist

	camPos, err := ParseVec3(data[7])
	if err != nil {
		return b, fmt.Errorf("error parsing camera position: %w", err)
	}
	b.CameraPosition = camPos

	b.ReconcilePivot()
	return b, nil
}

// ParsePose parses a pose argument array:
//
//	[0] pivot "[x,y,z]"
//	[1] rotation "[x,y,z,w]"
//	[2] projection size
//	[3] orthographic flag
//	[4] camera distance
func (p *Parser) ParsePose(data []string) (core.Pose, error) {
	var pose core.Pose

	if len(data) < 5 {
		return pose, fmt.Errorf("pose args: expected 5 fields, got %d", len(data))
	}

	for i, v := range data {
		data[i] = util.FixEscapeQuotes(util.TrimQuotes(v))
	}

	pivot, err := ParseVec3(data[0])
	if err != nil {
		return pose, fmt.Errorf("error parsing pivot: %w", err)
	}
	pose.Pivot = pivot

	rot, err := ParseQuat(data[1])
	if err != nil {
		return pose, fmt.Errorf("error parsing rotation: %w", err)
	}
	pose.Rotation = rot

	size, err := parseFloat32(data[2])
	if err != nil {
		return pose, fmt.Errorf("error parsing size: %w", err)
	}
	pose.Size = size

	pose.Orthographic = parseBool(data[3])

	dist, err := parseFloat32(data[4])
	if err != nil {
		return pose, fmt.Errorf("error parsing distance: %w", err)
	}
	if dist < 0 {
		dist = 0
	}
	pose.Distance = dist

	return pose, nil
}

// ParseVec3 parses "[x,y,z]" into a vector.
func ParseVec3(s string) (mat32.Vec3, error) {
	fs, err := parseFloatList(s, 3)
	if err != nil {
		return mat32.Vec3{}, err
	}
	return mat32.Vec3{X: fs[0], Y: fs[1], Z: fs[2]}, nil
}

// ParseQuat parses "[x,y,z,w]" into a quaternion.
func ParseQuat(s string) (mat32.Quat, error) {
	fs, err := parseFloatList(s, 4)
	if err != nil {
		return mat32.Quat{}, err
	}
	return mat32.Quat{X: fs[0], Y: fs[1], Z: fs[2], W: fs[3]}, nil
}

// ParseColor parses "[r,g,b,a]" into a color.
func ParseColor(s string) (core.Color, error) {
	fs, err := parseFloatList(s, 4)
	if err != nil {
		return core.Color{}, err
	}
	return core.Color{R: fs[0], G: fs[1], B: fs[2], A: fs[3]}, nil
}

// parseFloatList parses a bracketed comma-separated float list with
// exactly n elements.
func parseFloatList(s string, n int) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("expected bracketed list, got %q", s)
	}
	parts := strings.Split(s[1:len(s)-1], ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d elements, got %d in %q", n, len(parts), s)
	}
	out := make([]float32, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("element %d of %q: %w", i, s, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

func parseFloat32(s string) (float32, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0, err
	}
	return float32(f), nil
}

// parseBool accepts the host's boolean spellings.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1":
		return true
	default:
		return false
	}
}
