package geo

import (
	"strings"
	"testing"

	"goki.dev/mat32/v2"

	"github.com/viewmark/extension/pkg/core"
)

func TestFootprintWKTEmpty(t *testing.T) {
	_, err := FootprintWKT(nil)
	if err != ErrNoPoints {
		t.Fatalf("expected ErrNoPoints, got %v", err)
	}
}

func TestFootprintWKTSinglePoint(t *testing.T) {
	wkt, err := FootprintWKT([]mat32.Vec3{{X: 1, Y: 5, Z: 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(wkt, "POINT") {
		t.Errorf("expected POINT hull for single position, got %q", wkt)
	}
}

func TestFootprintWKTTriangle(t *testing.T) {
	positions := []mat32.Vec3{
		{X: 0, Y: 0, Z: 0},
		{X: 10, Y: 0, Z: 0},
		{X: 0, Y: 0, Z: 10},
	}
	wkt, err := FootprintWKT(positions)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(wkt, "POLYGON") {
		t.Errorf("expected POLYGON hull for 3 spread positions, got %q", wkt)
	}
}

func TestBucketFootprintWKT(t *testing.T) {
	bucket := core.Bucket{
		Key: "ctx-a",
		Records: []core.Bookmark{
			{Pivot: mat32.Vec3{X: 0, Z: 0}},
			{Pivot: mat32.Vec3{X: 4, Z: 0}},
			{Pivot: mat32.Vec3{X: 0, Z: 4}},
		},
	}
	wkt, err := BucketFootprintWKT(bucket)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(wkt, "POLYGON") {
		t.Errorf("expected POLYGON, got %q", wkt)
	}
}

func TestCameraPathTooFewPoints(t *testing.T) {
	_, err := CameraPath([]core.Bookmark{{}})
	if err == nil {
		t.Fatal("expected error for single bookmark")
	}
}

func TestCameraPathWKT(t *testing.T) {
	records := []core.Bookmark{
		{CameraPosition: mat32.Vec3{X: 0, Z: 0}},
		{CameraPosition: mat32.Vec3{X: 5, Z: 5}},
		{CameraPosition: mat32.Vec3{X: 10, Z: 0}},
	}
	wkt, err := CameraPathWKT(records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(wkt, "LINESTRING") {
		t.Errorf("expected LINESTRING, got %q", wkt)
	}
}
