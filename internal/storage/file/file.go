// internal/storage/file/file.go
package file

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/viewmark/extension/internal/config"
	"github.com/viewmark/extension/internal/geo"
	"github.com/viewmark/extension/pkg/core"
)

// Backend stores the bookmark layout as a JSON file on disk.
// Usage events are appended to a JSON-lines log next to it.
type Backend struct {
	cfg           config.FileConfig
	projectName   string
	engineVersion string

	mu             sync.Mutex
	lastExportPath string
	lastMeta       core.UploadMetadata
}

// LayoutExport is the root JSON structure written to disk.
type LayoutExport struct {
	EngineVersion string             `json:"engineVersion"`
	ProjectName   string             `json:"projectName"`
	SavedAt       time.Time          `json:"savedAt"`
	Footprints    []ContextFootprint `json:"footprints,omitempty"`
	Layout        *core.Layout       `json:"layout"`
}

// ContextFootprint is the plan-view hull of one bucket's pivots,
// for external map tooling. Ignored on load.
type ContextFootprint struct {
	Context core.ContextKey `json:"context"`
	HullWKT string          `json:"hullWkt"`
}

// New creates a new file backend.
func New(cfg config.FileConfig, projectName, engineVersion string) *Backend {
	return &Backend{
		cfg:           cfg,
		projectName:   projectName,
		engineVersion: engineVersion,
	}
}

// Init ensures the output directory exists.
func (b *Backend) Init() error {
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// Close cleans up resources.
func (b *Backend) Close() error {
	return nil
}

// layoutPath returns the path of the layout file, with .gz appended when
// compression is enabled.
func (b *Backend) layoutPath() string {
	path := filepath.Join(b.cfg.OutputDir, b.cfg.FileName)
	if b.cfg.CompressOutput {
		path += ".gz"
	}
	return path
}

func (b *Backend) usagePath() string {
	return filepath.Join(b.cfg.OutputDir, "usage.jsonl")
}

// SaveLayout writes the layout to disk. The file is written to a temp
// path first and renamed, so a crash mid-write never corrupts the last
// good layout.
func (b *Backend) SaveLayout(layout *core.Layout) error {
	export := b.buildExport(layout)
	outputPath := b.layoutPath()

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmpPath := outputPath + ".tmp"
	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(tmpPath, export)
	} else {
		err = writeJSON(tmpPath, export)
	}
	if err != nil {
		return err
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		return fmt.Errorf("failed to move layout into place: %w", err)
	}

	b.mu.Lock()
	b.lastExportPath = outputPath
	b.lastMeta = exportMetadata(b.projectName, layout)
	b.mu.Unlock()

	return nil
}

// LoadLayout reads the layout back from disk. A missing file yields an
// empty layout; a file that cannot be decoded yields ErrMalformedSnapshot
// wrapped with detail.
func (b *Backend) LoadLayout() (*core.Layout, error) {
	path := b.layoutPath()

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &core.Layout{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open layout file: %w", err)
	}
	defer f.Close()

	var export LayoutExport
	if b.cfg.CompressOutput {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrMalformedSnapshot, err)
		}
		defer gz.Close()
		err = json.NewDecoder(gz).Decode(&export)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrMalformedSnapshot, err)
		}
	} else {
		if err := json.NewDecoder(f).Decode(&export); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrMalformedSnapshot, err)
		}
	}

	if export.Layout == nil {
		return nil, fmt.Errorf("%w: missing layout object", core.ErrMalformedSnapshot)
	}
	return export.Layout, nil
}

// RecordUsage appends one usage event to the JSON-lines log.
func (b *Backend) RecordUsage(e *core.UsageEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.OpenFile(b.usagePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open usage log: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(e)
}

// GetExportedFilePath returns the path of the last written layout file.
func (b *Backend) GetExportedFilePath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastExportPath
}

// GetExportMetadata returns upload metadata for the last written layout.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastMeta
}

func (b *Backend) buildExport(layout *core.Layout) LayoutExport {
	export := LayoutExport{
		EngineVersion: b.engineVersion,
		ProjectName:   b.projectName,
		SavedAt:       time.Now().UTC(),
		Layout:        layout,
	}

	for _, bucket := range layout.Buckets {
		wkt, err := geo.BucketFootprintWKT(bucket)
		if err != nil {
			// Empty buckets have no footprint.
			continue
		}
		export.Footprints = append(export.Footprints, ContextFootprint{
			Context: bucket.Key,
			HullWKT: wkt,
		})
	}

	return export
}

func exportMetadata(projectName string, layout *core.Layout) core.UploadMetadata {
	meta := core.UploadMetadata{ProjectName: projectName}
	for _, bucket := range layout.Buckets {
		meta.RecordCount += len(bucket.Records)
		if meta.ContextPath == "" {
			meta.ContextPath = bucket.ContextPath
		}
	}
	meta.RecordCount += len(layout.LegacyRecords)
	return meta
}

func writeJSON(path string, data LayoutExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data LayoutExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
