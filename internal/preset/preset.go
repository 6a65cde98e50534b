// Package preset loads and saves named boundary-and-tuning configurations.
// A preset bundles everything a counting session needs: the counting lines,
// the ROI polygons, and optional tracker tuning overrides.
package preset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roadmetrics/countline/internal/config"
	"github.com/roadmetrics/countline/internal/counting"
	"github.com/roadmetrics/countline/internal/geom"
	"github.com/roadmetrics/countline/internal/monitoring"
	"github.com/roadmetrics/countline/internal/security"
)

// ROI is a polygon region whose entries and exits are counted.
type ROI struct {
	ID        string       `json:"id"`
	Name      string       `json:"name,omitempty"`
	Points    []geom.Point `json:"points"`
	Direction string       `json:"direction,omitempty"` // bidirectional, forward_only, reverse_only
	Enabled   *bool        `json:"enabled,omitempty"`   // nil means enabled
}

// CountingLine is a virtual line whose crossings are counted.
type CountingLine struct {
	ID        string       `json:"id"`
	Name      string       `json:"name,omitempty"`
	Points    []geom.Point `json:"points"`
	Direction string       `json:"direction,omitempty"`
	Enabled   *bool        `json:"enabled,omitempty"`
}

// Preset is one saved configuration. Lines and ROIs keep their file order;
// that order decides boundary evaluation order in a session.
type Preset struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Created     time.Time            `json:"created,omitempty"`
	Modified    time.Time            `json:"modified,omitempty"`
	Tracker     *config.TuningConfig `json:"tracker,omitempty"`
	Lines       []CountingLine       `json:"counting_lines"`
	ROIs        []ROI                `json:"rois"`
}

// Info is the lightweight listing entry for one preset file.
type Info struct {
	ID   string
	Name string
	Path string
}

const maxPresetSize = 1 * 1024 * 1024 // 1MB

// Load reads a preset from a JSON file. Entries missing an identifier get a
// freshly generated one so the preset is usable without hand-editing.
func Load(path string) (*Preset, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("preset file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat preset file: %w", err)
	}
	if fileInfo.Size() > maxPresetSize {
		return nil, fmt.Errorf("preset file too large: %d bytes (max %d)", fileInfo.Size(), maxPresetSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset file: %w", err)
	}

	var p Preset
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse preset JSON: %w", err)
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(cleanPath), ".json")
	}
	for i := range p.Lines {
		if p.Lines[i].ID == "" {
			p.Lines[i].ID = uuid.NewString()
		}
	}
	for i := range p.ROIs {
		if p.ROIs[i].ID == "" {
			p.ROIs[i].ID = uuid.NewString()
		}
	}

	if p.Tracker != nil {
		if err := p.Tracker.Validate(); err != nil {
			return nil, fmt.Errorf("preset %s: invalid tracker tuning: %w", p.ID, err)
		}
	}

	return &p, nil
}

// Save writes the preset to a JSON file, assigning an identifier and
// stamping the modification time.
func Save(path string, p *Preset) error {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return fmt.Errorf("preset file must have .json extension, got %q", ext)
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.Created.IsZero() {
		p.Created = now
	}
	p.Modified = now

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode preset: %w", err)
	}
	if err := os.WriteFile(cleanPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write preset file: %w", err)
	}
	return nil
}

// SaveIn writes the preset into dir, deriving the filename from the preset
// name. The name is sanitized and the resulting path checked against dir, so
// a hostile preset name cannot write outside the preset directory. Returns
// the path written.
func SaveIn(dir string, p *Preset) (string, error) {
	name := p.Name
	if name == "" {
		name = p.ID
	}
	path := filepath.Join(dir, security.SanitizeFilename(name)+".json")
	if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
		return "", fmt.Errorf("refusing to save preset: %w", err)
	}
	if err := Save(path, p); err != nil {
		return "", err
	}
	return path, nil
}

// List scans a directory for preset files and returns their identifiers and
// names, sorted by name. Unreadable files are skipped with a diagnostic.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset directory: %w", err)
	}

	var infos []Info
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		p, err := Load(path)
		if err != nil {
			monitoring.Logf("preset: skipping %s: %v", path, err)
			continue
		}
		infos = append(infos, Info{ID: p.ID, Name: p.Name, Path: path})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Boundaries converts the preset's enabled lines and ROIs into boundary
// definitions, lines first, preserving file order within each group.
// Geometric validation happens at session start, not here.
func (p *Preset) Boundaries() []counting.Boundary {
	out := make([]counting.Boundary, 0, len(p.Lines)+len(p.ROIs))
	for _, l := range p.Lines {
		if l.Enabled != nil && !*l.Enabled {
			continue
		}
		out = append(out, counting.Boundary{
			ID:     l.ID,
			Name:   l.Name,
			Kind:   counting.BoundaryLine,
			Points: l.Points,
			Mode:   counting.DirectionMode(l.Direction),
		})
	}
	for _, r := range p.ROIs {
		if r.Enabled != nil && !*r.Enabled {
			continue
		}
		out = append(out, counting.Boundary{
			ID:     r.ID,
			Name:   r.Name,
			Kind:   counting.BoundaryPolygon,
			Points: r.Points,
			Mode:   counting.DirectionMode(r.Direction),
		})
	}
	return out
}

// TrackerConfig resolves the preset's tuning overrides into tracker
// parameters, falling back to defaults for everything unset.
func (p *Preset) TrackerConfig() counting.TrackerConfig {
	t := p.Tracker
	if t == nil {
		t = config.EmptyTuningConfig()
	}
	return counting.TrackerConfig{
		HitsToConfirm:      t.GetHitsToConfirm(),
		MaxMisses:          t.GetMaxMisses(),
		HistorySize:        t.GetHistorySize(),
		LabelWindow:        t.GetLabelWindow(),
		IoUCostCeiling:     t.GetIoUCostCeiling(),
		CreationConfidence: t.GetCreationConfidence(),
		MaxTracks:          t.GetMaxTracks(),
	}
}
