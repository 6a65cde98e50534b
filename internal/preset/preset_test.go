package preset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadmetrics/countline/internal/counting"
)

func writePreset(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAssignsMissingIDs(t *testing.T) {
	dir := t.TempDir()
	path := writePreset(t, dir, "morning.json", `{
  "name": "Morning rush",
  "counting_lines": [
    {"name": "north gate", "points": [{"x": 0, "y": 150}, {"x": 300, "y": 150}]}
  ],
  "rois": [
    {"name": "intersection", "points": [{"x": 0, "y": 0}, {"x": 100, "y": 0}, {"x": 100, "y": 100}]}
  ]
}`)

	p, err := Load(path)
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Morning rush", p.Name)
	require.Len(t, p.Lines, 1)
	require.Len(t, p.ROIs, 1)
	assert.NotEmpty(t, p.Lines[0].ID)
	assert.NotEmpty(t, p.ROIs[0].ID)
	assert.NotEqual(t, p.Lines[0].ID, p.ROIs[0].ID)
}

func TestLoadRejectsBadTuning(t *testing.T) {
	dir := t.TempDir()
	path := writePreset(t, dir, "bad.json", `{
  "name": "Bad tuning",
  "tracker": {"hits_to_confirm": 0},
  "counting_lines": [],
  "rois": []
}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsNonJSON(t *testing.T) {
	_, err := Load("/some/path/preset.yaml")
	assert.Error(t, err)
}

func TestBoundariesOrderAndEnabled(t *testing.T) {
	off := false
	p := &Preset{
		ID:   "p1",
		Name: "test",
		Lines: []CountingLine{
			{ID: "line-1", Points: nil, Direction: "forward_only"},
			{ID: "line-2", Points: nil, Enabled: &off},
		},
		ROIs: []ROI{
			{ID: "roi-1", Points: nil},
		},
	}

	bs := p.Boundaries()
	require.Len(t, bs, 2, "disabled entries are skipped")
	assert.Equal(t, "line-1", bs[0].ID)
	assert.Equal(t, counting.BoundaryLine, bs[0].Kind)
	assert.Equal(t, counting.ModeForwardOnly, bs[0].Mode)
	assert.Equal(t, "roi-1", bs[1].ID)
	assert.Equal(t, counting.BoundaryPolygon, bs[1].Kind)
}

func TestTrackerConfigDefaults(t *testing.T) {
	p := &Preset{ID: "p1", Name: "test"}
	cfg := p.TrackerConfig()
	assert.Equal(t, counting.DefaultTrackerConfig(), cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evening.json")

	original := &Preset{
		Name: "Evening",
		Lines: []CountingLine{
			{ID: "line-1", Name: "south gate", Direction: "bidirectional"},
		},
	}
	require.NoError(t, Save(path, original))
	assert.NotEmpty(t, original.ID, "Save assigns an identifier")
	assert.False(t, original.Modified.IsZero())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, original.ID, loaded.ID)
	assert.Equal(t, "Evening", loaded.Name)
	require.Len(t, loaded.Lines, 1)
	assert.Equal(t, "south gate", loaded.Lines[0].Name)
}

func TestListSkipsUnreadable(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "a.json", `{"id": "a", "name": "Alpha", "counting_lines": [], "rois": []}`)
	writePreset(t, dir, "b.json", `{"id": "b", "name": "Beta", "counting_lines": [], "rois": []}`)
	writePreset(t, dir, "broken.json", `{not json`)
	writePreset(t, dir, "notes.txt", `not a preset`)

	infos, err := List(dir)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "Alpha", infos[0].Name)
	assert.Equal(t, "Beta", infos[1].Name)
}

func TestSaveInSanitizesName(t *testing.T) {
	dir := t.TempDir()

	p := &Preset{Name: "Morning Rush / Lane #2"}
	path, err := SaveIn(dir, p)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Morning_Rush_Lane_2.json"), path)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, p.ID, loaded.ID)
}

func TestSaveInFallsBackToID(t *testing.T) {
	dir := t.TempDir()

	p := &Preset{ID: "abc-123"}
	path, err := SaveIn(dir, p)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "abc-123.json"), path)

	infos, err := List(dir)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "abc-123", infos[0].ID)
}
