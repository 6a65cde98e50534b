package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/roadmetrics/countline/internal/counting"
	"github.com/roadmetrics/countline/internal/store"
)

func TestRenderHourly(t *testing.T) {
	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	counts := []store.HourlyCount{
		{Hour: base, Class: counting.ClassCar, Count: 12},
		{Hour: base, Class: counting.ClassTruck, Count: 3},
		{Hour: base.Add(time.Hour), Class: counting.ClassCar, Count: 7},
	}

	var buf bytes.Buffer
	if err := RenderHourly(&buf, "Morning session", counts); err != nil {
		t.Fatalf("RenderHourly failed: %v", err)
	}

	html := buf.String()
	for _, want := range []string{"Morning session", "car", "truck"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered chart missing %q", want)
		}
	}
}

func TestRenderHourlyEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderHourly(&buf, "Empty session", nil); err != nil {
		t.Fatalf("RenderHourly failed on empty input: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected HTML output even with no data")
	}
}

func TestPivotAxes(t *testing.T) {
	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	counts := []store.HourlyCount{
		{Hour: base.Add(time.Hour), Class: counting.ClassTruck, Count: 1},
		{Hour: base, Class: counting.ClassCar, Count: 2},
		{Hour: base, Class: counting.ClassTruck, Count: 3},
	}

	hours, classes := pivotAxes(counts)
	if len(hours) != 2 || !hours[0].Equal(base) {
		t.Errorf("hours = %v, want sorted starting at %v", hours, base)
	}
	if len(classes) != 2 || classes[0] != counting.ClassCar {
		t.Errorf("classes = %v, want [car truck]", classes)
	}
}
