// Package report renders session count data as standalone HTML charts.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/roadmetrics/countline/internal/counting"
	"github.com/roadmetrics/countline/internal/store"
)

// RenderHourly writes an HTML page with a stacked per-class bar chart of
// hourly counts.
func RenderHourly(w io.Writer, title string, counts []store.HourlyCount) error {
	hours, classes := pivotAxes(counts)

	byKey := make(map[string]int, len(counts))
	for _, c := range counts {
		byKey[c.Hour.Format(time.RFC3339)+"|"+string(c.Class)] = c.Count
	}

	labels := make([]string, len(hours))
	for i, h := range hours {
		labels[i] = h.Format("Jan 2 15:04")
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1100px", Height: "520px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d hour buckets", len(hours))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	bar.SetXAxis(labels)
	for _, class := range classes {
		data := make([]opts.BarData, len(hours))
		for i, h := range hours {
			data[i] = opts.BarData{Value: byKey[h.Format(time.RFC3339)+"|"+string(class)]}
		}
		bar.AddSeries(string(class), data, charts.WithBarChartOpts(opts.BarChart{Stack: "total"}))
	}

	return bar.Render(w)
}

// pivotAxes extracts the sorted distinct hours and classes from the buckets.
func pivotAxes(counts []store.HourlyCount) ([]time.Time, []counting.VehicleClass) {
	hourSet := make(map[time.Time]bool)
	classSet := make(map[counting.VehicleClass]bool)
	for _, c := range counts {
		hourSet[c.Hour] = true
		classSet[c.Class] = true
	}

	hours := make([]time.Time, 0, len(hourSet))
	for h := range hourSet {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i].Before(hours[j]) })

	classes := make([]counting.VehicleClass, 0, len(classSet))
	for c := range classSet {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })

	return hours, classes
}
