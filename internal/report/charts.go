package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	vquant "github.com/edges-ai/vquant"
	"github.com/edges-ai/vquant/frame"
)

// writeChartPage renders the study as a single self-contained HTML page:
// a correlation bar chart followed by one line chart per ticker.
func writeChartPage(path string, result *vquant.StudyResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	page := components.NewPage()
	page.SetPageTitle("vquant study")
	page.AddCharts(correlationChart(result.Correlations))
	if result.Panel != nil {
		for _, ticker := range result.Panel.Tickers() {
			page.AddCharts(tickerChart(result.Panel, ticker))
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer file.Close()

	if err := page.Render(file); err != nil {
		return fmt.Errorf("render charts: %w", err)
	}
	return nil
}

// correlationChart draws one bar per (ticker, column) correlation. Pairs
// with too few complete rows come out as NaN and are skipped.
func correlationChart(correlations []vquant.Correlation) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Correlation with daily return",
			Subtitle: "Pearson, pairwise complete",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithInitializationOpts(opts.Initialization{Width: "1100px", Height: "450px"}),
	)

	labels := make([]string, 0, len(correlations))
	values := make([]opts.BarData, 0, len(correlations))
	for _, c := range correlations {
		if math.IsNaN(c.Value) {
			continue
		}
		labels = append(labels, c.Ticker+" "+c.Column)
		values = append(values, opts.BarData{Value: c.Value})
	}
	bar.SetXAxis(labels).AddSeries("correlation", values)
	return bar
}

// tickerChart draws every panel column of one ticker over the shared date
// index.
func tickerChart(panel *frame.Frame, ticker string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: ticker}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithInitializationOpts(opts.Initialization{Width: "1100px", Height: "450px"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)

	dates := make([]string, 0, panel.Len())
	for _, d := range panel.Dates() {
		dates = append(dates, d.Format("2006-01-02"))
	}
	line.SetXAxis(dates)

	for _, k := range panel.KeysFor(ticker) {
		col, ok := panel.Column(k)
		if !ok {
			continue
		}
		data := make([]opts.LineData, 0, len(col))
		for _, v := range col {
			if math.IsNaN(v) {
				// nil renders as a gap rather than a zero
				data = append(data, opts.LineData{Value: nil})
				continue
			}
			data = append(data, opts.LineData{Value: v})
		}
		line.AddSeries(k.Column, data)
	}
	return line
}
