package report

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	vquant "github.com/edges-ai/vquant"
	"github.com/edges-ai/vquant/frame"
	"github.com/edges-ai/vquant/internal/config"
)

// Supported report formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatHTML = "html"
)

// Writer renders study results into the reports directory.
type Writer struct {
	paths  *config.Paths
	logger *slog.Logger
	now    func() time.Time
}

// NewWriter creates a report writer rooted at the configured reports
// directory.
func NewWriter(paths *config.Paths, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{paths: paths, logger: logger, now: time.Now}
}

// Write renders the result in each requested format and returns the paths
// written. All files of one call share a timestamp, so a study's artifacts
// sort together.
func (w *Writer) Write(ctx context.Context, baseName string, formats []string, result *vquant.StudyResult) ([]string, error) {
	if result == nil {
		return nil, fmt.Errorf("nil study result")
	}
	if baseName == "" {
		baseName = "study"
	}

	at := w.now()
	var artifacts []string
	for _, format := range formats {
		paths, err := w.writeFormat(ctx, baseName, format, at, result)
		if err != nil {
			return nil, fmt.Errorf("write %s report: %w", format, err)
		}
		artifacts = append(artifacts, paths...)
	}

	w.logger.InfoContext(ctx, "study reports written",
		slog.String("base_name", baseName),
		slog.Int("files", len(artifacts)))
	return artifacts, nil
}

func (w *Writer) writeFormat(ctx context.Context, baseName, format string, at time.Time, result *vquant.StudyResult) ([]string, error) {
	switch format {
	case FormatCSV:
		corrPath := w.paths.TimestampedReportPath(baseName+"_correlations", "csv", at)
		if err := writeCorrelationsCSV(corrPath, result.Correlations); err != nil {
			return nil, err
		}
		panelPath := w.paths.TimestampedReportPath(baseName+"_panel", "csv", at)
		if err := writePanelCSV(panelPath, result.Panel); err != nil {
			return nil, err
		}
		return []string{corrPath, panelPath}, nil
	case FormatXLSX:
		path := w.paths.TimestampedReportPath(baseName, "xlsx", at)
		if err := writeWorkbook(path, result); err != nil {
			return nil, err
		}
		return []string{path}, nil
	case FormatHTML:
		path := w.paths.TimestampedReportPath(baseName, "html", at)
		if err := writeChartPage(path, result); err != nil {
			return nil, err
		}
		return []string{path}, nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// correlationRows flattens the correlation table into CSV records.
func correlationRows(correlations []vquant.Correlation) [][]string {
	rows := make([][]string, 0, len(correlations))
	for _, c := range correlations {
		rows = append(rows, []string{
			c.Ticker,
			c.Column,
			formatValue(c.Value),
			strconv.Itoa(c.N),
		})
	}
	return rows
}

// panelRows flattens the aligned panel: one date column followed by one
// column per (ticker, column) key. NaN cells come out empty.
func panelRows(panel *frame.Frame) (headers []string, rows [][]string) {
	if panel == nil {
		return []string{"date"}, nil
	}

	keys := panel.Keys()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Ticker != keys[j].Ticker {
			return keys[i].Ticker < keys[j].Ticker
		}
		return keys[i].Column < keys[j].Column
	})

	headers = make([]string, 0, len(keys)+1)
	headers = append(headers, "date")
	for _, k := range keys {
		headers = append(headers, k.String())
	}

	rows = make([][]string, 0, panel.Len())
	for i := 0; i < panel.Len(); i++ {
		row := make([]string, 0, len(keys)+1)
		row = append(row, panel.Date(i).Format("2006-01-02"))
		for _, k := range keys {
			row = append(row, formatValue(panel.Value(i, k)))
		}
		rows = append(rows, row)
	}
	return headers, rows
}

// formatValue renders a cell; NaN becomes an empty cell.
func formatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}
