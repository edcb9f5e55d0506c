package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	vquant "github.com/edges-ai/vquant"
	"github.com/edges-ai/vquant/frame"
)

// utf8BOM helps Excel recognize the encoding when a report is opened
// directly.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var correlationHeaders = []string{"ticker", "column", "correlation", "n"}

// writeCorrelationsCSV writes the correlation table to path.
func writeCorrelationsCSV(path string, correlations []vquant.Correlation) error {
	return writeCSV(path, correlationHeaders, correlationRows(correlations))
}

// writePanelCSV writes the aligned study panel to path.
func writePanelCSV(path string, panel *frame.Frame) error {
	headers, rows := panelRows(panel)
	return writeCSV(path, headers, rows)
}

// writeCSV writes a BOM-prefixed CSV file, creating parent directories as
// needed.
func writeCSV(path string, headers []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(utf8BOM); err != nil {
		return fmt.Errorf("write BOM: %w", err)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("write headers: %w", err)
	}
	for i, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Sync()
}
