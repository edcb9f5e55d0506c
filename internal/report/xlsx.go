package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	vquant "github.com/edges-ai/vquant"
)

const (
	correlationsSheet = "Correlations"
	panelSheet        = "Panel"
)

// writeWorkbook writes the study result as an XLSX workbook with one sheet
// for the correlation table and one for the aligned panel.
func writeWorkbook(path string, result *vquant.StudyResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", correlationsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(panelSheet); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := fillCorrelationsSheet(f, headerStyle, result.Correlations); err != nil {
		return err
	}
	if err := fillPanelSheet(f, headerStyle, result); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func fillCorrelationsSheet(f *excelize.File, headerStyle int, correlations []vquant.Correlation) error {
	if err := writeHeaderRow(f, correlationsSheet, headerStyle, correlationHeaders); err != nil {
		return err
	}

	for i, c := range correlations {
		row := i + 2
		cells := []interface{}{c.Ticker, c.Column, cellValue(c.Value), c.N}
		for col, v := range cells {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(correlationsSheet, cell, v); err != nil {
				return err
			}
		}
	}

	return f.SetColWidth(correlationsSheet, "A", "B", 24)
}

func fillPanelSheet(f *excelize.File, headerStyle int, result *vquant.StudyResult) error {
	panel := result.Panel
	if panel == nil {
		return writeHeaderRow(f, panelSheet, headerStyle, []string{"date"})
	}

	keys := panel.Keys()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Ticker != keys[j].Ticker {
			return keys[i].Ticker < keys[j].Ticker
		}
		return keys[i].Column < keys[j].Column
	})

	headers := make([]string, 0, len(keys)+1)
	headers = append(headers, "date")
	for _, k := range keys {
		headers = append(headers, k.String())
	}
	if err := writeHeaderRow(f, panelSheet, headerStyle, headers); err != nil {
		return err
	}

	for i := 0; i < panel.Len(); i++ {
		row := i + 2
		dateCell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(panelSheet, dateCell, panel.Date(i).Format("2006-01-02")); err != nil {
			return err
		}
		for col, k := range keys {
			v := panel.Value(i, k)
			if math.IsNaN(v) {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+2, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(panelSheet, cell, v); err != nil {
				return err
			}
		}
	}

	return f.SetColWidth(panelSheet, "A", "A", 12)
}

func writeHeaderRow(f *excelize.File, sheet string, style int, headers []string) error {
	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

// cellValue maps NaN to an empty cell.
func cellValue(v float64) interface{} {
	if math.IsNaN(v) {
		return nil
	}
	return v
}
