package ingest

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ParseXLSX reads daily bars from an XLSX workbook. With sheet empty, every
// sheet is tried and the first one with a recognizable header wins.
func ParseXLSX(path, sheet, defaultTicker string) ([]Bar, []error, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if sheet != "" {
		sheets = []string{sheet}
	}

	for _, name := range sheets {
		rows, err := f.GetRows(name)
		if err != nil {
			if sheet != "" {
				return nil, nil, fmt.Errorf("read sheet %q: %w", name, err)
			}
			continue
		}
		bars, rowErrs, err := parseTable(rows, defaultTicker)
		if err != nil {
			if sheet != "" {
				return nil, nil, fmt.Errorf("sheet %q: %w", name, err)
			}
			continue
		}
		return bars, rowErrs, nil
	}

	return nil, nil, fmt.Errorf("no sheet in %s has a recognizable bar table", path)
}
