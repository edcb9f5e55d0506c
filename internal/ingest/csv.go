package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// ParseCSV reads daily bars from CSV. The first row naming at least a date
// and a close column is taken as the header; rows above it are skipped.
// defaultTicker fills in for files without a ticker column. Bad rows are
// reported, not fatal.
func ParseCSV(r io.Reader, defaultTicker string) ([]Bar, []error, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	return parseTable(rows, defaultTicker)
}

// ParseCSVFile reads daily bars from a CSV file, tolerating a UTF-8 BOM.
func ParseCSVFile(path, defaultTicker string) ([]Bar, []error, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
	return ParseCSV(bytes.NewReader(raw), defaultTicker)
}

// parseTable finds the header row and parses everything below it.
func parseTable(rows [][]string, defaultTicker string) ([]Bar, []error, error) {
	for i, row := range rows {
		cm, ok := mapHeader(row)
		if !ok {
			continue
		}
		bars, rowErrs := parseRows(rows[i+1:], cm, defaultTicker, i+1)
		return bars, rowErrs, nil
	}
	return nil, nil, fmt.Errorf("no header row with date and close columns found")
}
