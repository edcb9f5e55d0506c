package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseCSV(t *testing.T) {
	csvData := `Date,Open,High,Low,Close,Volume
2024-01-02,100,105,99,102,15000
2024-01-03,102,104,101,103,"12,500"
`
	bars, rowErrs, err := ParseCSV(strings.NewReader(csvData), "VNM")
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, bars, 2)

	assert.Equal(t, "VNM", bars[0].Ticker)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), bars[0].Date)
	assert.Equal(t, 102.0, bars[0].Close)
	assert.Equal(t, 12500.0, bars[1].Volume, "thousand separators parse")
}

func TestParseCSVHeaderAliases(t *testing.T) {
	csvData := `symbol,time,o,h,l,adj close,vol
FPT,2024/01/02,50,52,49,51,8000
`
	bars, rowErrs, err := ParseCSV(strings.NewReader(csvData), "")
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, bars, 1)
	assert.Equal(t, "FPT", bars[0].Ticker)
	assert.Equal(t, 51.0, bars[0].Close)
}

func TestParseCSVPreambleAndBlankRows(t *testing.T) {
	csvData := `Daily export
generated 2024-01-05

Date,Close
2024-01-02,100

2024-01-03,101
`
	bars, rowErrs, err := ParseCSV(strings.NewReader(csvData), "VNM")
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, bars, 2)
	// close-only files fill the other prices from the close
	assert.Equal(t, bars[0].Close, bars[0].High)
}

func TestParseCSVBadRowsAreCollected(t *testing.T) {
	csvData := `Date,Open,High,Low,Close,Volume
2024-01-02,100,105,99,102,15000
not-a-date,100,105,99,102,15000
2024-01-04,100,95,99,102,15000
2024-01-05,101,106,100,104,9000
`
	bars, rowErrs, err := ParseCSV(strings.NewReader(csvData), "VNM")
	require.NoError(t, err)
	assert.Len(t, bars, 2, "good rows survive bad neighbors")
	require.Len(t, rowErrs, 2)
	assert.Contains(t, rowErrs[0].Error(), "row 3")
	assert.Contains(t, rowErrs[1].Error(), "row 4")
}

func TestParseCSVNoHeader(t *testing.T) {
	_, _, err := ParseCSV(strings.NewReader("1,2,3\n4,5,6\n"), "VNM")
	assert.Error(t, err)
}

func TestParseCSVFileWithBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vnm_daily.csv")
	content := "\xEF\xBB\xBFDate,Close\n2024-01-02,100\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	bars, rowErrs, err := ParseCSVFile(path, "VNM")
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, bars, 1)
}

func TestParseXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.xlsx")

	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Date", "Open", "High", "Low", "Close", "Volume"},
		{"2024-01-02", 100, 105, 99, 102, 15000},
		{"2024-01-03", 102, 104, 101, 103, 12500},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	bars, rowErrs, err := ParseXLSX(path, "", "VNM")
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, bars, 2)
	assert.Equal(t, 103.0, bars[1].Close)
}

func TestParseXLSXMissingSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	_, _, err := ParseXLSX(path, "Nope", "VNM")
	assert.Error(t, err)
}

func TestTickerFromFilename(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "data/vnm_daily.csv", want: "VNM"},
		{path: "FPT-2024.xlsx", want: "FPT"},
		{path: "hpg.csv", want: "HPG"},
		{path: "/abs/path/msn 2024.csv", want: "MSN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TickerFromFilename(tt.path), tt.path)
	}
}
