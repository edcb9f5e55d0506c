package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// columnMap locates the bar fields inside a header row. Ticker is optional;
// files covering a single instrument usually omit it.
type columnMap struct {
	date   int
	open   int
	high   int
	low    int
	close  int
	volume int
	ticker int
}

// header aliases, compared lowercased and trimmed
var headerAliases = map[string][]string{
	"date":   {"date", "time", "day", "trading date"},
	"open":   {"open", "open price", "o"},
	"high":   {"high", "high price", "h"},
	"low":    {"low", "low price", "l"},
	"close":  {"close", "close price", "adj close", "closing price", "c"},
	"volume": {"volume", "vol", "total volume", "v"},
	"ticker": {"ticker", "symbol", "code", "instrument"},
}

// dateLayouts in order of preference; the first layout that parses wins.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"01/02/2006",
	"20060102",
	"2006-01-02 15:04:05",
}

// mapHeader matches a candidate header row against the known aliases. A row
// qualifies when it names at least date and close.
func mapHeader(row []string) (columnMap, bool) {
	cm := columnMap{date: -1, open: -1, high: -1, low: -1, close: -1, volume: -1, ticker: -1}

	set := func(field string, index int) {
		switch field {
		case "date":
			cm.date = index
		case "open":
			cm.open = index
		case "high":
			cm.high = index
		case "low":
			cm.low = index
		case "close":
			cm.close = index
		case "volume":
			cm.volume = index
		case "ticker":
			cm.ticker = index
		}
	}

	for i, cell := range row {
		name := strings.ToLower(strings.TrimSpace(cell))
		for field, aliases := range headerAliases {
			for _, alias := range aliases {
				if name == alias {
					set(field, i)
				}
			}
		}
	}

	return cm, cm.date >= 0 && cm.close >= 0
}

// parseRows turns data rows into bars using the column map. Rows that fail
// to parse or validate are collected as row-numbered errors rather than
// aborting the whole file.
func parseRows(rows [][]string, cm columnMap, defaultTicker string, startRow int) ([]Bar, []error) {
	var bars []Bar
	var errs []error

	for i, row := range rows {
		if emptyRow(row) {
			continue
		}

		bar, err := parseRow(row, cm, defaultTicker)
		if err != nil {
			errs = append(errs, fmt.Errorf("row %d: %w", startRow+i+1, err))
			continue
		}
		if err := bar.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("row %d: %w", startRow+i+1, err))
			continue
		}
		bars = append(bars, bar)
	}
	return bars, errs
}

func parseRow(row []string, cm columnMap, defaultTicker string) (Bar, error) {
	bar := Bar{Ticker: defaultTicker}

	if cm.ticker >= 0 {
		if ticker := strings.ToUpper(strings.TrimSpace(cell(row, cm.ticker))); ticker != "" {
			bar.Ticker = ticker
		}
	}

	date, err := parseDate(cell(row, cm.date))
	if err != nil {
		return bar, err
	}
	bar.Date = date

	if bar.Close, err = parseNumber(cell(row, cm.close)); err != nil {
		return bar, fmt.Errorf("close: %w", err)
	}

	// Files with only date and close still import; the missing fields
	// default to the close so the bar stays consistent.
	bar.Open, bar.High, bar.Low = bar.Close, bar.Close, bar.Close
	if cm.open >= 0 {
		if bar.Open, err = parseNumber(cell(row, cm.open)); err != nil {
			return bar, fmt.Errorf("open: %w", err)
		}
	}
	if cm.high >= 0 {
		if bar.High, err = parseNumber(cell(row, cm.high)); err != nil {
			return bar, fmt.Errorf("high: %w", err)
		}
	}
	if cm.low >= 0 {
		if bar.Low, err = parseNumber(cell(row, cm.low)); err != nil {
			return bar, fmt.Errorf("low: %w", err)
		}
	}
	if cm.volume >= 0 {
		if bar.Volume, err = parseNumber(cell(row, cm.volume)); err != nil {
			return bar, fmt.Errorf("volume: %w", err)
		}
	}

	return bar, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d.UTC().Truncate(24 * time.Hour), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

// parseNumber accepts plain floats plus thousand separators ("1,234.5").
func parseNumber(raw string) (float64, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" || raw == "-" {
		return 0, fmt.Errorf("empty number")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable number %q", raw)
	}
	return v, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func emptyRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
