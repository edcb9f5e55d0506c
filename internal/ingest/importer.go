package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	vquant "github.com/edges-ai/vquant"
	"github.com/edges-ai/vquant/frame"
	"github.com/edges-ai/vquant/storage"
)

// ImportStats summarizes one import run.
type ImportStats struct {
	Files   int
	Bars    int
	Tickers int
	Skipped int
}

// Importer writes parsed bars into the factor store, one ohlcv category
// file per instrument.
type Importer struct {
	store     storage.Store
	market    string
	timeframe string
	logger    *slog.Logger
}

// NewImporter creates an importer for one market and timeframe.
func NewImporter(store storage.Store, market, timeframe string, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, market: market, timeframe: timeframe, logger: logger}
}

// ImportFile parses one CSV or XLSX file and upserts its bars. When the file
// has no ticker column, the ticker falls back to the file name.
func (im *Importer) ImportFile(ctx context.Context, path string) (*ImportStats, error) {
	defaultTicker := TickerFromFilename(path)

	var (
		bars    []Bar
		rowErrs []error
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		bars, rowErrs, err = ParseCSVFile(path, defaultTicker)
	case ".xlsx":
		bars, rowErrs, err = ParseXLSX(path, "", defaultTicker)
	default:
		return nil, fmt.Errorf("unsupported file type %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	for _, rowErr := range rowErrs {
		im.logger.WarnContext(ctx, "skipped bad row",
			slog.String("file", path),
			slog.String("error", rowErr.Error()))
	}

	stats, err := im.ImportBars(ctx, bars)
	if err != nil {
		return nil, err
	}
	stats.Files = 1
	stats.Skipped += len(rowErrs)

	im.logger.InfoContext(ctx, "imported file",
		slog.String("file", path),
		slog.Int("bars", stats.Bars),
		slog.Int("tickers", stats.Tickers),
		slog.Int("skipped", stats.Skipped))
	return stats, nil
}

// ImportBars groups the bars per ticker and upserts each price column,
// merging with already stored dates.
func (im *Importer) ImportBars(ctx context.Context, bars []Bar) (*ImportStats, error) {
	stats := &ImportStats{}
	if len(bars) == 0 {
		return stats, nil
	}

	byTicker := make(map[string][]Bar)
	for _, bar := range bars {
		byTicker[bar.Ticker] = append(byTicker[bar.Ticker], bar)
	}

	tickers := make([]string, 0, len(byTicker))
	for ticker := range byTicker {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	for _, ticker := range tickers {
		n, err := im.importTicker(ctx, ticker, byTicker[ticker])
		if err != nil {
			return stats, fmt.Errorf("import %s: %w", ticker, err)
		}
		stats.Tickers++
		stats.Bars += n
	}
	return stats, nil
}

func (im *Importer) importTicker(ctx context.Context, ticker string, bars []Bar) (int, error) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	// Deduplicate on date, last occurrence wins.
	deduped := bars[:0]
	for _, bar := range bars {
		if len(deduped) > 0 && deduped[len(deduped)-1].Date.Equal(bar.Date) {
			deduped[len(deduped)-1] = bar
			continue
		}
		deduped = append(deduped, bar)
	}

	dates := make([]time.Time, len(deduped))
	columns := map[string][]float64{
		"open":   make([]float64, len(deduped)),
		"high":   make([]float64, len(deduped)),
		"low":    make([]float64, len(deduped)),
		"close":  make([]float64, len(deduped)),
		"volume": make([]float64, len(deduped)),
	}
	for i, bar := range deduped {
		dates[i] = bar.Date
		columns["open"][i] = bar.Open
		columns["high"][i] = bar.High
		columns["low"][i] = bar.Low
		columns["close"][i] = bar.Close
		columns["volume"][i] = bar.Volume
	}

	loc := storage.Locator{
		Market:    im.market,
		Ticker:    ticker,
		Timeframe: im.timeframe,
		Category:  vquant.CategoryOHLCV,
	}
	for _, column := range vquant.OHLCVColumns {
		series, err := frame.NewSeries(dates, columns[column])
		if err != nil {
			return 0, err
		}
		if err := im.store.Save(ctx, loc, column, series); err != nil {
			return 0, fmt.Errorf("save %s: %w", column, err)
		}
	}
	return len(deduped), nil
}

// TickerFromFilename derives a ticker symbol from a file name, e.g.
// "data/vnm_daily.csv" becomes "VNM".
func TickerFromFilename(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	// take the part before the first separator
	for _, sep := range []string{"_", "-", " ", "."} {
		if i := strings.Index(name, sep); i > 0 {
			name = name[:i]
		}
	}
	return strings.ToUpper(name)
}
