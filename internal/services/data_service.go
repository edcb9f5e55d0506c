package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	vquant "github.com/edges-ai/vquant"
	"github.com/edges-ai/vquant/frame"
	"github.com/edges-ai/vquant/storage"
)

// ResearchData is the slice of the research client the data service needs.
// *vquant.Client satisfies it.
type ResearchData interface {
	Market() string
	Timeframe() string
	GetOHLCV(ctx context.Context, tickers []string, columns []string) (*frame.Frame, error)
	GetFactors(ctx context.Context, tickers []string, factors ...vquant.Factor) (*frame.Frame, error)
	ListFactors(ctx context.Context, category string) ([]vquant.FactorInfo, error)
}

// FactorSummary is one catalog entry as served to API clients.
type FactorSummary struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	FullName string `json:"full_name"`
}

// SeriesData is one aligned column of a frame. Missing observations are
// encoded as JSON null.
type SeriesData struct {
	Ticker string     `json:"ticker"`
	Column string     `json:"column"`
	Values []*float64 `json:"values"`
}

// FrameData is the wire form of a frame: one shared date index plus one
// value column per (ticker, column) pair.
type FrameData struct {
	Market    string       `json:"market"`
	Timeframe string       `json:"timeframe"`
	Dates     []string     `json:"dates"`
	Series    []SeriesData `json:"series"`
}

// DataService answers catalog and market data queries.
type DataService struct {
	client ResearchData
	logger *slog.Logger
}

// NewDataService creates a data service over the given research client.
func NewDataService(client ResearchData, logger *slog.Logger) *DataService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataService{client: client, logger: logger}
}

// Catalog lists the stored factors for the configured market and timeframe,
// optionally filtered to one category.
func (s *DataService) Catalog(ctx context.Context, category string) ([]FactorSummary, error) {
	if category != "" && !storage.IsIdent(category) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}

	start := time.Now()
	infos, err := s.client.ListFactors(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("list factors: %w", err)
	}

	summaries := make([]FactorSummary, 0, len(infos))
	for _, info := range infos {
		summaries = append(summaries, FactorSummary{
			Name:     info.Name,
			Category: info.Category,
			FullName: info.FullName(),
		})
	}

	s.logger.DebugContext(ctx, "catalog listed",
		slog.String("category", category),
		slog.Int("factors", len(summaries)),
		slog.Duration("duration", time.Since(start)))
	return summaries, nil
}

// GetOHLCV loads price columns for the given tickers. An empty columns slice
// loads every stored price column.
func (s *DataService) GetOHLCV(ctx context.Context, tickers, columns []string) (*FrameData, error) {
	start := time.Now()
	panel, err := s.client.GetOHLCV(ctx, tickers, columns)
	if err != nil {
		return nil, err
	}

	data := s.frameData(panel)
	s.logger.DebugContext(ctx, "ohlcv loaded",
		slog.Int("tickers", len(tickers)),
		slog.Int("rows", panel.Len()),
		slog.Int("columns", panel.NumColumns()),
		slog.Duration("duration", time.Since(start)))
	return data, nil
}

// GetFactorData resolves the given factor references and loads them for the
// given tickers, aligned on a shared date index.
func (s *DataService) GetFactorData(ctx context.Context, tickers, refs []string) (*FrameData, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("no factors requested")
	}
	factors := make([]vquant.Factor, 0, len(refs))
	for _, ref := range refs {
		r := vquant.Ref(ref)
		if err := r.Validate(); err != nil {
			return nil, err
		}
		factors = append(factors, r)
	}

	start := time.Now()
	f, err := s.client.GetFactors(ctx, tickers, factors...)
	if err != nil {
		return nil, err
	}

	data := s.frameData(f)
	s.logger.DebugContext(ctx, "factor data loaded",
		slog.Int("tickers", len(tickers)),
		slog.Int("factors", len(refs)),
		slog.Int("rows", f.Len()),
		slog.Duration("duration", time.Since(start)))
	return data, nil
}

// frameData converts a frame to its wire form, encoding NaN cells as nulls.
func (s *DataService) frameData(f *frame.Frame) *FrameData {
	data := &FrameData{
		Market:    s.client.Market(),
		Timeframe: s.client.Timeframe(),
		Dates:     make([]string, 0, f.Len()),
		Series:    make([]SeriesData, 0, f.NumColumns()),
	}
	for _, d := range f.Dates() {
		data.Dates = append(data.Dates, d.Format("2006-01-02"))
	}
	for _, k := range f.Keys() {
		col, _ := f.Column(k)
		values := make([]*float64, len(col))
		for i, v := range col {
			if !math.IsNaN(v) {
				v := v
				values[i] = &v
			}
		}
		data.Series = append(data.Series, SeriesData{
			Ticker: k.Ticker,
			Column: k.Column,
			Values: values,
		})
	}
	return data
}
