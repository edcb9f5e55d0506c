package vquant

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/edges-ai/vquant/frame"
	"github.com/edges-ai/vquant/technical"
)

// Winsorization is a cross-sectional percentile clamp applied to factor
// columns before correlating, keeping outliers from dominating the result.
type Winsorization struct {
	Lower float64
	Upper float64
}

// DefaultWinsorization clamps at the 5th and 95th percentiles.
func DefaultWinsorization() Winsorization {
	return Winsorization{Lower: technical.DefaultWinsorLower, Upper: technical.DefaultWinsorUpper}
}

// Validate checks the bounds are ordered percentiles.
func (w Winsorization) Validate() error {
	if w.Lower < 0 || w.Upper > 1 || w.Lower >= w.Upper {
		return fmt.Errorf("invalid winsorization bounds [%v, %v]", w.Lower, w.Upper)
	}
	return nil
}

// StudyRequest describes one correlation study: which tickers to load and
// which factors and signals to relate to daily returns.
type StudyRequest struct {
	Tickers []string
	Factors []Factor
	Signals []*Signal
	// Winsorize, when set, clamps each factor column cross-sectionally per
	// date before correlating.
	Winsorize *Winsorization
}

// Validate checks the request is runnable.
func (r StudyRequest) Validate() error {
	if len(r.Tickers) == 0 {
		return fmt.Errorf("no tickers given")
	}
	for i, s := range r.Signals {
		if s == nil {
			return fmt.Errorf("nil signal at %d", i)
		}
	}
	if len(r.Factors) > 0 {
		if err := validateFactorSet(r.Factors); err != nil {
			return err
		}
	}
	if r.Winsorize != nil {
		if err := r.Winsorize.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Correlation is the Pearson correlation between a ticker's daily return and
// one factor or signal column, over the rows where both are observed.
type Correlation struct {
	Ticker string  `json:"ticker"`
	Column string  `json:"column"`
	Value  float64 `json:"value"`
	N      int     `json:"n"`
}

// StudyResult is a study's output: the full aligned panel (close, daily
// return, factors, signals per ticker) and the per-ticker correlations.
type StudyResult struct {
	Panel        *frame.Frame
	Correlations []Correlation
}

// Study loads close prices for the tickers, derives daily returns, fetches
// the factors, evaluates the signals and correlates every factor and signal
// column with the ticker's daily return. Correlations are pairwise-complete:
// rows where either side is NaN are skipped, and fewer than two complete
// pairs yields a NaN value with N recorded.
func (c *Client) Study(ctx context.Context, req StudyRequest) (*StudyResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	closes, err := c.GetOHLCV(ctx, req.Tickers, []string{"close"})
	if err != nil {
		return nil, err
	}

	b := frame.NewBuilder()
	if err := b.AddFrame(closes); err != nil {
		return nil, err
	}

	for _, ticker := range req.Tickers {
		closeSeries, ok := closes.Series(frame.Key{Column: "close", Ticker: ticker})
		if !ok {
			return nil, fmt.Errorf("close column missing for %s", ticker)
		}
		returns, err := closeSeries.Apply(technical.PctChange)
		if err != nil {
			return nil, err
		}
		if err := b.Add(frame.Key{Column: ColumnDailyReturn, Ticker: ticker}, returns); err != nil {
			return nil, err
		}
	}

	var studyColumns []string
	if len(req.Factors) > 0 {
		factorFrame, err := c.GetFactors(ctx, req.Tickers, req.Factors...)
		if err != nil {
			return nil, err
		}
		if req.Winsorize != nil {
			factorFrame, err = winsorizeCrossSection(factorFrame, *req.Winsorize)
			if err != nil {
				return nil, err
			}
		}
		if err := b.AddFrame(factorFrame); err != nil {
			return nil, err
		}
		for _, f := range req.Factors {
			studyColumns = append(studyColumns, f.FullName())
		}
	}

	for _, sig := range req.Signals {
		for _, ticker := range req.Tickers {
			s, err := sig.Evaluate(ctx, c, ticker)
			if err != nil {
				return nil, err
			}
			if err := b.Add(frame.Key{Column: sig.FullName(), Ticker: ticker}, s); err != nil {
				return nil, err
			}
		}
	}
	for _, sig := range req.Signals {
		studyColumns = append(studyColumns, sig.FullName())
	}

	panel := b.Build()

	correlations := make([]Correlation, 0, len(req.Tickers)*len(studyColumns))
	for _, ticker := range req.Tickers {
		returns, _ := panel.Column(frame.Key{Column: ColumnDailyReturn, Ticker: ticker})
		for _, column := range studyColumns {
			values, ok := panel.Column(frame.Key{Column: column, Ticker: ticker})
			if !ok {
				continue
			}
			r, n := pearson(returns, values)
			correlations = append(correlations, Correlation{
				Ticker: ticker,
				Column: column,
				Value:  r,
				N:      n,
			})
		}
	}

	c.logger.InfoContext(ctx, "study completed",
		"market", c.market,
		"tickers", len(req.Tickers),
		"factors", len(req.Factors),
		"signals", len(req.Signals),
		"rows", panel.Len(),
		"correlations", len(correlations),
		"duration", time.Since(start),
	)

	return &StudyResult{Panel: panel, Correlations: correlations}, nil
}

// winsorizeCrossSection clamps each column group (one factor across all
// tickers) row by row, so a date's outliers are bounded by that date's own
// cross-section.
func winsorizeCrossSection(f *frame.Frame, w Winsorization) (*frame.Frame, error) {
	keys := f.Keys()
	dates := f.Dates()

	var columnOrder []string
	grouped := make(map[string][]frame.Key)
	for _, k := range keys {
		if _, ok := grouped[k.Column]; !ok {
			columnOrder = append(columnOrder, k.Column)
		}
		grouped[k.Column] = append(grouped[k.Column], k)
	}

	values := make(map[frame.Key][]float64, len(keys))
	for _, k := range keys {
		col, _ := f.Column(k)
		values[k] = col
	}

	for _, column := range columnOrder {
		group := grouped[column]
		row := make([]float64, len(group))
		for i := range dates {
			for j, k := range group {
				row[j] = values[k][i]
			}
			clamped := technical.Winsorize(row, w.Lower, w.Upper)
			for j, k := range group {
				values[k][i] = clamped[j]
			}
		}
	}

	b := frame.NewBuilder()
	for _, k := range keys {
		s, err := frame.NewSeries(dates, values[k])
		if err != nil {
			return nil, err
		}
		if err := b.Add(k, s); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

// pearson computes the correlation over the pairwise-complete observations.
func pearson(x, y []float64) (float64, int) {
	var sx, sy, sxx, syy, sxy float64
	n := 0
	for i := range x {
		if i >= len(y) {
			break
		}
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		n++
		sx += x[i]
		sy += y[i]
		sxx += x[i] * x[i]
		syy += y[i] * y[i]
		sxy += x[i] * y[i]
	}
	if n < 2 {
		return math.NaN(), n
	}

	cov := sxy - sx*sy/float64(n)
	vx := sxx - sx*sx/float64(n)
	vy := syy - sy*sy/float64(n)
	if vx <= 0 || vy <= 0 {
		return math.NaN(), n
	}
	return cov / math.Sqrt(vx*vy), n
}
