package services

import (
	"context"
	"sync"
	"time"

	vquant "github.com/edges-ai/vquant"
	"github.com/edges-ai/vquant/frame"
)

// stubClient implements ResearchData and operations.ResearchClient over
// canned frames, so services can be tested without a store.
type stubClient struct {
	mu sync.Mutex

	market    string
	timeframe string

	ohlcv   *frame.Frame
	factors *frame.Frame
	catalog []vquant.FactorInfo
	result  *vquant.StudyResult

	ohlcvErr   error
	factorsErr error
	catalogErr error
	studyErr   error

	studyCalls int
}

func (c *stubClient) Market() string    { return c.market }
func (c *stubClient) Timeframe() string { return c.timeframe }

func (c *stubClient) GetOHLCV(ctx context.Context, tickers, columns []string) (*frame.Frame, error) {
	if c.ohlcvErr != nil {
		return nil, c.ohlcvErr
	}
	return c.ohlcv, nil
}

func (c *stubClient) GetFactors(ctx context.Context, tickers []string, factors ...vquant.Factor) (*frame.Frame, error) {
	if c.factorsErr != nil {
		return nil, c.factorsErr
	}
	return c.factors, nil
}

func (c *stubClient) ListFactors(ctx context.Context, category string) ([]vquant.FactorInfo, error) {
	if c.catalogErr != nil {
		return nil, c.catalogErr
	}
	if category == "" {
		return c.catalog, nil
	}
	var filtered []vquant.FactorInfo
	for _, info := range c.catalog {
		if info.Category == category {
			filtered = append(filtered, info)
		}
	}
	return filtered, nil
}

func (c *stubClient) Study(ctx context.Context, req vquant.StudyRequest) (*vquant.StudyResult, error) {
	c.mu.Lock()
	c.studyCalls++
	c.mu.Unlock()
	if c.studyErr != nil {
		return nil, c.studyErr
	}
	return c.result, nil
}

// stubReporter records report requests without touching the filesystem.
type stubReporter struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (r *stubReporter) Write(ctx context.Context, baseName string, formats []string, result *vquant.StudyResult) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, format := range formats {
		r.paths = append(r.paths, baseName+"."+format)
	}
	return r.paths, nil
}

// stubHub satisfies operations.WebSocketHub and ClientCounter.
type stubHub struct {
	mu      sync.Mutex
	events  int
	clients int
}

func (h *stubHub) BroadcastUpdate(eventType, subtype, action string, data interface{}) {
	h.mu.Lock()
	h.events++
	h.mu.Unlock()
}

func (h *stubHub) ClientCount() int { return h.clients }

// testFrame builds a small frame with the given keys, one row per day
// starting 2024-01-02.
func testFrame(rows int, keys ...frame.Key) *frame.Frame {
	dates := make([]time.Time, rows)
	values := make([]float64, rows)
	for i := range dates {
		dates[i] = time.Date(2024, 1, 2+i, 0, 0, 0, 0, time.UTC)
		values[i] = float64(100 + i)
	}
	b := frame.NewBuilder()
	for _, k := range keys {
		s, err := frame.NewSeries(dates, values)
		if err != nil {
			panic(err)
		}
		if err := b.Add(k, s); err != nil {
			panic(err)
		}
	}
	return b.Build()
}
