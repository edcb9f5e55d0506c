package vquant

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edges-ai/vquant/frame"
	"github.com/edges-ai/vquant/storage"
)

// DefaultTimeframe is the bar interval assumed when none is configured.
const DefaultTimeframe = "1d"

// DefaultMaxConcurrency bounds how many tickers load in parallel.
const DefaultMaxConcurrency = 4

// FactorInfo is one catalog entry.
type FactorInfo = storage.FactorInfo

// Client is the entry point for factor and signal research over one market.
// It is safe for concurrent use.
type Client struct {
	market         string
	timeframe      string
	store          storage.Store
	ownsStore      bool
	logger         *slog.Logger
	maxConcurrency int

	mu      sync.RWMutex
	factors map[string]Factor // computed factors registered by full name
}

type options struct {
	timeframe      string
	store          storage.Store
	logger         *slog.Logger
	maxConcurrency int
	cacheDir       string
	remoteConfig   *storage.RemoteConfig
}

// Option configures a Client.
type Option func(*options)

// WithTimeframe sets the bar interval, e.g. "1d" or "1h".
func WithTimeframe(timeframe string) Option {
	return func(o *options) { o.timeframe = timeframe }
}

// WithStore injects a prebuilt store. The caller keeps ownership and must
// close it; the base URL passed to New is ignored.
func WithStore(store storage.Store) Option {
	return func(o *options) { o.store = store }
}

// WithLogger sets the structured logger; slog.Default is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMaxConcurrency bounds parallel per-ticker loads.
func WithMaxConcurrency(n int) Option {
	return func(o *options) { o.maxConcurrency = n }
}

// WithCacheDir sets where a remote store caches downloaded files.
func WithCacheDir(dir string) Option {
	return func(o *options) { o.cacheDir = dir }
}

// WithRemoteConfig tunes remote fetching (TTL, throttling, HTTP client).
func WithRemoteConfig(cfg storage.RemoteConfig) Option {
	return func(o *options) { o.remoteConfig = &cfg }
}

// New builds a client for one market. baseURL selects the store: an http(s)
// URL opens a cached remote store, anything else is a local directory tree.
func New(market, baseURL string, opts ...Option) (*Client, error) {
	if market == "" {
		return nil, fmt.Errorf("market is required")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	o := options{
		timeframe:      DefaultTimeframe,
		maxConcurrency: DefaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.maxConcurrency < 1 {
		o.maxConcurrency = 1
	}

	store := o.store
	ownsStore := false
	if store == nil {
		var err error
		store, err = openStore(baseURL, o)
		if err != nil {
			return nil, err
		}
		ownsStore = true
	}

	return &Client{
		market:         market,
		timeframe:      o.timeframe,
		store:          store,
		ownsStore:      ownsStore,
		logger:         o.logger,
		maxConcurrency: o.maxConcurrency,
		factors:        make(map[string]Factor),
	}, nil
}

func openStore(baseURL string, o options) (storage.Store, error) {
	if strings.HasPrefix(baseURL, "http://") || strings.HasPrefix(baseURL, "https://") {
		cacheDir := o.cacheDir
		if cacheDir == "" {
			base, err := os.UserCacheDir()
			if err != nil {
				base = os.TempDir()
			}
			cacheDir = filepath.Join(base, "vquant")
		}
		cfg := storage.DefaultRemoteConfig()
		if o.remoteConfig != nil {
			cfg = *o.remoteConfig
		}
		return storage.NewRemote(baseURL, cacheDir, cfg)
	}
	return storage.NewLocal(baseURL)
}

// Market returns the configured market.
func (c *Client) Market() string { return c.market }

// Timeframe returns the configured bar interval.
func (c *Client) Timeframe() string { return c.timeframe }

// Store exposes the underlying store, mainly for ingestion tooling.
func (c *Client) Store() storage.Store { return c.store }

// Close releases the store if the client opened it. Injected stores stay
// open; their owner closes them.
func (c *Client) Close() error {
	if !c.ownsStore {
		return nil
	}
	return c.store.Close()
}

func (c *Client) locator(ticker, category string) storage.Locator {
	return storage.Locator{
		Market:    c.market,
		Ticker:    ticker,
		Timeframe: c.timeframe,
		Category:  category,
	}
}

// resolve turns a reference into a concrete factor: registered computed
// factors take precedence over stored columns of the same full name.
func (c *Client) resolve(r Ref) (Factor, error) {
	category, name, err := parseRef(string(r))
	if err != nil {
		return nil, err
	}
	full := category + "." + name

	c.mu.RLock()
	f, ok := c.factors[full]
	c.mu.RUnlock()
	if ok {
		return f, nil
	}

	return &StoredFactor{name: name, category: category}, nil
}

// GetOHLCV loads bar columns for the tickers and aligns them on the union of
// their calendars. columns nil or empty loads OHLCVColumns. Any ticker
// failing aborts the load with a DataLoadError.
func (c *Client) GetOHLCV(ctx context.Context, tickers []string, columns []string) (*frame.Frame, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no tickers given")
	}
	if len(columns) == 0 {
		columns = OHLCVColumns
	}

	start := time.Now()
	results := make([]map[string]*frame.Series, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrency)
	for i, ticker := range tickers {
		g.Go(func() error {
			loc := c.locator(ticker, CategoryOHLCV)
			loaded, err := c.store.Load(gctx, loc, columns)
			if err != nil {
				return &DataLoadError{Ticker: ticker, Path: c.store.Path(loc), Err: err}
			}
			results[i] = loaded
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := frame.NewBuilder()
	for i, ticker := range tickers {
		for _, column := range columns {
			if err := b.Add(frame.Key{Column: column, Ticker: ticker}, results[i][column]); err != nil {
				return nil, err
			}
		}
	}
	f := b.Build()

	c.logger.InfoContext(ctx, "loaded ohlcv data",
		"market", c.market,
		"tickers", len(tickers),
		"columns", len(columns),
		"rows", f.Len(),
		"duration", time.Since(start),
	)
	return f, nil
}

// GetFactors fetches each factor for each ticker and aligns everything on
// one date index. Factor full names must be unique. Any fetch failing aborts
// with a FactorNotFoundError.
func (c *Client) GetFactors(ctx context.Context, tickers []string, factors ...Factor) (*frame.Frame, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no tickers given")
	}
	if err := validateFactorSet(factors); err != nil {
		return nil, err
	}

	start := time.Now()
	results := make([]map[string]*frame.Series, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrency)
	for i, ticker := range tickers {
		g.Go(func() error {
			loaded := make(map[string]*frame.Series, len(factors))
			for _, f := range factors {
				s, err := f.Fetch(gctx, c, ticker)
				if err != nil {
					return err
				}
				loaded[f.FullName()] = s
			}
			results[i] = loaded
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := frame.NewBuilder()
	for i, ticker := range tickers {
		for _, f := range factors {
			if err := b.Add(frame.Key{Column: f.FullName(), Ticker: ticker}, results[i][f.FullName()]); err != nil {
				return nil, err
			}
		}
	}
	out := b.Build()

	c.logger.InfoContext(ctx, "fetched factors",
		"market", c.market,
		"tickers", len(tickers),
		"factors", len(factors),
		"rows", out.Len(),
		"duration", time.Since(start),
	)
	return out, nil
}

// GetSignals evaluates the signals for the tickers and returns close prices
// plus one 0/1 column per signal and ticker.
func (c *Client) GetSignals(ctx context.Context, tickers []string, signals ...*Signal) (*frame.Frame, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no tickers given")
	}
	if len(signals) == 0 {
		return nil, fmt.Errorf("no signals given")
	}

	closes, err := c.GetOHLCV(ctx, tickers, []string{"close"})
	if err != nil {
		return nil, err
	}

	b := frame.NewBuilder()
	if err := b.AddFrame(closes); err != nil {
		return nil, err
	}
	for _, ticker := range tickers {
		for _, sig := range signals {
			s, err := sig.Evaluate(ctx, c, ticker)
			if err != nil {
				return nil, err
			}
			if err := b.Add(frame.Key{Column: sig.FullName(), Ticker: ticker}, s); err != nil {
				return nil, err
			}
		}
	}
	return b.Build(), nil
}

// ComputeFactor builds a computed factor and registers it, so references to
// "category.name" resolve to it from then on.
func (c *Client) ComputeFactor(name, category string, fn ComputeFunc, deps ...string) (*ComputedFactor, error) {
	f, err := NewComputedFactor(name, category, fn, deps...)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.factors[f.FullName()] = f
	c.mu.Unlock()

	c.logger.Debug("registered computed factor",
		"factor", f.FullName(),
		"dependencies", f.Dependencies(),
	)
	return f, nil
}

// NewSignal builds a signal over the given factors.
func (c *Client) NewSignal(name string, factors []Factor, condition ComputeFunc) (*Signal, error) {
	return NewSignal(name, factors, condition)
}

// ListFactors returns the catalog of available factors, stored ones from the
// store plus any computed factors registered on this client. An empty
// category lists everything.
func (c *Client) ListFactors(ctx context.Context, category string) ([]FactorInfo, error) {
	infos, err := c.store.ListFactors(ctx, c.market, c.timeframe, category)
	if err != nil {
		return nil, fmt.Errorf("list factors: %w", err)
	}

	seen := make(map[FactorInfo]bool, len(infos))
	for _, fi := range infos {
		seen[fi] = true
	}

	c.mu.RLock()
	for _, f := range c.factors {
		if category != "" && f.Category() != category {
			continue
		}
		fi := FactorInfo{Name: f.Name(), Category: f.Category()}
		if !seen[fi] {
			seen[fi] = true
			infos = append(infos, fi)
		}
	}
	c.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Category != infos[j].Category {
			return infos[i].Category < infos[j].Category
		}
		return infos[i].Name < infos[j].Name
	})
	return infos, nil
}

// SaveFactor persists one factor column for a ticker, merging on date with
// the new observations winning.
func (c *Client) SaveFactor(ctx context.Context, ticker, category, name string, series *frame.Series) error {
	if category == "" {
		category = DefaultCategory
	}
	loc := c.locator(ticker, category)
	if err := c.store.Save(ctx, loc, name, series); err != nil {
		return fmt.Errorf("save factor %s.%s for %s: %w", category, name, ticker, err)
	}

	c.logger.InfoContext(ctx, "saved factor",
		"factor", category+"."+name,
		"ticker", ticker,
		"observations", series.Len(),
	)
	return nil
}

func validateFactorSet(factors []Factor) error {
	if len(factors) == 0 {
		return fmt.Errorf("no factors given")
	}
	seen := make(map[string]bool, len(factors))
	for i, f := range factors {
		if f == nil {
			return fmt.Errorf("nil factor at %d", i)
		}
		if v, ok := f.(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				return err
			}
		}
		full := f.FullName()
		if seen[full] {
			return fmt.Errorf("duplicate factor %s", full)
		}
		seen[full] = true
	}
	return nil
}
