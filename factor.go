package vquant

import (
	"context"
	"fmt"
	"strings"

	"github.com/edges-ai/vquant/frame"
	"github.com/edges-ai/vquant/storage"
)

// Category and column conventions shared across the library.
const (
	// DefaultCategory is assumed for bare factor references like "rsi_14".
	DefaultCategory = "technical"
	// CategoryOHLCV is the category the bar columns live in.
	CategoryOHLCV = "ohlcv"
	// SignalCategory qualifies signal column names.
	SignalCategory = "signal"
	// ColumnDailyReturn is the derived close-to-close return column a study
	// correlates factors against.
	ColumnDailyReturn = "daily_return"
)

// OHLCVColumns are the bar columns loaded when no subset is requested.
var OHLCVColumns = []string{"open", "high", "low", "close", "volume"}

// Factor is one column of values per ticker: either stored in the dataset or
// computed from other factors.
type Factor interface {
	// Name is the bare factor name, unique within its category.
	Name() string
	// Category is the category file the factor belongs to.
	Category() string
	// FullName is the qualified "category.name" reference.
	FullName() string
	// Fetch produces the factor's series for one ticker.
	Fetch(ctx context.Context, c *Client, ticker string) (*frame.Series, error)
}

// parseRef splits a factor reference into category and name. A bare name
// belongs to DefaultCategory.
func parseRef(ref string) (category, name string, err error) {
	category, name = DefaultCategory, ref
	if i := strings.Index(ref, "."); i >= 0 {
		category, name = ref[:i], ref[i+1:]
	}
	if !storage.IsIdent(category) || !storage.IsIdent(name) {
		return "", "", fmt.Errorf("%w: %q", ErrBadFactorRef, ref)
	}
	return category, name, nil
}

// Ref is a factor reference string usable anywhere a Factor is: "rsi_14"
// means technical.rsi_14, "momentum.roc_20" is fully qualified. A Ref
// resolves against the client's registered computed factors first and falls
// back to the stored factor of that name.
type Ref string

// Validate reports whether the reference parses.
func (r Ref) Validate() error {
	_, _, err := parseRef(string(r))
	return err
}

// Name returns the bare factor name.
func (r Ref) Name() string {
	_, name, _ := parseRef(string(r))
	return name
}

// Category returns the factor's category.
func (r Ref) Category() string {
	category, _, _ := parseRef(string(r))
	return category
}

// FullName returns the qualified "category.name" form.
func (r Ref) FullName() string {
	category, name, err := parseRef(string(r))
	if err != nil {
		return string(r)
	}
	return category + "." + name
}

// Fetch resolves the reference through the client and fetches the result.
func (r Ref) Fetch(ctx context.Context, c *Client, ticker string) (*frame.Series, error) {
	f, err := c.resolve(r)
	if err != nil {
		return nil, err
	}
	return f.Fetch(ctx, c, ticker)
}

// StoredFactor reads one column from the ticker's category file.
type StoredFactor struct {
	name     string
	category string
}

// NewStoredFactor builds a stored factor. An empty category means
// DefaultCategory.
func NewStoredFactor(name, category string) (*StoredFactor, error) {
	if category == "" {
		category = DefaultCategory
	}
	if !storage.IsIdent(category) || !storage.IsIdent(name) {
		return nil, fmt.Errorf("%w: %s.%s", ErrBadFactorRef, category, name)
	}
	return &StoredFactor{name: name, category: category}, nil
}

func (f *StoredFactor) Name() string     { return f.name }
func (f *StoredFactor) Category() string { return f.category }
func (f *StoredFactor) FullName() string { return f.category + "." + f.name }

// Fetch loads the factor's column for the ticker. Every failure surfaces as
// a FactorNotFoundError naming the factor and ticker.
func (f *StoredFactor) Fetch(ctx context.Context, c *Client, ticker string) (*frame.Series, error) {
	loc := c.locator(ticker, f.category)
	columns, err := c.store.Load(ctx, loc, []string{f.name})
	if err != nil {
		return nil, &FactorNotFoundError{Factor: f.FullName(), Ticker: ticker, Err: err}
	}
	return columns[f.name], nil
}

// ComputeFunc derives a factor's series from its dependencies for one
// ticker. deps maps each dependency's full name to its series; all series
// share one date index, aligned on the union of the dependencies' dates.
type ComputeFunc func(deps map[string]*frame.Series) (*frame.Series, error)

// ComputedFactor derives its values from other factors through a ComputeFunc.
type ComputedFactor struct {
	name     string
	category string
	fn       ComputeFunc
	deps     []Factor
}

// NewComputedFactor builds a computed factor over the dependency references.
// No dependencies means the factor is a function of the close price alone.
// Dependency cycles are the caller's responsibility.
func NewComputedFactor(name, category string, fn ComputeFunc, deps ...string) (*ComputedFactor, error) {
	if category == "" {
		category = DefaultCategory
	}
	if !storage.IsIdent(category) || !storage.IsIdent(name) {
		return nil, fmt.Errorf("%w: %s.%s", ErrBadFactorRef, category, name)
	}
	if fn == nil {
		return nil, fmt.Errorf("computed factor %s.%s: nil compute function", category, name)
	}

	if len(deps) == 0 {
		deps = []string{CategoryOHLCV + ".close"}
	}
	factors := make([]Factor, len(deps))
	for i, dep := range deps {
		r := Ref(dep)
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("computed factor %s.%s: dependency %d: %w", category, name, i, err)
		}
		factors[i] = r
	}

	return &ComputedFactor{name: name, category: category, fn: fn, deps: factors}, nil
}

func (f *ComputedFactor) Name() string     { return f.name }
func (f *ComputedFactor) Category() string { return f.category }
func (f *ComputedFactor) FullName() string { return f.category + "." + f.name }

// Dependencies returns the factor's dependency full names.
func (f *ComputedFactor) Dependencies() []string {
	out := make([]string, len(f.deps))
	for i, d := range f.deps {
		out[i] = d.FullName()
	}
	return out
}

// Fetch loads the dependencies for the ticker, aligns them and applies the
// compute function.
func (f *ComputedFactor) Fetch(ctx context.Context, c *Client, ticker string) (*frame.Series, error) {
	deps, err := fetchAligned(ctx, c, ticker, f.deps)
	if err != nil {
		return nil, &FactorNotFoundError{Factor: f.FullName(), Ticker: ticker, Err: err}
	}

	out, err := f.fn(deps)
	if err != nil {
		return nil, &FactorNotFoundError{Factor: f.FullName(), Ticker: ticker, Err: err}
	}
	if out == nil {
		return nil, &FactorNotFoundError{Factor: f.FullName(), Ticker: ticker,
			Err: fmt.Errorf("compute function returned no series")}
	}
	return out, nil
}

// fetchAligned fetches a set of factors for one ticker and aligns them on
// the union of their dates, so every returned series shares one index.
func fetchAligned(ctx context.Context, c *Client, ticker string, factors []Factor) (map[string]*frame.Series, error) {
	b := frame.NewBuilder()
	for _, f := range factors {
		s, err := f.Fetch(ctx, c, ticker)
		if err != nil {
			return nil, err
		}
		if err := b.Add(frame.Key{Column: f.FullName(), Ticker: ticker}, s); err != nil {
			return nil, err
		}
	}
	fr := b.Build()

	out := make(map[string]*frame.Series, len(factors))
	for _, f := range factors {
		s, _ := fr.Series(frame.Key{Column: f.FullName(), Ticker: ticker})
		out[f.FullName()] = s
	}
	return out, nil
}
