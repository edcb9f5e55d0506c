package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/edges-ai/vquant/frame"
)

// Canonical storage errors. Implementations wrap these so callers can match
// with errors.Is regardless of the backing store.
var (
	// ErrNotFound marks a missing column file.
	ErrNotFound = errors.New("not found")
	// ErrColumnNotFound marks a file that exists but lacks a requested column.
	ErrColumnNotFound = errors.New("column not found")
	// ErrReadOnly marks a write attempted on a store that cannot persist.
	ErrReadOnly = errors.New("store is read-only")
)

// Locator addresses one category file within a store.
type Locator struct {
	Market    string
	Ticker    string
	Timeframe string
	Category  string
}

func (l Locator) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", l.Market, l.Ticker, l.Timeframe, l.Category)
}

// identPattern constrains column, factor and category names a Locator can
// carry into SQL and filesystem paths. tokenPattern additionally admits a
// leading digit for path components like the "1d" and "5m" timeframes.
var (
	identPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)
	tokenPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
)

// Validate rejects locators whose components could escape the layout or the
// SQL they are spliced into.
func (l Locator) Validate() error {
	for _, part := range []struct{ name, value string }{
		{"market", l.Market},
		{"ticker", l.Ticker},
		{"timeframe", l.Timeframe},
	} {
		if !IsPathToken(part.value) {
			return fmt.Errorf("invalid %s %q", part.name, part.value)
		}
	}
	if !IsIdent(l.Category) {
		return fmt.Errorf("invalid category %q", l.Category)
	}
	return nil
}

// IsIdent reports whether s is usable as a column, factor or category name:
// a letter followed by letters, digits, underscores or dashes.
func IsIdent(s string) bool {
	return identPattern.MatchString(s)
}

// IsPathToken reports whether s is usable as a market, ticker or timeframe
// path component. Unlike identifiers these may lead with a digit ("1d").
func IsPathToken(s string) bool {
	return tokenPattern.MatchString(s)
}

// FactorInfo is one catalog entry: a factor name and the category file it
// lives in.
type FactorInfo struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// FullName returns the qualified "category.name" reference.
func (fi FactorInfo) FullName() string {
	return fi.Category + "." + fi.Name
}

// DefaultCatalog is the factor listing reported when a store cannot inspect
// its backing objects.
var DefaultCatalog = []FactorInfo{
	{Name: "rsi_14", Category: "technical"},
	{Name: "volatility_20", Category: "technical"},
}

// Store reads and writes date-indexed factor columns.
//
// Load returns one series per requested column, all sharing the file's
// ascending date index; a nil or empty columns slice loads every value
// column. Save upserts one column, merging on date with incoming values
// winning. ListFactors reports the distinct (name, category) pairs available
// for a market and timeframe, optionally filtered to one category.
type Store interface {
	Load(ctx context.Context, loc Locator, columns []string) (map[string]*frame.Series, error)
	Columns(ctx context.Context, loc Locator) ([]string, error)
	Save(ctx context.Context, loc Locator, column string, series *frame.Series) error
	ListFactors(ctx context.Context, market, timeframe, category string) ([]FactorInfo, error)
	Path(loc Locator) string
	Close() error
}
