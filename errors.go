package vquant

import (
	"errors"
	"fmt"
)

// Sentinel errors for the library's failure taxonomy. Typed errors below
// carry the detail; errors.Is against these sentinels matches regardless of
// wrapping depth.
var (
	// ErrFactorNotFound marks a factor that could not be fetched for a ticker.
	ErrFactorNotFound = errors.New("factor not found")
	// ErrDataLoad marks OHLCV data that could not be loaded for a ticker.
	ErrDataLoad = errors.New("data load failed")
	// ErrBadFactorRef marks a factor reference that does not parse.
	ErrBadFactorRef = errors.New("invalid factor reference")
)

// FactorNotFoundError reports which factor failed for which ticker. Any
// fetch failure maps here: a missing category file, a missing column, or a
// broken dependency of a computed factor.
type FactorNotFoundError struct {
	Factor string
	Ticker string
	Err    error
}

func (e *FactorNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("factor %s not found for %s: %v", e.Factor, e.Ticker, e.Err)
	}
	return fmt.Sprintf("factor %s not found for %s", e.Factor, e.Ticker)
}

func (e *FactorNotFoundError) Unwrap() error {
	return e.Err
}

func (e *FactorNotFoundError) Is(target error) bool {
	return target == ErrFactorNotFound
}

// DataLoadError reports an OHLCV load failure for one ticker.
type DataLoadError struct {
	Ticker string
	Path   string
	Err    error
}

func (e *DataLoadError) Error() string {
	return fmt.Sprintf("load data for %s from %s: %v", e.Ticker, e.Path, e.Err)
}

func (e *DataLoadError) Unwrap() error {
	return e.Err
}

func (e *DataLoadError) Is(target error) bool {
	return target == ErrDataLoad
}
