package frame

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// dateLayout is the canonical rendering of index dates in errors and output.
const dateLayout = "2006-01-02"

// Series is an immutable column of float64 values indexed by strictly
// ascending dates. Missing observations are NaN values, never absent rows.
type Series struct {
	dates  []time.Time
	values []float64
}

// NewSeries builds a Series from parallel date and value slices.
// Dates must be strictly ascending; both slices are copied and dates are
// normalized to UTC.
func NewSeries(dates []time.Time, values []float64) (*Series, error) {
	if len(dates) != len(values) {
		return nil, fmt.Errorf("frame: dates/values length mismatch: %d vs %d", len(dates), len(values))
	}

	d := make([]time.Time, len(dates))
	v := make([]float64, len(values))
	for i := range dates {
		d[i] = dates[i].UTC()
		v[i] = values[i]
		if i > 0 && !d[i-1].Before(d[i]) {
			return nil, fmt.Errorf("frame: dates not strictly ascending at index %d (%s >= %s)",
				i, d[i-1].Format(dateLayout), d[i].Format(dateLayout))
		}
	}

	return &Series{dates: d, values: v}, nil
}

// newSeriesAligned wraps already-validated slices without copying.
// Callers must guarantee ascending dates and equal lengths, and must not
// retain references to the slices.
func newSeriesAligned(dates []time.Time, values []float64) *Series {
	return &Series{dates: dates, values: values}
}

// Len returns the number of observations.
func (s *Series) Len() int {
	return len(s.values)
}

// IsEmpty reports whether the series has no observations.
func (s *Series) IsEmpty() bool {
	return len(s.values) == 0
}

// Date returns the date at position i.
func (s *Series) Date(i int) time.Time {
	return s.dates[i]
}

// Value returns the value at position i.
func (s *Series) Value(i int) float64 {
	return s.values[i]
}

// Dates returns a copy of the date index.
func (s *Series) Dates() []time.Time {
	out := make([]time.Time, len(s.dates))
	copy(out, s.dates)
	return out
}

// Values returns a copy of the values.
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// At returns the value observed on the given date. The second return value
// is false when the date is not part of the index.
func (s *Series) At(date time.Time) (float64, bool) {
	t := date.UTC()
	i := sort.Search(len(s.dates), func(i int) bool { return !s.dates[i].Before(t) })
	if i < len(s.dates) && s.dates[i].Equal(t) {
		return s.values[i], true
	}
	return math.NaN(), false
}

// Apply returns a new Series with the same dates and fn applied to a copy of
// the values. fn must return a slice of the same length.
func (s *Series) Apply(fn func([]float64) []float64) (*Series, error) {
	out := fn(s.Values())
	if len(out) != len(s.values) {
		return nil, fmt.Errorf("frame: apply changed series length: %d to %d", len(s.values), len(out))
	}
	return &Series{dates: s.dates, values: out}, nil
}

// CountValid returns the number of non-NaN observations.
func (s *Series) CountValid() int {
	n := 0
	for _, v := range s.values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}
