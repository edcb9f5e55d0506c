package frame

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Key identifies a column in a Frame by column name and ticker symbol,
// the flat form of a two-level (column, ticker) index.
type Key struct {
	Column string
	Ticker string
}

// String renders the key as "TICKER/column", which groups columns by ticker
// when keys are sorted lexically.
func (k Key) String() string {
	return k.Ticker + "/" + k.Column
}

// Frame is an immutable table of float64 columns sharing one ascending date
// index. Cells a column has no observation for hold NaN.
type Frame struct {
	dates []time.Time
	keys  []Key
	cols  map[Key][]float64
}

// Len returns the number of rows (dates).
func (f *Frame) Len() int {
	return len(f.dates)
}

// NumColumns returns the number of columns.
func (f *Frame) NumColumns() int {
	return len(f.keys)
}

// Dates returns a copy of the shared date index.
func (f *Frame) Dates() []time.Time {
	out := make([]time.Time, len(f.dates))
	copy(out, f.dates)
	return out
}

// Date returns the date at row i.
func (f *Frame) Date(i int) time.Time {
	return f.dates[i]
}

// Keys returns the column keys in insertion order.
func (f *Frame) Keys() []Key {
	out := make([]Key, len(f.keys))
	copy(out, f.keys)
	return out
}

// Has reports whether the frame contains the column.
func (f *Frame) Has(k Key) bool {
	_, ok := f.cols[k]
	return ok
}

// Column returns a copy of the aligned values for the column.
func (f *Frame) Column(k Key) ([]float64, bool) {
	col, ok := f.cols[k]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(col))
	copy(out, col)
	return out, true
}

// Series materializes the column as a Series over the frame's full index,
// NaN cells included.
func (f *Frame) Series(k Key) (*Series, bool) {
	col, ok := f.cols[k]
	if !ok {
		return nil, false
	}
	dates := make([]time.Time, len(f.dates))
	copy(dates, f.dates)
	values := make([]float64, len(col))
	copy(values, col)
	return newSeriesAligned(dates, values), true
}

// Value returns the cell at row i of the column, or NaN when the column does
// not exist.
func (f *Frame) Value(i int, k Key) float64 {
	col, ok := f.cols[k]
	if !ok {
		return math.NaN()
	}
	return col[i]
}

// Tickers returns the distinct ticker symbols in first-appearance order.
func (f *Frame) Tickers() []string {
	seen := make(map[string]bool, len(f.keys))
	var out []string
	for _, k := range f.keys {
		if !seen[k.Ticker] {
			seen[k.Ticker] = true
			out = append(out, k.Ticker)
		}
	}
	return out
}

// KeysFor returns the keys belonging to one ticker, in insertion order.
func (f *Frame) KeysFor(ticker string) []Key {
	var out []Key
	for _, k := range f.keys {
		if k.Ticker == ticker {
			out = append(out, k)
		}
	}
	return out
}

// Builder assembles a Frame from series covering possibly different
// calendars. Build aligns every column on the sorted union of all dates.
type Builder struct {
	keys []Key
	sers map[Key]*Series
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{sers: make(map[Key]*Series)}
}

// Add stages a column under the key. Adding a key twice is an error.
func (b *Builder) Add(k Key, s *Series) error {
	if s == nil {
		return fmt.Errorf("frame: nil series for column %s", k)
	}
	if _, ok := b.sers[k]; ok {
		return fmt.Errorf("frame: duplicate column %s", k)
	}
	b.keys = append(b.keys, k)
	b.sers[k] = s
	return nil
}

// AddFrame stages every column of another frame.
func (b *Builder) AddFrame(f *Frame) error {
	for _, k := range f.keys {
		s, _ := f.Series(k)
		if err := b.Add(k, s); err != nil {
			return err
		}
	}
	return nil
}

// NumColumns returns the number of staged columns.
func (b *Builder) NumColumns() int {
	return len(b.keys)
}

// Build produces the aligned Frame. The date index is the sorted union of
// every staged series' dates; cells a series lacks are NaN.
func (b *Builder) Build() *Frame {
	union := make(map[int64]time.Time)
	for _, s := range b.sers {
		for _, d := range s.dates {
			union[d.UnixNano()] = d
		}
	}

	nanos := make([]int64, 0, len(union))
	for n := range union {
		nanos = append(nanos, n)
	}
	sort.Slice(nanos, func(i, j int) bool { return nanos[i] < nanos[j] })

	dates := make([]time.Time, len(nanos))
	rowOf := make(map[int64]int, len(nanos))
	for i, n := range nanos {
		dates[i] = union[n]
		rowOf[n] = i
	}

	cols := make(map[Key][]float64, len(b.keys))
	for _, k := range b.keys {
		col := make([]float64, len(dates))
		for i := range col {
			col[i] = math.NaN()
		}
		s := b.sers[k]
		for i, d := range s.dates {
			col[rowOf[d.UnixNano()]] = s.values[i]
		}
		cols[k] = col
	}

	keys := make([]Key, len(b.keys))
	copy(keys, b.keys)

	return &Frame{dates: dates, keys: keys, cols: cols}
}
