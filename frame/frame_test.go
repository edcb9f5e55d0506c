package frame

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSeries(t *testing.T, dates []time.Time, values []float64) *Series {
	t.Helper()
	s, err := NewSeries(dates, values)
	require.NoError(t, err)
	return s
}

// TestBuilderUnionAlignment tests that columns with different calendars are
// aligned on the sorted union of dates with NaN holes
func TestBuilderUnionAlignment(t *testing.T) {
	aaa := mustSeries(t,
		[]time.Time{day(2024, 1, 1), day(2024, 1, 2), day(2024, 1, 3)},
		[]float64{10, 11, 12},
	)
	// ACB misses Jan 2 and trades on Jan 4 when AAA does not.
	acb := mustSeries(t,
		[]time.Time{day(2024, 1, 1), day(2024, 1, 3), day(2024, 1, 4)},
		[]float64{20, 22, 23},
	)

	b := NewBuilder()
	require.NoError(t, b.Add(Key{Column: "close", Ticker: "AAA"}, aaa))
	require.NoError(t, b.Add(Key{Column: "close", Ticker: "ACB"}, acb))
	f := b.Build()

	require.Equal(t, 4, f.Len())
	assert.Equal(t, []time.Time{day(2024, 1, 1), day(2024, 1, 2), day(2024, 1, 3), day(2024, 1, 4)}, f.Dates())

	aaaCol, ok := f.Column(Key{Column: "close", Ticker: "AAA"})
	require.True(t, ok)
	assert.Equal(t, 10.0, aaaCol[0])
	assert.Equal(t, 11.0, aaaCol[1])
	assert.Equal(t, 12.0, aaaCol[2])
	assert.True(t, math.IsNaN(aaaCol[3]))

	acbCol, ok := f.Column(Key{Column: "close", Ticker: "ACB"})
	require.True(t, ok)
	assert.Equal(t, 20.0, acbCol[0])
	assert.True(t, math.IsNaN(acbCol[1]))
	assert.Equal(t, 22.0, acbCol[2])
	assert.Equal(t, 23.0, acbCol[3])
}

// TestBuilderDisjointCalendars tests alignment when tickers share no dates
func TestBuilderDisjointCalendars(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Add(Key{Column: "close", Ticker: "AAA"},
		mustSeries(t, []time.Time{day(2024, 1, 1)}, []float64{1})))
	require.NoError(t, b.Add(Key{Column: "close", Ticker: "VNM"},
		mustSeries(t, []time.Time{day(2024, 1, 2)}, []float64{2})))
	f := b.Build()

	require.Equal(t, 2, f.Len())
	assert.Equal(t, 1.0, f.Value(0, Key{Column: "close", Ticker: "AAA"}))
	assert.True(t, math.IsNaN(f.Value(1, Key{Column: "close", Ticker: "AAA"})))
	assert.True(t, math.IsNaN(f.Value(0, Key{Column: "close", Ticker: "VNM"})))
	assert.Equal(t, 2.0, f.Value(1, Key{Column: "close", Ticker: "VNM"}))
}

// TestBuilderDuplicateKey tests duplicate column rejection
func TestBuilderDuplicateKey(t *testing.T) {
	s := mustSeries(t, []time.Time{day(2024, 1, 1)}, []float64{1})
	b := NewBuilder()
	require.NoError(t, b.Add(Key{Column: "close", Ticker: "AAA"}, s))
	assert.Error(t, b.Add(Key{Column: "close", Ticker: "AAA"}, s))
}

// TestBuilderEmpty tests building with no columns
func TestBuilderEmpty(t *testing.T) {
	f := NewBuilder().Build()
	assert.Equal(t, 0, f.Len())
	assert.Equal(t, 0, f.NumColumns())
	assert.Empty(t, f.Tickers())
}

// TestFrameAccessors tests key ordering, ticker listing and lookups
func TestFrameAccessors(t *testing.T) {
	b := NewBuilder()
	dates := []time.Time{day(2024, 1, 1), day(2024, 1, 2)}
	require.NoError(t, b.Add(Key{Column: "close", Ticker: "AAA"}, mustSeries(t, dates, []float64{1, 2})))
	require.NoError(t, b.Add(Key{Column: "volume", Ticker: "AAA"}, mustSeries(t, dates, []float64{3, 4})))
	require.NoError(t, b.Add(Key{Column: "close", Ticker: "ACB"}, mustSeries(t, dates, []float64{5, 6})))
	f := b.Build()

	assert.Equal(t, []Key{
		{Column: "close", Ticker: "AAA"},
		{Column: "volume", Ticker: "AAA"},
		{Column: "close", Ticker: "ACB"},
	}, f.Keys())

	assert.Equal(t, []string{"AAA", "ACB"}, f.Tickers())
	assert.Equal(t, []Key{
		{Column: "close", Ticker: "AAA"},
		{Column: "volume", Ticker: "AAA"},
	}, f.KeysFor("AAA"))

	assert.True(t, f.Has(Key{Column: "close", Ticker: "ACB"}))
	assert.False(t, f.Has(Key{Column: "open", Ticker: "ACB"}))

	_, ok := f.Column(Key{Column: "open", Ticker: "AAA"})
	assert.False(t, ok)

	s, ok := f.Series(Key{Column: "volume", Ticker: "AAA"})
	require.True(t, ok)
	assert.Equal(t, []float64{3, 4}, s.Values())
}

// TestBuilderAddFrame tests merging an existing frame into a builder
func TestBuilderAddFrame(t *testing.T) {
	b1 := NewBuilder()
	require.NoError(t, b1.Add(Key{Column: "close", Ticker: "AAA"},
		mustSeries(t, []time.Time{day(2024, 1, 1)}, []float64{1})))
	base := b1.Build()

	b2 := NewBuilder()
	require.NoError(t, b2.AddFrame(base))
	require.NoError(t, b2.Add(Key{Column: "rsi_14", Ticker: "AAA"},
		mustSeries(t, []time.Time{day(2024, 1, 2)}, []float64{55})))
	merged := b2.Build()

	assert.Equal(t, 2, merged.Len())
	assert.Equal(t, 2, merged.NumColumns())
	assert.Equal(t, 1.0, merged.Value(0, Key{Column: "close", Ticker: "AAA"}))
	assert.True(t, math.IsNaN(merged.Value(0, Key{Column: "rsi_14", Ticker: "AAA"})))
	assert.Equal(t, 55.0, merged.Value(1, Key{Column: "rsi_14", Ticker: "AAA"}))
}

// TestKeyString tests the flat rendering of keys
func TestKeyString(t *testing.T) {
	k := Key{Column: "technical.rsi_14", Ticker: "AAA"}
	assert.Equal(t, "AAA/technical.rsi_14", k.String())
}
