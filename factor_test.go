package vquant

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edges-ai/vquant/frame"
)

// TestParseRef tests factor reference parsing
func TestParseRef(t *testing.T) {
	tests := []struct {
		ref          string
		wantCategory string
		wantName     string
		wantErr      bool
	}{
		{ref: "rsi_14", wantCategory: "technical", wantName: "rsi_14"},
		{ref: "momentum.roc_20", wantCategory: "momentum", wantName: "roc_20"},
		{ref: "fundamental.pe-ratio", wantCategory: "fundamental", wantName: "pe-ratio"},
		{ref: "", wantErr: true},
		{ref: ".", wantErr: true},
		{ref: "a.", wantErr: true},
		{ref: ".b", wantErr: true},
		{ref: "a.b.c", wantErr: true},
		{ref: "9lives", wantErr: true},
		{ref: "has space", wantErr: true},
		{ref: "../../etc/passwd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			category, name, err := parseRef(tt.ref)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrBadFactorRef)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCategory, category)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

// TestRef tests the reference type's Factor methods
func TestRef(t *testing.T) {
	r := Ref("momentum.roc_20")
	assert.NoError(t, r.Validate())
	assert.Equal(t, "roc_20", r.Name())
	assert.Equal(t, "momentum", r.Category())
	assert.Equal(t, "momentum.roc_20", r.FullName())

	bare := Ref("rsi_14")
	assert.Equal(t, "technical", bare.Category())
	assert.Equal(t, "technical.rsi_14", bare.FullName())

	assert.ErrorIs(t, Ref("..").Validate(), ErrBadFactorRef)
}

// TestNewStoredFactor tests stored factor construction
func TestNewStoredFactor(t *testing.T) {
	f, err := NewStoredFactor("rsi_14", "")
	require.NoError(t, err)
	assert.Equal(t, "technical.rsi_14", f.FullName())

	f, err = NewStoredFactor("skew", "momentum")
	require.NoError(t, err)
	assert.Equal(t, "skew", f.Name())
	assert.Equal(t, "momentum", f.Category())

	_, err = NewStoredFactor("bad name", "momentum")
	assert.ErrorIs(t, err, ErrBadFactorRef)
}

// TestNewComputedFactor tests computed factor construction and defaults
func TestNewComputedFactor(t *testing.T) {
	identity := func(deps map[string]*frame.Series) (*frame.Series, error) {
		return deps["ohlcv.close"], nil
	}

	t.Run("defaults to the close price dependency", func(t *testing.T) {
		f, err := NewComputedFactor("sma_20", "", identity)
		require.NoError(t, err)
		assert.Equal(t, "technical.sma_20", f.FullName())
		assert.Equal(t, []string{"ohlcv.close"}, f.Dependencies())
	})

	t.Run("explicit dependencies", func(t *testing.T) {
		f, err := NewComputedFactor("spread", "micro", identity, "ohlcv.high", "ohlcv.low")
		require.NoError(t, err)
		assert.Equal(t, []string{"ohlcv.high", "ohlcv.low"}, f.Dependencies())
	})

	t.Run("nil function", func(t *testing.T) {
		_, err := NewComputedFactor("sma_20", "", nil)
		assert.Error(t, err)
	})

	t.Run("bad name", func(t *testing.T) {
		_, err := NewComputedFactor("", "technical", identity)
		assert.ErrorIs(t, err, ErrBadFactorRef)
	})

	t.Run("bad dependency", func(t *testing.T) {
		_, err := NewComputedFactor("sma_20", "", identity, "..")
		assert.ErrorIs(t, err, ErrBadFactorRef)
	})
}

// TestNewSignalValidation tests signal construction errors
func TestNewSignalValidation(t *testing.T) {
	cond := func(map[string]*frame.Series) (*frame.Series, error) { return nil, nil }

	tests := []struct {
		name       string
		signalName string
		factors    []Factor
		condition  ComputeFunc
	}{
		{name: "bad name", signalName: "no/slash", factors: []Factor{Ref("rsi_14")}, condition: cond},
		{name: "no factors", signalName: "empty", factors: nil, condition: cond},
		{name: "nil factor", signalName: "nilfactor", factors: []Factor{nil}, condition: cond},
		{name: "bad reference", signalName: "badref", factors: []Factor{Ref("..")}, condition: cond},
		{name: "nil condition", signalName: "nocond", factors: []Factor{Ref("rsi_14")}, condition: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSignal(tt.signalName, tt.factors, tt.condition)
			assert.Error(t, err)
		})
	}
}

// TestThreshold tests the comparison condition builder
func TestThreshold(t *testing.T) {
	nan := math.NaN()
	rsi := mustSeries(t, testDates, []float64{40, 45, 44, 50})
	deps := map[string]*frame.Series{"technical.rsi_14": rsi}

	tests := []struct {
		op   string
		want []float64
	}{
		{op: "gt", want: []float64{0, 0, 0, 1}},
		{op: "lt", want: []float64{1, 0, 1, 0}},
		{op: "ge", want: []float64{0, 1, 0, 1}},
		{op: "le", want: []float64{1, 1, 1, 0}},
		{op: "cross_above", want: []float64{nan, 0, 0, 1}},
		{op: "cross_below", want: []float64{nan, 0, 1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			cond, err := Threshold(Ref("rsi_14"), tt.op, 45)
			require.NoError(t, err)

			out, err := cond(deps)
			require.NoError(t, err)

			values := out.Values()
			require.Len(t, values, len(tt.want))
			for i, want := range tt.want {
				if math.IsNaN(want) {
					assert.True(t, math.IsNaN(values[i]), "row %d", i)
				} else {
					assert.Equal(t, want, values[i], "row %d", i)
				}
			}
		})
	}

	t.Run("unknown op", func(t *testing.T) {
		_, err := Threshold(Ref("rsi_14"), "between", 45)
		assert.Error(t, err)
	})

	t.Run("preserves nan cells", func(t *testing.T) {
		gappy := mustSeries(t, testDates, []float64{40, nan, 50, 44})
		cond, err := Threshold(Ref("rsi_14"), "gt", 45)
		require.NoError(t, err)

		out, err := cond(map[string]*frame.Series{"technical.rsi_14": gappy})
		require.NoError(t, err)

		values := out.Values()
		assert.Equal(t, 0.0, values[0])
		assert.True(t, math.IsNaN(values[1]))
		assert.Equal(t, 1.0, values[2])
		assert.Equal(t, 0.0, values[3])
	})

	t.Run("missing input column", func(t *testing.T) {
		cond, err := Threshold(Ref("macd"), "gt", 0)
		require.NoError(t, err)

		_, err = cond(deps)
		assert.Error(t, err)
	})
}
