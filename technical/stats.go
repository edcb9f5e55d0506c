package technical

import (
	"math"
	"sort"
)

// Default winsorization bounds for cross-sectional factor scaling.
const (
	DefaultWinsorLower = 0.05
	DefaultWinsorUpper = 0.95
)

// Mean returns the arithmetic mean of the non-NaN values, or NaN when there
// are none.
func Mean(values []float64) float64 {
	sum, n := 0.0, 0
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// Stddev returns the sample standard deviation of the non-NaN values, or NaN
// when there are fewer than two.
func Stddev(values []float64) float64 {
	m := Mean(values)
	if math.IsNaN(m) {
		return math.NaN()
	}
	var ss float64
	n := 0
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		ss += (v - m) * (v - m)
		n++
	}
	if n < 2 {
		return math.NaN()
	}
	return math.Sqrt(ss / float64(n-1))
}

// Percentile returns the linearly interpolated p-quantile (p in [0, 1]) of
// the non-NaN values, or NaN when there are none. p is clamped to [0, 1].
func Percentile(values []float64, p float64) float64 {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return math.NaN()
	}
	sort.Float64s(clean)

	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}

	pos := p * float64(len(clean)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return clean[lo]
	}
	frac := pos - float64(lo)
	return clean[lo] + frac*(clean[hi]-clean[lo])
}

// Winsorize clamps the non-NaN values to the [lower, upper] percentile
// bounds of the input, the standard guard against outliers dominating a
// cross-section. NaN cells pass through unchanged.
func Winsorize(values []float64, lower, upper float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)

	lo := Percentile(values, lower)
	hi := Percentile(values, upper)
	if math.IsNaN(lo) || math.IsNaN(hi) {
		return out
	}

	for i, v := range out {
		if math.IsNaN(v) {
			continue
		}
		if v < lo {
			out[i] = lo
		} else if v > hi {
			out[i] = hi
		}
	}
	return out
}
