package technical

import "math"

// nanSlice returns a slice of n NaN values.
func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// cleanMean returns the mean of window, or false when the window contains a
// NaN or is empty.
func cleanMean(window []float64) (float64, bool) {
	if len(window) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range window {
		if math.IsNaN(v) {
			return 0, false
		}
		sum += v
	}
	return sum / float64(len(window)), true
}

// PctChange returns the period-over-period fractional change
// values[i]/values[i-1] - 1. The first position, NaN neighbours and zero
// denominators produce NaN.
func PctChange(values []float64) []float64 {
	out := nanSlice(len(values))
	for i := 1; i < len(values); i++ {
		prev := values[i-1]
		if math.IsNaN(prev) || math.IsNaN(values[i]) || prev == 0 {
			continue
		}
		out[i] = values[i]/prev - 1
	}
	return out
}

// SMA returns the simple moving average over the window.
func SMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period < 1 || period > len(values) {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		if m, ok := cleanMean(values[i-period+1 : i+1]); ok {
			out[i] = m
		}
	}
	return out
}

// EMA returns the exponential moving average with smoothing factor
// 2/(period+1), seeded with the simple mean of the first full window.
// A NaN input interrupts the recursion; it restarts once a clean window
// accumulates again.
func EMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period < 1 || period > len(values) {
		return out
	}

	alpha := 2.0 / (float64(period) + 1)
	run := 0
	sum := 0.0
	prev := 0.0
	seeded := false

	for i, v := range values {
		if math.IsNaN(v) {
			run, sum, seeded = 0, 0, false
			continue
		}
		if !seeded {
			run++
			sum += v
			if run == period {
				prev = sum / float64(period)
				out[i] = prev
				seeded = true
			}
			continue
		}
		prev = alpha*v + (1-alpha)*prev
		out[i] = prev
	}
	return out
}

// RSI returns Wilder's relative strength index. Average gain and loss are
// seeded with the simple mean of the first period deltas and smoothed with
// avg = (avg*(period-1) + current) / period afterwards. A losses-only window
// reports 0, a gains-only window 100 and a flat window 50. A NaN input
// restarts the seeding.
func RSI(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period < 1 || len(values) < period+1 {
		return out
	}

	var avgGain, avgLoss float64
	run := 0
	var sumGain, sumLoss float64
	seeded := false

	for i := 1; i < len(values); i++ {
		if math.IsNaN(values[i]) || math.IsNaN(values[i-1]) {
			run, sumGain, sumLoss, seeded = 0, 0, 0, false
			continue
		}

		delta := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}

		if !seeded {
			run++
			sumGain += gain
			sumLoss += loss
			if run == period {
				avgGain = sumGain / float64(period)
				avgLoss = sumLoss / float64(period)
				out[i] = rsiValue(avgGain, avgLoss)
				seeded = true
			}
			continue
		}

		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ROC returns the rate of change (values[i]/values[i-period] - 1) * 100.
func ROC(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period < 1 {
		return out
	}
	for i := period; i < len(values); i++ {
		prev := values[i-period]
		if math.IsNaN(prev) || math.IsNaN(values[i]) || prev == 0 {
			continue
		}
		out[i] = (values[i]/prev - 1) * 100
	}
	return out
}

// Volatility returns the rolling sample standard deviation of the
// close-to-close fractional changes of values over the window. The result is
// per-period, not annualized.
func Volatility(values []float64, period int) []float64 {
	return rollingStd(PctChange(values), period)
}

// ZScore returns (values[i] - mean) / stddev over a trailing window, using
// the sample standard deviation. A zero-dispersion window reports NaN.
func ZScore(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period < 2 || period > len(values) {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		m, ok := cleanMean(window)
		if !ok {
			continue
		}
		var ss float64
		for _, v := range window {
			ss += (v - m) * (v - m)
		}
		sd := math.Sqrt(ss / float64(period-1))
		if sd == 0 {
			continue
		}
		out[i] = (values[i] - m) / sd
	}
	return out
}

// rollingStd returns the trailing sample standard deviation over the window.
func rollingStd(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period < 2 || period > len(values) {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		m, ok := cleanMean(window)
		if !ok {
			continue
		}
		var ss float64
		for _, v := range window {
			ss += (v - m) * (v - m)
		}
		out[i] = math.Sqrt(ss / float64(period-1))
	}
	return out
}

// CrossAbove returns 1 where values rises through the level (previous value
// at or below, current strictly above), 0 elsewhere. Positions without a
// usable previous value are NaN.
func CrossAbove(values []float64, level float64) []float64 {
	out := nanSlice(len(values))
	for i := 1; i < len(values); i++ {
		if math.IsNaN(values[i]) || math.IsNaN(values[i-1]) {
			continue
		}
		if values[i-1] <= level && values[i] > level {
			out[i] = 1
		} else {
			out[i] = 0
		}
	}
	return out
}

// CrossBelow returns 1 where values falls through the level (previous value
// at or above, current strictly below), 0 elsewhere. Positions without a
// usable previous value are NaN.
func CrossBelow(values []float64, level float64) []float64 {
	out := nanSlice(len(values))
	for i := 1; i < len(values); i++ {
		if math.IsNaN(values[i]) || math.IsNaN(values[i-1]) {
			continue
		}
		if values[i-1] >= level && values[i] < level {
			out[i] = 1
		} else {
			out[i] = 0
		}
	}
	return out
}
