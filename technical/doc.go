// Package technical implements the rolling-window indicator math used to
// build computed factors: moving averages, RSI, rate of change, volatility,
// z-scores and cross-sectional winsorization.
//
// All functions operate on plain []float64 slices so they compose with
// frame.Series.Apply. Positions without enough history and windows that
// contain a NaN produce NaN; inputs are never mutated and outputs always
// have the input's length. Invalid parameters (a non-positive period, a
// period longer than the input) yield an all-NaN result rather than an
// error, matching how a missing observation propagates everywhere else.
package technical
