// Package frame provides the date-aligned data structures that factor and
// signal analysis is built on: Series, a single column of float64 values
// indexed by ascending dates, and Frame, a table of such columns identified
// by (column, ticker) keys sharing one date index.
//
// # Alignment model
//
// A Frame is assembled through a Builder. The Builder collects series that
// may cover different calendars (tickers list on different days, factors
// start at different times) and Build produces the sorted union of all input
// dates. Cells a series has no observation for are NaN; a missing value is
// always NaN, never an absent row. This mirrors the outer-join alignment of
// columnar dataframe engines while staying plain float64 slices underneath.
//
// # Immutability
//
// Series and Frame are immutable after construction and safe for concurrent
// use. Accessors copy their backing slices; transformations such as
// Series.Apply return new values.
//
// Dates are normalized to UTC on construction and compared by instant.
package frame
