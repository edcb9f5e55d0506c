// Package ingest imports daily OHLCV bars from CSV and XLSX files into the
// factor store. Parsers map header names loosely (Date/date/TIME, Close/
// close/adj close and so on), validate each bar's OHLC sanity, and the
// importer groups valid bars per ticker and upserts them as columns of the
// instrument's ohlcv category.
package ingest
