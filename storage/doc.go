// Package storage persists and serves the Parquet column files that factors
// and OHLCV bars live in.
//
// # Layout
//
// One Parquet file holds the columns of one factor category for one
// instrument:
//
//	<root>/<market>/instrument/<TICKER>/<timeframe>/<category>.parquet
//
// ohlcv.parquet carries date, open, high, low, close and volume; every other
// category file carries date plus one column per factor name, for example
// technical.parquet with rsi_14 and volatility_20.
//
// # Implementations
//
// Local reads and writes a directory tree in that layout. Remote serves the
// same layout from an HTTP(S) base URL, keeping a TTL-bounded on-disk cache;
// it is read-only. Both drive Parquet through an embedded DuckDB session
// (read_parquet and COPY TO), the same engine the files were produced with.
//
// Saving merges on date: incoming observations win on conflict and the
// result is the sorted union of both date sets.
package storage
