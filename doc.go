// Package vquant is a quantitative research library for factor and signal
// analysis over daily market data.
//
// A Client is scoped to one market and timeframe and loads data from a
// store: a local directory of Parquet files or a remote dataset behind an
// HTTP(S) base URL with an on-disk cache. Bars, factors and signals all
// surface as frame.Frame panels keyed by (column, ticker) and aligned on the
// union of the tickers' calendars, with NaN marking missing observations.
//
// # Factors
//
// A factor is one value per ticker and date. Stored factors are columns of
// the dataset's category files ("technical.rsi_14" is column rsi_14 of
// technical.parquet); computed factors derive their values from other
// factors through a ComputeFunc. String references resolve bare names into
// the technical category, and computed factors registered on a client
// shadow stored columns of the same full name:
//
//	client, err := vquant.New("stocks_vn",
//		"https://storage.googleapis.com/edges-quant-data/data/dim")
//	if err != nil { ... }
//	defer client.Close()
//
//	data, err := client.GetFactors(ctx,
//		[]string{"AAA", "ACB", "VNM"},
//		vquant.Ref("rsi_14"), vquant.Ref("momentum.roc_20"))
//
// # Signals
//
// A signal turns factors into a 0/1 series per ticker. Conditions are
// arbitrary functions; Threshold builds the common comparison and
// level-crossing ones.
//
// # Studies
//
// Study ties it together: it loads close prices, derives daily returns,
// fetches the requested factors, evaluates the signals and reports the
// Pearson correlation between each column and the ticker's daily return,
// pairwise-complete over the rows both sides observed.
package vquant
