package vquant_test

import (
	"context"
	"fmt"
	"log"

	"github.com/edges-ai/vquant"
	"github.com/edges-ai/vquant/frame"
	"github.com/edges-ai/vquant/technical"
)

// Example runs a small factor study over a hosted dataset: one stored factor,
// one derived momentum factor and an overbought exit signal, each correlated
// with daily returns per ticker.
func Example() {
	ctx := context.Background()

	client, err := vquant.New("stocks_vn", "https://storage.googleapis.com/edges-quant-data/data/dim")
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	roc, err := client.ComputeFactor("roc_20", "momentum", func(deps map[string]*frame.Series) (*frame.Series, error) {
		return deps["ohlcv.close"].Apply(func(close []float64) []float64 {
			return technical.ROC(close, 20)
		})
	})
	if err != nil {
		log.Fatal(err)
	}

	overbought, err := vquant.Threshold(vquant.Ref("rsi_14"), "gt", 70)
	if err != nil {
		log.Fatal(err)
	}
	exit, err := client.NewSignal("rsi_overbought", []vquant.Factor{vquant.Ref("rsi_14")}, overbought)
	if err != nil {
		log.Fatal(err)
	}

	result, err := client.Study(ctx, vquant.StudyRequest{
		Tickers: []string{"AAA", "ACB", "VNM"},
		Factors: []vquant.Factor{vquant.Ref("rsi_14"), roc},
		Signals: []*vquant.Signal{exit},
	})
	if err != nil {
		log.Fatal(err)
	}

	for _, corr := range result.Correlations {
		fmt.Printf("%-4s %-22s r=%+.3f n=%d\n", corr.Ticker, corr.Column, corr.Value, corr.N)
	}
}
