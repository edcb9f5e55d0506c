package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	vquant "github.com/edges-ai/vquant"
	"github.com/edges-ai/vquant/internal/config"
	"github.com/edges-ai/vquant/internal/infrastructure"
	"github.com/edges-ai/vquant/internal/operations"
	"github.com/edges-ai/vquant/internal/report"
)

func main() {
	tickers := flag.String("tickers", "", "comma-separated tickers (required)")
	factors := flag.String("factors", "", "comma-separated factor refs, e.g. rsi_14,momentum.roc_20")
	signals := flag.String("signals", "", "comma-separated signal specs name:factor:op:value, e.g. overbought:rsi_14:gt:70")
	winsorize := flag.Bool("winsorize", false, "clamp factor columns at the default percentiles before correlating")
	formats := flag.String("formats", "", "report formats to write (csv,xlsx,html); none skips report files")
	baseName := flag.String("name", "study", "base name for report files")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	req, err := buildRequest(*tickers, *factors, *signals, *winsorize)
	if err != nil {
		logger.Error("invalid study request", "error", err)
		flag.PrintDefaults()
		os.Exit(1)
	}

	client, err := vquant.New(cfg.Data.Market, cfg.Data.BaseURL,
		vquant.WithTimeframe(cfg.Data.Timeframe),
		vquant.WithLogger(logger),
		vquant.WithMaxConcurrency(cfg.Data.MaxConcurrency),
		vquant.WithCacheDir(cfg.Data.CacheDir))
	if err != nil {
		logger.Error("failed to open client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.StudyTimeout)
	defer cancel()

	result, err := client.Study(ctx, req)
	if err != nil {
		logger.Error("study failed", "error", err)
		os.Exit(1)
	}

	printCorrelations(result)

	if *formats != "" {
		paths, err := cfg.ResolvePaths()
		if err != nil {
			logger.Error("failed to resolve paths", "error", err)
			os.Exit(1)
		}
		if err := paths.EnsureDirectories(); err != nil {
			logger.Error("failed to create directories", "error", err)
			os.Exit(1)
		}

		writer := report.NewWriter(paths, logger)
		artifacts, err := writer.Write(ctx, *baseName, splitList(*formats), result)
		if err != nil {
			logger.Error("failed to write reports", "error", err)
			os.Exit(1)
		}
		for _, artifact := range artifacts {
			fmt.Println(artifact)
		}
	}
}

func buildRequest(tickers, factors, signals string, winsorize bool) (vquant.StudyRequest, error) {
	req := vquant.StudyRequest{Tickers: splitList(tickers)}
	if len(req.Tickers) == 0 {
		return req, fmt.Errorf("at least one ticker is required")
	}

	for _, ref := range splitList(factors) {
		req.Factors = append(req.Factors, vquant.Ref(ref))
	}

	for _, spec := range splitList(signals) {
		rule, err := parseSignalSpec(spec)
		if err != nil {
			return req, err
		}
		signal, err := rule.Compile()
		if err != nil {
			return req, err
		}
		req.Signals = append(req.Signals, signal)
	}

	if winsorize {
		w := vquant.DefaultWinsorization()
		req.Winsorize = &w
	}
	return req, nil
}

// parseSignalSpec parses "name:factor:op:value" into a rule.
func parseSignalSpec(spec string) (operations.SignalRule, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 4 {
		return operations.SignalRule{}, fmt.Errorf("signal %q: want name:factor:op:value", spec)
	}
	value, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return operations.SignalRule{}, fmt.Errorf("signal %q: bad value: %w", spec, err)
	}
	return operations.SignalRule{
		Name:   parts[0],
		Factor: parts[1],
		Op:     parts[2],
		Value:  value,
	}, nil
}

func printCorrelations(result *vquant.StudyResult) {
	fmt.Printf("%-10s %-28s %12s %6s\n", "TICKER", "COLUMN", "CORRELATION", "N")
	for _, c := range result.Correlations {
		value := "n/a"
		if !math.IsNaN(c.Value) {
			value = strconv.FormatFloat(c.Value, 'f', 4, 64)
		}
		fmt.Printf("%-10s %-28s %12s %6d\n", c.Ticker, c.Column, value, c.N)
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
