package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/edges-ai/vquant/internal/config"
	"github.com/edges-ai/vquant/internal/infrastructure"
	"github.com/edges-ai/vquant/internal/ingest"
	"github.com/edges-ai/vquant/storage"
)

func main() {
	dataDir := flag.String("data", "", "store root directory (defaults to the configured data dir)")
	market := flag.String("market", "", "market the files belong to (defaults to the configured market)")
	timeframe := flag.String("timeframe", "", "bar timeframe, e.g. 1d (defaults to the configured timeframe)")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: vquant-ingest [flags] <file-or-directory>...")
		flag.PrintDefaults()
		os.Exit(1)
	}

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

	if *dataDir == "" {
		if cfg.Data.IsRemote() {
			logger.Error("configured data source is remote; pass -data with a local store directory")
			os.Exit(1)
		}
		*dataDir = cfg.Data.BaseURL
	}
	if *market == "" {
		*market = cfg.Data.Market
	}
	if *timeframe == "" {
		*timeframe = cfg.Data.Timeframe
	}

	store, err := storage.NewLocal(*dataDir)
	if err != nil {
		logger.Error("failed to open store", "error", err, "dir", *dataDir)
		os.Exit(1)
	}
	defer store.Close()

	files, err := collectFiles(flag.Args())
	if err != nil {
		logger.Error("failed to collect input files", "error", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		logger.Error("no .csv or .xlsx files found in the given paths")
		os.Exit(1)
	}

	logger.Info("starting import",
		slog.String("market", *market),
		slog.String("timeframe", *timeframe),
		slog.String("store", *dataDir),
		slog.Int("files", len(files)))

	importer := ingest.NewImporter(store, *market, *timeframe, logger)
	ctx := context.Background()

	total := ingest.ImportStats{}
	failed := 0
	for _, file := range files {
		stats, err := importer.ImportFile(ctx, file)
		if err != nil {
			logger.Error("import failed", "error", err, "file", file)
			failed++
			continue
		}
		total.Files += stats.Files
		total.Bars += stats.Bars
		total.Tickers += stats.Tickers
		total.Skipped += stats.Skipped
	}

	logger.Info("import finished",
		slog.Int("files", total.Files),
		slog.Int("bars", total.Bars),
		slog.Int("tickers", total.Tickers),
		slog.Int("skipped_rows", total.Skipped),
		slog.Int("failed_files", failed))

	if failed > 0 {
		os.Exit(1)
	}
}

// collectFiles expands directories into their .csv/.xlsx entries and keeps
// plain file arguments as-is.
func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(entry.Name())) {
			case ".csv", ".xlsx":
				files = append(files, filepath.Join(arg, entry.Name()))
			}
		}
	}
	return files, nil
}
