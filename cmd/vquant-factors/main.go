package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	vquant "github.com/edges-ai/vquant"
	"github.com/edges-ai/vquant/internal/config"
	"github.com/edges-ai/vquant/internal/infrastructure"
)

func main() {
	category := flag.String("category", "", "only list factors in this category")
	asJSON := flag.Bool("json", false, "emit the catalog as JSON")
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

	client, err := vquant.New(cfg.Data.Market, cfg.Data.BaseURL,
		vquant.WithTimeframe(cfg.Data.Timeframe),
		vquant.WithLogger(logger),
		vquant.WithCacheDir(cfg.Data.CacheDir))
	if err != nil {
		logger.Error("failed to open client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	infos, err := client.ListFactors(context.Background(), *category)
	if err != nil {
		logger.Error("failed to list factors", "error", err)
		os.Exit(1)
	}

	if *asJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(infos); err != nil {
			logger.Error("failed to encode catalog", "error", err)
			os.Exit(1)
		}
		return
	}

	if len(infos) == 0 {
		fmt.Println("no factors found")
		return
	}
	fmt.Printf("%-16s %-24s %s\n", "CATEGORY", "NAME", "FULL NAME")
	for _, info := range infos {
		fmt.Printf("%-16s %-24s %s\n", info.Category, info.Name, info.FullName())
	}
}
