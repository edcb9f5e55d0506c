package main

import (
	"log/slog"
	"os"

	"github.com/edges-ai/vquant/internal/app"
)

// buildTime is stamped via -ldflags "-X main.buildTime=...".
var buildTime = "dev"

func main() {
	application, err := app.New(buildTime)
	if err != nil {
		slog.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
