package main

import (
	"context"
	"log/slog"
	"os"

	"callcenter-platform/internal/config"
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		slog.Error("env file load failed", "err", err)
		os.Exit(1)
	}
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
