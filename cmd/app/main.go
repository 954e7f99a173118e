package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"finance-assistant/internal/adapters/cli"
	"finance-assistant/internal/adapters/repl"
	"finance-assistant/internal/bootstrap"
	"finance-assistant/internal/config"
	"finance-assistant/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	// Terminal output belongs to the user; keep logs to warnings unless asked.
	level := cfg.LogLevel
	if level == "info" {
		level = "warn"
	}
	log := logger.New(logger.Config{Level: level, Format: "console"})
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	svc, cleanup, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer cleanup()

	handle := os.Getenv("ASSISTANT_USER")
	if handle == "" {
		handle = "local"
	}

	if len(os.Args) > 1 {
		if err := cli.Run(ctx, svc, handle, os.Args[1:], os.Stdout); err != nil {
			if !errors.Is(err, cli.ErrFailed) {
				fmt.Fprintln(os.Stderr, err)
			}
			cleanup()
			os.Exit(1)
		}
		return
	}

	if err := repl.Run(ctx, svc, handle, bufio.NewReader(os.Stdin), os.Stdout); err != nil {
		log.Error("repl", zap.Error(err))
	}
}
