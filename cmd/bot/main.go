package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"standx-mm-bot/internal/app"
	"standx-mm-bot/internal/config"
	"standx-mm-bot/internal/logging"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	size := flag.Float64("size", 0, "order size override")
	authMode := flag.String("auth-mode", "", "auth mode override: private_key or api_token")
	prompt := flag.Bool("prompt", false, "ask for auth mode and order size on stdin")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	// Validation is repeated once flags and prompt answers are applied.
	cfg, err := config.Load(*configPath)
	if cfg == nil {
		fatal(err)
	}
	if *authMode != "" {
		cfg.Auth.Mode = *authMode
	}
	if *size > 0 {
		cfg.Strategy.OrderSize = *size
	}
	if *prompt {
		if err := promptOptions(os.Stdin, os.Stdout, cfg); err != nil {
			fatal(err)
		}
	}
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}

	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()
	log.Info("config loaded",
		zap.String("path", *configPath),
		zap.String("mode", cfg.Venue.Mode),
		zap.String("symbol", cfg.Strategy.Symbol),
		zap.Float64("spread_bps", cfg.Strategy.SpreadBps),
		zap.Float64("order_size", cfg.Strategy.OrderSize),
	)

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize app", zap.Error(err))
		os.Exit(1)
	}
	log.Info("app initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.Error("shutdown left orders on the venue", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
