package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"standx-mm-bot/internal/config"
	"standx-mm-bot/internal/logging"
	"standx-mm-bot/internal/standx"
	"standx-mm-bot/internal/standx/rest"
)

const (
	defaultVerifyEnvFile = ".env"
	verifyTimeout        = 30 * time.Second
)

// verify authenticates against StandX and prints the balance, position and
// open orders for the configured symbol. It never trades.
func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	authMode := flag.String("auth-mode", "", "auth mode override: private_key or api_token")
	flag.Parse()

	if err := config.LoadEnv(defaultVerifyEnvFile); err != nil {
		fatal(err)
	}
	cfg, err := config.Load(*configPath)
	if cfg == nil {
		fatal(err)
	}
	cfg.Venue.Mode = config.ModeLive
	if *authMode != "" {
		cfg.Auth.Mode = *authMode
	}
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}

	log := logging.New(config.LoggingConfig{Level: cfg.Log.Level})
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	client := rest.New(cfg.Venue.BaseURL, cfg.Venue.GeoURL, cfg.Venue.Timeout, log)
	session, err := standx.Authenticate(ctx, cfg, client, log)
	if err != nil {
		fatal(fmt.Errorf("authenticate: %w", err))
	}
	fmt.Printf("authenticated: mode=%s address=%s request_id=%s\n", cfg.Auth.Mode, session.Address, session.Signer.RequestID())

	balance, err := client.QueryBalance(ctx)
	if err != nil {
		fatal(fmt.Errorf("query balance: %w", err))
	}
	printJSON("balance", balance)

	gateway := standx.NewGateway(client, nil, 0, log)
	mark, err := gateway.GetMarkPrice(ctx, cfg.Strategy.Symbol)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("mark price: %s %v\n", mark.Symbol, mark.Price)

	position, err := gateway.GetPosition(ctx, cfg.Strategy.Symbol)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("net position: %v\n", position.NetSize)

	orders, err := gateway.GetOpenOrders(ctx, cfg.Strategy.Symbol)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("open orders: %d\n", len(orders))
	for _, order := range orders {
		fmt.Printf("  %s %s %v @ %v (cl_ord_id=%s)\n", order.OrderID, order.Side, order.Size, order.Price, order.ClientOrderID)
	}
	log.Info("verify complete", zap.String("symbol", cfg.Strategy.Symbol))
}

func printJSON(label string, v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%s: %v\n", label, v)
		return
	}
	fmt.Printf("%s: %s\n", label, out)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
