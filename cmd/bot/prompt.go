package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"standx-mm-bot/internal/config"
)

// promptOptions asks for the auth mode and order size. An empty answer keeps
// the configured value.
func promptOptions(in io.Reader, out io.Writer, cfg *config.Config) error {
	reader := bufio.NewReader(in)
	fmt.Fprintln(out, "Select authentication mode:")
	fmt.Fprintln(out, "  1. Private key wallet (WALLET_PRIVATE_KEY)")
	fmt.Fprintln(out, "  2. API token (STANDX_API_TOKEN and STANDX_API_KEY)")
	fmt.Fprintf(out, "Enter choice [%s]: ", cfg.Auth.Mode)
	choice, err := readLine(reader)
	if err != nil {
		return err
	}
	switch choice {
	case "":
	case "1", config.AuthPrivateKey:
		cfg.Auth.Mode = config.AuthPrivateKey
	case "2", config.AuthAPIToken:
		cfg.Auth.Mode = config.AuthAPIToken
	default:
		return fmt.Errorf("invalid auth choice %q: %w", choice, config.ErrInvalidInput)
	}

	fmt.Fprintf(out, "Enter order size for %s [%s]: ", cfg.Strategy.Symbol, strconv.FormatFloat(cfg.Strategy.OrderSize, 'f', -1, 64))
	raw, err := readLine(reader)
	if err != nil {
		return err
	}
	if raw == "" {
		return nil
	}
	size, err := strconv.ParseFloat(raw, 64)
	if err != nil || size <= 0 {
		return fmt.Errorf("invalid order size %q: %w", raw, config.ErrInvalidInput)
	}
	cfg.Strategy.OrderSize = size
	return nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
