package strategy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"standx-mm-bot/internal/config"
)

var (
	ErrMarkStale     = errors.New("mark price stale")
	ErrExposureLimit = errors.New("net exposure above limit")
	ErrOpenOrders    = errors.New("open orders above limit")
)

// CheckMarkAge rejects a mark price older than the configured maximum age.
// A zero timestamp is accepted because not every feed reports one.
func CheckMarkAge(cfg config.RiskConfig, markTime, now time.Time) error {
	if cfg.MaxMarkAge <= 0 || markTime.IsZero() {
		return nil
	}
	if age := now.Sub(markTime); age > cfg.MaxMarkAge {
		return fmt.Errorf("mark price age %s exceeds %s: %w", age, cfg.MaxMarkAge, ErrMarkStale)
	}
	return nil
}

// CheckExposure guards quoting while a failed flatten leaves a position open.
func CheckExposure(cfg config.RiskConfig, netSize float64) error {
	if cfg.MaxPosition > 0 && math.Abs(netSize) > cfg.MaxPosition {
		return fmt.Errorf("net size %.8f exceeds %.8f: %w", netSize, cfg.MaxPosition, ErrExposureLimit)
	}
	return nil
}

// CheckOpenOrders guards quoting while cancels keep failing and orders pile up.
func CheckOpenOrders(cfg config.RiskConfig, resting int) error {
	if cfg.MaxOpenOrders > 0 && resting > cfg.MaxOpenOrders {
		return fmt.Errorf("%d resting orders exceed %d: %w", resting, cfg.MaxOpenOrders, ErrOpenOrders)
	}
	return nil
}
