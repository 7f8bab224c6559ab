package app

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"standx-mm-bot/internal/events"
	"standx-mm-bot/internal/ledger"
)

// ErrShutdownIncomplete means orders may still rest on the venue after exit.
var ErrShutdownIncomplete = errors.New("shutdown incomplete")

// shutdown cancels every Resting order, then anything else the venue still
// shows for the symbol. The open position is left as is.
func (a *App) shutdown(ctx context.Context) error {
	if a.cfg.Shutdown.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Shutdown.Timeout)
		defer cancel()
	}
	cancelled, filled, failed := a.cancelResting(ctx, true)
	orphans := 0
	open, readErr := a.gateway.GetOpenOrders(ctx, a.symbol)
	if readErr != nil {
		a.log.Warn("shutdown open orders read failed", zap.Error(readErr))
	} else {
		orphans = a.cancelOrphans(ctx, a.untracked(open))
	}
	position := a.ledger.Position()
	if math.Abs(position) > ledger.PositionEpsilon {
		a.log.Warn("position left open on shutdown", zap.Float64("position", position))
	}
	a.ledger.Prune()
	a.persist(ctx)
	a.emit(events.Event{
		Kind:     events.KindShutdownComplete,
		Position: position,
		Count:    cancelled + orphans,
		Message:  fmt.Sprintf("cancelled=%d filled=%d failed=%d orphans=%d", cancelled, filled, failed, orphans),
	})
	switch {
	case failed > 0:
		return fmt.Errorf("%d orders failed to cancel: %w", failed, ErrShutdownIncomplete)
	case readErr != nil:
		return fmt.Errorf("open orders unknown: %w: %w", ErrShutdownIncomplete, readErr)
	}
	return nil
}
