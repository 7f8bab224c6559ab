package exec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"standx-mm-bot/internal/venue"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 200 * time.Millisecond
)

// Executor decorates a venue gateway. Reads used for reconciliation are
// retried with exponential backoff; placements and cancels go out exactly once.
type Executor struct {
	gw  venue.Gateway
	log *zap.Logger

	attempts int
	backoff  time.Duration
}

type Option func(*Executor)

func WithRetry(attempts int, backoff time.Duration) Option {
	return func(e *Executor) {
		if attempts > 0 {
			e.attempts = attempts
		}
		if backoff > 0 {
			e.backoff = backoff
		}
	}
}

func New(gw venue.Gateway, log *zap.Logger, opts ...Option) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Executor{
		gw:       gw,
		log:      log,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) GetMarkPrice(ctx context.Context, symbol string) (venue.MarkPrice, error) {
	return e.gw.GetMarkPrice(ctx, symbol)
}

func (e *Executor) GetOpenOrders(ctx context.Context, symbol string) ([]venue.Order, error) {
	var orders []venue.Order
	err := e.retry(ctx, "open orders", func() error {
		var err error
		orders, err = e.gw.GetOpenOrders(ctx, symbol)
		return err
	})
	return orders, err
}

func (e *Executor) GetPosition(ctx context.Context, symbol string) (venue.Position, error) {
	var pos venue.Position
	err := e.retry(ctx, "position", func() error {
		var err error
		pos, err = e.gw.GetPosition(ctx, symbol)
		return err
	})
	return pos, err
}

func (e *Executor) PlaceLimitOrder(ctx context.Context, order venue.LimitOrder) (string, error) {
	return e.gw.PlaceLimitOrder(ctx, order)
}

func (e *Executor) PlaceMarketOrder(ctx context.Context, order venue.MarketOrder) (venue.Fill, error) {
	return e.gw.PlaceMarketOrder(ctx, order)
}

func (e *Executor) CancelOrder(ctx context.Context, ref venue.OrderRef) error {
	return e.gw.CancelOrder(ctx, ref)
}

func (e *Executor) retry(ctx context.Context, op string, fn func() error) error {
	backoff := e.backoff
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || attempt >= e.attempts {
			return fmt.Errorf("%s: retry failed after %d attempts: %w", op, attempt, err)
		}
		e.log.Debug("retrying venue read", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}
