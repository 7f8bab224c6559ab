package app

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"standx-mm-bot/internal/events"
	"standx-mm-bot/internal/ledger"
	"standx-mm-bot/internal/state"
	"standx-mm-bot/internal/strategy"
	"standx-mm-bot/internal/venue"
)

// tickResult collects what one tick did for the tick snapshot.
type tickResult struct {
	quote      strategy.Quote
	position   float64
	fills      int
	priceStale bool
}

// tick runs one refresh cycle. Every phase completes before the next starts;
// only the two quote sides are placed concurrently.
func (a *App) tick(ctx context.Context) {
	a.machine.Apply(strategy.EventTick)
	var res tickResult

	mark, priceErr := a.fetchMark(ctx)
	if priceErr != nil {
		a.machine.Apply(strategy.EventPriceFailed)
		res.priceStale = true
	} else {
		a.machine.Apply(strategy.EventPriceOK)
	}

	open, position, err := a.readVenue(ctx)
	if err != nil {
		a.log.Warn("reconcile read failed, orders left untouched", zap.Error(err))
		a.endTick(ctx, res, err.Error())
		return
	}
	result := a.ledger.Reconcile(open, position)
	res.position = result.Position
	res.fills = len(result.Filled)
	for _, rec := range result.Filled {
		a.emit(events.Event{
			Kind:    events.KindOrderFilled,
			OrderID: rec.OrderID,
			Side:    rec.Side,
			Price:   rec.Price,
			Size:    rec.Size,
		})
	}

	exposure := result.Position
	if result.Exposed() {
		a.machine.Apply(strategy.EventExposed)
		exposure = a.neutralize(ctx, result.Position)
		a.machine.Apply(strategy.EventNeutralized)
	} else {
		a.machine.Apply(strategy.EventFlat)
	}

	if priceErr != nil {
		a.endTick(ctx, res, "mark price unavailable, quoting skipped")
		return
	}

	a.cancelResting(ctx, false)
	a.cancelOrphans(ctx, result.Orphans)
	a.machine.Apply(strategy.EventCancelled)

	if err := a.checkRisk(exposure); err != nil {
		a.log.Warn("risk check failed, quoting skipped", zap.Error(err))
		a.endTick(ctx, res, err.Error())
		return
	}
	quote, err := strategy.ComputeQuote(mark.Price, strategy.QuoteParams{
		Symbol:    a.symbol,
		SpreadBps: a.cfg.Strategy.SpreadBps,
		OrderSize: a.cfg.Strategy.OrderSize,
		TickSize:  a.cfg.Strategy.TickSize,
		LotSize:   a.cfg.Strategy.LotSize,
	})
	if err != nil {
		a.log.Error("quote failed", zap.Float64("mark", mark.Price), zap.Error(err))
		a.endTick(ctx, res, err.Error())
		return
	}
	res.quote = quote
	a.placeQuote(ctx, quote)
	a.machine.Apply(strategy.EventPlaced)
	a.endTick(ctx, res, "")
}

// fetchMark returns the mark price and tracks consecutive failures. A mark
// older than risk.max_mark_age counts as a failed fetch.
func (a *App) fetchMark(ctx context.Context) (venue.MarkPrice, error) {
	mark, err := a.gateway.GetMarkPrice(ctx, a.symbol)
	if err == nil {
		if ageErr := strategy.CheckMarkAge(a.cfg.Risk, mark.Time, a.now()); ageErr != nil {
			err = venue.Wrap("mark price", venue.ErrPriceFetch, ageErr)
		}
	}
	if err != nil {
		a.staleTicks++
		a.emit(events.Event{Kind: events.KindPriceFetchFailed, Count: a.staleTicks, Err: err.Error()})
		if limit := a.cfg.Strategy.MaxStaleTicks; limit > 0 && a.staleTicks >= limit {
			a.emit(events.Event{Kind: events.KindPriceStale, Count: a.staleTicks, Price: a.lastMark.Price})
		}
		return venue.MarkPrice{}, err
	}
	a.staleTicks = 0
	a.lastMark = mark
	a.emit(events.Event{Kind: events.KindPriceFetched, Price: mark.Price})
	return mark, nil
}

func (a *App) readVenue(ctx context.Context) ([]venue.Order, venue.Position, error) {
	open, err := a.gateway.GetOpenOrders(ctx, a.symbol)
	if err != nil {
		return nil, venue.Position{}, fmt.Errorf("open orders: %w", err)
	}
	position, err := a.gateway.GetPosition(ctx, a.symbol)
	if err != nil {
		return nil, venue.Position{}, fmt.Errorf("position: %w", err)
	}
	return open, position, nil
}

// neutralize flattens netSize with a reduce-only market order on the opposite
// side and returns the exposure left afterwards.
func (a *App) neutralize(ctx context.Context, netSize float64) float64 {
	side := venue.Position{NetSize: netSize}.Side().Opposite()
	size := math.Abs(netSize)
	id := a.newID()
	fill, err := a.gateway.PlaceMarketOrder(ctx, venue.MarketOrder{
		Symbol:        a.symbol,
		Side:          side,
		Size:          size,
		ReduceOnly:    true,
		ClientOrderID: id,
	})
	if err != nil {
		err = venue.Wrap("neutralize", venue.ErrNeutralizationFailed, err)
		a.emit(events.Event{
			Kind:     events.KindNeutralizationFailed,
			OrderID:  id,
			Side:     side,
			Price:    a.lastMark.Price,
			Size:     size,
			Position: netSize,
			Err:      err.Error(),
		})
		return netSize
	}
	filled := fill.Size
	if filled <= 0 {
		filled = size
	}
	remaining := netSize + signedSize(side, filled)
	if math.Abs(remaining) <= ledger.PositionEpsilon {
		remaining = 0
	}
	a.emit(events.Event{
		Kind:     events.KindPositionNeutralized,
		OrderID:  id,
		Side:     side,
		Price:    a.lastMark.Price,
		Size:     filled,
		Position: remaining,
	})
	return remaining
}

// cancelResting cancels every Resting record. On shutdown a failed cancel is
// terminal; during a tick the record stays Resting and is retried next tick.
func (a *App) cancelResting(ctx context.Context, final bool) (cancelled, filled, failed int) {
	for _, rec := range a.ledger.Resting() {
		err := a.gateway.CancelOrder(ctx, venue.OrderRef{Symbol: a.symbol, ClientOrderID: rec.OrderID})
		switch {
		case err == nil:
			_ = a.ledger.MarkCancelled(rec.OrderID)
			cancelled++
			a.emit(events.Event{Kind: events.KindOrderCancelled, OrderID: rec.OrderID, Side: rec.Side, Price: rec.Price, Size: rec.Size})
		case errors.Is(err, venue.ErrAlreadyFilledOnCancel):
			_ = a.ledger.MarkFilled(rec.OrderID)
			filled++
			a.emit(events.Event{
				Kind:    events.KindOrderFilled,
				OrderID: rec.OrderID,
				Side:    rec.Side,
				Price:   rec.Price,
				Size:    rec.Size,
				Message: "already filled on cancel",
			})
		default:
			err = venue.Wrap("cancel "+rec.OrderID, venue.ErrCancel, err)
			failed++
			if final {
				_ = a.ledger.MarkFailed(rec.OrderID, err.Error())
			}
			a.emit(events.Event{Kind: events.KindCancelFailed, OrderID: rec.OrderID, Side: rec.Side, Price: rec.Price, Err: err.Error()})
		}
	}
	return cancelled, filled, failed
}

// cancelOrphans cancels venue orders for the symbol the ledger does not track.
func (a *App) cancelOrphans(ctx context.Context, orphans []venue.Order) int {
	cancelled := 0
	for _, order := range orphans {
		err := a.gateway.CancelOrder(ctx, venue.OrderRef{Symbol: a.symbol, OrderID: order.OrderID, ClientOrderID: order.ClientOrderID})
		switch {
		case err == nil:
			cancelled++
			a.emit(events.Event{Kind: events.KindOrderCancelled, OrderID: order.Key(), Side: order.Side, Price: order.Price, Size: order.Size, Message: "orphan"})
		case errors.Is(err, venue.ErrAlreadyFilledOnCancel):
			a.log.Info("orphan order already gone", zap.String("order_id", order.Key()))
		default:
			err = venue.Wrap("cancel orphan "+order.Key(), venue.ErrCancel, err)
			a.emit(events.Event{Kind: events.KindCancelFailed, OrderID: order.Key(), Side: order.Side, Price: order.Price, Err: err.Error(), Message: "orphan"})
		}
	}
	return cancelled
}

func (a *App) checkRisk(exposure float64) error {
	if err := strategy.CheckExposure(a.cfg.Risk, exposure); err != nil {
		return err
	}
	return strategy.CheckOpenOrders(a.cfg.Risk, len(a.ledger.Resting()))
}

// placeQuote places both sides independently; a failure on one side never
// blocks the other.
func (a *App) placeQuote(ctx context.Context, quote strategy.Quote) {
	var g errgroup.Group
	g.Go(func() error {
		a.place(ctx, venue.SideBid, quote.BidPrice, quote.Size)
		return nil
	})
	g.Go(func() error {
		a.place(ctx, venue.SideAsk, quote.AskPrice, quote.Size)
		return nil
	})
	_ = g.Wait()
}

func (a *App) place(ctx context.Context, side venue.Side, price, size float64) {
	id := a.newID()
	if err := a.ledger.RecordPlacement(id, side, price, size); err != nil {
		a.log.Error("ledger rejected placement", zap.String("order_id", id), zap.Error(err))
		return
	}
	_, err := a.gateway.PlaceLimitOrder(ctx, venue.LimitOrder{
		Symbol:        a.symbol,
		Side:          side,
		Price:         price,
		Size:          size,
		ClientOrderID: id,
	})
	if err != nil {
		err = venue.Wrap("place "+string(side), venue.ErrPlacementRejected, err)
		_ = a.ledger.MarkFailed(id, err.Error())
		a.emit(events.Event{Kind: events.KindPlacementRejected, OrderID: id, Side: side, Price: price, Size: size, Err: err.Error()})
		return
	}
	_ = a.ledger.ConfirmPlacement(id)
	a.emit(events.Event{
		Kind:    events.KindOrderPlaced,
		OrderID: id,
		Side:    side,
		Price:   price,
		Size:    size,
		Message: strategy.FormatDecimal(price, a.tickSize()),
	})
}

func (a *App) tickSize() float64 {
	if a.cfg.Strategy.TickSize > 0 {
		return a.cfg.Strategy.TickSize
	}
	return strategy.DefaultTick(a.lastMark.Price)
}

// endTick prunes reported records, persists the ledger and returns the state
// machine to Idle.
func (a *App) endTick(ctx context.Context, res tickResult, message string) {
	a.ledger.Prune()
	a.persist(ctx)
	resting := len(a.ledger.Resting())
	a.recordTick(res, resting)
	a.emit(events.Event{
		Kind:     events.KindTickComplete,
		Price:    a.lastMark.Price,
		Position: res.position,
		Count:    resting,
		Message:  message,
	})
	if a.machine.Current() != strategy.PhaseIdle {
		a.machine.Apply(strategy.EventAbort)
	}
}

// startup clears what a previous run left behind: restored ledger orders and
// every other venue order for the symbol are cancelled before the first tick.
func (a *App) startup(ctx context.Context) {
	snapshot, ok, err := state.LoadLedgerSnapshot(ctx, a.store, a.symbol)
	if err != nil {
		a.log.Warn("ledger snapshot load failed", zap.Error(err))
	} else if ok {
		restored := a.ledger.Restore(snapshot.Ledger())
		if snapshot.Mark > 0 {
			a.lastMark = venue.MarkPrice{Symbol: a.symbol, Price: snapshot.Mark}
		}
		a.log.Info("restored ledger snapshot",
			zap.Int("orders", restored),
			zap.Strings("live", snapshot.Resting()),
			zap.Float64("position", snapshot.Position),
		)
	}
	cancelled, filled, failed := a.cancelResting(ctx, false)
	open, err := a.gateway.GetOpenOrders(ctx, a.symbol)
	if err != nil {
		a.log.Warn("startup open orders read failed", zap.Error(err))
	} else {
		cancelled += a.cancelOrphans(ctx, a.untracked(open))
	}
	a.ledger.Prune()
	a.log.Info("startup clean slate",
		zap.Int("cancelled", cancelled),
		zap.Int("filled", filled),
		zap.Int("failed", failed),
	)
}

// untracked filters open to orders without a live ledger record.
func (a *App) untracked(open []venue.Order) []venue.Order {
	var out []venue.Order
	for _, order := range open {
		if rec, ok := a.ledger.Record(order.Key()); ok && !rec.State.Terminal() {
			continue
		}
		out = append(out, order)
	}
	return out
}

func signedSize(side venue.Side, size float64) float64 {
	if side == venue.SideAsk {
		return -size
	}
	return size
}
