package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"standx-mm-bot/internal/config"
	"standx-mm-bot/internal/events"
	"standx-mm-bot/internal/ledger"
	"standx-mm-bot/internal/state"
	"standx-mm-bot/internal/strategy"
	"standx-mm-bot/internal/venue"
	"standx-mm-bot/internal/venue/paper"
)

const testSymbol = "BTC-USD"

type memoryStore struct {
	mu    sync.Mutex
	items map[string][]byte
}

func (m *memoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.items[key]
	return val, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string][]byte)
	}
	m.items[key] = value
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}

// flakyGateway wraps the paper venue and injects failures per operation.
type flakyGateway struct {
	*paper.Venue

	mu        sync.Mutex
	priceErr  error
	marketErr error
	cancelErr error
	placeErr  map[venue.Side]error
	// lostAck places the order on the venue but reports a failure.
	lostAck map[venue.Side]bool
}

func (g *flakyGateway) set(fn func(g *flakyGateway)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

func (g *flakyGateway) GetMarkPrice(ctx context.Context, symbol string) (venue.MarkPrice, error) {
	g.mu.Lock()
	err := g.priceErr
	g.mu.Unlock()
	if err != nil {
		return venue.MarkPrice{}, err
	}
	return g.Venue.GetMarkPrice(ctx, symbol)
}

func (g *flakyGateway) PlaceLimitOrder(ctx context.Context, order venue.LimitOrder) (string, error) {
	g.mu.Lock()
	err := g.placeErr[order.Side]
	lost := g.lostAck[order.Side]
	g.mu.Unlock()
	if err != nil {
		return "", err
	}
	if lost {
		if _, err := g.Venue.PlaceLimitOrder(ctx, order); err != nil {
			return "", err
		}
		return "", errors.New("gateway timeout")
	}
	return g.Venue.PlaceLimitOrder(ctx, order)
}

func (g *flakyGateway) PlaceMarketOrder(ctx context.Context, order venue.MarketOrder) (venue.Fill, error) {
	g.mu.Lock()
	err := g.marketErr
	g.mu.Unlock()
	if err != nil {
		return venue.Fill{}, err
	}
	return g.Venue.PlaceMarketOrder(ctx, order)
}

func (g *flakyGateway) CancelOrder(ctx context.Context, ref venue.OrderRef) error {
	g.mu.Lock()
	err := g.cancelErr
	g.mu.Unlock()
	if err != nil {
		return err
	}
	return g.Venue.CancelOrder(ctx, ref)
}

func newFlaky(mark float64) *flakyGateway {
	v := paper.New(nil)
	if mark > 0 {
		v.SetMark(testSymbol, mark)
	}
	return &flakyGateway{Venue: v, placeErr: make(map[venue.Side]error), lostAck: make(map[venue.Side]bool)}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, key := range []string{"SYMBOL", "ORDER_SIZE", "STANDX_API_URL", "STANDX_AUTH_MODE"} {
		t.Setenv(key, "")
	}
	cfg, err := config.Parse([]byte(`
venue:
  mode: paper
strategy:
  symbol: btc
  refresh_interval: 1h
`))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return cfg
}

func newTestApp(t *testing.T, gw venue.Gateway, store state.Store, mutate func(*config.Config)) *App {
	t.Helper()
	cfg := testConfig(t)
	if mutate != nil {
		mutate(cfg)
	}
	a := newApp(cfg, zap.NewNop(), components{gateway: gw, store: store})
	var seq atomic.Int64
	a.newID = func() string { return fmt.Sprintf("cl-%d", seq.Add(1)) }
	return a
}

func drain(a *App) []events.Event {
	var out []events.Event
	for {
		select {
		case e, ok := <-a.Events():
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func ofKind(evts []events.Event, kind events.Kind) []events.Event {
	var out []events.Event
	for _, e := range evts {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func restingBySide(t *testing.T, a *App) map[venue.Side]ledger.OrderRecord {
	t.Helper()
	out := make(map[venue.Side]ledger.OrderRecord)
	for _, rec := range a.ledger.Resting() {
		if _, dup := out[rec.Side]; dup {
			t.Fatalf("more than one resting %s order", rec.Side)
		}
		out[rec.Side] = rec
	}
	return out
}

func TestTickQuotesAroundMark(t *testing.T) {
	gw := newFlaky(60000)
	a := newTestApp(t, gw, nil, nil)
	a.tick(context.Background())

	resting := restingBySide(t, a)
	if resting[venue.SideBid].Price != 59976 || resting[venue.SideAsk].Price != 60024 {
		t.Fatalf("unexpected quote %+v", resting)
	}
	if resting[venue.SideBid].Size != 0.0015 || resting[venue.SideAsk].Size != 0.0015 {
		t.Fatalf("unexpected sizes %+v", resting)
	}
	open, _ := gw.GetOpenOrders(context.Background(), testSymbol)
	if len(open) != 2 {
		t.Fatalf("expected both sides on the venue, got %+v", open)
	}
	if phase := a.machine.Current(); phase != strategy.PhaseIdle {
		t.Fatalf("expected idle after tick, got %s", phase)
	}
	evts := drain(a)
	if len(ofKind(evts, events.KindPriceFetched)) != 1 || len(ofKind(evts, events.KindOrderPlaced)) != 2 {
		t.Fatalf("unexpected events %+v", evts)
	}
	done := ofKind(evts, events.KindTickComplete)
	if len(done) != 1 || done[0].Count != 2 || done[0].Symbol != testSymbol {
		t.Fatalf("unexpected tick_complete %+v", done)
	}
}

// Mark 60000 quotes 59976/60024; the bid fills, the next tick at 60010 sells
// the 0.0015 at market and requotes around the new mark.
func TestFillIsNeutralizedAndRequoted(t *testing.T) {
	gw := newFlaky(60000)
	a := newTestApp(t, gw, nil, nil)
	ctx := context.Background()
	a.tick(ctx)
	first := restingBySide(t, a)
	bid := first[venue.SideBid]
	ask := first[venue.SideAsk]
	if _, err := gw.Fill(bid.OrderID); err != nil {
		t.Fatalf("fill bid: %v", err)
	}
	if got := gw.Position(testSymbol); got != 0.0015 {
		t.Fatalf("expected long 0.0015 after fill, got %v", got)
	}
	gw.SetMark(testSymbol, 60010)
	drain(a)

	a.tick(ctx)

	evts := drain(a)
	filled := ofKind(evts, events.KindOrderFilled)
	if len(filled) != 1 || filled[0].OrderID != bid.OrderID {
		t.Fatalf("expected bid reported filled, got %+v", filled)
	}
	neutralized := ofKind(evts, events.KindPositionNeutralized)
	if len(neutralized) != 1 || neutralized[0].Side != venue.SideAsk || neutralized[0].Size != 0.0015 {
		t.Fatalf("expected market sell of 0.0015, got %+v", neutralized)
	}
	if got := gw.Position(testSymbol); got != 0 {
		t.Fatalf("expected flat venue position, got %v", got)
	}
	cancelled := ofKind(evts, events.KindOrderCancelled)
	if len(cancelled) != 1 || cancelled[0].OrderID != ask.OrderID {
		t.Fatalf("expected stale ask cancelled, got %+v", cancelled)
	}
	if _, ok := a.ledger.Record(bid.OrderID); ok {
		t.Fatalf("expected filled bid pruned after the tick")
	}
	requoted := restingBySide(t, a)
	if requoted[venue.SideBid].Price != 59985.99 || requoted[venue.SideAsk].Price != 60034.01 {
		t.Fatalf("unexpected requote %+v", requoted)
	}
	fills := gw.Fills()
	if len(fills) != 2 || fills[1].Side != venue.SideAsk || fills[1].Size != 0.0015 {
		t.Fatalf("unexpected venue fills %+v", fills)
	}
}

func TestPriceFailureNeutralizesButDoesNotQuote(t *testing.T) {
	gw := newFlaky(60000)
	a := newTestApp(t, gw, nil, nil)
	ctx := context.Background()
	a.tick(ctx)
	first := restingBySide(t, a)
	if _, err := gw.Fill(first[venue.SideBid].OrderID); err != nil {
		t.Fatalf("fill bid: %v", err)
	}
	gw.set(func(g *flakyGateway) {
		g.priceErr = venue.Wrap("mark price", venue.ErrPriceFetch, errors.New("timeout"))
	})
	drain(a)

	a.tick(ctx)

	evts := drain(a)
	if len(ofKind(evts, events.KindPriceFetchFailed)) != 1 {
		t.Fatalf("expected price_fetch_failed, got %+v", evts)
	}
	if len(ofKind(evts, events.KindPositionNeutralized)) != 1 || gw.Position(testSymbol) != 0 {
		t.Fatalf("expected venue exposure neutralized despite missing price")
	}
	if len(ofKind(evts, events.KindOrderPlaced)) != 0 || len(ofKind(evts, events.KindOrderCancelled)) != 0 {
		t.Fatalf("orders must not change without a price: %+v", evts)
	}
	resting := a.ledger.Resting()
	if len(resting) != 1 || resting[0].OrderID != first[venue.SideAsk].OrderID {
		t.Fatalf("expected the ask left resting, got %+v", resting)
	}
	if phase := a.machine.Current(); phase != strategy.PhaseIdle {
		t.Fatalf("expected idle after aborted tick, got %s", phase)
	}
}

func TestStalePriceEscalates(t *testing.T) {
	gw := newFlaky(0)
	a := newTestApp(t, gw, nil, func(cfg *config.Config) { cfg.Strategy.MaxStaleTicks = 2 })
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		a.tick(ctx)
	}
	evts := drain(a)
	if got := len(ofKind(evts, events.KindPriceFetchFailed)); got != 3 {
		t.Fatalf("expected 3 price failures, got %d", got)
	}
	stale := ofKind(evts, events.KindPriceStale)
	if len(stale) != 2 || stale[0].Count != 2 || stale[1].Count != 3 {
		t.Fatalf("unexpected price_stale events %+v", stale)
	}
	if len(a.ledger.Resting()) != 0 {
		t.Fatalf("nothing may be quoted on stale prices")
	}

	gw.SetMark(testSymbol, 60000)
	a.tick(ctx)
	if a.staleTicks != 0 || len(a.ledger.Resting()) != 2 {
		t.Fatalf("expected recovery once the price returns, stale=%d", a.staleTicks)
	}
}

func TestStaleMarkAgeCountsAsFailure(t *testing.T) {
	gw := newFlaky(60000)
	a := newTestApp(t, gw, nil, func(cfg *config.Config) { cfg.Risk.MaxMarkAge = time.Second })
	a.now = func() time.Time { return time.Now().Add(time.Minute) }
	a.tick(context.Background())
	if len(a.ledger.Resting()) != 0 {
		t.Fatalf("expected no quotes on an old mark")
	}
	if len(ofKind(drain(a), events.KindPriceFetchFailed)) != 1 {
		t.Fatalf("expected mark age reported as a fetch failure")
	}
}

func TestPlacementFailureIsIsolated(t *testing.T) {
	gw := newFlaky(60000)
	gw.placeErr[venue.SideAsk] = errors.New("insufficient margin")
	a := newTestApp(t, gw, nil, nil)
	a.tick(context.Background())

	resting := restingBySide(t, a)
	if len(resting) != 1 || resting[venue.SideBid].Price != 59976 {
		t.Fatalf("expected only the bid resting, got %+v", resting)
	}
	rejected := ofKind(drain(a), events.KindPlacementRejected)
	if len(rejected) != 1 || rejected[0].Side != venue.SideAsk {
		t.Fatalf("unexpected rejections %+v", rejected)
	}
	if !strings.Contains(rejected[0].Err, "placement rejected") || !strings.Contains(rejected[0].Err, "insufficient margin") {
		t.Fatalf("unexpected rejection error %q", rejected[0].Err)
	}
}

func orphanCancels(evts []events.Event) map[string]bool {
	out := make(map[string]bool)
	for _, e := range ofKind(evts, events.KindOrderCancelled) {
		if e.Message == "orphan" {
			out[e.OrderID] = true
		}
	}
	return out
}

func TestTickCancelsUntrackedOrders(t *testing.T) {
	gw := newFlaky(60000)
	a := newTestApp(t, gw, nil, nil)
	ctx := context.Background()
	a.tick(ctx)
	drain(a)

	manual := venue.LimitOrder{Symbol: testSymbol, Side: venue.SideBid, Price: 50000, Size: 0.01, ClientOrderID: "manual-1"}
	if _, err := gw.Venue.PlaceLimitOrder(ctx, manual); err != nil {
		t.Fatalf("place manual order: %v", err)
	}
	a.tick(ctx)
	orphans := orphanCancels(drain(a))
	if len(orphans) != 1 || !orphans["manual-1"] {
		t.Fatalf("expected manual order cancelled as orphan, got %v", orphans)
	}
	open, _ := gw.GetOpenOrders(ctx, testSymbol)
	if len(open) != 2 {
		t.Fatalf("expected only the fresh quote on the venue, got %+v", open)
	}
	for _, order := range open {
		if order.Key() == "manual-1" {
			t.Fatalf("manual order still resting")
		}
	}
}

func TestRejectedPlacementAcceptedByVenueIsCancelledNextTick(t *testing.T) {
	gw := newFlaky(60000)
	gw.set(func(g *flakyGateway) { g.lostAck[venue.SideAsk] = true })
	a := newTestApp(t, gw, nil, nil)
	ctx := context.Background()
	a.tick(ctx)

	rejected := ofKind(drain(a), events.KindPlacementRejected)
	if len(rejected) != 1 || rejected[0].Side != venue.SideAsk {
		t.Fatalf("expected one rejected ask, got %+v", rejected)
	}
	lostID := rejected[0].OrderID
	open, _ := gw.GetOpenOrders(ctx, testSymbol)
	if len(open) != 2 || len(a.ledger.Resting()) != 1 {
		t.Fatalf("expected venue to hold both sides and ledger one, got %d / %d", len(open), len(a.ledger.Resting()))
	}

	gw.set(func(g *flakyGateway) { g.lostAck[venue.SideAsk] = false })
	a.tick(ctx)
	orphans := orphanCancels(drain(a))
	if len(orphans) != 1 || !orphans[lostID] {
		t.Fatalf("expected %s cancelled as orphan, got %v", lostID, orphans)
	}
	open, _ = gw.GetOpenOrders(ctx, testSymbol)
	if len(open) != 2 {
		t.Fatalf("expected one order per side, got %+v", open)
	}
	for _, order := range open {
		if order.Key() == lostID {
			t.Fatalf("lost placement still resting")
		}
	}
}

func TestNeutralizationFailureIsReportedAndQuotingContinues(t *testing.T) {
	gw := newFlaky(60000)
	a := newTestApp(t, gw, nil, nil)
	ctx := context.Background()
	a.tick(ctx)
	if _, err := gw.Fill(restingBySide(t, a)[venue.SideBid].OrderID); err != nil {
		t.Fatalf("fill bid: %v", err)
	}
	gw.set(func(g *flakyGateway) { g.marketErr = errors.New("venue busy") })
	drain(a)

	a.tick(ctx)

	evts := drain(a)
	failed := ofKind(evts, events.KindNeutralizationFailed)
	if len(failed) != 1 || failed[0].Position != 0.0015 || !strings.Contains(failed[0].Err, "neutralization failed") {
		t.Fatalf("unexpected neutralization failure %+v", failed)
	}
	if len(ofKind(evts, events.KindOrderPlaced)) != 2 {
		t.Fatalf("expected quoting to continue after a failed flatten")
	}
}

func TestExposureLimitSkipsQuoting(t *testing.T) {
	gw := newFlaky(60000)
	a := newTestApp(t, gw, nil, func(cfg *config.Config) { cfg.Risk.MaxPosition = 0.001 })
	ctx := context.Background()
	a.tick(ctx)
	if _, err := gw.Fill(restingBySide(t, a)[venue.SideBid].OrderID); err != nil {
		t.Fatalf("fill bid: %v", err)
	}
	gw.set(func(g *flakyGateway) { g.marketErr = errors.New("venue busy") })
	drain(a)

	a.tick(ctx)

	if len(a.ledger.Resting()) != 0 {
		t.Fatalf("expected no quotes above the exposure limit, got %+v", a.ledger.Resting())
	}
	if len(ofKind(drain(a), events.KindOrderPlaced)) != 0 {
		t.Fatalf("expected no placements")
	}
}

func TestCancelFailureKeepsRecordResting(t *testing.T) {
	gw := newFlaky(60000)
	a := newTestApp(t, gw, nil, nil)
	ctx := context.Background()
	a.tick(ctx)
	gw.set(func(g *flakyGateway) { g.cancelErr = errors.New("gateway timeout") })
	drain(a)

	a.tick(ctx)

	evts := drain(a)
	if got := len(ofKind(evts, events.KindCancelFailed)); got != 2 {
		t.Fatalf("expected two cancel failures, got %d", got)
	}
	if got := len(a.ledger.Resting()); got != 4 {
		t.Fatalf("expected old and new quotes resting, got %d", got)
	}

	a.machine.Apply(strategy.EventShutdown)
	if err := a.shutdown(ctx); !errors.Is(err, ErrShutdownIncomplete) {
		t.Fatalf("expected incomplete shutdown, got %v", err)
	}
	if got := len(a.ledger.Resting()); got != 0 {
		t.Fatalf("expected no resting records after shutdown, got %d", got)
	}
	done := ofKind(drain(a), events.KindShutdownComplete)
	if len(done) != 1 || !strings.Contains(done[0].Message, "failed=4") {
		t.Fatalf("unexpected shutdown_complete %+v", done)
	}
}

func TestAlreadyFilledOnCancelMarksFilled(t *testing.T) {
	gw := newFlaky(60000)
	a := newTestApp(t, gw, nil, nil)
	ctx := context.Background()
	a.tick(ctx)
	gw.set(func(g *flakyGateway) {
		g.cancelErr = venue.Wrap("cancel", venue.ErrAlreadyFilledOnCancel, errors.New("order not found"))
	})
	drain(a)

	a.tick(ctx)

	filled := ofKind(drain(a), events.KindOrderFilled)
	if len(filled) != 2 {
		t.Fatalf("expected both stale quotes reported filled, got %+v", filled)
	}
	if filled[0].Message != "already filled on cancel" {
		t.Fatalf("unexpected fill message %q", filled[0].Message)
	}
}

func TestShutdownCancelsEverything(t *testing.T) {
	gw := newFlaky(60000)
	store := &memoryStore{}
	a := newTestApp(t, gw, store, nil)
	ctx := context.Background()
	a.tick(ctx)
	if _, err := gw.PlaceLimitOrder(ctx, venue.LimitOrder{Symbol: testSymbol, Side: venue.SideBid, Price: 59000, Size: 1}); err != nil {
		t.Fatalf("place manual order: %v", err)
	}
	drain(a)

	a.machine.Apply(strategy.EventShutdown)
	if err := a.shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if len(a.ledger.Resting()) != 0 {
		t.Fatalf("expected empty ledger after shutdown")
	}
	open, _ := gw.GetOpenOrders(ctx, testSymbol)
	if len(open) != 0 {
		t.Fatalf("expected venue flat of orders, got %+v", open)
	}
	done := ofKind(drain(a), events.KindShutdownComplete)
	if len(done) != 1 || done[0].Count != 3 || done[0].Message != "cancelled=2 filled=0 failed=0 orphans=1" {
		t.Fatalf("unexpected shutdown_complete %+v", done)
	}
	snap, ok, err := state.LoadLedgerSnapshot(ctx, store, testSymbol)
	if err != nil || !ok {
		t.Fatalf("expected persisted snapshot, ok=%v err=%v", ok, err)
	}
	if len(snap.Resting()) != 0 {
		t.Fatalf("expected no live orders persisted after shutdown, got %v", snap.Resting())
	}
}

func TestShutdownLeavesPositionOpen(t *testing.T) {
	gw := newFlaky(60000)
	a := newTestApp(t, gw, nil, nil)
	ctx := context.Background()
	a.tick(ctx)
	if _, err := gw.Fill(restingBySide(t, a)[venue.SideAsk].OrderID); err != nil {
		t.Fatalf("fill ask: %v", err)
	}
	open, _ := gw.GetOpenOrders(ctx, testSymbol)
	a.ledger.Reconcile(open, venue.Position{Symbol: testSymbol, NetSize: gw.Position(testSymbol)})
	a.shutdown(ctx)
	if got := gw.Position(testSymbol); got != -0.0015 {
		t.Fatalf("shutdown must not flatten, position %v", got)
	}
	if fills := gw.Fills(); len(fills) != 1 {
		t.Fatalf("expected only the ask fill, got %+v", fills)
	}
}

func TestTickPersistsLedgerSnapshot(t *testing.T) {
	gw := newFlaky(60000)
	store := &memoryStore{}
	a := newTestApp(t, gw, store, nil)
	a.tick(context.Background())
	snap, ok, err := state.LoadLedgerSnapshot(context.Background(), store, testSymbol)
	if err != nil || !ok {
		t.Fatalf("expected snapshot, ok=%v err=%v", ok, err)
	}
	if len(snap.Resting()) != 2 || snap.Mark != 60000 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestStartupCancelsPreviousOrders(t *testing.T) {
	gw := newFlaky(60000)
	ctx := context.Background()
	if _, err := gw.PlaceLimitOrder(ctx, venue.LimitOrder{Symbol: testSymbol, Side: venue.SideBid, Price: 59900, Size: 0.0015, ClientOrderID: "old-1"}); err != nil {
		t.Fatalf("place old order: %v", err)
	}
	if _, err := gw.PlaceLimitOrder(ctx, venue.LimitOrder{Symbol: testSymbol, Side: venue.SideAsk, Price: 60100, Size: 0.5}); err != nil {
		t.Fatalf("place manual order: %v", err)
	}
	store := &memoryStore{}
	err := state.SaveLedgerSnapshot(ctx, store, state.LedgerSnapshot{
		Symbol: testSymbol,
		Records: []ledger.OrderRecord{
			{OrderID: "old-1", Side: venue.SideBid, Price: 59900, Size: 0.0015, State: ledger.StateResting},
		},
		Mark: 59950,
	})
	if err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
	a := newTestApp(t, gw, store, nil)
	core, logs := observer.New(zap.InfoLevel)
	a.log = zap.New(core)
	a.startup(ctx)

	open, _ := gw.GetOpenOrders(ctx, testSymbol)
	if len(open) != 0 {
		t.Fatalf("expected clean slate, got %+v", open)
	}
	restoredLogs := logs.FilterMessage("restored ledger snapshot").All()
	if len(restoredLogs) != 1 {
		t.Fatalf("expected one restore log, got %d", len(restoredLogs))
	}
	live, ok := restoredLogs[0].ContextMap()["live"].([]interface{})
	if !ok || len(live) != 1 || live[0] != "old-1" {
		t.Fatalf("expected old-1 logged as live, got %v", restoredLogs[0].ContextMap()["live"])
	}
	if _, ok := a.ledger.Record("old-1"); ok {
		t.Fatalf("expected restored order cancelled and pruned")
	}
	if a.lastMark.Price != 59950 {
		t.Fatalf("expected last mark restored, got %v", a.lastMark.Price)
	}
	cancelled := ofKind(drain(a), events.KindOrderCancelled)
	if len(cancelled) != 2 {
		t.Fatalf("expected restored and orphan orders cancelled, got %+v", cancelled)
	}
}

func TestRunStopsOnRequestShutdown(t *testing.T) {
	gw := newFlaky(60000)
	a := newTestApp(t, gw, &memoryStore{}, nil)
	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	var seen []events.Event
	requested := false
	timeout := time.After(5 * time.Second)
loop:
	for {
		select {
		case e, ok := <-a.Events():
			if !ok {
				break loop
			}
			seen = append(seen, e)
			if e.Kind == events.KindTickComplete && !requested {
				requested = true
				a.RequestShutdown()
				a.RequestShutdown()
			}
		case <-timeout:
			t.Fatalf("run did not stop, events %+v", seen)
		}
	}
	if err := <-done; err != nil {
		t.Fatalf("run returned %v", err)
	}
	if len(ofKind(seen, events.KindTickComplete)) != 1 {
		t.Fatalf("expected exactly one tick before shutdown")
	}
	if len(ofKind(seen, events.KindShutdownComplete)) != 1 {
		t.Fatalf("expected shutdown_complete")
	}
	if phase := a.machine.Current(); phase != strategy.PhaseShuttingDown {
		t.Fatalf("expected shutting down phase, got %s", phase)
	}
	open, _ := gw.GetOpenOrders(context.Background(), testSymbol)
	if len(open) != 0 || len(a.ledger.Resting()) != 0 {
		t.Fatalf("expected no orders left after run, venue=%d ledger=%d", len(open), len(a.ledger.Resting()))
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	gw := newFlaky(60000)
	a := newTestApp(t, gw, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("run returned %v", err)
	}
	open, _ := gw.GetOpenOrders(context.Background(), testSymbol)
	if len(open) != 0 {
		t.Fatalf("expected orders cancelled on exit, got %+v", open)
	}
}

func TestRunReportsOrdersLeftOnVenue(t *testing.T) {
	gw := newFlaky(60000)
	gw.set(func(g *flakyGateway) { g.cancelErr = errors.New("gateway timeout") })
	a := newTestApp(t, gw, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := a.Run(ctx)
	if !errors.Is(err, ErrShutdownIncomplete) {
		t.Fatalf("expected incomplete shutdown, got %v", err)
	}
	open, _ := gw.GetOpenOrders(context.Background(), testSymbol)
	if len(open) != 2 {
		t.Fatalf("expected both quotes still resting, got %+v", open)
	}
}
