package timescale

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"standx-mm-bot/internal/config"
	"standx-mm-bot/internal/events"
	"standx-mm-bot/internal/venue"
)

func TestNewDisabledReturnsNil(t *testing.T) {
	w, err := New(config.TimescaleConfig{}, zap.NewNop())
	if err != nil || w != nil {
		t.Fatalf("expected nil writer when disabled, got %v / %v", w, err)
	}
	// A nil writer is a valid no-op.
	w.Start(context.Background())
	w.EnqueueTick(TickSnapshot{Symbol: "BTC-USD"})
	w.Emit(events.Event{Kind: events.KindOrderFilled})
	if err := w.Close(); err != nil {
		t.Fatalf("close nil writer: %v", err)
	}
}

func TestNewRequiresDSN(t *testing.T) {
	if _, err := New(config.TimescaleConfig{Enabled: true}, zap.NewNop()); err == nil {
		t.Fatalf("expected error without dsn")
	}
}

func TestFillFromEvent(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0)
	fill, ok := FillFromEvent(events.Event{
		Time: ts, Kind: events.KindPositionNeutralized, Symbol: "BTC-USD",
		OrderID: "n-1", Side: venue.SideAsk, Size: 0.0015,
	})
	if !ok || fill.Kind != FillKindNeutralize || fill.Side != "ASK" || fill.Size != 0.0015 || !fill.Time.Equal(ts) {
		t.Fatalf("unexpected fill %+v", fill)
	}
	if _, ok := FillFromEvent(events.Event{Kind: events.KindOrderPlaced}); ok {
		t.Fatalf("placement must not produce a fill")
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	w := newWriter(nil, "", 1, zap.NewNop())
	w.Emit(events.Event{Kind: events.KindOrderFilled, OrderID: "a"})
	w.Emit(events.Event{Kind: events.KindOrderFilled, OrderID: "b"})
	w.EnqueueTick(TickSnapshot{})
	w.EnqueueTick(TickSnapshot{})
	if w.dropFills.Load() != 1 || w.dropTicks.Load() != 1 {
		t.Fatalf("expected one drop per queue, got fills=%d ticks=%d", w.dropFills.Load(), w.dropTicks.Load())
	}
	if w.table("fills") != "public.fills" {
		t.Fatalf("unexpected table name %q", w.table("fills"))
	}
}
