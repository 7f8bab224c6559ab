package alerts

import (
	"context"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"standx-mm-bot/internal/events"
	"standx-mm-bot/internal/venue"
)

type recordingSender struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingSender) Send(ctx context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

func TestNotifierDeliversAlertEvents(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifier(sender, 8, zap.NewNop())
	n.Start()
	n.Emit(events.Event{Kind: events.KindOrderPlaced, Symbol: "BTC-USD"})
	n.Emit(events.Event{Kind: events.KindNeutralizationFailed, Symbol: "BTC-USD", Position: 0.0015, Err: "rejected"})
	n.Emit(events.Event{Kind: events.KindShutdownComplete, Symbol: "BTC-USD", Message: "2 cancelled"})
	n.Close()
	n.Emit(events.Event{Kind: events.KindShutdownComplete, Symbol: "BTC-USD"})

	if len(sender.messages) != 2 {
		t.Fatalf("expected 2 alerts, got %v", sender.messages)
	}
	if !strings.Contains(sender.messages[0], "NEUTRALIZATION FAILED BTC-USD") || !strings.Contains(sender.messages[0], "0.0015") || !strings.Contains(sender.messages[0], "(rejected)") {
		t.Fatalf("unexpected neutralization alert %q", sender.messages[0])
	}
	if sender.messages[1] != "Shutdown complete for BTC-USD: 2 cancelled" {
		t.Fatalf("unexpected shutdown alert %q", sender.messages[1])
	}
}

func TestNotifierDropsWhenFull(t *testing.T) {
	n := NewNotifier(&recordingSender{}, 1, zap.NewNop())
	n.Emit(events.Event{Kind: events.KindPriceStale, Symbol: "BTC-USD", Count: 3})
	n.Emit(events.Event{Kind: events.KindPriceStale, Symbol: "BTC-USD", Count: 4})
	if n.dropped.Load() != 1 {
		t.Fatalf("expected one dropped alert, got %d", n.dropped.Load())
	}
	n.Close()
}

func TestFormatNeutralized(t *testing.T) {
	msg, ok := Format(events.Event{Kind: events.KindPositionNeutralized, Symbol: "BTC-USD", Side: venue.SideAsk, Size: 0.0015})
	if !ok || msg != "Neutralized BTC-USD: ASK 0.0015 at market" {
		t.Fatalf("unexpected message %q", msg)
	}
	if _, ok := Format(events.Event{Kind: events.KindTickComplete}); ok {
		t.Fatalf("tick events must not alert")
	}
}
