package alerts

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"standx-mm-bot/internal/events"
)

const sendTimeout = 10 * time.Second

type Sender interface {
	Send(ctx context.Context, message string) error
}

// Notifier forwards alert-worthy events to a Sender from a bounded queue so
// the refresh cycle never waits on the network.
type Notifier struct {
	sender Sender
	log    *zap.Logger
	queue  chan string

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	started atomic.Bool
	dropped atomic.Uint64
}

func NewNotifier(sender Sender, queueSize int, log *zap.Logger) *Notifier {
	if queueSize <= 0 {
		queueSize = 32
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{sender: sender, log: log, queue: make(chan string, queueSize), done: make(chan struct{})}
}

func (n *Notifier) Start() {
	if !n.started.CompareAndSwap(false, true) {
		return
	}
	go n.run()
}

func (n *Notifier) run() {
	defer close(n.done)
	for msg := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := n.sender.Send(ctx, msg); err != nil {
			n.log.Warn("alert send failed", zap.Error(err))
		}
		cancel()
	}
}

func (n *Notifier) Emit(e events.Event) {
	msg, ok := Format(e)
	if !ok {
		return
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- msg:
	default:
		if n.dropped.Add(1) == 1 {
			n.log.Warn("alert queue full")
		}
	}
}

// Close stops accepting alerts and waits for queued ones to be sent.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()
	if n.started.Load() {
		<-n.done
	}
}

// Format renders the events worth a notification.
func Format(e events.Event) (string, bool) {
	var b strings.Builder
	switch e.Kind {
	case events.KindNeutralizationFailed:
		fmt.Fprintf(&b, "NEUTRALIZATION FAILED %s: exposure %s persists", e.Symbol, formatFloat(e.Position))
	case events.KindPositionNeutralized:
		fmt.Fprintf(&b, "Neutralized %s: %s %s at market", e.Symbol, e.Side, formatFloat(e.Size))
	case events.KindPriceStale:
		fmt.Fprintf(&b, "Mark price for %s unavailable for %d ticks, quoting paused", e.Symbol, e.Count)
	case events.KindShutdownComplete:
		fmt.Fprintf(&b, "Shutdown complete for %s", e.Symbol)
		if e.Message != "" {
			fmt.Fprintf(&b, ": %s", e.Message)
		}
	default:
		return "", false
	}
	if e.Err != "" {
		fmt.Fprintf(&b, " (%s)", e.Err)
	}
	return b.String(), true
}

func formatFloat(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.8f", v), "0"), ".")
}
