package events

import (
	"time"

	"standx-mm-bot/internal/venue"
)

type Kind string

const (
	KindPriceFetched         Kind = "price_fetched"
	KindPriceFetchFailed     Kind = "price_fetch_failed"
	KindPriceStale           Kind = "price_stale"
	KindOrderPlaced          Kind = "order_placed"
	KindPlacementRejected    Kind = "placement_rejected"
	KindOrderFilled          Kind = "order_filled"
	KindOrderCancelled       Kind = "order_cancelled"
	KindCancelFailed         Kind = "cancel_failed"
	KindPositionNeutralized  Kind = "position_neutralized"
	KindNeutralizationFailed Kind = "neutralization_failed"
	KindTickComplete         Kind = "tick_complete"
	KindShutdownComplete     Kind = "shutdown_complete"
)

// Event is one entry of the activity stream. Fields that do not apply to a
// kind stay zero.
type Event struct {
	Time     time.Time  `json:"time"`
	Kind     Kind       `json:"kind"`
	Symbol   string     `json:"symbol"`
	OrderID  string     `json:"order_id,omitempty"`
	Side     venue.Side `json:"side,omitempty"`
	Price    float64    `json:"price,omitempty"`
	Size     float64    `json:"size,omitempty"`
	Position float64    `json:"position,omitempty"`
	Count    int        `json:"count,omitempty"`
	Message  string     `json:"message,omitempty"`
	Err      string     `json:"error,omitempty"`
}

// Failure reports whether the event marks something that went wrong.
func (e Event) Failure() bool {
	switch e.Kind {
	case KindPriceFetchFailed, KindPriceStale, KindPlacementRejected, KindCancelFailed, KindNeutralizationFailed:
		return true
	default:
		return false
	}
}

type Sink interface {
	Emit(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) {
	f(e)
}

// Multi fans an event out to every sink in order.
type Multi []Sink

func (m Multi) Emit(e Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(e)
		}
	}
}

type Nop struct{}

func (Nop) Emit(Event) {}
