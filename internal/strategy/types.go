package strategy

import "standx-mm-bot/internal/config"

// ErrInvalidInput marks inputs that can never produce a valid quote. It is the
// same sentinel config validation wraps, so both surface as one error class.
var ErrInvalidInput = config.ErrInvalidInput

type Phase string

type Event string

const (
	PhaseIdle          Phase = "IDLE"
	PhaseFetchingPrice Phase = "FETCHING_PRICE"
	PhaseReconciling   Phase = "RECONCILING"
	PhaseNeutralizing  Phase = "NEUTRALIZING"
	PhaseCancelling    Phase = "CANCELLING"
	PhasePlacing       Phase = "PLACING"
	PhaseShuttingDown  Phase = "SHUTTING_DOWN"
)

const (
	EventTick        Event = "TICK"
	EventPriceOK     Event = "PRICE_OK"
	EventPriceFailed Event = "PRICE_FAILED"
	EventExposed     Event = "EXPOSED"
	EventFlat        Event = "FLAT"
	EventNeutralized Event = "NEUTRALIZED"
	EventCancelled   Event = "CANCELLED"
	EventPlaced      Event = "PLACED"
	EventAbort       Event = "ABORT"
	EventShutdown    Event = "SHUTDOWN"
)

type Quote struct {
	Symbol   string
	Mark     float64
	BidPrice float64
	AskPrice float64
	Size     float64
}

// Spread is the absolute distance between the quoted sides.
func (q Quote) Spread() float64 {
	return q.AskPrice - q.BidPrice
}
