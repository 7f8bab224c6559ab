package venue

import "errors"

var (
	// ErrPriceFetch is transient; the cycle skips quoting for the tick.
	ErrPriceFetch = errors.New("price fetch failed")
	// ErrPlacementRejected is isolated to the order that was rejected.
	ErrPlacementRejected = errors.New("placement rejected")
	// ErrAlreadyFilledOnCancel is the expected race between a cancel and a fill.
	ErrAlreadyFilledOnCancel = errors.New("order already filled on cancel")
	ErrCancel                = errors.New("cancel failed")
	// ErrNeutralizationFailed means exposure persists until the next tick re-reads it.
	ErrNeutralizationFailed = errors.New("neutralization failed")
)

// Error ties a failed gateway operation to its taxonomy sentinel while keeping
// the transport error reachable through errors.Unwrap.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap classifies err under kind unless it already carries a taxonomy sentinel.
func Wrap(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	var ve *Error
	if errors.As(err, &ve) {
		return err
	}
	return &Error{Op: op, Kind: kind, Err: err}
}
