package ledger

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"standx-mm-bot/internal/venue"
)

// PositionEpsilon is the smallest net size treated as exposure.
const PositionEpsilon = 1e-9

var (
	ErrUnknownOrder   = errors.New("unknown order")
	ErrDuplicateOrder = errors.New("duplicate order id")
	ErrTerminal       = errors.New("order already terminal")
)

type State string

const (
	StatePending   State = "PENDING"
	StateResting   State = "RESTING"
	StateFilled    State = "FILLED"
	StateCancelled State = "CANCELLED"
	StateFailed    State = "FAILED"
)

func (s State) Terminal() bool {
	switch s {
	case StateFilled, StateCancelled, StateFailed:
		return true
	default:
		return false
	}
}

type OrderRecord struct {
	OrderID   string     `msgpack:"order_id"`
	Side      venue.Side `msgpack:"side"`
	Price     float64    `msgpack:"price"`
	Size      float64    `msgpack:"size"`
	State     State      `msgpack:"state"`
	Reason    string     `msgpack:"reason,omitempty"`
	UpdatedAt time.Time  `msgpack:"updated_at"`
}

type Snapshot struct {
	Symbol   string        `msgpack:"symbol"`
	Records  []OrderRecord `msgpack:"records"`
	Position float64       `msgpack:"position"`
}

type ReconcileResult struct {
	// Filled holds records inferred filled by this call only.
	Filled []OrderRecord
	// Orphans are venue orders that no live record accounts for.
	Orphans  []venue.Order
	Position float64
}

func (r ReconcileResult) Exposed() bool {
	return math.Abs(r.Position) > PositionEpsilon
}

// Ledger tracks the bot's own orders for one symbol. Records are keyed by
// the client order id, which is known before the venue answers.
type Ledger struct {
	mu       sync.Mutex
	symbol   string
	records  map[string]*OrderRecord
	order    []string
	position float64
	now      func() time.Time
}

func New(symbol string) *Ledger {
	return &Ledger{
		symbol:  symbol,
		records: make(map[string]*OrderRecord),
		now:     time.Now,
	}
}

// RecordPlacement registers an order as Pending ahead of the gateway call.
func (l *Ledger) RecordPlacement(orderID string, side venue.Side, price, size float64) error {
	if orderID == "" {
		return fmt.Errorf("record placement: empty order id")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[orderID]; ok {
		return fmt.Errorf("record placement %s: %w", orderID, ErrDuplicateOrder)
	}
	l.records[orderID] = &OrderRecord{
		OrderID:   orderID,
		Side:      side,
		Price:     price,
		Size:      size,
		State:     StatePending,
		UpdatedAt: l.now(),
	}
	l.order = append(l.order, orderID)
	return nil
}

// ConfirmPlacement moves a Pending record to Resting once the venue accepted it.
func (l *Ledger) ConfirmPlacement(orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, err := l.live(orderID)
	if err != nil {
		return err
	}
	if rec.State != StatePending {
		return nil
	}
	rec.State = StateResting
	rec.UpdatedAt = l.now()
	return nil
}

func (l *Ledger) MarkFailed(orderID, reason string) error {
	return l.finish(orderID, StateFailed, reason)
}

func (l *Ledger) MarkCancelled(orderID string) error {
	return l.finish(orderID, StateCancelled, "")
}

func (l *Ledger) MarkFilled(orderID string) error {
	return l.finish(orderID, StateFilled, "")
}

func (l *Ledger) finish(orderID string, state State, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, err := l.live(orderID)
	if err != nil {
		return err
	}
	rec.State = state
	rec.Reason = reason
	rec.UpdatedAt = l.now()
	return nil
}

// live returns a non-terminal record. Callers hold mu.
func (l *Ledger) live(orderID string) (*OrderRecord, error) {
	rec, ok := l.records[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrUnknownOrder)
	}
	if rec.State.Terminal() {
		return nil, fmt.Errorf("order %s is %s: %w", orderID, rec.State, ErrTerminal)
	}
	return rec, nil
}

// Reconcile aligns the ledger with a venue snapshot.
//
// A Resting record missing from the venue's open orders is assumed filled.
// The venue does not say why an order disappeared, so an order that expired
// or was cancelled out of band is reported as a fill too. The position is
// always taken from the venue and never derived from fills.
func (l *Ledger) Reconcile(open []venue.Order, position venue.Position) ReconcileResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := make(map[string]struct{}, len(open))
	var result ReconcileResult
	for _, order := range open {
		key := order.Key()
		seen[key] = struct{}{}
		rec, ok := l.records[key]
		if !ok || rec.State.Terminal() {
			result.Orphans = append(result.Orphans, order)
		}
	}
	now := l.now()
	for _, id := range l.order {
		rec := l.records[id]
		if rec.State != StateResting {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		rec.State = StateFilled
		rec.UpdatedAt = now
		result.Filled = append(result.Filled, *rec)
	}
	l.position = position.NetSize
	result.Position = l.position
	return result
}

func (l *Ledger) Resting() []OrderRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []OrderRecord
	for _, id := range l.order {
		if rec := l.records[id]; rec.State == StateResting {
			out = append(out, *rec)
		}
	}
	return out
}

func (l *Ledger) Record(orderID string) (OrderRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[orderID]
	if !ok {
		return OrderRecord{}, false
	}
	return *rec, true
}

func (l *Ledger) Position() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.position
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	records := make([]OrderRecord, 0, len(l.order))
	for _, id := range l.order {
		records = append(records, *l.records[id])
	}
	return Snapshot{Symbol: l.symbol, Records: records, Position: l.position}
}

// Restore loads the live records of a previous snapshot. Pending records are
// restored as Resting because the venue may have accepted them.
func (l *Ledger) Restore(snapshot Snapshot) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	restored := 0
	for _, rec := range snapshot.Records {
		if rec.State.Terminal() || rec.OrderID == "" {
			continue
		}
		if _, ok := l.records[rec.OrderID]; ok {
			continue
		}
		copyRec := rec
		copyRec.State = StateResting
		l.records[rec.OrderID] = &copyRec
		l.order = append(l.order, rec.OrderID)
		restored++
	}
	l.position = snapshot.Position
	return restored
}

// Prune drops terminal records and returns them.
func (l *Ledger) Prune() []OrderRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var removed []OrderRecord
	kept := l.order[:0]
	for _, id := range l.order {
		rec := l.records[id]
		if rec.State.Terminal() {
			removed = append(removed, *rec)
			delete(l.records, id)
			continue
		}
		kept = append(kept, id)
	}
	l.order = kept
	return removed
}
