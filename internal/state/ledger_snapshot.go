package state

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"standx-mm-bot/internal/ledger"
)

const ledgerKeyPrefix = "ledger:"

type LedgerSnapshot struct {
	Symbol      string               `msgpack:"symbol"`
	Records     []ledger.OrderRecord `msgpack:"records"`
	Position    float64              `msgpack:"position"`
	Mark        float64              `msgpack:"mark"`
	UpdatedAtMS int64                `msgpack:"updated_at_ms"`
}

func (s LedgerSnapshot) Ledger() ledger.Snapshot {
	return ledger.Snapshot{Symbol: s.Symbol, Records: s.Records, Position: s.Position}
}

// Resting lists the order ids that were live when the snapshot was taken.
func (s LedgerSnapshot) Resting() []string {
	var ids []string
	for _, rec := range s.Records {
		if !rec.State.Terminal() {
			ids = append(ids, rec.OrderID)
		}
	}
	return ids
}

func LedgerKey(symbol string) string {
	return ledgerKeyPrefix + symbol
}

func LoadLedgerSnapshot(ctx context.Context, store Store, symbol string) (LedgerSnapshot, bool, error) {
	if store == nil {
		return LedgerSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, LedgerKey(symbol))
	if err != nil {
		return LedgerSnapshot{}, false, err
	}
	if !ok || len(raw) == 0 {
		return LedgerSnapshot{}, false, nil
	}
	var snapshot LedgerSnapshot
	if err := msgpack.Unmarshal(raw, &snapshot); err != nil {
		return LedgerSnapshot{}, false, fmt.Errorf("decode ledger snapshot: %w", err)
	}
	return snapshot, true, nil
}

func SaveLedgerSnapshot(ctx context.Context, store Store, snapshot LedgerSnapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := msgpack.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, LedgerKey(snapshot.Symbol), payload)
}
