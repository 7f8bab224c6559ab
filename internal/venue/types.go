package venue

import (
	"context"
	"strings"
	"time"
)

type Side string

const (
	SideBid Side = "BID"
	SideAsk Side = "ASK"
)

// Opposite returns the side that offsets exposure taken on s.
func (s Side) Opposite() Side {
	if s == SideBid {
		return SideAsk
	}
	return SideBid
}

// Wire returns the buy/sell spelling used by venues.
func (s Side) Wire() string {
	if s == SideBid {
		return "buy"
	}
	return "sell"
}

func ParseSide(raw string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy", "bid", "b", "long":
		return SideBid, true
	case "sell", "ask", "a", "s", "short":
		return SideAsk, true
	}
	return "", false
}

type MarkPrice struct {
	Symbol string
	Price  float64
	Time   time.Time
}

// Order is a resting order as reported by the venue. ClientOrderID is empty for
// orders the venue cannot attribute to a client id.
type Order struct {
	Symbol        string
	OrderID       string
	ClientOrderID string
	Side          Side
	Price         float64
	Size          float64
}

// Key is the identifier the ledger tracks the order under.
func (o Order) Key() string {
	if o.ClientOrderID != "" {
		return o.ClientOrderID
	}
	return o.OrderID
}

// Position carries the signed net size; positive is long.
type Position struct {
	Symbol  string
	NetSize float64
}

func (p Position) Side() Side {
	if p.NetSize < 0 {
		return SideAsk
	}
	return SideBid
}

type LimitOrder struct {
	Symbol        string
	Side          Side
	Price         float64
	Size          float64
	ClientOrderID string
}

type MarketOrder struct {
	Symbol        string
	Side          Side
	Size          float64
	ReduceOnly    bool
	ClientOrderID string
}

type Fill struct {
	ClientOrderID string
	RequestID     string
	Side          Side
	Size          float64
}

// OrderRef addresses an order for cancellation; either id may be set.
type OrderRef struct {
	Symbol        string
	OrderID       string
	ClientOrderID string
}

// Gateway is the authenticated venue surface the refresh cycle drives.
type Gateway interface {
	GetMarkPrice(ctx context.Context, symbol string) (MarkPrice, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]Order, error)
	GetPosition(ctx context.Context, symbol string) (Position, error)
	PlaceLimitOrder(ctx context.Context, order LimitOrder) (string, error)
	PlaceMarketOrder(ctx context.Context, order MarketOrder) (Fill, error)
	CancelOrder(ctx context.Context, ref OrderRef) error
}
