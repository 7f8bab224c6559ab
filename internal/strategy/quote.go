package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	tenThousand = decimal.NewFromInt(10000)
	two         = decimal.NewFromInt(2)
	one         = decimal.NewFromInt(1)
)

type QuoteParams struct {
	Symbol    string
	SpreadBps float64
	OrderSize float64
	// TickSize of zero derives the tick from the mark price.
	TickSize float64
	// LotSize of zero leaves the order size untouched.
	LotSize float64
}

// ComputeQuote centers a bid/ask pair on mark, half the spread on each side.
// The bid is rounded down and the ask up to the tick so both stay outside mark.
func ComputeQuote(mark float64, params QuoteParams) (Quote, error) {
	if mark <= 0 {
		return Quote{}, fmt.Errorf("mark price %v must be > 0: %w", mark, ErrInvalidInput)
	}
	if params.SpreadBps <= 0 {
		return Quote{}, fmt.Errorf("spread %v bps must be > 0: %w", params.SpreadBps, ErrInvalidInput)
	}
	if params.OrderSize <= 0 {
		return Quote{}, fmt.Errorf("order size %v must be > 0: %w", params.OrderSize, ErrInvalidInput)
	}
	if params.TickSize < 0 || params.LotSize < 0 {
		return Quote{}, fmt.Errorf("tick and lot sizes must be >= 0: %w", ErrInvalidInput)
	}
	tick := params.TickSize
	if tick == 0 {
		tick = DefaultTick(mark)
	}
	m := decimal.NewFromFloat(mark)
	half := decimal.NewFromFloat(params.SpreadBps).Div(tenThousand).Div(two)
	tickD := decimal.NewFromFloat(tick)
	bid := floorTo(m.Mul(one.Sub(half)), tickD)
	ask := ceilTo(m.Mul(one.Add(half)), tickD)
	if !bid.IsPositive() {
		return Quote{}, fmt.Errorf("bid rounds to %s at tick %v: %w", bid, tick, ErrInvalidInput)
	}

	size := decimal.NewFromFloat(params.OrderSize)
	if params.LotSize > 0 {
		size = floorTo(size, decimal.NewFromFloat(params.LotSize))
	}
	if !size.IsPositive() {
		return Quote{}, fmt.Errorf("order size %v rounds to zero at lot %v: %w", params.OrderSize, params.LotSize, ErrInvalidInput)
	}
	return Quote{
		Symbol:   params.Symbol,
		Mark:     mark,
		BidPrice: bid.InexactFloat64(),
		AskPrice: ask.InexactFloat64(),
		Size:     size.InexactFloat64(),
	}, nil
}

// DefaultTick mirrors the precision the venue accepts when no tick is declared:
// four decimals for low priced symbols, two otherwise.
func DefaultTick(mark float64) float64 {
	if mark < 100 {
		return 0.0001
	}
	return 0.01
}

// FormatDecimal renders v with the precision implied by step, for wire payloads.
func FormatDecimal(v, step float64) string {
	d := decimal.NewFromFloat(v)
	if step <= 0 {
		return d.String()
	}
	places := -decimal.NewFromFloat(step).Exponent()
	if places < 0 {
		places = 0
	}
	return d.StringFixed(places)
}

func floorTo(v, step decimal.Decimal) decimal.Decimal {
	return v.Div(step).Floor().Mul(step)
}

func ceilTo(v, step decimal.Decimal) decimal.Decimal {
	return v.Div(step).Ceil().Mul(step)
}
