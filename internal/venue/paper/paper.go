package paper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"standx-mm-bot/internal/venue"
)

// PriceSource supplies marks, typically the public StandX price endpoint.
type PriceSource interface {
	GetMarkPrice(ctx context.Context, symbol string) (venue.MarkPrice, error)
}

// Venue is an in-memory exchange. Resting orders fill when the mark trades
// through their price; market orders fill in full at the mark.
type Venue struct {
	source PriceSource
	now    func() time.Time

	mu        sync.Mutex
	marks     map[string]venue.MarkPrice
	orders    map[string]venue.Order
	sequence  []string
	positions map[string]float64
	fills     []venue.Fill
	seq       int
}

func New(source PriceSource) *Venue {
	return &Venue{
		source:    source,
		now:       time.Now,
		marks:     make(map[string]venue.MarkPrice),
		orders:    make(map[string]venue.Order),
		positions: make(map[string]float64),
	}
}

// SetMark records a mark and fills every resting order it crosses.
func (v *Venue) SetMark(symbol string, price float64) []venue.Fill {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.setMarkLocked(venue.MarkPrice{Symbol: symbol, Price: price, Time: v.now()})
}

func (v *Venue) setMarkLocked(mark venue.MarkPrice) []venue.Fill {
	v.marks[mark.Symbol] = mark
	var filled []venue.Fill
	for _, key := range append([]string(nil), v.sequence...) {
		order, ok := v.orders[key]
		if !ok || order.Symbol != mark.Symbol {
			continue
		}
		crossed := (order.Side == venue.SideBid && mark.Price <= order.Price) ||
			(order.Side == venue.SideAsk && mark.Price >= order.Price)
		if crossed {
			filled = append(filled, v.fillLocked(key))
		}
	}
	return filled
}

// Fill executes a resting order in full regardless of the mark.
func (v *Venue) Fill(key string) (venue.Fill, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.orders[key]; !ok {
		return venue.Fill{}, fmt.Errorf("paper: order %s is not resting", key)
	}
	return v.fillLocked(key), nil
}

func (v *Venue) fillLocked(key string) venue.Fill {
	order := v.orders[key]
	delete(v.orders, key)
	v.removeSequenceLocked(key)
	v.positions[order.Symbol] += signed(order.Side, order.Size)
	fill := venue.Fill{ClientOrderID: order.ClientOrderID, RequestID: order.OrderID, Side: order.Side, Size: order.Size}
	v.fills = append(v.fills, fill)
	return fill
}

func (v *Venue) removeSequenceLocked(key string) {
	for i, k := range v.sequence {
		if k == key {
			v.sequence = append(v.sequence[:i], v.sequence[i+1:]...)
			return
		}
	}
}

func (v *Venue) Position(symbol string) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.positions[symbol]
}

func (v *Venue) Fills() []venue.Fill {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]venue.Fill(nil), v.fills...)
}

func (v *Venue) GetMarkPrice(ctx context.Context, symbol string) (venue.MarkPrice, error) {
	if v.source != nil {
		mark, err := v.source.GetMarkPrice(ctx, symbol)
		if err != nil {
			return venue.MarkPrice{}, venue.Wrap("paper mark price", venue.ErrPriceFetch, err)
		}
		v.mu.Lock()
		v.setMarkLocked(mark)
		v.mu.Unlock()
		return mark, nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	mark, ok := v.marks[symbol]
	if !ok {
		return venue.MarkPrice{}, venue.Wrap("paper mark price", venue.ErrPriceFetch, errors.New("no mark set"))
	}
	return mark, nil
}

func (v *Venue) GetOpenOrders(ctx context.Context, symbol string) ([]venue.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []venue.Order
	for _, key := range v.sequence {
		if order := v.orders[key]; order.Symbol == symbol {
			out = append(out, order)
		}
	}
	return out, nil
}

func (v *Venue) GetPosition(ctx context.Context, symbol string) (venue.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return venue.Position{Symbol: symbol, NetSize: v.positions[symbol]}, nil
}

func (v *Venue) PlaceLimitOrder(ctx context.Context, order venue.LimitOrder) (string, error) {
	if order.Price <= 0 || order.Size <= 0 {
		return "", venue.Wrap("paper place limit", venue.ErrPlacementRejected, errors.New("price and size must be > 0"))
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if mark, ok := v.marks[order.Symbol]; ok {
		if (order.Side == venue.SideBid && order.Price >= mark.Price) || (order.Side == venue.SideAsk && order.Price <= mark.Price) {
			return "", venue.Wrap("paper place limit", venue.ErrPlacementRejected, errors.New("order would cross the mark"))
		}
	}
	v.seq++
	id := strconv.Itoa(v.seq)
	key := order.ClientOrderID
	if key == "" {
		key = id
	}
	if _, ok := v.orders[key]; ok {
		return "", venue.Wrap("paper place limit", venue.ErrPlacementRejected, errors.New("duplicate client order id"))
	}
	v.orders[key] = venue.Order{
		Symbol:        order.Symbol,
		OrderID:       id,
		ClientOrderID: order.ClientOrderID,
		Side:          order.Side,
		Price:         order.Price,
		Size:          order.Size,
	}
	v.sequence = append(v.sequence, key)
	return id, nil
}

func (v *Venue) PlaceMarketOrder(ctx context.Context, order venue.MarketOrder) (venue.Fill, error) {
	if order.Size <= 0 {
		return venue.Fill{}, venue.Wrap("paper place market", venue.ErrNeutralizationFailed, errors.New("size must be > 0"))
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.marks[order.Symbol]; !ok {
		return venue.Fill{}, venue.Wrap("paper place market", venue.ErrNeutralizationFailed, errors.New("no mark to fill at"))
	}
	size := order.Size
	if order.ReduceOnly {
		pos := v.positions[order.Symbol]
		if pos == 0 || signed(order.Side, 1)*pos > 0 {
			return venue.Fill{}, venue.Wrap("paper place market", venue.ErrNeutralizationFailed, errors.New("reduce only order would increase exposure"))
		}
		size = math.Min(size, math.Abs(pos))
	}
	v.seq++
	v.positions[order.Symbol] += signed(order.Side, size)
	if math.Abs(v.positions[order.Symbol]) < 1e-12 {
		v.positions[order.Symbol] = 0
	}
	fill := venue.Fill{ClientOrderID: order.ClientOrderID, RequestID: strconv.Itoa(v.seq), Side: order.Side, Size: size}
	v.fills = append(v.fills, fill)
	return fill, nil
}

// CancelOrder reports an order that no longer rests as already filled, the
// same answer the live venue gives.
func (v *Venue) CancelOrder(ctx context.Context, ref venue.OrderRef) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := ref.ClientOrderID
	if key == "" {
		for k, order := range v.orders {
			if order.OrderID == ref.OrderID {
				key = k
				break
			}
		}
	}
	if _, ok := v.orders[key]; !ok || key == "" {
		return venue.Wrap("paper cancel", venue.ErrAlreadyFilledOnCancel, fmt.Errorf("order %s%s not found", ref.ClientOrderID, ref.OrderID))
	}
	delete(v.orders, key)
	v.removeSequenceLocked(key)
	return nil
}

func signed(side venue.Side, size float64) float64 {
	if side == venue.SideAsk {
		return -size
	}
	return size
}
