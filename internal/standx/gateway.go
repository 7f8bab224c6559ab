package standx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"standx-mm-bot/internal/standx/rest"
	"standx-mm-bot/internal/venue"
)

const (
	orderTypeLimit  = "limit"
	orderTypeMarket = "market"
	tifGTC          = "gtc"
	tifIOC          = "ioc"
)

// Gateway adapts the StandX perps API to venue.Gateway.
type Gateway struct {
	rest        *rest.Client
	stream      *PriceStream
	priceMaxAge time.Duration
	log         *zap.Logger
}

// NewGateway builds a gateway; stream may be nil, in which case every mark
// price comes from REST.
func NewGateway(client *rest.Client, stream *PriceStream, priceMaxAge time.Duration, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{rest: client, stream: stream, priceMaxAge: priceMaxAge, log: log}
}

func (g *Gateway) GetMarkPrice(ctx context.Context, symbol string) (venue.MarkPrice, error) {
	if g.stream != nil {
		if mark, ok := g.stream.Latest(symbol, g.priceMaxAge); ok {
			return mark, nil
		}
	}
	resp, err := g.rest.QuerySymbolPrice(ctx, symbol)
	if err != nil {
		return venue.MarkPrice{}, venue.Wrap("mark price", venue.ErrPriceFetch, err)
	}
	price, ok := floatFromMap(resp, "mark_price", "markPrice")
	if !ok || price <= 0 {
		return venue.MarkPrice{}, venue.Wrap("mark price", venue.ErrPriceFetch, fmt.Errorf("missing mark_price in %v", resp))
	}
	mark := venue.MarkPrice{Symbol: symbol, Price: price}
	if ts, ok := timeFromAny(resp["time"]); ok {
		mark.Time = ts
	}
	return mark, nil
}

func (g *Gateway) GetOpenOrders(ctx context.Context, symbol string) ([]venue.Order, error) {
	resp, err := g.rest.QueryOpenOrders(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("open orders: %w", err)
	}
	items := listFrom(resp)
	orders := make([]venue.Order, 0, len(items))
	for _, item := range items {
		m, ok := toMap(item)
		if !ok {
			continue
		}
		order := venue.Order{
			Symbol:        stringFromMap(m, "symbol"),
			OrderID:       stringFromMap(m, "id", "order_id"),
			ClientOrderID: stringFromMap(m, "cl_ord_id"),
		}
		if order.Symbol != "" && order.Symbol != symbol {
			continue
		}
		if order.Symbol == "" {
			order.Symbol = symbol
		}
		if order.Key() == "" {
			continue
		}
		if side, ok := venue.ParseSide(stringFromMap(m, "side")); ok {
			order.Side = side
		}
		order.Price, _ = floatFromMap(m, "price")
		order.Size, _ = floatFromMap(m, "qty", "size")
		orders = append(orders, order)
	}
	return orders, nil
}

func (g *Gateway) GetPosition(ctx context.Context, symbol string) (venue.Position, error) {
	resp, err := g.rest.QueryPositions(ctx, symbol)
	if err != nil {
		return venue.Position{}, fmt.Errorf("positions: %w", err)
	}
	pos := venue.Position{Symbol: symbol}
	for _, item := range listFrom(resp) {
		m, ok := toMap(item)
		if !ok {
			continue
		}
		if s := stringFromMap(m, "symbol"); s != "" && s != symbol {
			continue
		}
		qty, ok := floatFromMap(m, "qty", "size")
		if !ok {
			continue
		}
		pos.NetSize += qty
	}
	return pos, nil
}

func (g *Gateway) PlaceLimitOrder(ctx context.Context, order venue.LimitOrder) (string, error) {
	resp, err := g.rest.NewOrder(ctx, rest.NewOrderRequest{
		Symbol:      order.Symbol,
		Side:        order.Side.Wire(),
		OrderType:   orderTypeLimit,
		Qty:         formatNumber(order.Size),
		Price:       formatNumber(order.Price),
		TimeInForce: tifGTC,
		ClientOrdID: order.ClientOrderID,
	})
	if err != nil {
		return "", venue.Wrap("place limit", venue.ErrPlacementRejected, err)
	}
	if err := codeError(resp); err != nil {
		return "", venue.Wrap("place limit", venue.ErrPlacementRejected, err)
	}
	return stringFromMap(resp, "request_id", "order_id"), nil
}

func (g *Gateway) PlaceMarketOrder(ctx context.Context, order venue.MarketOrder) (venue.Fill, error) {
	resp, err := g.rest.NewOrder(ctx, rest.NewOrderRequest{
		Symbol:      order.Symbol,
		Side:        order.Side.Wire(),
		OrderType:   orderTypeMarket,
		Qty:         formatNumber(order.Size),
		TimeInForce: tifIOC,
		ReduceOnly:  order.ReduceOnly,
		ClientOrdID: order.ClientOrderID,
	})
	if err != nil {
		return venue.Fill{}, venue.Wrap("place market", venue.ErrNeutralizationFailed, err)
	}
	if err := codeError(resp); err != nil {
		return venue.Fill{}, venue.Wrap("place market", venue.ErrNeutralizationFailed, err)
	}
	return venue.Fill{
		ClientOrderID: order.ClientOrderID,
		RequestID:     stringFromMap(resp, "request_id"),
		Side:          order.Side,
		Size:          order.Size,
	}, nil
}

func (g *Gateway) CancelOrder(ctx context.Context, ref venue.OrderRef) error {
	req := rest.CancelOrderRequest{ClientOrdID: ref.ClientOrderID}
	if req.ClientOrdID == "" {
		req.OrderID = ref.OrderID
	}
	resp, err := g.rest.CancelOrder(ctx, req)
	if err == nil {
		err = codeError(resp)
	}
	if err == nil {
		return nil
	}
	if goneOnCancel(err) {
		return venue.Wrap("cancel", venue.ErrAlreadyFilledOnCancel, err)
	}
	return venue.Wrap("cancel", venue.ErrCancel, err)
}

type codeErr struct {
	code    string
	message string
}

func (e *codeErr) Error() string {
	return fmt.Sprintf("code %s: %s", e.code, e.message)
}

// codeError turns a non-zero response code into an error.
func codeError(resp map[string]any) error {
	code := stringFromMap(resp, "code")
	if code == "" || code == "0" || code == "200" {
		return nil
	}
	return &codeErr{code: code, message: stringFromMap(resp, "message", "msg")}
}

// goneMarkers are the venue phrases for a cancel of an order that no longer
// rests. Partial fills and unfilled orders must not match.
var goneMarkers = []string{
	"order not found",
	"order does not exist",
	"order not exist",
	"already filled",
	"already cancelled",
	"already canceled",
	"already closed",
}

// goneOnCancel reports whether the venue refused a cancel because the order
// no longer rests. The cycle treats that as a fill. A non-2xx answer counts
// only when it carries a venue JSON error; a bare 404 can be a wrong route.
func goneOnCancel(err error) bool {
	var ce *codeErr
	var he *rest.HTTPError
	switch {
	case errors.As(err, &ce):
		return mentionsGone(ce.message)
	case errors.As(err, &he):
		var body map[string]any
		if json.Unmarshal([]byte(he.Body), &body) != nil {
			return false
		}
		return mentionsGone(stringFromMap(body, "message", "msg"))
	default:
		return false
	}
}

func mentionsGone(message string) bool {
	message = strings.ToLower(message)
	for _, marker := range goneMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}
