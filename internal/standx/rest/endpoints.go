package rest

import (
	"context"
	"net/url"
)

const (
	pathSymbolPrice = "/api/query_symbol_price"
	pathOpenOrders  = "/api/query_open_orders"
	pathPositions   = "/api/query_positions"
	pathBalance     = "/api/query_balance"
	pathNewOrder    = "/api/new_order"
	pathCancelOrder = "/api/cancel_order"
)

type NewOrderRequest struct {
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"order_type"`
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"time_in_force"`
	ReduceOnly  bool   `json:"reduce_only"`
	ClientOrdID string `json:"cl_ord_id,omitempty"`
}

type CancelOrderRequest struct {
	OrderID     string `json:"order_id,omitempty"`
	ClientOrdID string `json:"cl_ord_id,omitempty"`
}

func (c *Client) QuerySymbolPrice(ctx context.Context, symbol string) (map[string]any, error) {
	data, err := c.get(ctx, pathSymbolPrice, url.Values{"symbol": {symbol}}, public)
	if err != nil {
		return nil, err
	}
	return asMap(data, pathSymbolPrice)
}

func (c *Client) QueryOpenOrders(ctx context.Context, symbol string) (map[string]any, error) {
	data, err := c.get(ctx, pathOpenOrders, url.Values{"symbol": {symbol}}, authed)
	if err != nil {
		return nil, err
	}
	return asMap(data, pathOpenOrders)
}

// QueryPositions returns the raw positions payload, a list in practice.
func (c *Client) QueryPositions(ctx context.Context, symbol string) (any, error) {
	return c.get(ctx, pathPositions, url.Values{"symbol": {symbol}}, authed)
}

func (c *Client) QueryBalance(ctx context.Context) (any, error) {
	return c.get(ctx, pathBalance, nil, authed)
}

func (c *Client) NewOrder(ctx context.Context, req NewOrderRequest) (map[string]any, error) {
	data, err := c.post(ctx, c.baseURL+pathNewOrder, req, signed)
	if err != nil {
		return nil, err
	}
	return asMap(data, pathNewOrder)
}

func (c *Client) CancelOrder(ctx context.Context, req CancelOrderRequest) (map[string]any, error) {
	data, err := c.post(ctx, c.baseURL+pathCancelOrder, req, signed)
	if err != nil {
		return nil, err
	}
	return asMap(data, pathCancelOrder)
}
