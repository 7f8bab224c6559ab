package standx

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"standx-mm-bot/internal/standx/ws"
	"standx-mm-bot/internal/venue"
)

const channelPrice = "price"

type streamPrice struct {
	mark     venue.MarkPrice
	received time.Time
}

// PriceStream caches the latest mark price per symbol from the price channel.
type PriceStream struct {
	client *ws.Client
	log    *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	prices map[string]streamPrice
}

func NewPriceStream(client *ws.Client, log *zap.Logger) *PriceStream {
	if log == nil {
		log = zap.NewNop()
	}
	return &PriceStream{client: client, log: log, now: time.Now, prices: make(map[string]streamPrice)}
}

func (s *PriceStream) Subscribe(ctx context.Context, symbol string) error {
	return s.client.Subscribe(ctx, subscribeMessage(symbol))
}

func (s *PriceStream) Run(ctx context.Context) error {
	return s.client.Run(ctx, s.handle)
}

// Latest returns the cached mark if it was received within maxAge.
func (s *PriceStream) Latest(symbol string, maxAge time.Duration) (venue.MarkPrice, bool) {
	s.mu.RLock()
	p, ok := s.prices[symbol]
	s.mu.RUnlock()
	if !ok {
		return venue.MarkPrice{}, false
	}
	if maxAge > 0 && s.now().Sub(p.received) > maxAge {
		return venue.MarkPrice{}, false
	}
	return p.mark, true
}

func (s *PriceStream) handle(raw json.RawMessage) {
	var msg map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&msg); err != nil {
		s.log.Debug("ws message decode failed", zap.Error(err))
		return
	}
	if stringFromMap(msg, "channel") != channelPrice {
		return
	}
	data, ok := toMap(msg["data"])
	if !ok {
		return
	}
	symbol := stringFromMap(msg, "symbol")
	if symbol == "" {
		symbol = stringFromMap(data, "symbol")
	}
	price, ok := floatFromMap(data, "mark_price", "markPrice")
	if symbol == "" || !ok || price <= 0 {
		return
	}
	now := s.now()
	mark := venue.MarkPrice{Symbol: symbol, Price: price, Time: now}
	if ts, ok := timeFromAny(data["time"]); ok {
		mark.Time = ts
	}
	s.mu.Lock()
	s.prices[symbol] = streamPrice{mark: mark, received: now}
	s.mu.Unlock()
}

func subscribeMessage(symbol string) map[string]any {
	return map[string]any{
		"subscribe": map[string]string{"channel": channelPrice, "symbol": symbol},
	}
}
