package app

import "standx-mm-bot/internal/timescale"

func (a *App) recordTick(res tickResult, resting int) {
	if a.timescale == nil {
		return
	}
	a.timescale.EnqueueTick(timescale.TickSnapshot{
		Time:        a.now().UTC(),
		Symbol:      a.symbol,
		Mark:        a.lastMark.Price,
		Bid:         res.quote.BidPrice,
		Ask:         res.quote.AskPrice,
		NetPosition: res.position,
		Resting:     resting,
		Fills:       res.fills,
		PriceStale:  res.priceStale,
	})
}
