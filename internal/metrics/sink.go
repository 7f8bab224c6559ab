package metrics

import "standx-mm-bot/internal/events"

// Sink updates metrics from the activity stream.
type Sink struct {
	m *Metrics
}

func NewSink(m *Metrics) *Sink {
	if m == nil {
		m = NewNoop()
	}
	return &Sink{m: m}
}

func (s *Sink) Emit(e events.Event) {
	switch e.Kind {
	case events.KindPriceFetched:
		s.m.MarkPrice.Set(e.Price)
	case events.KindPriceFetchFailed:
		s.m.PriceFetchFailed.Inc()
	case events.KindOrderPlaced:
		s.m.OrdersPlaced.Inc()
	case events.KindPlacementRejected:
		s.m.OrdersFailed.Inc()
	case events.KindOrderFilled:
		s.m.Fills.Inc()
	case events.KindCancelFailed:
		s.m.CancelsFailed.Inc()
	case events.KindPositionNeutralized:
		s.m.Neutralizations.Inc()
	case events.KindNeutralizationFailed:
		s.m.NeutralizationsFailed.Inc()
	case events.KindTickComplete:
		s.m.Ticks.Inc()
		s.m.NetPosition.Set(e.Position)
	}
}
