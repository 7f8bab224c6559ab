package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(float64)
}

type Metrics struct {
	Ticks                 Counter
	OrdersPlaced          Counter
	OrdersFailed          Counter
	Fills                 Counter
	Neutralizations       Counter
	NeutralizationsFailed Counter
	CancelsFailed         Counter
	PriceFetchFailed      Counter

	NetPosition Gauge
	MarkPrice   Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		Ticks:                 n,
		OrdersPlaced:          n,
		OrdersFailed:          n,
		Fills:                 n,
		Neutralizations:       n,
		NeutralizationsFailed: n,
		CancelsFailed:         n,
		PriceFetchFailed:      n,
		NetPosition:           g,
		MarkPrice:             g,
	}
}
