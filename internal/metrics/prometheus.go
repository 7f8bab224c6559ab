package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "standx_mm_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promGauge struct {
	gauge prometheus.Gauge
}

func (p promGauge) Set(v float64) {
	p.gauge.Set(v)
}

type Prometheus struct {
	Metrics *Metrics

	registry         *prometheus.Registry
	ticks            prometheus.Counter
	ordersPlaced     prometheus.Counter
	ordersFailed     prometheus.Counter
	fills            prometheus.Counter
	neutralized      prometheus.Counter
	neutralizeFailed prometheus.Counter
	cancelsFailed    prometheus.Counter
	priceFailed      prometheus.Counter
	netPosition      prometheus.Gauge
	markPrice        prometheus.Gauge
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func newGauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	p := &Prometheus{
		registry:         registry,
		ticks:            newCounter("ticks_total", "Total number of refresh ticks run."),
		ordersPlaced:     newCounter("orders_placed_total", "Total number of quote orders placed."),
		ordersFailed:     newCounter("orders_failed_total", "Total number of quote placement failures."),
		fills:            newCounter("fills_total", "Total number of quote orders inferred filled."),
		neutralized:      newCounter("neutralizations_total", "Total number of positions neutralized with a market order."),
		neutralizeFailed: newCounter("neutralizations_failed_total", "Total number of failed neutralization attempts."),
		cancelsFailed:    newCounter("cancels_failed_total", "Total number of failed order cancellations."),
		priceFailed:      newCounter("price_fetch_failed_total", "Total number of failed mark price fetches."),
		netPosition:      newGauge("net_position", "Net position size reported by the venue."),
		markPrice:        newGauge("mark_price", "Last mark price used for quoting."),
	}
	registry.MustRegister(
		p.ticks, p.ordersPlaced, p.ordersFailed, p.fills, p.neutralized,
		p.neutralizeFailed, p.cancelsFailed, p.priceFailed, p.netPosition, p.markPrice,
	)
	p.Metrics = &Metrics{
		Ticks:                 promCounter{p.ticks},
		OrdersPlaced:          promCounter{p.ordersPlaced},
		OrdersFailed:          promCounter{p.ordersFailed},
		Fills:                 promCounter{p.fills},
		Neutralizations:       promCounter{p.neutralized},
		NeutralizationsFailed: promCounter{p.neutralizeFailed},
		CancelsFailed:         promCounter{p.cancelsFailed},
		PriceFetchFailed:      promCounter{p.priceFailed},
		NetPosition:           promGauge{p.netPosition},
		MarkPrice:             promGauge{p.markPrice},
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
