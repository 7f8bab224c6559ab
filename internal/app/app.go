package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"standx-mm-bot/internal/alerts"
	"standx-mm-bot/internal/config"
	"standx-mm-bot/internal/events"
	"standx-mm-bot/internal/exec"
	"standx-mm-bot/internal/ledger"
	"standx-mm-bot/internal/metrics"
	"standx-mm-bot/internal/standx"
	"standx-mm-bot/internal/standx/rest"
	"standx-mm-bot/internal/standx/ws"
	"standx-mm-bot/internal/state"
	"standx-mm-bot/internal/state/sqlite"
	"standx-mm-bot/internal/strategy"
	"standx-mm-bot/internal/timescale"
	"standx-mm-bot/internal/venue"
	"standx-mm-bot/internal/venue/paper"
)

const authTimeout = 30 * time.Second

// App owns one quoting session for a single symbol: the ledger, the gateway
// it drives and every sink the activity stream fans out to.
type App struct {
	cfg     *config.Config
	log     *zap.Logger
	symbol  string
	gateway venue.Gateway
	ledger  *ledger.Ledger
	machine *strategy.StateMachine
	store   state.Store

	sink      events.Sink
	events    *events.ChannelSink
	jsonl     *events.JSONLSink
	notifier  *alerts.Notifier
	timescale *timescale.Writer
	prom      *metrics.Prometheus
	stream    *standx.PriceStream

	now   func() time.Time
	newID func() string

	stopOnce sync.Once
	stop     chan struct{}

	lastMark   venue.MarkPrice
	staleTicks int
}

// components are the collaborators New wires from config; tests inject their own.
type components struct {
	gateway   venue.Gateway
	store     state.Store
	stream    *standx.PriceStream
	prom      *metrics.Prometheus
	notifier  *alerts.Notifier
	timescale *timescale.Writer
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	restClient := rest.New(cfg.Venue.BaseURL, cfg.Venue.GeoURL, cfg.Venue.Timeout, log)
	var stream *standx.PriceStream
	if cfg.Venue.PriceStreamEnabled() {
		stream = standx.NewPriceStream(ws.New(cfg.Venue.WSURL, cfg.Venue.ReconnectDelay, cfg.Venue.PingInterval, log), log)
	}
	standxGateway := standx.NewGateway(restClient, stream, cfg.Venue.PriceMaxAge, log)

	var gateway venue.Gateway = standxGateway
	if cfg.Venue.Mode == config.ModePaper {
		log.Info("paper mode: orders are simulated against the public mark price")
		gateway = paper.New(standxGateway)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
		_, err := standx.Authenticate(ctx, cfg, restClient, log)
		cancel()
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	c := components{
		gateway: exec.New(gateway, log),
		store:   store,
		stream:  stream,
	}
	if cfg.Metrics.EnabledValue() {
		c.prom = metrics.NewPrometheus()
	}
	if cfg.Telegram.Enabled {
		c.notifier = alerts.NewNotifier(alerts.NewTelegram(cfg.Telegram, log), cfg.Telegram.QueueSize, log)
	}
	writer, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	c.timescale = writer
	return newApp(cfg, log, c), nil
}

func newApp(cfg *config.Config, log *zap.Logger, c components) *App {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{
		cfg:       cfg,
		log:       log,
		symbol:    cfg.Strategy.Symbol,
		gateway:   c.gateway,
		ledger:    ledger.New(cfg.Strategy.Symbol),
		machine:   strategy.NewStateMachine(),
		store:     c.store,
		events:    events.NewChannelSink(cfg.Events.Buffer),
		jsonl:     events.NewJSONLSink(cfg.Events.JSONLPath, log),
		notifier:  c.notifier,
		timescale: c.timescale,
		prom:      c.prom,
		stream:    c.stream,
		now:       time.Now,
		newID:     uuid.NewString,
		stop:      make(chan struct{}),
	}
	m := metrics.NewNoop()
	if a.prom != nil {
		m = a.prom.Metrics
	}
	sinks := events.Multi{events.NewLogSink(log), a.events, metrics.NewSink(m)}
	if a.jsonl != nil {
		sinks = append(sinks, a.jsonl)
	}
	if a.notifier != nil {
		sinks = append(sinks, a.notifier)
	}
	if a.timescale != nil {
		sinks = append(sinks, a.timescale)
	}
	a.sink = sinks
	return a
}

// Events is the activity stream. It is closed once Run returns.
func (a *App) Events() <-chan events.Event {
	return a.events.C()
}

// RequestShutdown asks the refresh cycle to stop at the next tick boundary.
func (a *App) RequestShutdown() {
	a.stopOnce.Do(func() { close(a.stop) })
}

// Run quotes until ctx is done or RequestShutdown is called, then cancels
// every resting order. Gateway calls never observe ctx directly, so a tick
// in flight always completes. The error is non-nil only when orders may be
// left on the venue.
func (a *App) Run(ctx context.Context) error {
	work := context.WithoutCancel(ctx)
	services, stopServices := context.WithCancel(work)
	defer a.close(stopServices)
	a.startServices(services)

	a.startup(work)

	ticker := time.NewTicker(a.cfg.Strategy.RefreshInterval)
	defer ticker.Stop()
	for {
		a.tick(work)
		if a.stopRequested(ctx) {
			break
		}
		select {
		case <-ctx.Done():
		case <-a.stop:
		case <-ticker.C:
			continue
		}
		break
	}
	a.machine.Apply(strategy.EventShutdown)
	return a.shutdown(work)
}

func (a *App) stopRequested(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-a.stop:
		return true
	default:
		return false
	}
}

func (a *App) startServices(ctx context.Context) {
	if a.stream != nil {
		if err := a.stream.Subscribe(ctx, a.symbol); err != nil {
			a.log.Warn("price stream subscribe failed", zap.Error(err))
		}
		go func() {
			if err := a.stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("price stream stopped", zap.Error(err))
			}
		}()
	}
	if a.notifier != nil {
		a.notifier.Start()
	}
	a.timescale.Start(ctx)
	if a.prom != nil {
		a.serveMetrics(ctx)
	}
}

func (a *App) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		a.log.Info("metrics listening", zap.String("address", server.Addr), zap.String("path", a.cfg.Metrics.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

// close drains the alert queue before the stream and stores go away so the
// shutdown notice is delivered.
func (a *App) close(stopServices context.CancelFunc) {
	if a.notifier != nil {
		a.notifier.Close()
	}
	stopServices()
	a.events.Close()
	if a.jsonl != nil {
		if err := a.jsonl.Close(); err != nil {
			a.log.Warn("jsonl close failed", zap.Error(err))
		}
	}
	if err := a.timescale.Close(); err != nil {
		a.log.Warn("timescale close failed", zap.Error(err))
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("state store close failed", zap.Error(err))
		}
	}
}

func (a *App) emit(e events.Event) {
	if e.Time.IsZero() {
		e.Time = a.now().UTC()
	}
	if e.Symbol == "" {
		e.Symbol = a.symbol
	}
	a.sink.Emit(e)
}

func (a *App) persist(ctx context.Context) {
	snap := a.ledger.Snapshot()
	err := state.SaveLedgerSnapshot(ctx, a.store, state.LedgerSnapshot{
		Symbol:      snap.Symbol,
		Records:     snap.Records,
		Position:    snap.Position,
		Mark:        a.lastMark.Price,
		UpdatedAtMS: a.now().UnixMilli(),
	})
	if err != nil {
		a.log.Warn("ledger snapshot save failed", zap.Error(err))
	}
}
