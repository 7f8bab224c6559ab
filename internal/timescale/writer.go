package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"standx-mm-bot/internal/config"
	"standx-mm-bot/internal/events"
)

const writeTimeout = 3 * time.Second

const (
	FillKindQuote      = "quote"
	FillKindNeutralize = "neutralize"
)

// TickSnapshot is written once per refresh cycle.
type TickSnapshot struct {
	Time        time.Time
	Symbol      string
	Mark        float64
	Bid         float64
	Ask         float64
	NetPosition float64
	Resting     int
	Fills       int
	PriceStale  bool
}

type FillRecord struct {
	Time    time.Time
	Symbol  string
	OrderID string
	Side    string
	Price   float64
	Size    float64
	Kind    string
}

type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	schema    string
	ticks     chan TickSnapshot
	fills     chan FillRecord
	started   atomic.Bool
	dropTicks atomic.Uint64
	dropFills atomic.Uint64
}

// New returns a nil writer when timescale is disabled. A nil *Writer accepts
// every call and does nothing.
func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := newWriter(db, cfg.Schema, cfg.QueueSize, log)
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func newWriter(db *sql.DB, schema string, queueSize int, log *zap.Logger) *Writer {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "public"
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		db:     db,
		log:    log,
		schema: schema,
		ticks:  make(chan TickSnapshot, queueSize),
		fills:  make(chan FillRecord, queueSize),
	}
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueTick(snapshot TickSnapshot) {
	if w == nil {
		return
	}
	select {
	case w.ticks <- snapshot:
	default:
		if w.dropTicks.Add(1) == 1 {
			w.log.Warn("timescale tick queue full")
		}
	}
}

func (w *Writer) EnqueueFill(fill FillRecord) {
	if w == nil {
		return
	}
	select {
	case w.fills <- fill:
	default:
		if w.dropFills.Add(1) == 1 {
			w.log.Warn("timescale fill queue full")
		}
	}
}

// Emit records inferred fills and neutralizations from the activity stream.
func (w *Writer) Emit(e events.Event) {
	if w == nil {
		return
	}
	fill, ok := FillFromEvent(e)
	if !ok {
		return
	}
	w.EnqueueFill(fill)
}

func FillFromEvent(e events.Event) (FillRecord, bool) {
	var kind string
	switch e.Kind {
	case events.KindOrderFilled:
		kind = FillKindQuote
	case events.KindPositionNeutralized:
		kind = FillKindNeutralize
	default:
		return FillRecord{}, false
	}
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return FillRecord{
		Time:    ts.UTC(),
		Symbol:  e.Symbol,
		OrderID: e.OrderID,
		Side:    string(e.Side),
		Price:   e.Price,
		Size:    e.Size,
		Kind:    kind,
	}, true
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-w.ticks:
			w.writeTick(ctx, snap)
		case fill := <-w.fills:
			w.writeFill(ctx, fill)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		mark DOUBLE PRECISION NOT NULL,
		bid DOUBLE PRECISION NOT NULL,
		ask DOUBLE PRECISION NOT NULL,
		net_position DOUBLE PRECISION NOT NULL,
		resting INTEGER NOT NULL,
		fills INTEGER NOT NULL,
		price_stale BOOLEAN NOT NULL
	)`, w.table("tick_snapshots"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		order_id TEXT NOT NULL,
		side TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		size DOUBLE PRECISION NOT NULL,
		kind TEXT NOT NULL
	)`, w.table("fills"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	for _, name := range []string{"tick_snapshots", "fills"} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(name))); err != nil {
			w.log.Warn("timescale hypertable create failed", zap.String("table", name), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) writeTick(ctx context.Context, snap TickSnapshot) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, symbol, mark, bid, ask, net_position, resting, fills, price_stale
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, w.table("tick_snapshots"))
	if _, err := w.db.ExecContext(ctx, query,
		snap.Time,
		snap.Symbol,
		snap.Mark,
		snap.Bid,
		snap.Ask,
		snap.NetPosition,
		snap.Resting,
		snap.Fills,
		snap.PriceStale,
	); err != nil {
		w.log.Warn("timescale tick insert failed", zap.Error(err))
	}
}

func (w *Writer) writeFill(ctx context.Context, fill FillRecord) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, symbol, order_id, side, price, size, kind
	) VALUES ($1,$2,$3,$4,$5,$6,$7)`, w.table("fills"))
	if _, err := w.db.ExecContext(ctx, query,
		fill.Time,
		fill.Symbol,
		fill.OrderID,
		fill.Side,
		fill.Price,
		fill.Size,
		fill.Kind,
	); err != nil {
		w.log.Warn("timescale fill insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
