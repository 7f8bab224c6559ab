package events

import "go.uber.org/zap"

// LogSink writes each event as a structured log line. Failures log at warn,
// neutralization failures at error.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Emit(e Event) {
	fields := []zap.Field{zap.String("event", string(e.Kind)), zap.String("symbol", e.Symbol)}
	if e.OrderID != "" {
		fields = append(fields, zap.String("order_id", e.OrderID))
	}
	if e.Side != "" {
		fields = append(fields, zap.String("side", string(e.Side)))
	}
	if e.Price != 0 {
		fields = append(fields, zap.Float64("price", e.Price))
	}
	if e.Size != 0 {
		fields = append(fields, zap.Float64("size", e.Size))
	}
	if e.Position != 0 {
		fields = append(fields, zap.Float64("position", e.Position))
	}
	if e.Count != 0 {
		fields = append(fields, zap.Int("count", e.Count))
	}
	if e.Message != "" {
		fields = append(fields, zap.String("message", e.Message))
	}
	if e.Err != "" {
		fields = append(fields, zap.String("error", e.Err))
	}
	switch {
	case e.Kind == KindNeutralizationFailed:
		s.log.Error("activity", fields...)
	case e.Failure():
		s.log.Warn("activity", fields...)
	case e.Kind == KindPriceFetched:
		s.log.Debug("activity", fields...)
	default:
		s.log.Info("activity", fields...)
	}
}
