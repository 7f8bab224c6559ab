package events

import (
	"sync"
	"sync/atomic"
)

// ChannelSink delivers events to a buffered channel without blocking the
// emitter. When the buffer is full the event is dropped and counted.
type ChannelSink struct {
	mu      sync.RWMutex
	ch      chan Event
	closed  bool
	dropped atomic.Int64
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelSink{ch: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(e Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
}

func (s *ChannelSink) C() <-chan Event {
	return s.ch
}

func (s *ChannelSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close ends the stream; later emits are ignored.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
