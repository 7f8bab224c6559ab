package events

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// JSONLSink appends every event to a newline-delimited JSON file. It opens
// the file lazily and is safe for concurrent use.
type JSONLSink struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
	log  *zap.Logger
}

// NewJSONLSink returns nil for a blank path.
func NewJSONLSink(path string, log *zap.Logger) *JSONLSink {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &JSONLSink{path: path, log: log}
}

func (s *JSONLSink) Emit(e Event) {
	if err := s.Write(e); err != nil {
		s.log.Warn("jsonl write failed", zap.String("path", s.path), zap.Error(err))
	}
}

func (s *JSONLSink) Write(e Event) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpenLocked(); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *JSONLSink) ensureOpenLocked() error {
	if s.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	s.file = f
	s.w = bufio.NewWriterSize(f, 64*1024)
	return nil
}

func (s *JSONLSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	if s.w != nil {
		firstErr = s.w.Flush()
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.w = nil
	s.file = nil
	if firstErr != nil && errors.Is(firstErr, os.ErrClosed) {
		return nil
	}
	return firstErr
}
