package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/yodabot/support-desk/pkg/logger"
	"github.com/yodabot/support-desk/pkg/metrics"
)

// Instrumented wraps a Store with debug logging and operation metrics.
type Instrumented struct {
	next   Store
	logger *logger.Logger
}

// NewInstrumented decorates next.
func NewInstrumented(next Store, log *logger.Logger) *Instrumented {
	return &Instrumented{next: next, logger: log}
}

func (s *Instrumented) observe(op, path string, start time.Time, err error) {
	status := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	d := time.Since(start)
	metrics.RecordStoreOp(op, status, d.Seconds())
	s.logger.Debug("store call",
		zap.String("op", op),
		zap.String("path", path),
		zap.String("status", status),
		zap.Duration("duration", d),
	)
}

// Get implements Store.
func (s *Instrumented) Get(ctx context.Context, path string) (json.RawMessage, error) {
	start := time.Now()
	raw, err := s.next.Get(ctx, path)
	s.observe("get", path, start, err)
	return raw, err
}

// GetAll implements Store.
func (s *Instrumented) GetAll(ctx context.Context, path string) ([]Entry, error) {
	start := time.Now()
	entries, err := s.next.GetAll(ctx, path)
	s.observe("get_all", path, start, err)
	return entries, err
}

// Put implements Store.
func (s *Instrumented) Put(ctx context.Context, path string, value any) error {
	start := time.Now()
	err := s.next.Put(ctx, path, value)
	s.observe("put", path, start, err)
	return err
}

// Delete implements Store.
func (s *Instrumented) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := s.next.Delete(ctx, path)
	s.observe("delete", path, start, err)
	return err
}

// Ping implements Store.
func (s *Instrumented) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}
