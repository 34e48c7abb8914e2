package service

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"chat-archive/config"
	"chat-archive/entities"
	"chat-archive/pkg/metrics"
	"chat-archive/pkg/tracing"
	"chat-archive/repository"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// BatchWriter buffers records of one model and commits them together with
// the message_count increments of their streams.
type BatchWriter[T any] struct {
	repo     repository.StreamRepository
	size     int
	interval time.Duration
	label    string

	afterFlush func(tx *gorm.DB) error
	owned      io.Closer
	now        func() time.Time

	mu        sync.Mutex
	pending   []T
	counts    map[uint]int64
	deferred  []func(tx *gorm.DB) error
	lastFlush time.Time
}

type BatchOption[T any] func(*BatchWriter[T])

// WithAfterFlush runs fn inside every flush transaction, after the rows and
// counters are written.
func WithAfterFlush[T any](fn func(tx *gorm.DB) error) BatchOption[T] {
	return func(w *BatchWriter[T]) {
		w.afterFlush = fn
	}
}

// WithOwnedStore hands the writer a handle it must close in Close.
func WithOwnedStore[T any](c io.Closer) BatchOption[T] {
	return func(w *BatchWriter[T]) {
		w.owned = c
	}
}

func WithClock[T any](now func() time.Time) BatchOption[T] {
	return func(w *BatchWriter[T]) {
		w.now = now
	}
}

func NewBatchWriter[T any](repo repository.StreamRepository, cfg config.Batch, label string, opts ...BatchOption[T]) *BatchWriter[T] {
	w := &BatchWriter[T]{
		repo:     repo,
		size:     cfg.Size,
		interval: cfg.FlushInterval,
		label:    label,
		now:      time.Now,
		counts:   make(map[uint]int64),
	}
	if w.size <= 0 {
		w.size = defaultBatchSize
	}
	if w.interval <= 0 {
		w.interval = defaultFlushInterval
	}
	for _, opt := range opts {
		opt(w)
	}
	w.lastFlush = w.now()
	return w
}

// Append queues rec for streamID and flushes when the batch is full or the
// flush interval has elapsed. A flush error is returned but the records
// stay queued for the next attempt.
func (w *BatchWriter[T]) Append(ctx context.Context, rec T, streamID uint) error {
	return w.AppendWith(ctx, rec, streamID, nil)
}

// AppendWith is Append plus a statement that commits in the same
// transaction as rec.
func (w *BatchWriter[T]) AppendWith(ctx context.Context, rec T, streamID uint, stmt func(tx *gorm.DB) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if stmt != nil {
		w.deferred = append(w.deferred, stmt)
	}
	w.pending = append(w.pending, rec)
	if streamID != 0 {
		w.counts[streamID]++
	}

	if len(w.pending) >= w.size || w.now().Sub(w.lastFlush) >= w.interval {
		return w.flush(ctx)
	}
	return nil
}

func (w *BatchWriter[T]) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flush(ctx)
}

func (w *BatchWriter[T]) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Close flushes what is left and releases an owned store.
func (w *BatchWriter[T]) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.flush(ctx)
	if w.owned != nil {
		if cerr := w.owned.Close(); cerr != nil && err == nil {
			err = cerr
		}
		w.owned = nil
	}
	return err
}

func (w *BatchWriter[T]) flush(ctx context.Context) (err error) {
	if len(w.pending) == 0 {
		return nil
	}

	// A flush that has started always finishes.
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracing.Start(ctx, "batch.flush",
		attribute.String("platform", w.label),
		attribute.Int("records", len(w.pending)),
	)
	started := time.Now()
	defer func() {
		metrics.FlushDuration.Observe(time.Since(started).Seconds())
		tracing.End(span, err)
	}()

	// Rows are inserted from a copy so ids assigned by a rolled back insert
	// never leak into the next attempt.
	counts := make(map[uint]int64, len(w.counts))
	for id, n := range w.counts {
		counts[id] = n
	}

	err = w.repo.Retry(ctx, func() error {
		batch := slices.Clone(w.pending)
		return w.repo.Transaction(ctx, func(tx *gorm.DB) error {
			if err := tx.Create(&batch).Error; err != nil {
				return err
			}
			for _, stmt := range w.deferred {
				if err := stmt(tx); err != nil {
					return err
				}
			}
			for streamID, n := range counts {
				err := tx.Model(&entities.Stream{}).
					Where("id = ?", streamID).
					UpdateColumn("message_count", gorm.Expr("message_count + ?", n)).Error
				if err != nil {
					return err
				}
			}
			if w.afterFlush != nil {
				return w.afterFlush(tx)
			}
			return nil
		})
	})
	if err != nil {
		metrics.Flushes.WithLabelValues("error").Inc()
		zerolog.Ctx(ctx).Error().Err(err).Int("pending", len(w.pending)).Msg("failed to flush batch")
		return fmt.Errorf("flush %d records: %w", len(w.pending), err)
	}

	metrics.Flushes.WithLabelValues("ok").Inc()
	metrics.MessagesPersisted.WithLabelValues(w.label).Add(float64(len(w.pending)))
	zerolog.Ctx(ctx).Debug().Int("records", len(w.pending)).Msg("flushed batch")

	w.pending = w.pending[:0]
	w.deferred = nil
	clear(w.counts)
	w.lastFlush = w.now()
	return nil
}
