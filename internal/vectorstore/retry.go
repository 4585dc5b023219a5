package vectorstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragvault/internal/models"
)

const (
	DefaultRetryAttempts = 3
	retryBaseDelay       = 200 * time.Millisecond
	retryMaxDelay        = 2 * time.Second
)

// Retrying retries backend failures with capped exponential backoff.
// Validation errors are returned immediately.
type Retrying struct {
	next     Store
	attempts int
	base     time.Duration
	max      time.Duration
	logger   *zap.Logger
}

func WithRetry(next Store, attempts int, logger *zap.Logger) *Retrying {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	return &Retrying{next: next, attempts: attempts, base: retryBaseDelay, max: retryMaxDelay, logger: logger}
}

func (r *Retrying) Store(ctx context.Context, namespace string, records []Record) (bool, error) {
	var ok bool
	err := r.do(ctx, "store", namespace, func() error {
		var err error
		ok, err = r.next.Store(ctx, namespace, records)
		return err
	})
	return ok, err
}

func (r *Retrying) Search(ctx context.Context, namespace string, query []float32, topK int, citableOnly bool) ([]SearchResult, error) {
	var results []SearchResult
	err := r.do(ctx, "search", namespace, func() error {
		var err error
		results, err = r.next.Search(ctx, namespace, query, topK, citableOnly)
		return err
	})
	return results, err
}

func (r *Retrying) DeleteSource(ctx context.Context, namespace string, sourceID uuid.UUID) error {
	return r.do(ctx, "delete", namespace, func() error {
		return r.next.DeleteSource(ctx, namespace, sourceID)
	})
}

func (r *Retrying) do(ctx context.Context, op, namespace string, fn func() error) error {
	var err error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		var storageErr *models.VectorStorageError
		if !errors.As(err, &storageErr) || attempt == r.attempts-1 {
			return err
		}

		delay := r.delay(attempt)
		r.logger.Warn("Vector store call failed, retrying",
			zap.String("op", op),
			zap.String("namespace", namespace),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func (r *Retrying) delay(attempt int) time.Duration {
	d := r.base << attempt
	if d > r.max || d <= 0 {
		d = r.max
	}
	return d
}
