package db

import (
	"context"
	"fmt"
	"time"

	"github.com/arkade-os/bvsnap/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

type retryingStore struct {
	domain.ObjectRepository
	numOfRetries int
	baseDelay    time.Duration
}

// NewRetryingStore wraps the reads of the given repository with a retry loop
// with exponential backoff. A clean not-found is never retried.
func NewRetryingStore(
	store domain.ObjectRepository, numOfRetries int, baseDelay time.Duration,
) domain.ObjectRepository {
	if numOfRetries <= 0 {
		return store
	}
	return &retryingStore{store, numOfRetries, baseDelay}
}

func (s *retryingStore) Get(
	ctx context.Context, id domain.ObjectID, owner *domain.ObjectID,
	atOrBefore domain.Checkpoint,
) (*domain.VersionedRecord, error) {
	return withRetry(ctx, s.numOfRetries, s.baseDelay, func() (*domain.VersionedRecord, error) {
		return s.ObjectRepository.Get(ctx, id, owner, atOrBefore)
	})
}

func (s *retryingStore) GetMany(
	ctx context.Context, ids []domain.ObjectID, owner *domain.ObjectID,
	atOrBefore domain.Checkpoint,
) (map[domain.ObjectID]*domain.VersionedRecord, error) {
	return withRetry(
		ctx, s.numOfRetries, s.baseDelay,
		func() (map[domain.ObjectID]*domain.VersionedRecord, error) {
			return s.ObjectRepository.GetMany(ctx, ids, owner, atOrBefore)
		},
	)
}

func withRetry[T any](
	ctx context.Context, numOfRetries int, baseDelay time.Duration, fn func() (T, error),
) (T, error) {
	var zero T
	var lastErr error
	for attempt := range numOfRetries + 1 {
		res, err := fn()
		if err == nil {
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt >= numOfRetries {
			break
		}

		// exponential: base, 2*base, 4*base...
		delay := baseDelay * time.Duration(1<<uint(attempt))
		log.WithError(err).Debugf("object store read failed, retrying in %s", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("failed after %d attempts: %w", numOfRetries+1, lastErr)
}
