// Package projector translates domain events into PostgreSQL read-model
// writes. Delivery is at-least-once, so every handler records the
// event's deterministic idempotency key inside the same transaction as
// its writes and treats a duplicate key as "already applied".
package projector

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sarkarn/clinprecision-sub002/internal/domain"
)

type processedStore interface {
	Mark(ctx context.Context, key uuid.UUID, eventType string, at time.Time) error
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// dependencyBackoff is the retry schedule for cross-aggregate reads
// that may observe the read model before another handler has written
// its row.
var dependencyBackoff = []time.Duration{
	10 * time.Millisecond,
	20 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	200 * time.Millisecond,
	500 * time.Millisecond,
}

// waitFor calls fetch until it stops returning domain.ErrNotFound or
// the backoff schedule is exhausted. Other errors abort immediately.
// The sleep function is injected so tests run without real delays.
func waitFor[T any](ctx context.Context, sleep func(context.Context, time.Duration) error, fetch func(ctx context.Context) (T, error)) (T, error) {
	out, err := fetch(ctx)
	for _, delay := range dependencyBackoff {
		if err == nil || !errors.Is(err, domain.ErrNotFound) {
			return out, err
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return out, sleepErr
		}
		out, err = fetch(ctx)
	}
	return out, err
}

// realSleep blocks for d or until ctx is done.
func realSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
