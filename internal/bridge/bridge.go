// Package bridge papers over the read-your-writes gap between a
// synchronously accepted command and its asynchronously projected read
// model: seed a placeholder row up front, then poll until the
// projection materializes.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sarkarn/clinprecision-sub002/internal/domain"
)

// Clock abstracts wall time so tests poll without real delays.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall-clock implementation.
func RealClock() Clock { return realClock{} }

// Bridge seeds read-model placeholders and awaits projections.
type Bridge struct {
	interval time.Duration
	timeout  time.Duration
	clock    Clock
	log      *slog.Logger
}

// New creates a Bridge polling at interval and giving up after timeout.
func New(interval, timeout time.Duration, clock Clock, log *slog.Logger) *Bridge {
	return &Bridge{
		interval: interval,
		timeout:  timeout,
		clock:    clock,
		log:      log,
	}
}

// Seed runs the seed function, absorbing an already-exists outcome: the
// projector (or an earlier seed) got there first, which is the desired
// end state either way.
func (b *Bridge) Seed(ctx context.Context, seed func(ctx context.Context) error) error {
	err := seed(ctx)
	if errors.Is(err, domain.ErrAlreadyExists) {
		b.log.Debug("seed row already present, skipping")
		return nil
	}
	return err
}

// Await polls fetch until it returns something other than
// domain.ErrNotFound or the bridge's timeout elapses. On timeout it
// returns *domain.TimeoutError; the command may still complete, so the
// caller should re-query rather than resubmit.
func Await[T any](ctx context.Context, b *Bridge, aggregateID uuid.UUID, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	start := b.clock.Now()
	attempts := 0

	for {
		attempts++
		out, err := fetch(ctx)
		if err == nil || !errors.Is(err, domain.ErrNotFound) {
			return out, err
		}

		elapsed := b.clock.Now().Sub(start)
		if elapsed >= b.timeout {
			b.log.Warn("projection did not materialize in time",
				"aggregate_id", aggregateID, "elapsed", elapsed, "attempts", attempts)
			return zero, &domain.TimeoutError{
				AggregateID: aggregateID.String(),
				Elapsed:     elapsed,
				Attempts:    attempts,
			}
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-b.clock.After(b.interval):
		}
	}
}
