// Package eventlog defines the contract of the durable, per-aggregate
// ordered event stream the pipeline is built on, plus an in-memory
// implementation used for local wiring and tests.
//
// The real log is an external collaborator. The contract it must honor:
// events for one aggregate are delivered to subscribers in emission
// order, delivery is at-least-once, and there is no ordering guarantee
// across aggregates.
package eventlog

import (
	"context"

	"github.com/google/uuid"

	"github.com/sarkarn/clinprecision-sub002/internal/domain"
)

// Handler consumes one delivered event. Returning an error triggers
// redelivery, so handlers must be idempotent.
type Handler func(ctx context.Context, event domain.Event) error

// Log is the append-only, per-aggregate ordered event stream.
type Log interface {
	// Append durably appends an event to its aggregate's stream and
	// schedules delivery to subscribers of the event's type.
	Append(ctx context.Context, event domain.Event) error

	// ReadStream returns the full ordered event history of an aggregate.
	// Returns an empty slice for an unknown aggregate.
	ReadStream(ctx context.Context, aggregateID uuid.UUID) ([]domain.Event, error)

	// Subscribe registers a handler for an event type. Must be called
	// before the first Append that should reach the handler.
	Subscribe(eventType domain.EventType, handler Handler)
}
