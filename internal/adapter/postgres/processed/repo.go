// Package processed tracks projector idempotency keys in PostgreSQL.
// Marking a key inside the same transaction as the projection makes
// redelivered events detectable and harmless.
package processed

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/sarkarn/clinprecision-sub002/internal/adapter/postgres"
)

// Repo provides processed-event bookkeeping backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new processed-event repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const markProcessedSQL = `
INSERT INTO processed_events (idempotency_key, event_type, processed_at)
VALUES ($1, $2, $3)`

// Mark records the key as processed. A second insert of the same key
// maps to domain.ErrAlreadyExists, which projectors treat as "apply is
// done, skip".
func (r *Repo) Mark(ctx context.Context, key uuid.UUID, eventType string, at time.Time) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	_, err := q.Exec(ctx, markProcessedSQL, key, eventType, at)
	return postgres.MapError(err, "processed_event", key)
}
