// Package build implements the study database build read-model
// repository using PostgreSQL. Rows are created by the consistency
// bridge's seed or by the projector, whichever runs first, and updated
// exclusively by the projector afterwards.
package build

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/sarkarn/clinprecision-sub002/internal/adapter/postgres"
	"github.com/sarkarn/clinprecision-sub002/internal/domain"
)

// Repo provides build read-model persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new build repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const buildColumns = `id, aggregate_uuid, build_request_id, study_id, study_name, status,
requested_by, build_start_time, build_end_time, tables_created, forms_configured,
validation_rules, error_message, cancellation_note, validated_at, is_valid, validation_errors, created_at, updated_at`

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

const seedBuildSQL = `
INSERT INTO study_database_builds (aggregate_uuid, build_request_id, study_id, study_name, status, requested_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (aggregate_uuid) DO NOTHING`

// Seed inserts a minimal placeholder row for an accepted build command.
// Idempotent: a second seed for the same aggregate UUID is a no-op, and
// a row already written by the projector is left untouched.
func (r *Repo) Seed(ctx context.Context, b *domain.DatabaseBuild) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	_, err := q.Exec(ctx, seedBuildSQL,
		b.AggregateUUID, b.BuildRequestID, b.StudyID, b.StudyName,
		b.Status, b.RequestedBy, b.CreatedAt,
	)
	return postgres.MapError(err, "study_database_build", b.AggregateUUID)
}

const applyRequestedSQL = `
INSERT INTO study_database_builds (aggregate_uuid, build_request_id, study_id, study_name, status, requested_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (aggregate_uuid) DO UPDATE
SET build_request_id = EXCLUDED.build_request_id,
    study_name       = EXCLUDED.study_name,
    requested_by     = EXCLUDED.requested_by,
    updated_at       = EXCLUDED.updated_at
RETURNING ` + buildColumns

// ApplyRequested projects the build-requested event. The upsert absorbs
// a pre-existing seed row without duplicating it; the seed's status is
// kept so a racing start projection is not regressed.
func (r *Repo) ApplyRequested(ctx context.Context, b *domain.DatabaseBuild) (*domain.DatabaseBuild, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	out, err := scanBuild(q.QueryRow(ctx, applyRequestedSQL,
		b.AggregateUUID, b.BuildRequestID, b.StudyID, b.StudyName,
		b.Status, b.RequestedBy, b.CreatedAt,
	))
	if err != nil {
		return nil, postgres.MapError(err, "study_database_build", b.AggregateUUID)
	}
	return out, nil
}

const updateStartedSQL = `
UPDATE study_database_builds
SET status = $2, build_start_time = $3, updated_at = $3
WHERE aggregate_uuid = $1
RETURNING ` + buildColumns

// ApplyStarted projects the transition to IN_PROGRESS.
func (r *Repo) ApplyStarted(ctx context.Context, aggregateUUID uuid.UUID, at time.Time) (*domain.DatabaseBuild, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	out, err := scanBuild(q.QueryRow(ctx, updateStartedSQL, aggregateUUID, domain.BuildStatusInProgress, at))
	if err != nil {
		return nil, postgres.MapError(err, "study_database_build", aggregateUUID)
	}
	return out, nil
}

const updateCompletedSQL = `
UPDATE study_database_builds
SET status = $2, build_end_time = $3, tables_created = $4, forms_configured = $5, validation_rules = $6, updated_at = $3
WHERE aggregate_uuid = $1
RETURNING ` + buildColumns

// ApplyCompleted projects a successful build with its counters.
func (r *Repo) ApplyCompleted(ctx context.Context, aggregateUUID uuid.UUID, at time.Time, tables, forms, rules int) (*domain.DatabaseBuild, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	out, err := scanBuild(q.QueryRow(ctx, updateCompletedSQL,
		aggregateUUID, domain.BuildStatusCompleted, at, tables, forms, rules,
	))
	if err != nil {
		return nil, postgres.MapError(err, "study_database_build", aggregateUUID)
	}
	return out, nil
}

const updateFailedSQL = `
UPDATE study_database_builds
SET status = $2, build_end_time = $3, error_message = $4, updated_at = $3
WHERE aggregate_uuid = $1
RETURNING ` + buildColumns

// ApplyFailed projects a failed build.
func (r *Repo) ApplyFailed(ctx context.Context, aggregateUUID uuid.UUID, at time.Time, errorMessage string) (*domain.DatabaseBuild, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	out, err := scanBuild(q.QueryRow(ctx, updateFailedSQL, aggregateUUID, domain.BuildStatusFailed, at, errorMessage))
	if err != nil {
		return nil, postgres.MapError(err, "study_database_build", aggregateUUID)
	}
	return out, nil
}

const updateCancelledSQL = `
UPDATE study_database_builds
SET status = $2, build_end_time = $3, cancellation_note = $4, updated_at = $3
WHERE aggregate_uuid = $1
RETURNING ` + buildColumns

// ApplyCancelled projects a cancelled build.
func (r *Repo) ApplyCancelled(ctx context.Context, aggregateUUID uuid.UUID, at time.Time, reason string) (*domain.DatabaseBuild, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	out, err := scanBuild(q.QueryRow(ctx, updateCancelledSQL, aggregateUUID, domain.BuildStatusCancelled, at, reason))
	if err != nil {
		return nil, postgres.MapError(err, "study_database_build", aggregateUUID)
	}
	return out, nil
}

const updateValidatedSQL = `
UPDATE study_database_builds
SET validated_at = $2, is_valid = $3, validation_errors = $4, updated_at = $2
WHERE aggregate_uuid = $1
RETURNING ` + buildColumns

// ApplyValidated projects a validation pass outcome.
func (r *Repo) ApplyValidated(ctx context.Context, aggregateUUID uuid.UUID, at time.Time, isValid bool, validationErrors []string) (*domain.DatabaseBuild, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	out, err := scanBuild(q.QueryRow(ctx, updateValidatedSQL, aggregateUUID, at, isValid, validationErrors))
	if err != nil {
		return nil, postgres.MapError(err, "study_database_build", aggregateUUID)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

const getBuildByAggregateSQL = `
SELECT ` + buildColumns + `
FROM study_database_builds
WHERE aggregate_uuid = $1`

// GetByAggregateUUID returns the build row for an aggregate identity.
func (r *Repo) GetByAggregateUUID(ctx context.Context, aggregateUUID uuid.UUID) (*domain.DatabaseBuild, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	out, err := scanBuild(q.QueryRow(ctx, getBuildByAggregateSQL, aggregateUUID))
	if err != nil {
		return nil, postgres.MapError(err, "study_database_build", aggregateUUID)
	}
	return out, nil
}

const existsInProgressSQL = `
SELECT EXISTS (
	SELECT 1 FROM study_database_builds
	WHERE study_id = $1 AND status IN ($2, $3)
)`

// ExistsInProgress reports whether the study has an unfinished build.
func (r *Repo) ExistsInProgress(ctx context.Context, studyID int64) (bool, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var exists bool
	err := q.QueryRow(ctx, existsInProgressSQL,
		studyID, domain.BuildStatusRequested, domain.BuildStatusInProgress,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists in-progress build: %w", err)
	}
	return exists, nil
}

const latestCompletedSQL = `
SELECT ` + buildColumns + `
FROM study_database_builds
WHERE study_id = $1 AND status = $2
ORDER BY build_end_time DESC NULLS LAST
LIMIT 1`

// LatestCompleted returns the most recent completed build for a study.
// Patient activation depends on it: visit instances record which build
// version they were generated under.
func (r *Repo) LatestCompleted(ctx context.Context, studyID int64) (*domain.DatabaseBuild, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	out, err := scanBuild(q.QueryRow(ctx, latestCompletedSQL, studyID, domain.BuildStatusCompleted))
	if err != nil {
		return nil, postgres.MapError(err, "study_database_build", studyID)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Scanning
// ---------------------------------------------------------------------------

func scanBuild(row pgx.Row) (*domain.DatabaseBuild, error) {
	var (
		b           domain.DatabaseBuild
		start, end  pgtype.Timestamptz
		errMsg      pgtype.Text
		cancelNote  pgtype.Text
		validatedAt pgtype.Timestamptz
		isValid     pgtype.Bool
	)
	err := row.Scan(
		&b.ID, &b.AggregateUUID, &b.BuildRequestID, &b.StudyID, &b.StudyName, &b.Status,
		&b.RequestedBy, &start, &end, &b.TablesCreated, &b.FormsConfigured,
		&b.ValidationRules, &errMsg, &cancelNote, &validatedAt, &isValid, &b.ValidationErrors,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if start.Valid {
		b.BuildStartTime = &start.Time
	}
	if end.Valid {
		b.BuildEndTime = &end.Time
	}
	if errMsg.Valid {
		b.ErrorMessage = &errMsg.String
	}
	if cancelNote.Valid {
		b.CancellationNote = &cancelNote.String
	}
	if validatedAt.Valid {
		b.ValidatedAt = &validatedAt.Time
	}
	if isValid.Valid {
		b.IsValid = &isValid.Bool
	}
	return &b, nil
}
