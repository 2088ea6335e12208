// Package visit implements persistence for protocol visit definitions
// and patient visit instances using PostgreSQL.
package visit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/sarkarn/clinprecision-sub002/internal/adapter/postgres"
	"github.com/sarkarn/clinprecision-sub002/internal/domain"
)

// Repo provides visit persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new visit repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// ---------------------------------------------------------------------------
// Definitions
// ---------------------------------------------------------------------------

const listDefinitionsSQL = `
SELECT id, study_id, arm_id, name, timepoint_days, window_before, window_after, is_required, is_unscheduled, sequence_number
FROM visit_definitions
WHERE study_id = $1
  AND (arm_id = $2 OR arm_id IS NULL)
  AND is_unscheduled = FALSE
ORDER BY timepoint_days, sequence_number`

// ListDefinitions returns the schedulable definitions for a study arm:
// arm-specific rows plus common rows (NULL arm), excluding unscheduled
// templates, ordered by timepoint.
func (r *Repo) ListDefinitions(ctx context.Context, studyID, armID int64) ([]domain.VisitDefinition, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := q.Query(ctx, listDefinitionsSQL, studyID, armID)
	if err != nil {
		return nil, fmt.Errorf("list visit_definitions: %w", err)
	}
	defer rows.Close()

	var out []domain.VisitDefinition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan visit_definition: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Instances
// ---------------------------------------------------------------------------

const createInstanceSQL = `
INSERT INTO visit_instances (patient_id, study_id, site_id, visit_definition_id, build_id, visit_date, window_start, window_end, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`

// CreateInstance inserts one patient visit. A replay of the same
// patient/definition pair maps to domain.ErrAlreadyExists via the
// unique index.
func (r *Repo) CreateInstance(ctx context.Context, v *domain.VisitInstance) (*domain.VisitInstance, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var defID pgtype.Int8
	if v.VisitDefinitionID != nil {
		defID = pgtype.Int8{Int64: *v.VisitDefinitionID, Valid: true}
	}

	err := q.QueryRow(ctx, createInstanceSQL,
		v.PatientID, v.StudyID, v.SiteID, defID, v.BuildID,
		v.VisitDate, v.WindowStart, v.WindowEnd, v.Status, v.CreatedAt,
	).Scan(&v.ID)
	if err != nil {
		return nil, postgres.MapError(err, "visit_instance", v.PatientID)
	}
	return v, nil
}

const existsForPatientSQL = `
SELECT EXISTS (
	SELECT 1 FROM visit_instances WHERE patient_id = $1 AND study_id = $2
)`

// ExistsForPatient reports whether the patient's schedule was already
// instantiated for a study. The scheduler checks this before generating
// to keep activation replays idempotent.
func (r *Repo) ExistsForPatient(ctx context.Context, patientID, studyID int64) (bool, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var exists bool
	if err := q.QueryRow(ctx, existsForPatientSQL, patientID, studyID).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists visit_instances: %w", err)
	}
	return exists, nil
}

const listByPatientSQL = `
SELECT id, patient_id, study_id, site_id, visit_definition_id, build_id, visit_date, window_start, window_end, status, created_at
FROM visit_instances
WHERE patient_id = $1
ORDER BY visit_date, id`

// ListByPatient returns a patient's visits in chronological order.
func (r *Repo) ListByPatient(ctx context.Context, patientID int64) ([]domain.VisitInstance, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := q.Query(ctx, listByPatientSQL, patientID)
	if err != nil {
		return nil, fmt.Errorf("list visit_instances: %w", err)
	}
	defer rows.Close()

	var out []domain.VisitInstance
	for rows.Next() {
		v, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan visit_instance: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Scanning
// ---------------------------------------------------------------------------

func scanDefinition(row pgx.Row) (domain.VisitDefinition, error) {
	var (
		d     domain.VisitDefinition
		armID pgtype.Int8
	)
	err := row.Scan(
		&d.ID, &d.StudyID, &armID, &d.Name, &d.TimepointDays,
		&d.WindowBefore, &d.WindowAfter, &d.IsRequired, &d.IsUnscheduled, &d.SequenceNumber,
	)
	if err != nil {
		return domain.VisitDefinition{}, err
	}
	if armID.Valid {
		d.ArmID = &armID.Int64
	}
	return d, nil
}

func scanInstance(row pgx.Row) (domain.VisitInstance, error) {
	var (
		v     domain.VisitInstance
		defID pgtype.Int8
	)
	err := row.Scan(
		&v.ID, &v.PatientID, &v.StudyID, &v.SiteID, &defID, &v.BuildID,
		&v.VisitDate, &v.WindowStart, &v.WindowEnd, &v.Status, &v.CreatedAt,
	)
	if err != nil {
		return domain.VisitInstance{}, err
	}
	if defID.Valid {
		v.VisitDefinitionID = &defID.Int64
	}
	return v, nil
}
