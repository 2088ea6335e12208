// Package patient implements the patient read-model repository using
// PostgreSQL: the patient row, its append-only status history, and the
// enrollment row derived from it.
package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/sarkarn/clinprecision-sub002/internal/adapter/postgres"
	"github.com/sarkarn/clinprecision-sub002/internal/domain"
)

// Repo provides patient read-model persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new patient repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// ---------------------------------------------------------------------------
// Patient row
// ---------------------------------------------------------------------------

const createPatientSQL = `
INSERT INTO patients (aggregate_uuid, screening_number, first_name, last_name, date_of_birth, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
RETURNING id, aggregate_uuid, screening_number, first_name, last_name, date_of_birth, status, created_at, updated_at`

// Create inserts the patient row. Returns domain.ErrAlreadyExists if a
// row for the same aggregate UUID or screening number exists.
func (r *Repo) Create(ctx context.Context, p *domain.Patient) (*domain.Patient, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	row := q.QueryRow(ctx, createPatientSQL,
		p.AggregateUUID, p.ScreeningNumber, p.FirstName, p.LastName,
		p.DateOfBirth, p.Status, p.CreatedAt,
	)
	out, err := scanPatient(row)
	if err != nil {
		return nil, postgres.MapError(err, "patient", p.AggregateUUID)
	}
	return out, nil
}

const getPatientByAggregateSQL = `
SELECT id, aggregate_uuid, screening_number, first_name, last_name, date_of_birth, status, created_at, updated_at
FROM patients
WHERE aggregate_uuid = $1`

// GetByAggregateUUID returns the patient row for an aggregate identity.
func (r *Repo) GetByAggregateUUID(ctx context.Context, aggregateUUID uuid.UUID) (*domain.Patient, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	out, err := scanPatient(q.QueryRow(ctx, getPatientByAggregateSQL, aggregateUUID))
	if err != nil {
		return nil, postgres.MapError(err, "patient", aggregateUUID)
	}
	return out, nil
}

const updatePatientStatusSQL = `
UPDATE patients
SET status = $2, updated_at = $3
WHERE aggregate_uuid = $1
RETURNING id, aggregate_uuid, screening_number, first_name, last_name, date_of_birth, status, created_at, updated_at`

// UpdateStatus sets the patient's current status.
func (r *Repo) UpdateStatus(ctx context.Context, aggregateUUID uuid.UUID, status domain.PatientStatus, at time.Time) (*domain.Patient, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	out, err := scanPatient(q.QueryRow(ctx, updatePatientStatusSQL, aggregateUUID, status, at))
	if err != nil {
		return nil, postgres.MapError(err, "patient", aggregateUUID)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Status history
// ---------------------------------------------------------------------------

const appendHistorySQL = `
INSERT INTO patient_status_history (patient_id, previous_status, new_status, reason, changed_by, changed_at, idempotency_key)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// AppendHistory appends one status transition. The idempotency key is
// unique: a replayed event maps to domain.ErrAlreadyExists.
func (r *Repo) AppendHistory(ctx context.Context, h *domain.PatientStatusHistory) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var prev pgtype.Text
	if h.PreviousStatus != nil {
		prev = pgtype.Text{String: h.PreviousStatus.String(), Valid: true}
	}

	_, err := q.Exec(ctx, appendHistorySQL,
		h.PatientID, prev, h.NewStatus, h.Reason, h.ChangedBy, h.ChangedAt, h.IdempotencyKey,
	)
	return postgres.MapError(err, "patient_status_history", h.IdempotencyKey)
}

const listHistorySQL = `
SELECT id, patient_id, previous_status, new_status, reason, changed_by, changed_at, idempotency_key
FROM patient_status_history
WHERE patient_id = $1
ORDER BY changed_at DESC`

// ListHistory returns the transitions for a patient, newest first. The
// first row is authoritative for the current status.
func (r *Repo) ListHistory(ctx context.Context, patientID int64) ([]domain.PatientStatusHistory, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := q.Query(ctx, listHistorySQL, patientID)
	if err != nil {
		return nil, fmt.Errorf("list patient_status_history: %w", err)
	}
	defer rows.Close()

	var out []domain.PatientStatusHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient_status_history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Enrollment
// ---------------------------------------------------------------------------

const createEnrollmentSQL = `
INSERT INTO enrollments (patient_id, study_id, site_id, arm_id, screening_number, enrollment_date, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (patient_id, study_id) DO NOTHING
RETURNING id, patient_id, study_id, site_id, arm_id, screening_number, enrollment_date, status, created_at, updated_at`

// CreateEnrollment inserts an enrollment row. Re-inserting the same
// patient/study pair is a no-op returning the existing row, which makes
// projector replays safe.
func (r *Repo) CreateEnrollment(ctx context.Context, e *domain.Enrollment) (*domain.Enrollment, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var armID pgtype.Int8
	if e.ArmID != nil {
		armID = pgtype.Int8{Int64: *e.ArmID, Valid: true}
	}

	out, err := scanEnrollment(q.QueryRow(ctx, createEnrollmentSQL,
		e.PatientID, e.StudyID, e.SiteID, armID, e.ScreeningNumber,
		e.EnrollmentDate, e.Status, e.CreatedAt,
	))
	if err == nil {
		return out, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return r.GetEnrollment(ctx, e.PatientID, e.StudyID)
	}
	return nil, postgres.MapError(err, "enrollment", e.PatientID)
}

const getEnrollmentSQL = `
SELECT id, patient_id, study_id, site_id, arm_id, screening_number, enrollment_date, status, created_at, updated_at
FROM enrollments
WHERE patient_id = $1 AND study_id = $2`

// GetEnrollment returns the enrollment row for a patient/study pair.
func (r *Repo) GetEnrollment(ctx context.Context, patientID, studyID int64) (*domain.Enrollment, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	out, err := scanEnrollment(q.QueryRow(ctx, getEnrollmentSQL, patientID, studyID))
	if err != nil {
		return nil, postgres.MapError(err, "enrollment", patientID)
	}
	return out, nil
}

const listEnrollmentsByPatientSQL = `
SELECT id, patient_id, study_id, site_id, arm_id, screening_number, enrollment_date, status, created_at, updated_at
FROM enrollments
WHERE patient_id = $1
ORDER BY enrollment_date`

// ListEnrollmentsByPatient returns all of a patient's enrollments.
func (r *Repo) ListEnrollmentsByPatient(ctx context.Context, patientID int64) ([]domain.Enrollment, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := q.Query(ctx, listEnrollmentsByPatientSQL, patientID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var out []domain.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

const updateEnrollmentStatusSQL = `
UPDATE enrollments
SET status = $2, updated_at = $3
WHERE patient_id = $1`

// UpdateEnrollmentStatus sets the derived enrollment status for all of
// a patient's enrollments.
func (r *Repo) UpdateEnrollmentStatus(ctx context.Context, patientID int64, status domain.EnrollmentStatus, at time.Time) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	_, err := q.Exec(ctx, updateEnrollmentStatusSQL, patientID, status, at)
	return postgres.MapError(err, "enrollment", patientID)
}

// ---------------------------------------------------------------------------
// Scanning
// ---------------------------------------------------------------------------

func scanPatient(row pgx.Row) (*domain.Patient, error) {
	var p domain.Patient
	err := row.Scan(
		&p.ID, &p.AggregateUUID, &p.ScreeningNumber, &p.FirstName, &p.LastName,
		&p.DateOfBirth, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanHistory(row pgx.Row) (domain.PatientStatusHistory, error) {
	var (
		h    domain.PatientStatusHistory
		prev pgtype.Text
	)
	err := row.Scan(
		&h.ID, &h.PatientID, &prev, &h.NewStatus, &h.Reason,
		&h.ChangedBy, &h.ChangedAt, &h.IdempotencyKey,
	)
	if err != nil {
		return domain.PatientStatusHistory{}, err
	}
	if prev.Valid {
		status := domain.PatientStatus(prev.String)
		h.PreviousStatus = &status
	}
	return h, nil
}

func scanEnrollment(row pgx.Row) (*domain.Enrollment, error) {
	var (
		e     domain.Enrollment
		armID pgtype.Int8
	)
	err := row.Scan(
		&e.ID, &e.PatientID, &e.StudyID, &e.SiteID, &armID, &e.ScreeningNumber,
		&e.EnrollmentDate, &e.Status, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if armID.Valid {
		e.ArmID = &armID.Int64
	}
	return &e, nil
}
