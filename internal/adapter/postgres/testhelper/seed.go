package testhelper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sarkarn/clinprecision-sub002/internal/domain"
)

// uniqueSuffix returns a short unique string for generating non-conflicting test data.
func uniqueSuffix() string {
	return uuid.New().String()[:8]
}

// SeedPatient creates a patient row in REGISTERED status with a unique
// screening number. Returns the filled domain.Patient.
func SeedPatient(t *testing.T, pool *pgxpool.Pool) domain.Patient {
	t.Helper()
	ctx := context.Background()

	suffix := uniqueSuffix()
	now := time.Now().UTC().Truncate(time.Microsecond)
	p := domain.Patient{
		AggregateUUID:   uuid.New(),
		ScreeningNumber: "SCR-" + suffix,
		FirstName:       "Test",
		LastName:        "Patient " + suffix,
		DateOfBirth:     time.Date(1985, time.March, 14, 0, 0, 0, 0, time.UTC),
		Status:          domain.PatientStatusRegistered,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := pool.QueryRow(ctx,
		`INSERT INTO patients (aggregate_uuid, screening_number, first_name, last_name, date_of_birth, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		p.AggregateUUID, p.ScreeningNumber, p.FirstName, p.LastName, p.DateOfBirth, p.Status, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		t.Fatalf("testhelper: SeedPatient insert patient: %v", err)
	}

	return p
}

// SeedCompletedBuild creates a COMPLETED study database build for the
// given study. Returns the filled domain.DatabaseBuild.
func SeedCompletedBuild(t *testing.T, pool *pgxpool.Pool, studyID int64) domain.DatabaseBuild {
	t.Helper()
	ctx := context.Background()

	suffix := uniqueSuffix()
	now := time.Now().UTC().Truncate(time.Microsecond)
	start := now.Add(-10 * time.Minute)
	b := domain.DatabaseBuild{
		AggregateUUID:   uuid.New(),
		BuildRequestID:  "BR-" + suffix,
		StudyID:         studyID,
		StudyName:       "Study " + suffix,
		Status:          domain.BuildStatusCompleted,
		RequestedBy:     1,
		BuildStartTime:  &start,
		BuildEndTime:    &now,
		TablesCreated:   12,
		FormsConfigured: 8,
		ValidationRules: 30,
		CreatedAt:       start,
		UpdatedAt:       now,
	}

	err := pool.QueryRow(ctx,
		`INSERT INTO study_database_builds (aggregate_uuid, build_request_id, study_id, study_name, status, requested_by,
		   build_start_time, build_end_time, tables_created, forms_configured, validation_rules, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id`,
		b.AggregateUUID, b.BuildRequestID, b.StudyID, b.StudyName, b.Status, b.RequestedBy,
		b.BuildStartTime, b.BuildEndTime, b.TablesCreated, b.FormsConfigured, b.ValidationRules, b.CreatedAt, b.UpdatedAt,
	).Scan(&b.ID)
	if err != nil {
		t.Fatalf("testhelper: SeedCompletedBuild insert build: %v", err)
	}

	return b
}

// SeedVisitDefinition creates one protocol visit definition. armID may
// be nil for a common (all-arm) visit.
func SeedVisitDefinition(t *testing.T, pool *pgxpool.Pool, studyID int64, armID *int64, name string, timepointDays, windowBefore, windowAfter, seq int) domain.VisitDefinition {
	t.Helper()
	ctx := context.Background()

	d := domain.VisitDefinition{
		StudyID:        studyID,
		ArmID:          armID,
		Name:           name,
		TimepointDays:  timepointDays,
		WindowBefore:   windowBefore,
		WindowAfter:    windowAfter,
		IsRequired:     true,
		SequenceNumber: seq,
	}

	err := pool.QueryRow(ctx,
		`INSERT INTO visit_definitions (study_id, arm_id, name, timepoint_days, window_before, window_after, is_required, is_unscheduled, sequence_number)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)
		 RETURNING id`,
		d.StudyID, d.ArmID, d.Name, d.TimepointDays, d.WindowBefore, d.WindowAfter, d.IsRequired, d.SequenceNumber,
	).Scan(&d.ID)
	if err != nil {
		t.Fatalf("testhelper: SeedVisitDefinition insert: %v", err)
	}

	return d
}

// SeedUnscheduledVisitDefinition creates an unscheduled visit template,
// which the scheduler must never instantiate.
func SeedUnscheduledVisitDefinition(t *testing.T, pool *pgxpool.Pool, studyID int64) domain.VisitDefinition {
	t.Helper()
	ctx := context.Background()

	d := domain.VisitDefinition{
		StudyID:       studyID,
		Name:          "Unscheduled",
		IsUnscheduled: true,
	}

	err := pool.QueryRow(ctx,
		`INSERT INTO visit_definitions (study_id, arm_id, name, timepoint_days, window_before, window_after, is_required, is_unscheduled, sequence_number)
		 VALUES ($1, NULL, $2, 0, 0, 0, FALSE, TRUE, 99)
		 RETURNING id`,
		d.StudyID, d.Name,
	).Scan(&d.ID)
	if err != nil {
		t.Fatalf("testhelper: SeedUnscheduledVisitDefinition insert: %v", err)
	}

	return d
}
