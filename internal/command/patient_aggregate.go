package command

import (
	"time"

	"github.com/google/uuid"

	"github.com/sarkarn/clinprecision-sub002/internal/domain"
)

// minEnrollmentAge is the eligibility floor for study enrollment.
const minEnrollmentAge = 18

// patientAggregate is the in-memory decision state for one patient.
// It is rebuilt from the event stream for every command and discarded
// afterwards; it performs no I/O.
type patientAggregate struct {
	id          uuid.UUID
	exists      bool
	status      domain.PatientStatus
	dateOfBirth time.Time
	enrolled    bool
}

// rehydratePatient folds an ordered event stream into decision state.
func rehydratePatient(id uuid.UUID, events []domain.Event) *patientAggregate {
	agg := &patientAggregate{id: id}
	for _, ev := range events {
		agg.apply(ev)
	}
	return agg
}

// apply is the pure fold step. It must stay deterministic and total:
// unknown event types are ignored rather than rejected, so older
// streams keep replaying after the schema grows.
func (a *patientAggregate) apply(ev domain.Event) {
	switch payload := ev.Payload.(type) {
	case domain.PatientRegistered:
		a.exists = true
		a.status = domain.PatientStatusRegistered
		a.dateOfBirth = payload.DateOfBirth
	case domain.PatientEnrolled:
		a.enrolled = true
		a.status = domain.PatientStatusEnrolled
	case domain.PatientStatusChanged:
		a.status = payload.NewStatus
	}
}

func (a *patientAggregate) decideRegister(cmd RegisterPatient, now time.Time) (domain.Event, error) {
	if a.exists {
		return domain.Event{}, domain.NewConflictError("patient", a.status.String(), "register")
	}
	if !cmd.DateOfBirth.Before(now) {
		return domain.Event{}, domain.NewValidationError("dateOfBirth", "must be in the past")
	}

	return domain.NewEvent(a.id, domain.PatientRegistered{
		ScreeningNumber: cmd.ScreeningNumber,
		FirstName:       cmd.FirstName,
		LastName:        cmd.LastName,
		DateOfBirth:     cmd.DateOfBirth,
		RegisteredBy:    cmd.RegisteredBy,
		RegisteredAt:    now,
	}, now), nil
}

func (a *patientAggregate) decideEnroll(cmd EnrollPatient, now time.Time) (domain.Event, error) {
	if !a.exists {
		return domain.Event{}, domain.ErrNotFound
	}
	if a.enrolled {
		return domain.Event{}, domain.NewConflictError("patient", a.status.String(), "enroll (already enrolled)")
	}
	if a.status != domain.PatientStatusRegistered && a.status != domain.PatientStatusScreening {
		return domain.Event{}, domain.NewConflictError("patient", a.status.String(), "enroll")
	}
	if age := (domain.Patient{DateOfBirth: a.dateOfBirth}).Age(cmd.EnrollmentDate); age < minEnrollmentAge {
		return domain.Event{}, domain.NewValidationError("dateOfBirth", "patient must be at least 18 at enrollment")
	}

	return domain.NewEvent(a.id, domain.PatientEnrolled{
		StudyID:        cmd.StudyID,
		SiteID:         cmd.SiteID,
		ArmID:          cmd.ArmID,
		EnrollmentDate: cmd.EnrollmentDate,
		EnrolledBy:     cmd.EnrolledBy,
	}, now), nil
}

func (a *patientAggregate) decideChangeStatus(cmd ChangePatientStatus, now time.Time) (domain.Event, error) {
	if !a.exists {
		return domain.Event{}, domain.ErrNotFound
	}
	if !domain.CanTransitionPatient(a.status, cmd.NewStatus) {
		return domain.Event{}, domain.NewValidationError("newStatus",
			"transition "+a.status.String()+" -> "+cmd.NewStatus.String()+" is not allowed")
	}

	return domain.NewEvent(a.id, domain.PatientStatusChanged{
		PreviousStatus: a.status,
		NewStatus:      cmd.NewStatus,
		Reason:         cmd.Reason,
		ChangedBy:      cmd.ChangedBy,
		ChangedAt:      now,
	}, now), nil
}
