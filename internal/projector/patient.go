package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sarkarn/clinprecision-sub002/internal/domain"
	"github.com/sarkarn/clinprecision-sub002/internal/eventlog"
	"github.com/sarkarn/clinprecision-sub002/internal/scheduler"
)

type patientStore interface {
	Create(ctx context.Context, p *domain.Patient) (*domain.Patient, error)
	GetByAggregateUUID(ctx context.Context, aggregateUUID uuid.UUID) (*domain.Patient, error)
	UpdateStatus(ctx context.Context, aggregateUUID uuid.UUID, status domain.PatientStatus, at time.Time) (*domain.Patient, error)
	AppendHistory(ctx context.Context, h *domain.PatientStatusHistory) error
	CreateEnrollment(ctx context.Context, e *domain.Enrollment) (*domain.Enrollment, error)
	ListEnrollmentsByPatient(ctx context.Context, patientID int64) ([]domain.Enrollment, error)
	UpdateEnrollmentStatus(ctx context.Context, patientID int64, status domain.EnrollmentStatus, at time.Time) error
}

type visitScheduler interface {
	Instantiate(ctx context.Context, in scheduler.InstantiateInput) ([]domain.VisitInstance, error)
}

// PatientProjector maintains the patient, status history, and
// enrollment read models, and triggers visit instantiation on the
// transition into ACTIVE.
type PatientProjector struct {
	patients  patientStore
	processed processedStore
	tx        txManager
	visits    visitScheduler
	log       *slog.Logger
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
}

// NewPatientProjector creates a PatientProjector.
func NewPatientProjector(patients patientStore, processed processedStore, tx txManager, visits visitScheduler, log *slog.Logger) *PatientProjector {
	return &PatientProjector{
		patients:  patients,
		processed: processed,
		tx:        tx,
		visits:    visits,
		log:       log,
		now:       time.Now,
		sleep:     realSleep,
	}
}

// Register subscribes the projector's handlers. Must run before the
// first event is appended.
func (p *PatientProjector) Register(log eventlog.Log) {
	log.Subscribe(domain.EventPatientRegistered, p.HandleRegistered)
	log.Subscribe(domain.EventPatientEnrolled, p.HandleEnrolled)
	log.Subscribe(domain.EventPatientStatusChanged, p.HandleStatusChanged)
}

// HandleRegistered projects the patient row and its initial history
// entry in one transaction.
func (p *PatientProjector) HandleRegistered(ctx context.Context, event domain.Event) error {
	payload, ok := event.Payload.(domain.PatientRegistered)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	key := event.IdempotencyKey()

	err := p.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := p.processed.Mark(ctx, key, event.Type.String(), p.now().UTC()); err != nil {
			return err
		}
		created, err := p.patients.Create(ctx, &domain.Patient{
			AggregateUUID:   event.AggregateID,
			ScreeningNumber: payload.ScreeningNumber,
			FirstName:       payload.FirstName,
			LastName:        payload.LastName,
			DateOfBirth:     payload.DateOfBirth,
			Status:          domain.PatientStatusRegistered,
			CreatedAt:       payload.RegisteredAt,
		})
		if err != nil {
			return err
		}
		return p.patients.AppendHistory(ctx, &domain.PatientStatusHistory{
			PatientID:      created.ID,
			PreviousStatus: nil,
			NewStatus:      domain.PatientStatusRegistered,
			Reason:         "Patient registered",
			ChangedBy:      payload.RegisteredBy,
			ChangedAt:      payload.RegisteredAt,
			IdempotencyKey: key,
		})
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		p.log.Debug("event already projected, skipping",
			"event_type", event.Type, "idempotency_key", key)
		return nil
	}
	return err
}

// HandleEnrolled projects the enrollment row and moves the patient to
// ENROLLED. The patient row is written by another handler, so it is
// awaited with bounded backoff before the transaction opens.
func (p *PatientProjector) HandleEnrolled(ctx context.Context, event domain.Event) error {
	payload, ok := event.Payload.(domain.PatientEnrolled)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	key := event.IdempotencyKey()

	patient, err := waitFor(ctx, p.sleep, func(ctx context.Context) (*domain.Patient, error) {
		return p.patients.GetByAggregateUUID(ctx, event.AggregateID)
	})
	if err != nil {
		p.log.Warn("patient row not available for enrollment projection",
			"aggregate_id", event.AggregateID, "error", err)
		return err
	}

	err = p.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := p.processed.Mark(ctx, key, event.Type.String(), p.now().UTC()); err != nil {
			return err
		}
		if _, err := p.patients.CreateEnrollment(ctx, &domain.Enrollment{
			PatientID:       patient.ID,
			StudyID:         payload.StudyID,
			SiteID:          payload.SiteID,
			ArmID:           payload.ArmID,
			ScreeningNumber: payload.ScreeningNumber,
			EnrollmentDate:  payload.EnrollmentDate,
			Status:          domain.EnrollmentStatusEnrolled,
			CreatedAt:       event.OccurredAt,
		}); err != nil {
			return err
		}
		if _, err := p.patients.UpdateStatus(ctx, event.AggregateID, domain.PatientStatusEnrolled, event.OccurredAt); err != nil {
			return err
		}
		prev := patient.Status
		return p.patients.AppendHistory(ctx, &domain.PatientStatusHistory{
			PatientID:      patient.ID,
			PreviousStatus: &prev,
			NewStatus:      domain.PatientStatusEnrolled,
			Reason:         fmt.Sprintf("Enrolled in study %d", payload.StudyID),
			ChangedBy:      payload.EnrolledBy,
			ChangedAt:      event.OccurredAt,
			IdempotencyKey: key,
		})
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		p.log.Debug("event already projected, skipping",
			"event_type", event.Type, "idempotency_key", key)
		return nil
	}
	return err
}

// HandleStatusChanged updates the patient row, appends history, derives
// the enrollment status, and triggers visit instantiation exactly on
// the transition into ACTIVE. Scheduler failures are logged, never
// bubbled: the projection itself is already committed.
func (p *PatientProjector) HandleStatusChanged(ctx context.Context, event domain.Event) error {
	payload, ok := event.Payload.(domain.PatientStatusChanged)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	key := event.IdempotencyKey()

	patient, err := waitFor(ctx, p.sleep, func(ctx context.Context) (*domain.Patient, error) {
		return p.patients.GetByAggregateUUID(ctx, event.AggregateID)
	})
	if err != nil {
		return err
	}

	err = p.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := p.processed.Mark(ctx, key, event.Type.String(), p.now().UTC()); err != nil {
			return err
		}
		if _, err := p.patients.UpdateStatus(ctx, event.AggregateID, payload.NewStatus, payload.ChangedAt); err != nil {
			return err
		}
		prev := payload.PreviousStatus
		if err := p.patients.AppendHistory(ctx, &domain.PatientStatusHistory{
			PatientID:      patient.ID,
			PreviousStatus: &prev,
			NewStatus:      payload.NewStatus,
			Reason:         payload.Reason,
			ChangedBy:      payload.ChangedBy,
			ChangedAt:      payload.ChangedAt,
			IdempotencyKey: key,
		}); err != nil {
			return err
		}
		if enrollmentStatus, ok := domain.EnrollmentStatusForPatient(payload.NewStatus); ok {
			if err := p.patients.UpdateEnrollmentStatus(ctx, patient.ID, enrollmentStatus, payload.ChangedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		p.log.Debug("event already projected, skipping",
			"event_type", event.Type, "idempotency_key", key)
		return nil
	}
	if err != nil {
		return err
	}

	if payload.NewStatus == domain.PatientStatusActive && payload.PreviousStatus != domain.PatientStatusActive {
		p.instantiateVisits(ctx, patient)
	}
	return nil
}

// instantiateVisits triggers the scheduler for each of the patient's
// enrollments. Best-effort: the status projection must not be retried
// because a schedule could not be built.
func (p *PatientProjector) instantiateVisits(ctx context.Context, patient *domain.Patient) {
	enrollments, err := p.patients.ListEnrollmentsByPatient(ctx, patient.ID)
	if err != nil {
		p.log.Error("failed to list enrollments for visit instantiation",
			"patient_id", patient.ID, "error", err)
		return
	}
	for _, e := range enrollments {
		if _, err := p.visits.Instantiate(ctx, scheduler.InstantiateInput{
			PatientID:    patient.ID,
			StudyID:      e.StudyID,
			SiteID:       e.SiteID,
			ArmID:        e.ArmID,
			BaselineDate: e.EnrollmentDate,
		}); err != nil {
			p.log.Error("visit instantiation failed",
				"patient_id", patient.ID, "study_id", e.StudyID, "error", err)
		}
	}
}
