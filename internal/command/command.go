// Package command implements the write path of the pipeline: command
// contracts, event-sourced aggregates, and the dispatcher that
// serializes commands per aggregate.
package command

import (
	"time"

	"github.com/google/uuid"

	"github.com/sarkarn/clinprecision-sub002/internal/domain"
)

// Command is an intent to change one aggregate's state. Validate covers
// input shape only; business rules live in the aggregates.
type Command interface {
	AggregateID() uuid.UUID
	Validate() error
}

// Outcome reports an accepted command: the event that was emitted and
// its deterministic idempotency key, which callers can correlate with
// the read model.
type Outcome struct {
	AggregateID    uuid.UUID
	EventType      domain.EventType
	IdempotencyKey uuid.UUID
}

// ---------------------------------------------------------------------------
// Patient commands
// ---------------------------------------------------------------------------

// RegisterPatient registers a new patient aggregate.
type RegisterPatient struct {
	PatientID       uuid.UUID
	ScreeningNumber string
	FirstName       string
	LastName        string
	DateOfBirth     time.Time
	RegisteredBy    int64
}

func (c RegisterPatient) AggregateID() uuid.UUID { return c.PatientID }

func (c RegisterPatient) Validate() error {
	var errs []domain.FieldError
	if c.PatientID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "patientId", Message: "is required"})
	}
	if c.ScreeningNumber == "" {
		errs = append(errs, domain.FieldError{Field: "screeningNumber", Message: "is required"})
	}
	if c.FirstName == "" {
		errs = append(errs, domain.FieldError{Field: "firstName", Message: "is required"})
	}
	if c.LastName == "" {
		errs = append(errs, domain.FieldError{Field: "lastName", Message: "is required"})
	}
	if c.DateOfBirth.IsZero() {
		errs = append(errs, domain.FieldError{Field: "dateOfBirth", Message: "is required"})
	}
	if c.RegisteredBy <= 0 {
		errs = append(errs, domain.FieldError{Field: "registeredBy", Message: "is required"})
	}
	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}

// EnrollPatient enrolls a registered or screening patient into a study.
type EnrollPatient struct {
	PatientID      uuid.UUID
	StudyID        int64
	SiteID         int64
	ArmID          *int64
	EnrollmentDate time.Time
	EnrolledBy     int64
}

func (c EnrollPatient) AggregateID() uuid.UUID { return c.PatientID }

func (c EnrollPatient) Validate() error {
	var errs []domain.FieldError
	if c.PatientID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "patientId", Message: "is required"})
	}
	if c.StudyID <= 0 {
		errs = append(errs, domain.FieldError{Field: "studyId", Message: "is required"})
	}
	if c.SiteID <= 0 {
		errs = append(errs, domain.FieldError{Field: "siteId", Message: "is required"})
	}
	if c.EnrollmentDate.IsZero() {
		errs = append(errs, domain.FieldError{Field: "enrollmentDate", Message: "is required"})
	}
	if c.EnrolledBy <= 0 {
		errs = append(errs, domain.FieldError{Field: "enrolledBy", Message: "is required"})
	}
	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}

// ChangePatientStatus moves a patient along the lifecycle.
type ChangePatientStatus struct {
	PatientID uuid.UUID
	NewStatus domain.PatientStatus
	Reason    string
	ChangedBy int64
}

func (c ChangePatientStatus) AggregateID() uuid.UUID { return c.PatientID }

func (c ChangePatientStatus) Validate() error {
	var errs []domain.FieldError
	if c.PatientID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "patientId", Message: "is required"})
	}
	if !c.NewStatus.IsValid() {
		errs = append(errs, domain.FieldError{Field: "newStatus", Message: "is not a valid patient status"})
	}
	if c.NewStatus == domain.PatientStatusWithdrawn && c.Reason == "" {
		errs = append(errs, domain.FieldError{Field: "reason", Message: "is required when withdrawing"})
	}
	if c.ChangedBy <= 0 {
		errs = append(errs, domain.FieldError{Field: "changedBy", Message: "is required"})
	}
	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Study database build commands
// ---------------------------------------------------------------------------

// RequestStudyDatabaseBuild starts a new build aggregate for a study.
type RequestStudyDatabaseBuild struct {
	BuildID        uuid.UUID
	BuildRequestID string
	StudyID        int64
	StudyName      string
	RequestedBy    int64
}

func (c RequestStudyDatabaseBuild) AggregateID() uuid.UUID { return c.BuildID }

func (c RequestStudyDatabaseBuild) Validate() error {
	var errs []domain.FieldError
	if c.BuildID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "buildId", Message: "is required"})
	}
	if c.BuildRequestID == "" {
		errs = append(errs, domain.FieldError{Field: "buildRequestId", Message: "is required"})
	}
	if c.StudyID <= 0 {
		errs = append(errs, domain.FieldError{Field: "studyId", Message: "is required"})
	}
	if c.RequestedBy <= 0 {
		errs = append(errs, domain.FieldError{Field: "requestedBy", Message: "is required"})
	}
	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}

// StartStudyDatabaseBuild moves a requested build to IN_PROGRESS.
type StartStudyDatabaseBuild struct {
	BuildID uuid.UUID
}

func (c StartStudyDatabaseBuild) AggregateID() uuid.UUID { return c.BuildID }

func (c StartStudyDatabaseBuild) Validate() error {
	if c.BuildID == uuid.Nil {
		return domain.NewValidationError("buildId", "is required")
	}
	return nil
}

// CompleteStudyDatabaseBuild finishes an in-progress build.
type CompleteStudyDatabaseBuild struct {
	BuildID              uuid.UUID
	TablesCreated        int
	FormsConfigured      int
	ValidationRulesSetup int
}

func (c CompleteStudyDatabaseBuild) AggregateID() uuid.UUID { return c.BuildID }

func (c CompleteStudyDatabaseBuild) Validate() error {
	var errs []domain.FieldError
	if c.BuildID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "buildId", Message: "is required"})
	}
	if c.TablesCreated < 0 || c.FormsConfigured < 0 || c.ValidationRulesSetup < 0 {
		errs = append(errs, domain.FieldError{Field: "counters", Message: "must not be negative"})
	}
	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}

// FailStudyDatabaseBuild marks an in-progress build as failed.
type FailStudyDatabaseBuild struct {
	BuildID      uuid.UUID
	ErrorMessage string
}

func (c FailStudyDatabaseBuild) AggregateID() uuid.UUID { return c.BuildID }

func (c FailStudyDatabaseBuild) Validate() error {
	var errs []domain.FieldError
	if c.BuildID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "buildId", Message: "is required"})
	}
	if c.ErrorMessage == "" {
		errs = append(errs, domain.FieldError{Field: "errorMessage", Message: "is required"})
	}
	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}

// CancelStudyDatabaseBuild cancels a build that has not finished yet.
type CancelStudyDatabaseBuild struct {
	BuildID     uuid.UUID
	Reason      string
	CancelledBy int64
}

func (c CancelStudyDatabaseBuild) AggregateID() uuid.UUID { return c.BuildID }

func (c CancelStudyDatabaseBuild) Validate() error {
	var errs []domain.FieldError
	if c.BuildID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "buildId", Message: "is required"})
	}
	if c.Reason == "" {
		errs = append(errs, domain.FieldError{Field: "reason", Message: "is required"})
	}
	if c.CancelledBy <= 0 {
		errs = append(errs, domain.FieldError{Field: "cancelledBy", Message: "is required"})
	}
	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}

// ValidateStudyDatabaseBuild runs a validation pass over a build that
// is in progress or completed.
type ValidateStudyDatabaseBuild struct {
	BuildID          uuid.UUID
	IsValid          bool
	ValidationErrors []string
}

func (c ValidateStudyDatabaseBuild) AggregateID() uuid.UUID { return c.BuildID }

func (c ValidateStudyDatabaseBuild) Validate() error {
	if c.BuildID == uuid.Nil {
		return domain.NewValidationError("buildId", "is required")
	}
	return nil
}
