package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of domain event.
type EventType string

const (
	EventPatientRegistered    EventType = "PATIENT_REGISTERED"
	EventPatientEnrolled      EventType = "PATIENT_ENROLLED"
	EventPatientStatusChanged EventType = "PATIENT_STATUS_CHANGED"
	EventBuildRequested       EventType = "BUILD_REQUESTED"
	EventBuildStarted         EventType = "BUILD_STARTED"
	EventBuildCompleted       EventType = "BUILD_COMPLETED"
	EventBuildFailed          EventType = "BUILD_FAILED"
	EventBuildCancelled       EventType = "BUILD_CANCELLED"
	EventBuildValidated       EventType = "BUILD_VALIDATED"
)

func (t EventType) String() string { return string(t) }

// keyNamespace is the fixed namespace for deterministic idempotency keys.
// Changing it invalidates every stored key, so it never changes.
var keyNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// deterministicKey derives a v5 UUID from the semantic fields of an
// event. Replays of the same logical event produce the same key.
func deterministicKey(parts ...string) uuid.UUID {
	composite := ""
	for i, p := range parts {
		if i > 0 {
			composite += "|"
		}
		composite += p
	}
	return uuid.NewSHA1(keyNamespace, []byte(composite))
}

// Payload is the typed body of a domain event. Every payload derives a
// deterministic idempotency key from its semantically meaningful fields;
// wall-clock fields participate only when they are part of the business
// identity of the event (e.g. the recorded time of a status change).
type Payload interface {
	EventType() EventType
	IdempotencyKey(aggregateID uuid.UUID) uuid.UUID
}

// Event is an immutable fact appended to a per-aggregate stream.
type Event struct {
	AggregateID uuid.UUID
	Type        EventType
	Payload     Payload
	OccurredAt  time.Time
}

// IdempotencyKey derives the event's deterministic idempotency key.
func (e Event) IdempotencyKey() uuid.UUID {
	return e.Payload.IdempotencyKey(e.AggregateID)
}

// NewEvent wraps a payload in an Event envelope.
func NewEvent(aggregateID uuid.UUID, payload Payload, occurredAt time.Time) Event {
	return Event{
		AggregateID: aggregateID,
		Type:        payload.EventType(),
		Payload:     payload,
		OccurredAt:  occurredAt,
	}
}

// ---------------------------------------------------------------------------
// Patient events
// ---------------------------------------------------------------------------

// PatientRegistered is emitted when a new patient enters the system.
type PatientRegistered struct {
	ScreeningNumber string
	FirstName       string
	LastName        string
	DateOfBirth     time.Time
	RegisteredBy    int64
	RegisteredAt    time.Time
}

func (PatientRegistered) EventType() EventType { return EventPatientRegistered }

func (p PatientRegistered) IdempotencyKey(aggregateID uuid.UUID) uuid.UUID {
	return deterministicKey(
		string(EventPatientRegistered),
		aggregateID.String(),
		p.ScreeningNumber,
		fmt.Sprintf("%d", p.RegisteredBy),
	)
}

// PatientEnrolled is emitted when a patient is enrolled into a study.
type PatientEnrolled struct {
	StudyID         int64
	SiteID          int64
	ArmID           *int64
	ScreeningNumber string
	EnrollmentDate  time.Time
	EnrolledBy      int64
}

func (PatientEnrolled) EventType() EventType { return EventPatientEnrolled }

func (p PatientEnrolled) IdempotencyKey(aggregateID uuid.UUID) uuid.UUID {
	return deterministicKey(
		string(EventPatientEnrolled),
		aggregateID.String(),
		fmt.Sprintf("%d", p.StudyID),
		fmt.Sprintf("%d", p.SiteID),
		p.EnrollmentDate.Format("2006-01-02"),
	)
}

// PatientStatusChanged is emitted for every lifecycle transition.
type PatientStatusChanged struct {
	PreviousStatus PatientStatus
	NewStatus      PatientStatus
	Reason         string
	ChangedBy      int64
	ChangedAt      time.Time
}

func (PatientStatusChanged) EventType() EventType { return EventPatientStatusChanged }

func (p PatientStatusChanged) IdempotencyKey(aggregateID uuid.UUID) uuid.UUID {
	// ChangedAt is part of the business identity of a status change:
	// the same transition recorded at two different times is two changes.
	return deterministicKey(
		string(EventPatientStatusChanged),
		aggregateID.String(),
		string(p.PreviousStatus),
		string(p.NewStatus),
		fmt.Sprintf("%d", p.ChangedBy),
		p.ChangedAt.UTC().Format(time.RFC3339Nano),
	)
}

// ---------------------------------------------------------------------------
// Study database build events
// ---------------------------------------------------------------------------

// BuildRequested is emitted when a study database build is accepted.
type BuildRequested struct {
	BuildRequestID string
	StudyID        int64
	StudyName      string
	RequestedBy    int64
	RequestedAt    time.Time
}

func (BuildRequested) EventType() EventType { return EventBuildRequested }

func (b BuildRequested) IdempotencyKey(aggregateID uuid.UUID) uuid.UUID {
	return deterministicKey(
		string(EventBuildRequested),
		aggregateID.String(),
		b.BuildRequestID,
		fmt.Sprintf("%d", b.StudyID),
	)
}

// BuildStarted marks the transition from REQUESTED to IN_PROGRESS.
type BuildStarted struct {
	StartedAt time.Time
}

func (BuildStarted) EventType() EventType { return EventBuildStarted }

func (b BuildStarted) IdempotencyKey(aggregateID uuid.UUID) uuid.UUID {
	return deterministicKey(string(EventBuildStarted), aggregateID.String())
}

// BuildCompleted marks a successful build with its artifact counters.
type BuildCompleted struct {
	TablesCreated        int
	FormsConfigured      int
	ValidationRulesSetup int
	CompletedAt          time.Time
}

func (BuildCompleted) EventType() EventType { return EventBuildCompleted }

func (b BuildCompleted) IdempotencyKey(aggregateID uuid.UUID) uuid.UUID {
	return deterministicKey(string(EventBuildCompleted), aggregateID.String())
}

// BuildFailed marks a failed build.
type BuildFailed struct {
	ErrorMessage string
	FailedAt     time.Time
}

func (BuildFailed) EventType() EventType { return EventBuildFailed }

func (b BuildFailed) IdempotencyKey(aggregateID uuid.UUID) uuid.UUID {
	return deterministicKey(string(EventBuildFailed), aggregateID.String())
}

// BuildCancelled marks a user-initiated cancellation.
type BuildCancelled struct {
	Reason      string
	CancelledBy int64
	CancelledAt time.Time
}

func (BuildCancelled) EventType() EventType { return EventBuildCancelled }

func (b BuildCancelled) IdempotencyKey(aggregateID uuid.UUID) uuid.UUID {
	return deterministicKey(
		string(EventBuildCancelled),
		aggregateID.String(),
		fmt.Sprintf("%d", b.CancelledBy),
	)
}

// BuildValidated records the outcome of a post-build validation pass.
// It does not change the build status.
type BuildValidated struct {
	IsValid          bool
	ValidationErrors []string
	ValidatedAt      time.Time
}

func (BuildValidated) EventType() EventType { return EventBuildValidated }

func (b BuildValidated) IdempotencyKey(aggregateID uuid.UUID) uuid.UUID {
	return deterministicKey(
		string(EventBuildValidated),
		aggregateID.String(),
		b.ValidatedAt.UTC().Format(time.RFC3339Nano),
	)
}
