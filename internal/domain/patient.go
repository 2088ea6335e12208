package domain

import (
	"time"

	"github.com/google/uuid"
)

// Patient is the relational read-model row for a patient. It is created
// and updated exclusively by the patient projector; callers read it
// through repositories, never through aggregate state.
type Patient struct {
	ID              int64
	AggregateUUID   uuid.UUID
	ScreeningNumber string
	FirstName       string
	LastName        string
	DateOfBirth     time.Time
	Status          PatientStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Age returns the patient's age in full years at the given time.
func (p Patient) Age(now time.Time) int {
	years := now.Year() - p.DateOfBirth.Year()
	anniversary := p.DateOfBirth.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	return years
}

// PatientStatusHistory is an append-only audit row for one lifecycle
// transition. The newest row by ChangedAt is authoritative for the
// current status; no two rows share an idempotency key.
type PatientStatusHistory struct {
	ID             int64
	PatientID      int64
	PreviousStatus *PatientStatus
	NewStatus      PatientStatus
	Reason         string
	ChangedBy      int64
	ChangedAt      time.Time
	IdempotencyKey uuid.UUID
}

// Enrollment is the read-model row linking a patient to a study and
// site. Its status is always derived from the patient status via
// EnrollmentStatusForPatient.
type Enrollment struct {
	ID              int64
	PatientID       int64
	StudyID         int64
	SiteID          int64
	ArmID           *int64
	ScreeningNumber string
	EnrollmentDate  time.Time
	Status          EnrollmentStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
