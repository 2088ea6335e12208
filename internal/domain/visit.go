package domain

import (
	"time"
)

// VisitDefinition is a protocol template row created during study
// design. TimepointDays is the offset from the baseline date: negative
// for screening visits, zero for baseline, positive for follow-ups.
type VisitDefinition struct {
	ID             int64
	StudyID        int64
	ArmID          *int64
	Name           string
	TimepointDays  int
	WindowBefore   int
	WindowAfter    int
	IsRequired     bool
	IsUnscheduled  bool
	SequenceNumber int
}

// VisitInstance is a patient-specific visit created once by the
// protocol visit scheduler. VisitDefinitionID is nil for ad-hoc
// unscheduled visits.
type VisitInstance struct {
	ID                int64
	PatientID         int64
	StudyID           int64
	SiteID            int64
	VisitDefinitionID *int64
	BuildID           int64
	VisitDate         time.Time
	WindowStart       time.Time
	WindowEnd         time.Time
	Status            VisitStatus
	CreatedAt         time.Time
}
