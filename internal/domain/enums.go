package domain

// PatientStatus represents a patient's position in the study lifecycle.
type PatientStatus string

const (
	PatientStatusRegistered PatientStatus = "REGISTERED"
	PatientStatusScreening  PatientStatus = "SCREENING"
	PatientStatusEnrolled   PatientStatus = "ENROLLED"
	PatientStatusActive     PatientStatus = "ACTIVE"
	PatientStatusCompleted  PatientStatus = "COMPLETED"
	PatientStatusWithdrawn  PatientStatus = "WITHDRAWN"
)

func (s PatientStatus) String() string { return string(s) }

func (s PatientStatus) IsValid() bool {
	switch s {
	case PatientStatusRegistered, PatientStatusScreening, PatientStatusEnrolled,
		PatientStatusActive, PatientStatusCompleted, PatientStatusWithdrawn:
		return true
	}
	return false
}

// BuildStatus represents the state of a study database build.
type BuildStatus string

const (
	BuildStatusRequested  BuildStatus = "REQUESTED"
	BuildStatusInProgress BuildStatus = "IN_PROGRESS"
	BuildStatusCompleted  BuildStatus = "COMPLETED"
	BuildStatusFailed     BuildStatus = "FAILED"
	BuildStatusCancelled  BuildStatus = "CANCELLED"
)

func (s BuildStatus) String() string { return string(s) }

func (s BuildStatus) IsValid() bool {
	switch s {
	case BuildStatusRequested, BuildStatusInProgress, BuildStatusCompleted,
		BuildStatusFailed, BuildStatusCancelled:
		return true
	}
	return false
}

// EnrollmentStatus represents the enrollment view of a patient.
// It is derived from PatientStatus, never set independently.
type EnrollmentStatus string

const (
	EnrollmentStatusEnrolled   EnrollmentStatus = "ENROLLED"
	EnrollmentStatusIneligible EnrollmentStatus = "INELIGIBLE"
)

func (s EnrollmentStatus) String() string { return string(s) }

func (s EnrollmentStatus) IsValid() bool {
	switch s {
	case EnrollmentStatusEnrolled, EnrollmentStatusIneligible:
		return true
	}
	return false
}

// VisitStatus represents the state of a patient visit instance.
type VisitStatus string

const (
	VisitStatusScheduled VisitStatus = "SCHEDULED"
	VisitStatusCompleted VisitStatus = "COMPLETED"
	VisitStatusMissed    VisitStatus = "MISSED"
	VisitStatusCancelled VisitStatus = "CANCELLED"
)

func (s VisitStatus) String() string { return string(s) }

func (s VisitStatus) IsValid() bool {
	switch s {
	case VisitStatusScheduled, VisitStatusCompleted, VisitStatusMissed, VisitStatusCancelled:
		return true
	}
	return false
}
