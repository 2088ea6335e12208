package domain

// patientTransitions is the single source of truth for the patient
// lifecycle. Both command validation and the "valid next statuses"
// query read from this table. WITHDRAWN is reachable from every
// non-terminal state; terminal states have no entries.
var patientTransitions = map[PatientStatus][]PatientStatus{
	PatientStatusRegistered: {PatientStatusScreening, PatientStatusWithdrawn},
	PatientStatusScreening:  {PatientStatusEnrolled, PatientStatusWithdrawn},
	PatientStatusEnrolled:   {PatientStatusActive, PatientStatusWithdrawn},
	PatientStatusActive:     {PatientStatusCompleted, PatientStatusWithdrawn},
	PatientStatusCompleted:  nil,
	PatientStatusWithdrawn:  nil,
}

// buildTransitions is the allowed-transition table for database builds.
var buildTransitions = map[BuildStatus][]BuildStatus{
	BuildStatusRequested:  {BuildStatusInProgress, BuildStatusCancelled},
	BuildStatusInProgress: {BuildStatusCompleted, BuildStatusFailed, BuildStatusCancelled},
	BuildStatusCompleted:  nil,
	BuildStatusFailed:     nil,
	BuildStatusCancelled:  nil,
}

// CanTransitionPatient reports whether the patient lifecycle allows
// moving from one status to another.
func CanTransitionPatient(from, to PatientStatus) bool {
	for _, next := range patientTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidNextPatientStatuses returns the statuses reachable from the given
// one. Returns an empty slice for terminal states.
func ValidNextPatientStatuses(from PatientStatus) []PatientStatus {
	next := patientTransitions[from]
	out := make([]PatientStatus, len(next))
	copy(out, next)
	return out
}

// IsTerminalPatientStatus reports whether the status accepts no further
// transitions.
func IsTerminalPatientStatus(s PatientStatus) bool {
	return s.IsValid() && len(patientTransitions[s]) == 0
}

// CanTransitionBuild reports whether the build lifecycle allows moving
// from one status to another.
func CanTransitionBuild(from, to BuildStatus) bool {
	for _, next := range buildTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalBuildStatus reports whether the build status accepts no
// further transitions.
func IsTerminalBuildStatus(s BuildStatus) bool {
	return s.IsValid() && len(buildTransitions[s]) == 0
}

// EnrollmentStatusForPatient maps a patient status to the enrollment
// view. Not every patient status has an enrollment equivalent: a
// patient that is merely registered or in screening has no enrollment
// row yet, so the second return value is false for those.
func EnrollmentStatusForPatient(s PatientStatus) (EnrollmentStatus, bool) {
	switch s {
	case PatientStatusEnrolled, PatientStatusActive, PatientStatusCompleted:
		return EnrollmentStatusEnrolled, true
	case PatientStatusWithdrawn:
		return EnrollmentStatusIneligible, true
	case PatientStatusRegistered, PatientStatusScreening:
		return "", false
	}
	return "", false
}
