package domain

import (
	"time"

	"github.com/google/uuid"
)

// DatabaseBuild is the read-model row for a study database build.
// At most one non-terminal build may exist per study at any time.
type DatabaseBuild struct {
	ID               int64
	AggregateUUID    uuid.UUID
	BuildRequestID   string
	StudyID          int64
	StudyName        string
	Status           BuildStatus
	RequestedBy      int64
	BuildStartTime   *time.Time
	BuildEndTime     *time.Time
	TablesCreated    int
	FormsConfigured  int
	ValidationRules  int
	ErrorMessage     *string
	CancellationNote *string
	ValidatedAt      *time.Time
	IsValid          *bool
	ValidationErrors []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// InProgress reports whether the build occupies the per-study
// single-active-build slot.
func (b DatabaseBuild) InProgress() bool {
	return b.Status == BuildStatusRequested || b.Status == BuildStatusInProgress
}
