package command

import (
	"time"

	"github.com/google/uuid"

	"github.com/sarkarn/clinprecision-sub002/internal/domain"
)

// buildAggregate is the decision state for one study database build.
type buildAggregate struct {
	id      uuid.UUID
	exists  bool
	status  domain.BuildStatus
	studyID int64
}

func rehydrateBuild(id uuid.UUID, events []domain.Event) *buildAggregate {
	agg := &buildAggregate{id: id}
	for _, ev := range events {
		agg.apply(ev)
	}
	return agg
}

func (a *buildAggregate) apply(ev domain.Event) {
	switch payload := ev.Payload.(type) {
	case domain.BuildRequested:
		a.exists = true
		a.status = domain.BuildStatusRequested
		a.studyID = payload.StudyID
	case domain.BuildStarted:
		a.status = domain.BuildStatusInProgress
	case domain.BuildCompleted:
		a.status = domain.BuildStatusCompleted
	case domain.BuildFailed:
		a.status = domain.BuildStatusFailed
	case domain.BuildCancelled:
		a.status = domain.BuildStatusCancelled
	}
}

func (a *buildAggregate) decideRequest(cmd RequestStudyDatabaseBuild, now time.Time) (domain.Event, error) {
	if a.exists {
		return domain.Event{}, domain.NewConflictError("build", a.status.String(), "request")
	}

	return domain.NewEvent(a.id, domain.BuildRequested{
		BuildRequestID: cmd.BuildRequestID,
		StudyID:        cmd.StudyID,
		StudyName:      cmd.StudyName,
		RequestedBy:    cmd.RequestedBy,
		RequestedAt:    now,
	}, now), nil
}

func (a *buildAggregate) decideStart(_ StartStudyDatabaseBuild, now time.Time) (domain.Event, error) {
	if !a.exists {
		return domain.Event{}, domain.ErrNotFound
	}
	if !domain.CanTransitionBuild(a.status, domain.BuildStatusInProgress) {
		return domain.Event{}, domain.NewConflictError("build", a.status.String(), "start")
	}

	return domain.NewEvent(a.id, domain.BuildStarted{StartedAt: now}, now), nil
}

func (a *buildAggregate) decideComplete(cmd CompleteStudyDatabaseBuild, now time.Time) (domain.Event, error) {
	if !a.exists {
		return domain.Event{}, domain.ErrNotFound
	}
	if !domain.CanTransitionBuild(a.status, domain.BuildStatusCompleted) {
		return domain.Event{}, domain.NewConflictError("build", a.status.String(), "complete")
	}

	return domain.NewEvent(a.id, domain.BuildCompleted{
		TablesCreated:        cmd.TablesCreated,
		FormsConfigured:      cmd.FormsConfigured,
		ValidationRulesSetup: cmd.ValidationRulesSetup,
		CompletedAt:          now,
	}, now), nil
}

func (a *buildAggregate) decideFail(cmd FailStudyDatabaseBuild, now time.Time) (domain.Event, error) {
	if !a.exists {
		return domain.Event{}, domain.ErrNotFound
	}
	if !domain.CanTransitionBuild(a.status, domain.BuildStatusFailed) {
		return domain.Event{}, domain.NewConflictError("build", a.status.String(), "fail")
	}

	return domain.NewEvent(a.id, domain.BuildFailed{
		ErrorMessage: cmd.ErrorMessage,
		FailedAt:     now,
	}, now), nil
}

func (a *buildAggregate) decideCancel(cmd CancelStudyDatabaseBuild, now time.Time) (domain.Event, error) {
	if !a.exists {
		return domain.Event{}, domain.ErrNotFound
	}
	if !domain.CanTransitionBuild(a.status, domain.BuildStatusCancelled) {
		return domain.Event{}, domain.NewConflictError("build", a.status.String(), "cancel")
	}

	return domain.NewEvent(a.id, domain.BuildCancelled{
		Reason:      cmd.Reason,
		CancelledBy: cmd.CancelledBy,
		CancelledAt: now,
	}, now), nil
}

func (a *buildAggregate) decideValidate(cmd ValidateStudyDatabaseBuild, now time.Time) (domain.Event, error) {
	if !a.exists {
		return domain.Event{}, domain.ErrNotFound
	}
	// Validation runs against a build that is materializing or done,
	// never against one that was abandoned.
	if a.status != domain.BuildStatusInProgress && a.status != domain.BuildStatusCompleted {
		return domain.Event{}, domain.NewConflictError("build", a.status.String(), "validate")
	}

	return domain.NewEvent(a.id, domain.BuildValidated{
		IsValid:          cmd.IsValid,
		ValidationErrors: cmd.ValidationErrors,
		ValidatedAt:      now,
	}, now), nil
}
