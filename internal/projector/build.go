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
)

type buildWriteStore interface {
	ApplyRequested(ctx context.Context, b *domain.DatabaseBuild) (*domain.DatabaseBuild, error)
	ApplyStarted(ctx context.Context, aggregateUUID uuid.UUID, at time.Time) (*domain.DatabaseBuild, error)
	ApplyCompleted(ctx context.Context, aggregateUUID uuid.UUID, at time.Time, tables, forms, rules int) (*domain.DatabaseBuild, error)
	ApplyFailed(ctx context.Context, aggregateUUID uuid.UUID, at time.Time, errorMessage string) (*domain.DatabaseBuild, error)
	ApplyCancelled(ctx context.Context, aggregateUUID uuid.UUID, at time.Time, reason string) (*domain.DatabaseBuild, error)
	ApplyValidated(ctx context.Context, aggregateUUID uuid.UUID, at time.Time, isValid bool, validationErrors []string) (*domain.DatabaseBuild, error)
}

// BuildProjector maintains the study database build read model. The
// requested handler upserts so a seed row left by the consistency
// bridge is absorbed instead of duplicated.
type BuildProjector struct {
	builds    buildWriteStore
	processed processedStore
	tx        txManager
	log       *slog.Logger
	now       func() time.Time
}

// NewBuildProjector creates a BuildProjector.
func NewBuildProjector(builds buildWriteStore, processed processedStore, tx txManager, log *slog.Logger) *BuildProjector {
	return &BuildProjector{
		builds:    builds,
		processed: processed,
		tx:        tx,
		log:       log,
		now:       time.Now,
	}
}

// Register subscribes the projector's handlers. Must run before the
// first event is appended.
func (p *BuildProjector) Register(log eventlog.Log) {
	log.Subscribe(domain.EventBuildRequested, p.HandleRequested)
	log.Subscribe(domain.EventBuildStarted, p.HandleStarted)
	log.Subscribe(domain.EventBuildCompleted, p.HandleCompleted)
	log.Subscribe(domain.EventBuildFailed, p.HandleFailed)
	log.Subscribe(domain.EventBuildCancelled, p.HandleCancelled)
	log.Subscribe(domain.EventBuildValidated, p.HandleValidated)
}

// apply wraps the common handler shape: mark the idempotency key and
// run the write in one transaction, treating a duplicate key as an
// already-applied event.
func (p *BuildProjector) apply(ctx context.Context, event domain.Event, write func(ctx context.Context) error) error {
	key := event.IdempotencyKey()
	err := p.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := p.processed.Mark(ctx, key, event.Type.String(), p.now().UTC()); err != nil {
			return err
		}
		return write(ctx)
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		p.log.Debug("event already projected, skipping",
			"event_type", event.Type, "idempotency_key", key)
		return nil
	}
	return err
}

// HandleRequested projects the build row, absorbing a bridge seed.
func (p *BuildProjector) HandleRequested(ctx context.Context, event domain.Event) error {
	payload, ok := event.Payload.(domain.BuildRequested)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	return p.apply(ctx, event, func(ctx context.Context) error {
		_, err := p.builds.ApplyRequested(ctx, &domain.DatabaseBuild{
			AggregateUUID:  event.AggregateID,
			BuildRequestID: payload.BuildRequestID,
			StudyID:        payload.StudyID,
			StudyName:      payload.StudyName,
			Status:         domain.BuildStatusRequested,
			RequestedBy:    payload.RequestedBy,
			CreatedAt:      payload.RequestedAt,
		})
		return err
	})
}

// HandleStarted projects the transition to IN_PROGRESS.
func (p *BuildProjector) HandleStarted(ctx context.Context, event domain.Event) error {
	payload, ok := event.Payload.(domain.BuildStarted)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	return p.apply(ctx, event, func(ctx context.Context) error {
		_, err := p.builds.ApplyStarted(ctx, event.AggregateID, payload.StartedAt)
		return err
	})
}

// HandleCompleted projects the final counters of a successful build.
func (p *BuildProjector) HandleCompleted(ctx context.Context, event domain.Event) error {
	payload, ok := event.Payload.(domain.BuildCompleted)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	return p.apply(ctx, event, func(ctx context.Context) error {
		_, err := p.builds.ApplyCompleted(ctx, event.AggregateID, payload.CompletedAt,
			payload.TablesCreated, payload.FormsConfigured, payload.ValidationRulesSetup)
		return err
	})
}

// HandleFailed projects a failed build.
func (p *BuildProjector) HandleFailed(ctx context.Context, event domain.Event) error {
	payload, ok := event.Payload.(domain.BuildFailed)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	return p.apply(ctx, event, func(ctx context.Context) error {
		_, err := p.builds.ApplyFailed(ctx, event.AggregateID, payload.FailedAt, payload.ErrorMessage)
		return err
	})
}

// HandleCancelled projects a cancelled build.
func (p *BuildProjector) HandleCancelled(ctx context.Context, event domain.Event) error {
	payload, ok := event.Payload.(domain.BuildCancelled)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	return p.apply(ctx, event, func(ctx context.Context) error {
		_, err := p.builds.ApplyCancelled(ctx, event.AggregateID, payload.CancelledAt, payload.Reason)
		return err
	})
}

// HandleValidated projects the validation outcome without touching the
// build status.
func (p *BuildProjector) HandleValidated(ctx context.Context, event domain.Event) error {
	payload, ok := event.Payload.(domain.BuildValidated)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	return p.apply(ctx, event, func(ctx context.Context) error {
		_, err := p.builds.ApplyValidated(ctx, event.AggregateID, payload.ValidatedAt, payload.IsValid, payload.ValidationErrors)
		return err
	})
}
