package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sarkarn/clinprecision-sub002/internal/domain"
	"github.com/sarkarn/clinprecision-sub002/internal/eventlog"
)

// buildGuard checks the one-in-progress-build-per-study invariant
// against the read model. The build aggregate alone cannot see sibling
// aggregates, so the guard runs before the aggregate decides.
type buildGuard interface {
	ExistsInProgress(ctx context.Context, studyID int64) (bool, error)
}

// Dispatcher routes commands to their aggregates. Commands addressed to
// the same aggregate are strictly serialized; commands to different
// aggregates proceed concurrently. Submit does not wait for the read
// model; that is the consistency bridge's job.
type Dispatcher struct {
	log    *slog.Logger
	events eventlog.Log
	builds buildGuard
	now    func() time.Time

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(log *slog.Logger, events eventlog.Log, builds buildGuard) *Dispatcher {
	return &Dispatcher{
		log:    log,
		events: events,
		builds: builds,
		now:    time.Now,
		locks:  make(map[uuid.UUID]*sync.Mutex),
	}
}

// Submit validates and executes one command: rehydrate the target
// aggregate from its stream, decide, append the emitted event. The
// caller's context bounds the whole call; cancellation between decide
// and append aborts without emitting.
func (d *Dispatcher) Submit(ctx context.Context, cmd Command) (Outcome, error) {
	if err := cmd.Validate(); err != nil {
		return Outcome{}, err
	}

	lock := d.lockFor(cmd.AggregateID())
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	event, err := d.decide(ctx, cmd)
	if err != nil {
		return Outcome{}, err
	}

	if err := d.events.Append(ctx, event); err != nil {
		return Outcome{}, fmt.Errorf("append %s: %w", event.Type, err)
	}

	d.log.Info("command accepted",
		slog.String("aggregate_id", event.AggregateID.String()),
		slog.String("event_type", event.Type.String()),
	)

	return Outcome{
		AggregateID:    event.AggregateID,
		EventType:      event.Type,
		IdempotencyKey: event.IdempotencyKey(),
	}, nil
}

func (d *Dispatcher) decide(ctx context.Context, cmd Command) (domain.Event, error) {
	stream, err := d.events.ReadStream(ctx, cmd.AggregateID())
	if err != nil {
		return domain.Event{}, fmt.Errorf("read stream %s: %w", cmd.AggregateID(), err)
	}
	now := d.now()

	switch cmd := cmd.(type) {
	case RegisterPatient:
		return rehydratePatient(cmd.PatientID, stream).decideRegister(cmd, now)
	case EnrollPatient:
		return rehydratePatient(cmd.PatientID, stream).decideEnroll(cmd, now)
	case ChangePatientStatus:
		return rehydratePatient(cmd.PatientID, stream).decideChangeStatus(cmd, now)
	case RequestStudyDatabaseBuild:
		if err := d.checkNoActiveBuild(ctx, cmd.StudyID); err != nil {
			return domain.Event{}, err
		}
		return rehydrateBuild(cmd.BuildID, stream).decideRequest(cmd, now)
	case StartStudyDatabaseBuild:
		return rehydrateBuild(cmd.BuildID, stream).decideStart(cmd, now)
	case CompleteStudyDatabaseBuild:
		return rehydrateBuild(cmd.BuildID, stream).decideComplete(cmd, now)
	case FailStudyDatabaseBuild:
		return rehydrateBuild(cmd.BuildID, stream).decideFail(cmd, now)
	case CancelStudyDatabaseBuild:
		return rehydrateBuild(cmd.BuildID, stream).decideCancel(cmd, now)
	case ValidateStudyDatabaseBuild:
		return rehydrateBuild(cmd.BuildID, stream).decideValidate(cmd, now)
	default:
		return domain.Event{}, fmt.Errorf("unknown command type %T: %w", cmd, domain.ErrValidation)
	}
}

func (d *Dispatcher) checkNoActiveBuild(ctx context.Context, studyID int64) error {
	active, err := d.builds.ExistsInProgress(ctx, studyID)
	if err != nil {
		return fmt.Errorf("check active build for study %d: %w", studyID, err)
	}
	if active {
		return domain.NewConflictError("build",
			domain.BuildStatusInProgress.String(),
			fmt.Sprintf("request (study %d already has an unfinished build)", studyID))
	}
	return nil
}

// lockFor returns the per-aggregate mutex, creating it on first use.
// Locks are never removed; the map grows with the number of distinct
// aggregates commanded through this process.
func (d *Dispatcher) lockFor(aggregateID uuid.UUID) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()

	lock, ok := d.locks[aggregateID]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[aggregateID] = lock
	}
	return lock
}
