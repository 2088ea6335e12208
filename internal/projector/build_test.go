package projector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sarkarn/clinprecision-sub002/internal/domain"
)

type buildWriteStoreMock struct {
	ApplyRequestedFunc func(ctx context.Context, b *domain.DatabaseBuild) (*domain.DatabaseBuild, error)
	ApplyStartedFunc   func(ctx context.Context, aggregateUUID uuid.UUID, at time.Time) (*domain.DatabaseBuild, error)
	ApplyCompletedFunc func(ctx context.Context, aggregateUUID uuid.UUID, at time.Time, tables, forms, rules int) (*domain.DatabaseBuild, error)
	ApplyFailedFunc    func(ctx context.Context, aggregateUUID uuid.UUID, at time.Time, errorMessage string) (*domain.DatabaseBuild, error)
	ApplyCancelledFunc func(ctx context.Context, aggregateUUID uuid.UUID, at time.Time, reason string) (*domain.DatabaseBuild, error)
	ApplyValidatedFunc func(ctx context.Context, aggregateUUID uuid.UUID, at time.Time, isValid bool, validationErrors []string) (*domain.DatabaseBuild, error)

	mu             sync.Mutex
	requestedCalls []domain.DatabaseBuild
}

func (m *buildWriteStoreMock) ApplyRequested(ctx context.Context, b *domain.DatabaseBuild) (*domain.DatabaseBuild, error) {
	m.mu.Lock()
	m.requestedCalls = append(m.requestedCalls, *b)
	m.mu.Unlock()
	return m.ApplyRequestedFunc(ctx, b)
}

func (m *buildWriteStoreMock) ApplyStarted(ctx context.Context, aggregateUUID uuid.UUID, at time.Time) (*domain.DatabaseBuild, error) {
	return m.ApplyStartedFunc(ctx, aggregateUUID, at)
}

func (m *buildWriteStoreMock) ApplyCompleted(ctx context.Context, aggregateUUID uuid.UUID, at time.Time, tables, forms, rules int) (*domain.DatabaseBuild, error) {
	return m.ApplyCompletedFunc(ctx, aggregateUUID, at, tables, forms, rules)
}

func (m *buildWriteStoreMock) ApplyFailed(ctx context.Context, aggregateUUID uuid.UUID, at time.Time, errorMessage string) (*domain.DatabaseBuild, error) {
	return m.ApplyFailedFunc(ctx, aggregateUUID, at, errorMessage)
}

func (m *buildWriteStoreMock) ApplyCancelled(ctx context.Context, aggregateUUID uuid.UUID, at time.Time, reason string) (*domain.DatabaseBuild, error) {
	return m.ApplyCancelledFunc(ctx, aggregateUUID, at, reason)
}

func (m *buildWriteStoreMock) ApplyValidated(ctx context.Context, aggregateUUID uuid.UUID, at time.Time, isValid bool, validationErrors []string) (*domain.DatabaseBuild, error) {
	return m.ApplyValidatedFunc(ctx, aggregateUUID, at, isValid, validationErrors)
}

func (m *buildWriteStoreMock) RequestedCalls() []domain.DatabaseBuild {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DatabaseBuild(nil), m.requestedCalls...)
}

func newBuildProjector(store *buildWriteStoreMock) *BuildProjector {
	return NewBuildProjector(store, newProcessedMock(), txMock{}, testLogger())
}

func TestBuildProjector_HandleRequested_ReplaySkipped(t *testing.T) {
	t.Parallel()

	store := &buildWriteStoreMock{
		ApplyRequestedFunc: func(ctx context.Context, b *domain.DatabaseBuild) (*domain.DatabaseBuild, error) {
			out := *b
			out.ID = 1
			return &out, nil
		},
	}
	p := newBuildProjector(store)

	event := domain.NewEvent(uuid.New(), domain.BuildRequested{
		BuildRequestID: "BR-1",
		StudyID:        101,
		StudyName:      "Protocol A",
		RequestedBy:    1,
		RequestedAt:    time.Now().UTC(),
	}, time.Now().UTC())

	if err := p.HandleRequested(context.Background(), event); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := p.HandleRequested(context.Background(), event); err != nil {
		t.Fatalf("redelivery must be a clean skip, got %v", err)
	}
	if got := store.RequestedCalls(); len(got) != 1 {
		t.Fatalf("upsert calls = %d, want 1 (replay must not reach the store)", len(got))
	}
	if got := store.RequestedCalls()[0]; got.Status != domain.BuildStatusRequested {
		t.Errorf("projected status = %v, want REQUESTED", got.Status)
	}
}

func TestBuildProjector_HandleCompleted_AppliesCounters(t *testing.T) {
	t.Parallel()

	var gotTables, gotForms, gotRules int
	store := &buildWriteStoreMock{
		ApplyCompletedFunc: func(ctx context.Context, aggregateUUID uuid.UUID, at time.Time, tables, forms, rules int) (*domain.DatabaseBuild, error) {
			gotTables, gotForms, gotRules = tables, forms, rules
			return &domain.DatabaseBuild{}, nil
		},
	}
	p := newBuildProjector(store)

	event := domain.NewEvent(uuid.New(), domain.BuildCompleted{
		TablesCreated:        12,
		FormsConfigured:      8,
		ValidationRulesSetup: 30,
		CompletedAt:          time.Now().UTC(),
	}, time.Now().UTC())

	if err := p.HandleCompleted(context.Background(), event); err != nil {
		t.Fatalf("HandleCompleted: %v", err)
	}
	if gotTables != 12 || gotForms != 8 || gotRules != 30 {
		t.Errorf("counters = (%d, %d, %d), want (12, 8, 30)", gotTables, gotForms, gotRules)
	}
}

func TestBuildProjector_HandleStarted_MissingRowRetriable(t *testing.T) {
	t.Parallel()

	store := &buildWriteStoreMock{
		ApplyStartedFunc: func(ctx context.Context, aggregateUUID uuid.UUID, at time.Time) (*domain.DatabaseBuild, error) {
			return nil, domain.ErrNotFound
		},
	}
	p := newBuildProjector(store)

	event := domain.NewEvent(uuid.New(), domain.BuildStarted{StartedAt: time.Now().UTC()}, time.Now().UTC())

	// The error must surface so the log redelivers after the requested
	// projection lands.
	err := p.HandleStarted(context.Background(), event)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound surfaced for redelivery, got %v", err)
	}
}

func TestBuildProjector_HandleValidated(t *testing.T) {
	t.Parallel()

	var (
		gotValid  bool
		gotErrors []string
	)
	store := &buildWriteStoreMock{
		ApplyValidatedFunc: func(ctx context.Context, aggregateUUID uuid.UUID, at time.Time, isValid bool, validationErrors []string) (*domain.DatabaseBuild, error) {
			gotValid = isValid
			gotErrors = validationErrors
			return &domain.DatabaseBuild{}, nil
		},
	}
	p := newBuildProjector(store)

	event := domain.NewEvent(uuid.New(), domain.BuildValidated{
		IsValid:          false,
		ValidationErrors: []string{"missing form binding", "orphan rule"},
		ValidatedAt:      time.Now().UTC(),
	}, time.Now().UTC())

	if err := p.HandleValidated(context.Background(), event); err != nil {
		t.Fatalf("HandleValidated: %v", err)
	}
	if gotValid {
		t.Error("is_valid = true, want false")
	}
	if len(gotErrors) != 2 || gotErrors[0] != "missing form binding" {
		t.Errorf("validation errors = %v, want the event's list", gotErrors)
	}
}
