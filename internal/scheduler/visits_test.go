package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sarkarn/clinprecision-sub002/internal/domain"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type visitStoreMock struct {
	ListDefinitionsFunc  func(ctx context.Context, studyID, armID int64) ([]domain.VisitDefinition, error)
	CreateInstanceFunc   func(ctx context.Context, v *domain.VisitInstance) (*domain.VisitInstance, error)
	ExistsForPatientFunc func(ctx context.Context, patientID, studyID int64) (bool, error)
	ListByPatientFunc    func(ctx context.Context, patientID int64) ([]domain.VisitInstance, error)

	createCalls []domain.VisitInstance
}

func (m *visitStoreMock) ListDefinitions(ctx context.Context, studyID, armID int64) ([]domain.VisitDefinition, error) {
	return m.ListDefinitionsFunc(ctx, studyID, armID)
}

func (m *visitStoreMock) CreateInstance(ctx context.Context, v *domain.VisitInstance) (*domain.VisitInstance, error) {
	saved, err := m.CreateInstanceFunc(ctx, v)
	if err == nil {
		m.createCalls = append(m.createCalls, *saved)
	}
	return saved, err
}

func (m *visitStoreMock) ExistsForPatient(ctx context.Context, patientID, studyID int64) (bool, error) {
	return m.ExistsForPatientFunc(ctx, patientID, studyID)
}

func (m *visitStoreMock) ListByPatient(ctx context.Context, patientID int64) ([]domain.VisitInstance, error) {
	return m.ListByPatientFunc(ctx, patientID)
}

func (m *visitStoreMock) CreateCalls() []domain.VisitInstance { return m.createCalls }

type buildStoreMock struct {
	LatestCompletedFunc func(ctx context.Context, studyID int64) (*domain.DatabaseBuild, error)
}

func (m *buildStoreMock) LatestCompleted(ctx context.Context, studyID int64) (*domain.DatabaseBuild, error) {
	return m.LatestCompletedFunc(ctx, studyID)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func defsFixture(studyID int64) []domain.VisitDefinition {
	// Deliberately unsorted: the scheduler must order by timepoint.
	return []domain.VisitDefinition{
		{ID: 3, StudyID: studyID, Name: "Week 2", TimepointDays: 14, WindowBefore: 2, WindowAfter: 2},
		{ID: 1, StudyID: studyID, Name: "Screening", TimepointDays: -7, WindowBefore: 0, WindowAfter: 3},
		{ID: 4, StudyID: studyID, Name: "Week 4", TimepointDays: 28, WindowBefore: 3, WindowAfter: 3},
		{ID: 2, StudyID: studyID, Name: "Baseline", TimepointDays: 0, WindowBefore: 0, WindowAfter: 0},
	}
}

func newScheduler(visits *visitStoreMock, builds *buildStoreMock) *ProtocolVisitScheduler {
	s := New(visits, builds, testLogger())
	s.now = func() time.Time { return date(2025, time.January, 1) }
	return s
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestScheduler_Instantiate_DatesAndWindows(t *testing.T) {
	t.Parallel()

	const studyID = 42
	visits := &visitStoreMock{
		ExistsForPatientFunc: func(ctx context.Context, patientID, studyID int64) (bool, error) {
			return false, nil
		},
		ListDefinitionsFunc: func(ctx context.Context, sID, armID int64) ([]domain.VisitDefinition, error) {
			return defsFixture(sID), nil
		},
		CreateInstanceFunc: func(ctx context.Context, v *domain.VisitInstance) (*domain.VisitInstance, error) {
			saved := *v
			saved.ID = int64(len(v.VisitDate.String())) // arbitrary non-zero
			return &saved, nil
		},
	}
	builds := &buildStoreMock{
		LatestCompletedFunc: func(ctx context.Context, studyID int64) (*domain.DatabaseBuild, error) {
			return &domain.DatabaseBuild{ID: 7, StudyID: studyID, Status: domain.BuildStatusCompleted}, nil
		},
	}

	s := newScheduler(visits, builds)
	got, err := s.Instantiate(context.Background(), InstantiateInput{
		PatientID:    1,
		StudyID:      studyID,
		SiteID:       5,
		BaselineDate: date(2025, time.January, 10),
	})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("instances = %d, want 4", len(got))
	}

	wantDates := []time.Time{
		date(2025, time.January, 3),  // -7
		date(2025, time.January, 10), // baseline
		date(2025, time.January, 24), // +14
		date(2025, time.February, 7), // +28
	}
	for i, v := range got {
		if !v.VisitDate.Equal(wantDates[i]) {
			t.Errorf("visit[%d].VisitDate = %v, want %v", i, v.VisitDate, wantDates[i])
		}
		if v.BuildID != 7 {
			t.Errorf("visit[%d].BuildID = %d, want 7", i, v.BuildID)
		}
		if v.Status != domain.VisitStatusScheduled {
			t.Errorf("visit[%d].Status = %v, want SCHEDULED", i, v.Status)
		}
	}

	// Week 2: window [-2, +2] around 2025-01-24.
	if !got[2].WindowStart.Equal(date(2025, time.January, 22)) {
		t.Errorf("week 2 WindowStart = %v, want 2025-01-22", got[2].WindowStart)
	}
	if !got[2].WindowEnd.Equal(date(2025, time.January, 26)) {
		t.Errorf("week 2 WindowEnd = %v, want 2025-01-26", got[2].WindowEnd)
	}
}

func TestScheduler_Instantiate_NoCompletedBuild(t *testing.T) {
	t.Parallel()

	builds := &buildStoreMock{
		LatestCompletedFunc: func(ctx context.Context, studyID int64) (*domain.DatabaseBuild, error) {
			return nil, domain.ErrNotFound
		},
	}
	s := newScheduler(&visitStoreMock{}, builds)

	_, err := s.Instantiate(context.Background(), InstantiateInput{PatientID: 1, StudyID: 42})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want wrapped ErrNotFound, got %v", err)
	}
}

func TestScheduler_Instantiate_AlreadyInstantiated(t *testing.T) {
	t.Parallel()

	existing := []domain.VisitInstance{{ID: 11, PatientID: 1}, {ID: 12, PatientID: 1}}
	visits := &visitStoreMock{
		ExistsForPatientFunc: func(ctx context.Context, patientID, studyID int64) (bool, error) {
			return true, nil
		},
		ListByPatientFunc: func(ctx context.Context, patientID int64) ([]domain.VisitInstance, error) {
			return existing, nil
		},
	}
	builds := &buildStoreMock{
		LatestCompletedFunc: func(ctx context.Context, studyID int64) (*domain.DatabaseBuild, error) {
			return &domain.DatabaseBuild{ID: 7}, nil
		},
	}

	s := newScheduler(visits, builds)
	got, err := s.Instantiate(context.Background(), InstantiateInput{PatientID: 1, StudyID: 42})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("instances = %d, want the 2 existing", len(got))
	}
	if len(visits.CreateCalls()) != 0 {
		t.Errorf("create calls = %d, want 0 on replay", len(visits.CreateCalls()))
	}
}

func TestScheduler_Instantiate_SkipsFailedDefinition(t *testing.T) {
	t.Parallel()

	const studyID = 42
	visits := &visitStoreMock{
		ExistsForPatientFunc: func(ctx context.Context, patientID, studyID int64) (bool, error) {
			return false, nil
		},
		ListDefinitionsFunc: func(ctx context.Context, sID, armID int64) ([]domain.VisitDefinition, error) {
			return defsFixture(sID), nil
		},
		CreateInstanceFunc: func(ctx context.Context, v *domain.VisitInstance) (*domain.VisitInstance, error) {
			if v.VisitDefinitionID != nil && *v.VisitDefinitionID == 2 {
				return nil, errors.New("insert failed")
			}
			saved := *v
			saved.ID = 99
			return &saved, nil
		},
	}
	builds := &buildStoreMock{
		LatestCompletedFunc: func(ctx context.Context, studyID int64) (*domain.DatabaseBuild, error) {
			return &domain.DatabaseBuild{ID: 7}, nil
		},
	}

	s := newScheduler(visits, builds)
	got, err := s.Instantiate(context.Background(), InstantiateInput{
		PatientID:    1,
		StudyID:      studyID,
		BaselineDate: date(2025, time.January, 10),
	})
	if err != nil {
		t.Fatalf("Instantiate must not fail on a single definition: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("instances = %d, want 3 (baseline skipped)", len(got))
	}
	for _, v := range got {
		if v.VisitDefinitionID != nil && *v.VisitDefinitionID == 2 {
			t.Error("failed definition must not appear in the result")
		}
	}
}
