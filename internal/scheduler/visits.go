// Package scheduler instantiates a patient's protocol visit schedule
// from the study's visit definitions when the patient becomes active.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sarkarn/clinprecision-sub002/internal/domain"
)

type visitStore interface {
	ListDefinitions(ctx context.Context, studyID, armID int64) ([]domain.VisitDefinition, error)
	CreateInstance(ctx context.Context, v *domain.VisitInstance) (*domain.VisitInstance, error)
	ExistsForPatient(ctx context.Context, patientID, studyID int64) (bool, error)
	ListByPatient(ctx context.Context, patientID int64) ([]domain.VisitInstance, error)
}

type buildStore interface {
	LatestCompleted(ctx context.Context, studyID int64) (*domain.DatabaseBuild, error)
}

// InstantiateInput carries everything the scheduler needs to build a
// patient's schedule. BaselineDate anchors every timepoint offset.
type InstantiateInput struct {
	PatientID    int64
	StudyID      int64
	SiteID       int64
	ArmID        *int64
	BaselineDate time.Time
}

// ProtocolVisitScheduler creates visit instances from protocol
// definitions. Instantiation requires a completed database build and
// runs at most once per patient and study.
type ProtocolVisitScheduler struct {
	visits visitStore
	builds buildStore
	log    *slog.Logger
	now    func() time.Time
}

// New creates a ProtocolVisitScheduler.
func New(visits visitStore, builds buildStore, log *slog.Logger) *ProtocolVisitScheduler {
	return &ProtocolVisitScheduler{
		visits: visits,
		builds: builds,
		log:    log,
		now:    time.Now,
	}
}

// Instantiate creates the patient's visit schedule. If the schedule
// already exists the existing instances are returned unchanged. A
// definition that fails to persist is logged and skipped; the rest of
// the schedule is still created.
func (s *ProtocolVisitScheduler) Instantiate(ctx context.Context, in InstantiateInput) ([]domain.VisitInstance, error) {
	build, err := s.builds.LatestCompleted(ctx, in.StudyID)
	if err != nil {
		return nil, fmt.Errorf("no completed database build for study %d: %w", in.StudyID, err)
	}

	exists, err := s.visits.ExistsForPatient(ctx, in.PatientID, in.StudyID)
	if err != nil {
		return nil, fmt.Errorf("check existing visits: %w", err)
	}
	if exists {
		s.log.Warn("visit schedule already instantiated, returning existing",
			"patient_id", in.PatientID, "study_id", in.StudyID)
		return s.visits.ListByPatient(ctx, in.PatientID)
	}

	var armID int64
	if in.ArmID != nil {
		armID = *in.ArmID
	}
	defs, err := s.visits.ListDefinitions(ctx, in.StudyID, armID)
	if err != nil {
		return nil, fmt.Errorf("list visit definitions: %w", err)
	}

	sort.SliceStable(defs, func(i, j int) bool {
		return defs[i].TimepointDays < defs[j].TimepointDays
	})

	created := make([]domain.VisitInstance, 0, len(defs))
	for _, def := range defs {
		defID := def.ID
		visitDate := in.BaselineDate.AddDate(0, 0, def.TimepointDays)
		v := &domain.VisitInstance{
			PatientID:         in.PatientID,
			StudyID:           in.StudyID,
			SiteID:            in.SiteID,
			VisitDefinitionID: &defID,
			BuildID:           build.ID,
			VisitDate:         visitDate,
			WindowStart:       visitDate.AddDate(0, 0, -def.WindowBefore),
			WindowEnd:         visitDate.AddDate(0, 0, def.WindowAfter),
			Status:            domain.VisitStatusScheduled,
			CreatedAt:         s.now().UTC(),
		}
		saved, err := s.visits.CreateInstance(ctx, v)
		if err != nil {
			s.log.Warn("failed to create visit instance, skipping definition",
				"patient_id", in.PatientID, "definition_id", def.ID, "error", err)
			continue
		}
		created = append(created, *saved)
	}

	s.log.Info("visit schedule instantiated",
		"patient_id", in.PatientID, "study_id", in.StudyID,
		"build_id", build.ID, "visits", len(created))
	return created, nil
}
