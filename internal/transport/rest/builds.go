package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sarkarn/clinprecision-sub002/internal/bridge"
	"github.com/sarkarn/clinprecision-sub002/internal/command"
	"github.com/sarkarn/clinprecision-sub002/internal/domain"
)

type buildReader interface {
	GetByAggregateUUID(ctx context.Context, aggregateUUID uuid.UUID) (*domain.DatabaseBuild, error)
	LatestCompleted(ctx context.Context, studyID int64) (*domain.DatabaseBuild, error)
}

type buildSeeder interface {
	Seed(ctx context.Context, b *domain.DatabaseBuild) error
}

// BuildHandler serves the study database build command endpoints.
type BuildHandler struct {
	bus    commandBus
	builds buildReader
	seeder buildSeeder
	bridge *bridge.Bridge
	now    func() time.Time
}

// NewBuildHandler creates a BuildHandler.
func NewBuildHandler(bus commandBus, builds buildReader, seeder buildSeeder, b *bridge.Bridge) *BuildHandler {
	return &BuildHandler{bus: bus, builds: builds, seeder: seeder, bridge: b, now: time.Now}
}

// Register mounts the handler's routes.
func (h *BuildHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/builds", h.RequestBuild)
	mux.HandleFunc("GET /api/v1/builds/{id}", h.GetBuild)
	mux.HandleFunc("POST /api/v1/builds/{id}/start", h.StartBuild)
	mux.HandleFunc("POST /api/v1/builds/{id}/complete", h.CompleteBuild)
	mux.HandleFunc("POST /api/v1/builds/{id}/fail", h.FailBuild)
	mux.HandleFunc("POST /api/v1/builds/{id}/cancel", h.CancelBuild)
	mux.HandleFunc("POST /api/v1/builds/{id}/validate", h.ValidateBuild)
	mux.HandleFunc("GET /api/v1/studies/{studyId}/builds/latest", h.LatestCompletedBuild)
}

type requestBuildRequest struct {
	StudyID     int64  `json:"studyId"`
	StudyName   string `json:"studyName"`
	RequestedBy int64  `json:"requestedBy"`
}

type buildResponse struct {
	ID               int64    `json:"id"`
	AggregateUUID    string   `json:"aggregateUuid"`
	BuildRequestID   string   `json:"buildRequestId"`
	StudyID          int64    `json:"studyId"`
	StudyName        string   `json:"studyName"`
	Status           string   `json:"status"`
	TablesCreated    int      `json:"tablesCreated"`
	FormsConfigured  int      `json:"formsConfigured"`
	ValidationRules  int      `json:"validationRules"`
	ErrorMessage     *string  `json:"errorMessage,omitempty"`
	IsValid          *bool    `json:"isValid,omitempty"`
	ValidationErrors []string `json:"validationErrors,omitempty"`
}

func toBuildResponse(b *domain.DatabaseBuild) buildResponse {
	return buildResponse{
		ID:               b.ID,
		AggregateUUID:    b.AggregateUUID.String(),
		BuildRequestID:   b.BuildRequestID,
		StudyID:          b.StudyID,
		StudyName:        b.StudyName,
		Status:           b.Status.String(),
		TablesCreated:    b.TablesCreated,
		FormsConfigured:  b.FormsConfigured,
		ValidationRules:  b.ValidationRules,
		ErrorMessage:     b.ErrorMessage,
		IsValid:          b.IsValid,
		ValidationErrors: b.ValidationErrors,
	}
}

// RequestBuild accepts the request command, seeds the read model so the
// row is visible before the projection lands, and awaits the projection.
func (h *BuildHandler) RequestBuild(w http.ResponseWriter, r *http.Request) {
	var req requestBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}

	now := h.now().UTC()
	cmd := command.RequestStudyDatabaseBuild{
		BuildID:        uuid.New(),
		BuildRequestID: fmt.Sprintf("BUILD-%d-%d", req.StudyID, now.UnixMilli()),
		StudyID:        req.StudyID,
		StudyName:      req.StudyName,
		RequestedBy:    req.RequestedBy,
	}
	if _, err := h.bus.Submit(r.Context(), cmd); err != nil {
		writeError(w, err)
		return
	}

	err := h.bridge.Seed(r.Context(), func(ctx context.Context) error {
		return h.seeder.Seed(ctx, &domain.DatabaseBuild{
			AggregateUUID:  cmd.BuildID,
			BuildRequestID: cmd.BuildRequestID,
			StudyID:        cmd.StudyID,
			StudyName:      cmd.StudyName,
			Status:         domain.BuildStatusRequested,
			RequestedBy:    cmd.RequestedBy,
			CreatedAt:      now,
		})
	})
	if err != nil {
		writeError(w, err)
		return
	}

	build, err := bridge.Await(r.Context(), h.bridge, cmd.BuildID, func(ctx context.Context) (*domain.DatabaseBuild, error) {
		return h.builds.GetByAggregateUUID(ctx, cmd.BuildID)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBuildResponse(build))
}

// GetBuild returns the projected build row.
func (h *BuildHandler) GetBuild(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid build id"})
		return
	}
	build, err := h.builds.GetByAggregateUUID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBuildResponse(build))
}

// StartBuild accepts the start command.
func (h *BuildHandler) StartBuild(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid build id"})
		return
	}
	h.submit(w, r, command.StartStudyDatabaseBuild{BuildID: id})
}

type completeBuildRequest struct {
	TablesCreated        int `json:"tablesCreated"`
	FormsConfigured      int `json:"formsConfigured"`
	ValidationRulesSetup int `json:"validationRulesSetup"`
}

// CompleteBuild accepts the complete command with the build counters.
func (h *BuildHandler) CompleteBuild(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid build id"})
		return
	}
	var req completeBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	h.submit(w, r, command.CompleteStudyDatabaseBuild{
		BuildID:              id,
		TablesCreated:        req.TablesCreated,
		FormsConfigured:      req.FormsConfigured,
		ValidationRulesSetup: req.ValidationRulesSetup,
	})
}

type failBuildRequest struct {
	ErrorMessage string `json:"errorMessage"`
}

// FailBuild accepts the fail command.
func (h *BuildHandler) FailBuild(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid build id"})
		return
	}
	var req failBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	h.submit(w, r, command.FailStudyDatabaseBuild{BuildID: id, ErrorMessage: req.ErrorMessage})
}

type cancelBuildRequest struct {
	Reason      string `json:"reason"`
	CancelledBy int64  `json:"cancelledBy"`
}

// CancelBuild accepts the cancel command.
func (h *BuildHandler) CancelBuild(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid build id"})
		return
	}
	var req cancelBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	h.submit(w, r, command.CancelStudyDatabaseBuild{BuildID: id, Reason: req.Reason, CancelledBy: req.CancelledBy})
}

type validateBuildRequest struct {
	IsValid          bool     `json:"isValid"`
	ValidationErrors []string `json:"validationErrors,omitempty"`
}

// ValidateBuild accepts the validate command.
func (h *BuildHandler) ValidateBuild(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid build id"})
		return
	}
	var req validateBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	h.submit(w, r, command.ValidateStudyDatabaseBuild{
		BuildID:          id,
		IsValid:          req.IsValid,
		ValidationErrors: req.ValidationErrors,
	})
}

// LatestCompletedBuild returns the most recently completed build for a
// study, the one visit scheduling runs against.
func (h *BuildHandler) LatestCompletedBuild(w http.ResponseWriter, r *http.Request) {
	studyID, err := strconv.ParseInt(r.PathValue("studyId"), 10, 64)
	if err != nil || studyID <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid study id"})
		return
	}
	build, err := h.builds.LatestCompleted(r.Context(), studyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBuildResponse(build))
}

func (h *BuildHandler) submit(w http.ResponseWriter, r *http.Request, cmd command.Command) {
	outcome, err := h.bus.Submit(r.Context(), cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, outcomeResponse(outcome))
}
