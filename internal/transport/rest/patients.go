package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sarkarn/clinprecision-sub002/internal/bridge"
	"github.com/sarkarn/clinprecision-sub002/internal/command"
	"github.com/sarkarn/clinprecision-sub002/internal/domain"
)

type commandBus interface {
	Submit(ctx context.Context, cmd command.Command) (command.Outcome, error)
}

type patientReader interface {
	GetByAggregateUUID(ctx context.Context, aggregateUUID uuid.UUID) (*domain.Patient, error)
}

type visitReader interface {
	ListByPatient(ctx context.Context, patientID int64) ([]domain.VisitInstance, error)
}

// PatientHandler serves the patient command endpoints and the few reads
// the UI needs around them.
type PatientHandler struct {
	bus      commandBus
	patients patientReader
	visits   visitReader
	bridge   *bridge.Bridge
}

// NewPatientHandler creates a PatientHandler.
func NewPatientHandler(bus commandBus, patients patientReader, visits visitReader, b *bridge.Bridge) *PatientHandler {
	return &PatientHandler{bus: bus, patients: patients, visits: visits, bridge: b}
}

// Register mounts the handler's routes.
func (h *PatientHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/patients", h.RegisterPatient)
	mux.HandleFunc("GET /api/v1/patients/{id}", h.GetPatient)
	mux.HandleFunc("POST /api/v1/patients/{id}/enroll", h.EnrollPatient)
	mux.HandleFunc("PUT /api/v1/patients/{id}/status", h.ChangeStatus)
	mux.HandleFunc("GET /api/v1/patients/{id}/valid-statuses", h.ValidNextStatuses)
	mux.HandleFunc("GET /api/v1/patients/{id}/visits", h.ListVisits)
}

type registerPatientRequest struct {
	ScreeningNumber string `json:"screeningNumber"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	DateOfBirth     string `json:"dateOfBirth"`
	RegisteredBy    int64  `json:"registeredBy"`
}

type patientResponse struct {
	ID              int64  `json:"id"`
	AggregateUUID   string `json:"aggregateUuid"`
	ScreeningNumber string `json:"screeningNumber"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	DateOfBirth     string `json:"dateOfBirth"`
	Status          string `json:"status"`
}

func toPatientResponse(p *domain.Patient) patientResponse {
	return patientResponse{
		ID:              p.ID,
		AggregateUUID:   p.AggregateUUID.String(),
		ScreeningNumber: p.ScreeningNumber,
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		DateOfBirth:     p.DateOfBirth.Format("2006-01-02"),
		Status:          p.Status.String(),
	}
}

// RegisterPatient accepts the register command and awaits its
// projection so the client reads its own write.
func (h *PatientHandler) RegisterPatient(w http.ResponseWriter, r *http.Request) {
	var req registerPatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}

	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "dateOfBirth must be YYYY-MM-DD"})
		return
	}

	cmd := command.RegisterPatient{
		PatientID:       uuid.New(),
		ScreeningNumber: req.ScreeningNumber,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		DateOfBirth:     dob,
		RegisteredBy:    req.RegisteredBy,
	}
	if _, err := h.bus.Submit(r.Context(), cmd); err != nil {
		writeError(w, err)
		return
	}

	patient, err := bridge.Await(r.Context(), h.bridge, cmd.PatientID, func(ctx context.Context) (*domain.Patient, error) {
		return h.patients.GetByAggregateUUID(ctx, cmd.PatientID)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPatientResponse(patient))
}

// GetPatient returns the projected patient row.
func (h *PatientHandler) GetPatient(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid patient id"})
		return
	}
	patient, err := h.patients.GetByAggregateUUID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPatientResponse(patient))
}

type enrollPatientRequest struct {
	StudyID        int64  `json:"studyId"`
	SiteID         int64  `json:"siteId"`
	ArmID          *int64 `json:"armId,omitempty"`
	EnrollmentDate string `json:"enrollmentDate"`
	EnrolledBy     int64  `json:"enrolledBy"`
}

// EnrollPatient accepts the enroll command.
func (h *PatientHandler) EnrollPatient(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid patient id"})
		return
	}

	var req enrollPatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	enrollmentDate, err := time.Parse("2006-01-02", req.EnrollmentDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "enrollmentDate must be YYYY-MM-DD"})
		return
	}

	outcome, err := h.bus.Submit(r.Context(), command.EnrollPatient{
		PatientID:      id,
		StudyID:        req.StudyID,
		SiteID:         req.SiteID,
		ArmID:          req.ArmID,
		EnrollmentDate: enrollmentDate,
		EnrolledBy:     req.EnrolledBy,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, outcomeResponse(outcome))
}

type changeStatusRequest struct {
	NewStatus string `json:"newStatus"`
	Reason    string `json:"reason"`
	ChangedBy int64  `json:"changedBy"`
}

// ChangeStatus accepts a lifecycle transition command.
func (h *PatientHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid patient id"})
		return
	}

	var req changeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}

	outcome, err := h.bus.Submit(r.Context(), command.ChangePatientStatus{
		PatientID: id,
		NewStatus: domain.PatientStatus(req.NewStatus),
		Reason:    req.Reason,
		ChangedBy: req.ChangedBy,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, outcomeResponse(outcome))
}

// ValidNextStatuses returns the transitions the UI may offer, driven by
// the same table command validation uses.
func (h *PatientHandler) ValidNextStatuses(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid patient id"})
		return
	}
	patient, err := h.patients.GetByAggregateUUID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	next := domain.ValidNextPatientStatuses(patient.Status)
	out := make([]string, 0, len(next))
	for _, s := range next {
		out = append(out, s.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"currentStatus": patient.Status.String(),
		"validStatuses": out,
	})
}

type visitResponse struct {
	ID          int64  `json:"id"`
	VisitDate   string `json:"visitDate"`
	WindowStart string `json:"windowStart"`
	WindowEnd   string `json:"windowEnd"`
	Status      string `json:"status"`
}

// ListVisits returns the patient's instantiated schedule.
func (h *PatientHandler) ListVisits(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid patient id"})
		return
	}
	patient, err := h.patients.GetByAggregateUUID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	visits, err := h.visits.ListByPatient(r.Context(), patient.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]visitResponse, 0, len(visits))
	for _, v := range visits {
		out = append(out, visitResponse{
			ID:          v.ID,
			VisitDate:   v.VisitDate.Format("2006-01-02"),
			WindowStart: v.WindowStart.Format("2006-01-02"),
			WindowEnd:   v.WindowEnd.Format("2006-01-02"),
			Status:      v.Status.String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func outcomeResponse(o command.Outcome) map[string]string {
	return map[string]string{
		"aggregateId":    o.AggregateID.String(),
		"eventType":      o.EventType.String(),
		"idempotencyKey": o.IdempotencyKey.String(),
	}
}
