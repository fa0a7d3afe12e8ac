package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/lab-portal/internal/application"
	"github.com/example/lab-portal/internal/labstatus"
)

type labService interface {
	CreateLab(ctx context.Context, params application.CreateLabParams) (application.Lab, error)
	UpdateLab(ctx context.Context, params application.UpdateLabParams) (application.Lab, error)
	DeleteLab(ctx context.Context, principal application.Principal, labID string) error
	ListLabs(ctx context.Context, principal application.Principal) ([]application.Lab, error)
	ListStatuses(ctx context.Context, principal application.Principal) ([]application.LabStatusView, error)
}

type LabHandler struct {
	service   labService
	responder responder
	logger    *slog.Logger
}

func NewLabHandler(service labService, logger *slog.Logger) *LabHandler {
	base := defaultLogger(logger)
	return &LabHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *LabHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "LabHandler", operation, attrs...)
}

func (h *LabHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req labRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode lab request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID)

	lab, err := h.service.CreateLab(r.Context(), application.CreateLabParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "lab creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("lab_id", lab.ID).InfoContext(r.Context(), "lab created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, labResponse{Lab: toLabDTO(lab)})
}

func (h *LabHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	labID := strings.TrimSpace(r.PathValue("id"))
	principal, _ := PrincipalFromContext(r.Context())

	var req labRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Update", "principal_id", principal.UserID, "lab_id", labID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode lab update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "principal_id", principal.UserID, "lab_id", labID)

	lab, err := h.service.UpdateLab(r.Context(), application.UpdateLabParams{
		Principal: principal,
		LabID:     labID,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "lab update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "lab updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, labResponse{Lab: toLabDTO(lab)})
}

func (h *LabHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	labID := strings.TrimSpace(r.PathValue("id"))
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Delete", "principal_id", principal.UserID, "lab_id", labID)
	if err := h.service.DeleteLab(r.Context(), principal, labID); err != nil {
		logger.ErrorContext(r.Context(), "lab delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "lab deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *LabHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "List", "principal_id", principal.UserID)
	labs, err := h.service.ListLabs(r.Context(), principal)
	if err != nil {
		logger.ErrorContext(r.Context(), "lab list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(labs)).InfoContext(r.Context(), "labs listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listLabsResponse{Labs: toLabDTOs(labs)})
}

// Statuses reports every lab with its live status.
func (h *LabHandler) Statuses(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Statuses", "principal_id", principal.UserID)
	views, err := h.service.ListStatuses(r.Context(), principal)
	if err != nil {
		logger.ErrorContext(r.Context(), "lab status listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]labStatusDTO, 0, len(views))
	for _, view := range views {
		out = append(out, labStatusDTO{Lab: toLabDTO(view.Lab), Status: string(view.Status)})
	}

	logger.With("result_count", len(out)).InfoContext(r.Context(), "lab statuses listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listLabStatusesResponse{Labs: out})
}

type labRequest struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

func (r labRequest) toInput() application.LabInput {
	return application.LabInput{
		Name:        strings.TrimSpace(r.Name),
		Location:    strings.TrimSpace(r.Location),
		Description: strings.TrimSpace(r.Description),
		Status:      labstatus.Lifecycle(strings.TrimSpace(r.Status)),
	}
}

type labResponse struct {
	Lab labDTO `json:"lab"`
}

type listLabsResponse struct {
	Labs []labDTO `json:"labs"`
}

type listLabStatusesResponse struct {
	Labs []labStatusDTO `json:"labs"`
}

type labDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type labStatusDTO struct {
	Lab    labDTO `json:"lab"`
	Status string `json:"status"`
}

func toLabDTO(lab application.Lab) labDTO {
	return labDTO{
		ID:          lab.ID,
		Name:        lab.Name,
		Location:    lab.Location,
		Description: lab.Description,
		Status:      string(lab.Status),
		CreatedAt:   lab.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   lab.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toLabDTOs(labs []application.Lab) []labDTO {
	out := make([]labDTO, 0, len(labs))
	for _, lab := range labs {
		out = append(out, toLabDTO(lab))
	}
	return out
}
