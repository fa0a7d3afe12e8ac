package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/lab-portal/internal/application"
)

type equipmentService interface {
	CreateEquipment(ctx context.Context, params application.CreateEquipmentParams) (application.Equipment, error)
	UpdateEquipment(ctx context.Context, params application.UpdateEquipmentParams) (application.Equipment, error)
	DeleteEquipment(ctx context.Context, principal application.Principal, equipmentID string) error
	ListEquipment(ctx context.Context, principal application.Principal, labID string) ([]application.Equipment, error)
	InventoryHistory(ctx context.Context, principal application.Principal, filter application.InventoryLogFilter) ([]application.InventoryChange, error)
}

type EquipmentHandler struct {
	service   equipmentService
	responder responder
	logger    *slog.Logger
}

func NewEquipmentHandler(service equipmentService, logger *slog.Logger) *EquipmentHandler {
	base := defaultLogger(logger)
	return &EquipmentHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *EquipmentHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "EquipmentHandler", operation, attrs...)
}

func (h *EquipmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	labID := strings.TrimSpace(r.PathValue("id"))
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "List", "principal_id", principal.UserID, "lab_id", labID)

	items, err := h.service.ListEquipment(r.Context(), principal, labID)
	if err != nil {
		logger.ErrorContext(r.Context(), "equipment list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]equipmentDTO, 0, len(items))
	for _, item := range items {
		out = append(out, toEquipmentDTO(item))
	}
	logger.With("result_count", len(out)).InfoContext(r.Context(), "equipment listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listEquipmentResponse{Equipment: out})
}

func (h *EquipmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	labID := strings.TrimSpace(r.PathValue("id"))
	principal, _ := PrincipalFromContext(r.Context())

	var req equipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "lab_id", labID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode equipment request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID, "lab_id", labID)

	item, err := h.service.CreateEquipment(r.Context(), application.CreateEquipmentParams{
		Principal: principal,
		LabID:     labID,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "equipment creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("equipment_id", item.ID).InfoContext(r.Context(), "equipment created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, equipmentResponse{Equipment: toEquipmentDTO(item)})
}

func (h *EquipmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	itemID := strings.TrimSpace(r.PathValue("id"))
	principal, _ := PrincipalFromContext(r.Context())

	var req equipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Update", "principal_id", principal.UserID, "equipment_id", itemID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode equipment update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "principal_id", principal.UserID, "equipment_id", itemID)

	item, err := h.service.UpdateEquipment(r.Context(), application.UpdateEquipmentParams{
		Principal:   principal,
		EquipmentID: itemID,
		Input:       req.toInput(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "equipment update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "equipment updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, equipmentResponse{Equipment: toEquipmentDTO(item)})
}

func (h *EquipmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	itemID := strings.TrimSpace(r.PathValue("id"))
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Delete", "principal_id", principal.UserID, "equipment_id", itemID)
	if err := h.service.DeleteEquipment(r.Context(), principal, itemID); err != nil {
		logger.ErrorContext(r.Context(), "equipment delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "equipment deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// InventoryLog serves the inventory history, newest first. Optional query
// parameters: lab_id, item_id and limit.
func (h *EquipmentHandler) InventoryLog(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()
	filter := application.InventoryLogFilter{
		LabID:  strings.TrimSpace(query.Get("lab_id")),
		ItemID: strings.TrimSpace(query.Get("item_id")),
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.log(r.Context(), "InventoryLog", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "invalid limit", "limit", raw)
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidQuery)
			return
		}
		filter.Limit = limit
	}

	logger := h.log(r.Context(), "InventoryLog", "principal_id", principal.UserID, "lab_id", filter.LabID, "equipment_id", filter.ItemID)
	changes, err := h.service.InventoryHistory(r.Context(), principal, filter)
	if err != nil {
		logger.ErrorContext(r.Context(), "inventory history failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]inventoryChangeDTO, 0, len(changes))
	for _, c := range changes {
		out = append(out, inventoryChangeDTO{
			ID:            c.ID,
			LabID:         c.LabID,
			LabName:       c.LabName,
			ItemID:        c.ItemID,
			ItemName:      c.ItemName,
			Kind:          string(c.Kind),
			QuantityDelta: c.QuantityDelta,
			NewQuantity:   c.NewQuantity,
			ActorEmail:    c.ActorEmail,
			RecordedAt:    c.RecordedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	logger.With("result_count", len(out)).InfoContext(r.Context(), "inventory history listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, inventoryLogResponse{Changes: out})
}

type equipmentRequest struct {
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	Status         string `json:"status"`
	AlertThreshold int    `json:"alert_threshold"`
}

func (r equipmentRequest) toInput() application.EquipmentInput {
	return application.EquipmentInput{
		Name:           strings.TrimSpace(r.Name),
		Quantity:       r.Quantity,
		Status:         application.EquipmentStatus(strings.TrimSpace(r.Status)),
		AlertThreshold: r.AlertThreshold,
	}
}

type equipmentResponse struct {
	Equipment equipmentDTO `json:"equipment"`
}

type listEquipmentResponse struct {
	Equipment []equipmentDTO `json:"equipment"`
}

type equipmentDTO struct {
	ID             string `json:"id"`
	LabID          string `json:"lab_id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	Status         string `json:"status"`
	AlertThreshold int    `json:"alert_threshold"`
	LowStock       bool   `json:"low_stock"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func toEquipmentDTO(item application.Equipment) equipmentDTO {
	return equipmentDTO{
		ID:             item.ID,
		LabID:          item.LabID,
		Name:           item.Name,
		Quantity:       item.Quantity,
		Status:         string(item.Status),
		AlertThreshold: item.AlertThreshold,
		LowStock:       item.Quantity <= item.AlertThreshold,
		CreatedAt:      item.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:      item.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type inventoryLogResponse struct {
	Changes []inventoryChangeDTO `json:"changes"`
}

type inventoryChangeDTO struct {
	ID            string `json:"id"`
	LabID         string `json:"lab_id"`
	LabName       string `json:"lab_name"`
	ItemID        string `json:"item_id"`
	ItemName      string `json:"item_name"`
	Kind          string `json:"kind"`
	QuantityDelta int    `json:"quantity_delta"`
	NewQuantity   int    `json:"new_quantity"`
	ActorEmail    string `json:"actor_email,omitempty"`
	RecordedAt    string `json:"recorded_at"`
}
