package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/lab-portal/internal/application"
	"github.com/example/lab-portal/internal/logging"
	"github.com/example/lab-portal/internal/persistence"
	"github.com/example/lab-portal/internal/scheduler"
)

var (
	errBadRequestBody  = errors.New("Formato de solicitud no válido.")
	errInvalidQuery    = errors.New("Parámetros de consulta no válidos.")
	errMissingIdentity = errors.New("Se requiere identificar al usuario.")
	errTooManyRequests = errors.New("Demasiadas solicitudes. Intente de nuevo en unos segundos.")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request rejected", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var (
		vErr     *application.ValidationError
		conflict *scheduler.ConflictError
		past     *scheduler.PastSlotError
	)
	switch {
	case errors.Is(err, application.ErrUnauthorized):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: "AUTH_FORBIDDEN",
			Message:   "No tiene permiso para realizar esta operación.",
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: "No se encontró el recurso solicitado."})
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "ALREADY_EXISTS",
			Message:   "El registro ya existe.",
		})
	case errors.Is(err, application.ErrPreviewExpired):
		r.writeJSON(ctx, w, http.StatusGone, errorResponse{
			ErrorCode: "IMPORT_PREVIEW_EXPIRED",
			Message:   "La vista previa de la importación expiró. Cargue el archivo de nuevo.",
		})
	case errors.As(err, &conflict):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "RESERVATION_CONFLICT",
			Message:   "El laboratorio ya está reservado en ese horario.",
			Conflict: &conflictDTO{
				ReservationID: conflict.Existing.ID,
				Start:         formatTime(conflict.Existing.Interval.Start),
				End:           formatTime(conflict.Existing.Interval.End),
			},
		})
	case errors.As(err, &past):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "PAST_SLOT",
			Message:   "No se puede reservar un horario que ya pasó.",
		})
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			Message: "Los datos ingresados no son válidos.",
			Errors:  localizeValidationErrors(vErr),
		})
	case errors.Is(err, persistence.ErrUnavailable):
		w.Header().Set("Retry-After", "5")
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{
			ErrorCode: "STORE_UNAVAILABLE",
			Message:   "El servicio no está disponible temporalmente.",
		})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "Ocurrió un error interno del servidor."})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "La solicitud no es válida."
	case http.StatusUnauthorized:
		return "Se requiere autenticación."
	case http.StatusForbidden:
		return "No tiene permiso para realizar esta operación."
	case http.StatusNotFound:
		return "No se encontró el recurso solicitado."
	case http.StatusConflict:
		return "La solicitud entra en conflicto con el estado actual del recurso."
	case http.StatusUnprocessableEntity:
		return "Los datos ingresados no son válidos."
	case http.StatusTooManyRequests:
		return "Demasiadas solicitudes."
	default:
		return "Ocurrió un error interno del servidor."
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "name is required":
		return "El nombre es obligatorio."
	case "location is required":
		return "La ubicación es obligatoria."
	case "status must be available or under_maintenance":
		return "El estado debe ser disponible o en mantenimiento."
	case "status must be available, in_maintenance or out_of_service":
		return "El estado debe ser disponible, en mantenimiento o fuera de servicio."
	case "quantity must not be negative":
		return "La cantidad no puede ser negativa."
	case "alert threshold must not be negative":
		return "El umbral de alerta no puede ser negativo."
	case "quantity and alert threshold must not be negative":
		return "La cantidad y el umbral de alerta no pueden ser negativos."
	case "lab is required":
		return "Debe seleccionar un laboratorio."
	case "lab does not exist":
		return "El laboratorio no existe."
	case "lab is under maintenance":
		return "El laboratorio está en mantenimiento."
	case "purpose is required":
		return "El motivo de la reserva es obligatorio."
	case "start is required":
		return "La hora de inicio es obligatoria."
	case "end must be after start":
		return "La hora de fin debe ser posterior a la de inicio."
	case "scope must be upcoming or past":
		return "El alcance debe ser próximas o pasadas."
	case "file is required":
		return "Debe adjuntar el archivo de carga académica."
	case "period start is required":
		return "El inicio del periodo es obligatorio."
	case "period end is required":
		return "El fin del periodo es obligatorio."
	case "period end must not be before period start":
		return "El fin del periodo no puede ser anterior al inicio."
	case "the import contains no reservations":
		return "La importación no contiene reservas."
	default:
		return message
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
	Conflict  *conflictDTO      `json:"conflict,omitempty"`
}

type conflictDTO struct {
	ReservationID string `json:"reservation_id"`
	Start         string `json:"start"`
	End           string `json:"end"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
