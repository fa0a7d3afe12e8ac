package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/lab-portal/internal/application"
)

const dateLayout = "2006-01-02"

type reservationService interface {
	Book(ctx context.Context, params application.BookParams) (application.Reservation, error)
	Cancel(ctx context.Context, principal application.Principal, reservationID string) error
	ListForLab(ctx context.Context, principal application.Principal, labID string, from, to *time.Time) (application.LabReservations, error)
	ListAll(ctx context.Context, principal application.Principal, from, to *time.Time) ([]application.Reservation, error)
	ListMine(ctx context.Context, params application.ListMineParams) ([]application.Reservation, error)
	ExportCalendar(ctx context.Context, principal application.Principal, labID string, from, to *time.Time) (string, error)
}

type ReservationHandler struct {
	service   reservationService
	location  *time.Location
	responder responder
	logger    *slog.Logger
}

// NewReservationHandler builds the reservation endpoints. Calendar days in
// query parameters are interpreted in loc.
func NewReservationHandler(service reservationService, loc *time.Location, logger *slog.Logger) *ReservationHandler {
	base := defaultLogger(logger)
	if loc == nil {
		loc = time.UTC
	}
	return &ReservationHandler{service: service, location: loc, responder: newResponder(base), logger: base}
}

func (h *ReservationHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ReservationHandler", operation, attrs...)
}

func (h *ReservationHandler) Book(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Book", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode booking request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Book", "principal_id", principal.UserID, "lab_id", req.LabID)

	params := application.BookParams{
		Principal: principal,
		LabID:     strings.TrimSpace(req.LabID),
		Purpose:   strings.TrimSpace(req.Purpose),
		Start:     req.Start,
	}
	if req.End != nil {
		params.End = *req.End
	}

	reservation, err := h.service.Book(r.Context(), params)
	if err != nil {
		logger.ErrorContext(r.Context(), "booking failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("reservation_id", reservation.ID).InfoContext(r.Context(), "reservation booked")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, reservationResponse{Reservation: toReservationDTO(reservation)})
}

func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	reservationID := strings.TrimSpace(r.PathValue("id"))
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Cancel", "principal_id", principal.UserID, "reservation_id", reservationID)
	if err := h.service.Cancel(r.Context(), principal, reservationID); err != nil {
		logger.ErrorContext(r.Context(), "cancellation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "reservation cancelled")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// ListAll serves the reservations of every lab. from and to accept RFC 3339
// instants or calendar days.
func (h *ReservationHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	from, to, err := h.parseWindow(r)
	if err != nil {
		h.log(r.Context(), "ListAll", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "invalid window", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidQuery)
		return
	}

	logger := h.log(r.Context(), "ListAll", "principal_id", principal.UserID)
	reservations, err := h.service.ListAll(r.Context(), principal, from, to)
	if err != nil {
		logger.ErrorContext(r.Context(), "reservation list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(reservations)).InfoContext(r.Context(), "reservations listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listReservationsResponse{Reservations: toReservationDTOs(reservations)})
}

func (h *ReservationHandler) ListForLab(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	labID := strings.TrimSpace(r.PathValue("id"))
	principal, _ := PrincipalFromContext(r.Context())
	from, to, err := h.parseWindow(r)
	if err != nil {
		h.log(r.Context(), "ListForLab", "principal_id", principal.UserID, "lab_id", labID, "error_kind", "bad_request").ErrorContext(r.Context(), "invalid window", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidQuery)
		return
	}

	logger := h.log(r.Context(), "ListForLab", "principal_id", principal.UserID, "lab_id", labID)
	listing, err := h.service.ListForLab(r.Context(), principal, labID, from, to)
	if err != nil {
		logger.ErrorContext(r.Context(), "lab reservation list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	overlaps := make([]overlapDTO, 0, len(listing.Overlaps))
	for _, o := range listing.Overlaps {
		overlaps = append(overlaps, overlapDTO{
			FirstID:  o.FirstID,
			SecondID: o.SecondID,
			Start:    formatTime(o.Start),
			End:      formatTime(o.End),
		})
	}

	logger.With("result_count", len(listing.Reservations)).InfoContext(r.Context(), "lab reservations listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, labReservationsResponse{
		Reservations: toReservationDTOs(listing.Reservations),
		Overlaps:     overlaps,
	})
}

// Mine serves the caller's reservations. scope is upcoming (default) or past;
// from and to are calendar days.
func (h *ReservationHandler) Mine(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()
	params := application.ListMineParams{
		Principal: principal,
		Scope:     application.ReservationScope(strings.TrimSpace(query.Get("scope"))),
	}

	var err error
	if params.From, err = h.parseDay(query.Get("from")); err == nil {
		params.To, err = h.parseDay(query.Get("to"))
	}
	if err != nil {
		h.log(r.Context(), "Mine", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "invalid day", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidQuery)
		return
	}

	logger := h.log(r.Context(), "Mine", "principal_id", principal.UserID, "scope", string(params.Scope))
	reservations, err := h.service.ListMine(r.Context(), params)
	if err != nil {
		logger.ErrorContext(r.Context(), "own reservation list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(reservations)).InfoContext(r.Context(), "own reservations listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listReservationsResponse{Reservations: toReservationDTOs(reservations)})
}

// Calendar serves a lab's reservations as an iCalendar feed.
func (h *ReservationHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	labID := strings.TrimSpace(r.PathValue("id"))
	principal, _ := PrincipalFromContext(r.Context())
	from, to, err := h.parseWindow(r)
	if err != nil {
		h.log(r.Context(), "Calendar", "principal_id", principal.UserID, "lab_id", labID, "error_kind", "bad_request").ErrorContext(r.Context(), "invalid window", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidQuery)
		return
	}

	logger := h.log(r.Context(), "Calendar", "principal_id", principal.UserID, "lab_id", labID)
	feed, err := h.service.ExportCalendar(r.Context(), principal, labID, from, to)
	if err != nil {
		logger.ErrorContext(r.Context(), "calendar export failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(feed)); err != nil {
		logger.WarnContext(r.Context(), "failed to write calendar", "error", err)
		return
	}
	logger.InfoContext(r.Context(), "calendar served")
}

func (h *ReservationHandler) parseWindow(r *http.Request) (*time.Time, *time.Time, error) {
	query := r.URL.Query()
	from, err := h.parseInstant(query.Get("from"))
	if err != nil {
		return nil, nil, err
	}
	to, err := h.parseInstant(query.Get("to"))
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func (h *ReservationHandler) parseInstant(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	return h.parseDay(raw)
}

func (h *ReservationHandler) parseDay(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, h.location)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type bookRequest struct {
	LabID   string     `json:"lab_id"`
	Purpose string     `json:"purpose"`
	Start   time.Time  `json:"start"`
	End     *time.Time `json:"end"`
}

type reservationResponse struct {
	Reservation reservationDTO `json:"reservation"`
}

type listReservationsResponse struct {
	Reservations []reservationDTO `json:"reservations"`
}

type labReservationsResponse struct {
	Reservations []reservationDTO `json:"reservations"`
	Overlaps     []overlapDTO     `json:"overlaps"`
}

type reservationDTO struct {
	ID         string    `json:"id"`
	LabID      string    `json:"lab_id"`
	LabName    string    `json:"lab_name"`
	Kind       string    `json:"kind"`
	OwnerID    string    `json:"owner_id"`
	OwnerEmail string    `json:"owner_email,omitempty"`
	Purpose    string    `json:"purpose"`
	Start      string    `json:"start"`
	End        string    `json:"end"`
	Class      *classDTO `json:"class,omitempty"`
	CreatedAt  string    `json:"created_at"`
}

type classDTO struct {
	Faculty        string `json:"faculty,omitempty"`
	Career         string `json:"career,omitempty"`
	InstructorID   string `json:"instructor_id,omitempty"`
	InstructorName string `json:"instructor_name,omitempty"`
	Section        string `json:"section,omitempty"`
	Enrolled       int    `json:"enrolled"`
}

type overlapDTO struct {
	FirstID  string `json:"first_id"`
	SecondID string `json:"second_id"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

func toReservationDTO(r application.Reservation) reservationDTO {
	dto := reservationDTO{
		ID:         r.ID,
		LabID:      r.LabID,
		LabName:    r.LabName,
		Kind:       string(r.Kind),
		OwnerID:    r.OwnerID,
		OwnerEmail: r.OwnerEmail,
		Purpose:    r.Purpose,
		Start:      formatTime(r.Start),
		End:        formatTime(r.End),
		CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if r.Class != nil {
		dto.Class = &classDTO{
			Faculty:        r.Class.Faculty,
			Career:         r.Class.Career,
			InstructorID:   r.Class.InstructorID,
			InstructorName: r.Class.InstructorName,
			Section:        r.Class.Section,
			Enrolled:       r.Class.Enrolled,
		}
	}
	return dto
}

func toReservationDTOs(reservations []application.Reservation) []reservationDTO {
	out := make([]reservationDTO, 0, len(reservations))
	for _, r := range reservations {
		out = append(out, toReservationDTO(r))
	}
	return out
}
