package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/lab-portal/internal/application"
	"github.com/example/lab-portal/internal/importer"
)

const maxImportUpload = 10 << 20

type importService interface {
	Preview(ctx context.Context, params application.PreviewImportParams) (application.ImportPreview, error)
	Commit(ctx context.Context, principal application.Principal, token string) (application.ImportResult, error)
	Discard(ctx context.Context, principal application.Principal, token string) error
}

type ImportHandler struct {
	service   importService
	location  *time.Location
	responder responder
	logger    *slog.Logger
}

// NewImportHandler builds the academic load import endpoints. Period days
// are interpreted in loc.
func NewImportHandler(service importService, loc *time.Location, logger *slog.Logger) *ImportHandler {
	base := defaultLogger(logger)
	if loc == nil {
		loc = time.UTC
	}
	return &ImportHandler{service: service, location: loc, responder: newResponder(base), logger: base}
}

func (h *ImportHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ImportHandler", operation, attrs...)
}

// Preview accepts a multipart form with the spreadsheet in "file" and the
// semester in "period_start" and "period_end".
func (h *ImportHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxImportUpload)
	if err := r.ParseMultipartForm(maxImportUpload); err != nil {
		h.log(r.Context(), "Preview", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to parse import form", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	period, err := h.parsePeriod(r)
	if err != nil {
		h.log(r.Context(), "Preview", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "invalid period", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidQuery)
		return
	}

	params := application.PreviewImportParams{Principal: principal, Period: period}
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		params.File = file
	case errors.Is(err, http.ErrMissingFile):
	default:
		h.log(r.Context(), "Preview", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to open upload", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	attrs := []any{"principal_id", principal.UserID}
	if header != nil {
		attrs = append(attrs, "file_name", header.Filename, "file_size", header.Size)
	}
	logger := h.log(r.Context(), "Preview", attrs...)

	preview, err := h.service.Preview(r.Context(), params)
	if err != nil {
		logger.ErrorContext(r.Context(), "import preview failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("preview_token", preview.Token, "draft_count", len(preview.Drafts)).InfoContext(r.Context(), "import previewed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toPreviewResponse(preview))
}

func (h *ImportHandler) Commit(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token := strings.TrimSpace(r.PathValue("token"))
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Commit", "principal_id", principal.UserID, "preview_token", token)

	result, err := h.service.Commit(r.Context(), principal, token)
	if err != nil {
		logger.ErrorContext(r.Context(), "import commit failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("reservation_count", len(result.ReservationIDs)).InfoContext(r.Context(), "import committed")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, commitResponse{
		ReservationIDs: result.ReservationIDs,
		Count:          len(result.ReservationIDs),
	})
}

func (h *ImportHandler) Discard(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token := strings.TrimSpace(r.PathValue("token"))
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Discard", "principal_id", principal.UserID, "preview_token", token)
	if err := h.service.Discard(r.Context(), principal, token); err != nil {
		logger.ErrorContext(r.Context(), "import discard failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "import discarded")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *ImportHandler) parsePeriod(r *http.Request) (importer.Period, error) {
	var period importer.Period
	for _, field := range []struct {
		name   string
		target *time.Time
	}{
		{"period_start", &period.Start},
		{"period_end", &period.End},
	} {
		raw := strings.TrimSpace(r.FormValue(field.name))
		if raw == "" {
			continue
		}
		t, err := time.ParseInLocation(dateLayout, raw, h.location)
		if err != nil {
			return importer.Period{}, err
		}
		*field.target = t
	}
	return period, nil
}

type previewResponse struct {
	Token          string         `json:"token"`
	ExpiresAt      string         `json:"expires_at"`
	MappingVersion string         `json:"mapping_version"`
	Drafts         []draftDTO     `json:"drafts"`
	Failures       []failureDTO   `json:"failures"`
	Collisions     []collisionDTO `json:"collisions"`
	Duplicates     int            `json:"duplicates"`
}

type draftDTO struct {
	Key          string   `json:"key"`
	Row          int      `json:"row"`
	ResourceCode string   `json:"resource_code"`
	LabID        string   `json:"lab_id"`
	LabName      string   `json:"lab_name"`
	Subject      string   `json:"subject"`
	Start        string   `json:"start"`
	End          string   `json:"end"`
	Class        classDTO `json:"class"`
}

type failureDTO struct {
	Row     int    `json:"row"`
	Code    string `json:"code,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type collisionDTO struct {
	FirstKey  string `json:"first_key"`
	SecondKey string `json:"second_key"`
	LabID     string `json:"lab_id"`
}

type commitResponse struct {
	ReservationIDs []string `json:"reservation_ids"`
	Count          int      `json:"count"`
}

func toPreviewResponse(p application.ImportPreview) previewResponse {
	resp := previewResponse{
		Token:          p.Token,
		ExpiresAt:      formatTime(p.ExpiresAt),
		MappingVersion: p.MappingVersion,
		Drafts:         make([]draftDTO, 0, len(p.Drafts)),
		Failures:       make([]failureDTO, 0, len(p.Failures)),
		Collisions:     make([]collisionDTO, 0, len(p.Collisions)),
		Duplicates:     p.Duplicates,
	}
	for _, d := range p.Drafts {
		resp.Drafts = append(resp.Drafts, draftDTO{
			Key:          d.Key,
			Row:          d.Row,
			ResourceCode: d.ResourceCode,
			LabID:        d.LabID,
			LabName:      d.LabName,
			Subject:      d.Subject,
			Start:        formatTime(d.Interval.Start),
			End:          formatTime(d.Interval.End),
			Class: classDTO{
				Faculty:        d.Class.Faculty,
				Career:         d.Class.Career,
				InstructorID:   d.Class.InstructorID,
				InstructorName: d.Class.InstructorName,
				Section:        d.Class.Section,
				Enrolled:       d.Class.Enrolled,
			},
		})
	}
	for _, f := range p.Failures {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		resp.Failures = append(resp.Failures, failureDTO{Row: f.Row, Code: f.Code, Kind: f.Kind(), Message: msg})
	}
	for _, c := range p.Collisions {
		resp.Collisions = append(resp.Collisions, collisionDTO{
			FirstKey:  c.First.Key,
			SecondKey: c.Second.Key,
			LabID:     c.First.LabID,
		})
	}
	return resp
}
