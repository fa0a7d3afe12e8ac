package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/example/lab-portal/internal/application"
	"github.com/example/lab-portal/internal/persistence"
	"github.com/example/lab-portal/internal/persistence/memory"
	"github.com/example/lab-portal/internal/testfixtures"
)

type caller struct {
	id    string
	email string
	role  string
}

var (
	adminCaller   = caller{id: "admin-1", email: "admin@uni.example", role: "admin"}
	studentCaller = caller{id: "student-1", email: "ana@uni.example", role: "student"}
	otherStudent  = caller{id: "student-2", email: "luis@uni.example", role: "student"}
)

type testAPI struct {
	t       *testing.T
	handler http.Handler
	factory *testfixtures.ServiceFactory
	store   persistence.Store
}

func newTestAPI(t *testing.T, mode application.BookingMode) *testAPI {
	t.Helper()

	store := memory.New()
	factory := testfixtures.NewServiceFactory(store)
	handler := NewRouter(RouterConfig{
		Labs:         NewLabHandler(factory.NewLabService(), nil),
		Equipment:    NewEquipmentHandler(factory.NewEquipmentService(), nil),
		Reservations: NewReservationHandler(factory.NewReservationService(mode), time.UTC, nil),
		Imports:      NewImportHandler(factory.NewImportService(), time.UTC, nil),
		Middleware:   []func(http.Handler) http.Handler{RequireIdentity(nil)},
	})
	return &testAPI{t: t, handler: handler, factory: factory, store: store}
}

func (a *testAPI) do(c caller, method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.send(c, req)
}

func (a *testAPI) send(c caller, req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set(HeaderUserID, c.id)
	req.Header.Set(HeaderUserEmail, c.email)
	req.Header.Set(HeaderUserRole, c.role)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) createLab(name string) labDTO {
	a.t.Helper()
	rec := a.do(adminCaller, http.MethodPost, "/labs", map[string]string{"name": name, "location": "Edificio B"})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp labResponse
	decode(a.t, rec, &resp)
	return resp.Lab
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestLabHandlers(t *testing.T) {
	t.Parallel()

	t.Run("admin creates and lists labs", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, application.BookingBestEffort)

		lab := api.createLab("Laboratorio de Redes")
		assert.Equal(t, "available", lab.Status)

		rec := api.do(studentCaller, http.MethodGet, "/labs", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var list listLabsResponse
		decode(t, rec, &list)
		require.Len(t, list.Labs, 1)
		assert.Equal(t, lab.ID, list.Labs[0].ID)
	})

	t.Run("students cannot mutate labs", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, application.BookingBestEffort)

		rec := api.do(studentCaller, http.MethodPost, "/labs", map[string]string{"name": "Química", "location": "Edificio A"})
		require.Equal(t, http.StatusForbidden, rec.Code)
		var body errorResponse
		decode(t, rec, &body)
		assert.Equal(t, "AUTH_FORBIDDEN", body.ErrorCode)
	})

	t.Run("validation errors are localized", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, application.BookingBestEffort)

		rec := api.do(adminCaller, http.MethodPost, "/labs", map[string]string{"location": "Edificio A"})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		var body errorResponse
		decode(t, rec, &body)
		assert.Equal(t, "El nombre es obligatorio.", body.Errors["name"])
	})

	t.Run("duplicate names conflict", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, application.BookingBestEffort)
		api.createLab("Física")

		rec := api.do(adminCaller, http.MethodPost, "/labs", map[string]string{"name": "física", "location": "Edificio C"})
		require.Equal(t, http.StatusConflict, rec.Code)
		var body errorResponse
		decode(t, rec, &body)
		assert.Equal(t, "ALREADY_EXISTS", body.ErrorCode)
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, application.BookingBestEffort)

		req := httptest.NewRequest(http.MethodPost, "/labs", strings.NewReader("{"))
		rec := api.send(adminCaller, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unsupported methods answer 405", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, application.BookingBestEffort)

		rec := api.do(adminCaller, http.MethodPatch, "/labs", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))
	})

	t.Run("statuses reflect current reservations", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, application.BookingBestEffort)
		busy := api.createLab("Biología")
		api.createLab("Cómputo")

		rec := api.do(studentCaller, http.MethodPost, "/reservations", map[string]any{
			"lab_id":  busy.ID,
			"purpose": "Práctica",
			"start":   api.factory.Clock.Now().Add(time.Minute),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		api.factory.Clock.Advance(30 * time.Minute)

		rec = api.do(studentCaller, http.MethodGet, "/labs/status", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp listLabStatusesResponse
		decode(t, rec, &resp)

		statuses := map[string]string{}
		for _, s := range resp.Labs {
			statuses[s.Lab.Name] = s.Status
		}
		assert.Equal(t, map[string]string{"Biología": "occupied", "Cómputo": "available"}, statuses)
	})
}

func TestEquipmentHandlers(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, application.BookingBestEffort)
	lab := api.createLab("Electrónica")

	rec := api.do(adminCaller, http.MethodPost, "/labs/"+lab.ID+"/equipment", map[string]any{
		"name": "Osciloscopio", "quantity": 5, "alert_threshold": 2,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created equipmentResponse
	decode(t, rec, &created)
	assert.False(t, created.Equipment.LowStock)

	rec = api.do(adminCaller, http.MethodPut, "/equipment/"+created.Equipment.ID, map[string]any{
		"name": "Osciloscopio", "quantity": 2, "alert_threshold": 2,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated equipmentResponse
	decode(t, rec, &updated)
	assert.True(t, updated.Equipment.LowStock)

	rec = api.do(adminCaller, http.MethodPost, "/labs/"+lab.ID+"/equipment", map[string]any{
		"name": "Multímetro", "quantity": -1,
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var invalid errorResponse
	decode(t, rec, &invalid)
	assert.Equal(t, "La cantidad no puede ser negativa.", invalid.Errors["quantity"])

	rec = api.do(studentCaller, http.MethodGet, "/labs/"+lab.ID+"/equipment", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list listEquipmentResponse
	decode(t, rec, &list)
	require.Len(t, list.Equipment, 1)

	rec = api.do(adminCaller, http.MethodGet, "/inventory-log?item_id="+created.Equipment.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history inventoryLogResponse
	decode(t, rec, &history)
	require.Len(t, history.Changes, 2)
	assert.Equal(t, "updated", history.Changes[0].Kind)
	assert.Equal(t, -3, history.Changes[0].QuantityDelta)

	rec = api.do(adminCaller, http.MethodGet, "/inventory-log?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(adminCaller, http.MethodDelete, "/equipment/"+created.Equipment.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(adminCaller, http.MethodDelete, "/equipment/"+created.Equipment.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReservationHandlers(t *testing.T) {
	t.Parallel()

	for _, mode := range []application.BookingMode{application.BookingBestEffort, application.BookingTransactional} {
		mode := mode
		t.Run(string(mode), func(t *testing.T) {
			t.Parallel()
			api := newTestAPI(t, mode)
			lab := api.createLab("Redes")
			start := api.factory.Clock.Now().Add(2 * time.Hour)

			rec := api.do(studentCaller, http.MethodPost, "/reservations", map[string]any{
				"lab_id": lab.ID, "purpose": "Práctica de enrutamiento", "start": start,
			})
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
			var booked reservationResponse
			decode(t, rec, &booked)
			assert.Equal(t, formatTime(start.Add(application.DefaultSlot)), booked.Reservation.End)

			rec = api.do(otherStudent, http.MethodPost, "/reservations", map[string]any{
				"lab_id": lab.ID, "purpose": "Tutoría", "start": start.Add(time.Hour), "end": start.Add(2 * time.Hour),
			})
			require.Equal(t, http.StatusConflict, rec.Code)
			var conflict errorResponse
			decode(t, rec, &conflict)
			assert.Equal(t, "RESERVATION_CONFLICT", conflict.ErrorCode)
			require.NotNil(t, conflict.Conflict)
			assert.Equal(t, booked.Reservation.ID, conflict.Conflict.ReservationID)

			rec = api.do(otherStudent, http.MethodPost, "/reservations", map[string]any{
				"lab_id": lab.ID, "purpose": "Repaso", "start": api.factory.Clock.Now().Add(-time.Hour),
			})
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			var past errorResponse
			decode(t, rec, &past)
			assert.Equal(t, "PAST_SLOT", past.ErrorCode)

			rec = api.do(otherStudent, http.MethodDelete, "/reservations/"+booked.Reservation.ID, nil)
			assert.Equal(t, http.StatusForbidden, rec.Code)

			rec = api.do(studentCaller, http.MethodGet, "/reservations/mine", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			var mine listReservationsResponse
			decode(t, rec, &mine)
			require.Len(t, mine.Reservations, 1)
			assert.Equal(t, booked.Reservation.ID, mine.Reservations[0].ID)

			rec = api.do(studentCaller, http.MethodGet, "/reservations/mine?scope=past", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			decode(t, rec, &mine)
			assert.Empty(t, mine.Reservations)

			rec = api.do(studentCaller, http.MethodDelete, "/reservations/"+booked.Reservation.ID, nil)
			assert.Equal(t, http.StatusNoContent, rec.Code)

			rec = api.do(studentCaller, http.MethodDelete, "/reservations/"+booked.Reservation.ID, nil)
			assert.Equal(t, http.StatusNotFound, rec.Code)
		})
	}
}

func TestReservationQueries(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, application.BookingBestEffort)
	lab := api.createLab("Química")
	now := api.factory.Clock.Now()

	for _, offset := range []time.Duration{time.Hour, 26 * time.Hour} {
		rec := api.do(studentCaller, http.MethodPost, "/reservations", map[string]any{
			"lab_id": lab.ID, "purpose": "Laboratorio", "start": now.Add(offset),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := api.do(studentCaller, http.MethodGet, "/reservations/mine?from="+now.Format(dateLayout), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine listReservationsResponse
	decode(t, rec, &mine)
	assert.Len(t, mine.Reservations, 1, "a lone from selects a single day")

	rec = api.do(studentCaller, http.MethodGet, "/reservations/mine?from=08-01-2024", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(studentCaller, http.MethodGet, "/reservations/mine?scope=later", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = api.do(studentCaller, http.MethodGet, "/labs/"+lab.ID+"/reservations?to="+now.Add(2*time.Hour).Format(time.RFC3339), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing labReservationsResponse
	decode(t, rec, &listing)
	assert.Len(t, listing.Reservations, 1)
	assert.Empty(t, listing.Overlaps)

	rec = api.do(studentCaller, http.MethodGet, "/reservations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all listReservationsResponse
	decode(t, rec, &all)
	assert.Len(t, all.Reservations, 2)

	rec = api.do(studentCaller, http.MethodGet, "/labs/missing/reservations", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(studentCaller, http.MethodGet, "/labs/"+lab.ID+"/calendar.ics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "BEGIN:VCALENDAR")
	assert.Contains(t, rec.Body.String(), "BEGIN:VEVENT")
}

func TestImportHandlers(t *testing.T) {
	t.Parallel()

	t.Run("preview then commit", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, application.BookingBestEffort)
		api.createLab("Laboratorio de Redes")

		rec := api.send(adminCaller, importRequest(t, "2024-01-01", "2024-01-14",
			[]any{"SN/RD", "13", "2:00 PM", "Redes I", "0801", "M. López"},
			[]any{"XX/00", "2", "7:00 AM", "Cálculo", "0900", "R. Díaz"},
		))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var preview previewResponse
		decode(t, rec, &preview)
		assert.NotEmpty(t, preview.Token)
		assert.Len(t, preview.Drafts, 4)
		require.Len(t, preview.Failures, 1)
		assert.Equal(t, "unknown_code", preview.Failures[0].Kind)

		rec = api.do(adminCaller, http.MethodPost, "/imports/"+preview.Token+"/commit", nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var committed commitResponse
		decode(t, rec, &committed)
		assert.Equal(t, 4, committed.Count)

		rec = api.do(adminCaller, http.MethodPost, "/imports/"+preview.Token+"/commit", nil)
		require.Equal(t, http.StatusGone, rec.Code)
		var gone errorResponse
		decode(t, rec, &gone)
		assert.Equal(t, "IMPORT_PREVIEW_EXPIRED", gone.ErrorCode)

		stored, err := api.store.ListReservations(context.Background(), persistence.ReservationFilter{})
		require.NoError(t, err)
		assert.Len(t, stored, 4)
	})

	t.Run("requires administrator", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, application.BookingBestEffort)

		rec := api.send(studentCaller, importRequest(t, "2024-01-01", "2024-01-14"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("missing file and period are validation errors", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, application.BookingBestEffort)

		var buf bytes.Buffer
		form := multipart.NewWriter(&buf)
		require.NoError(t, form.WriteField("period_end", "2024-01-14"))
		require.NoError(t, form.Close())
		req := httptest.NewRequest(http.MethodPost, "/imports", &buf)
		req.Header.Set("Content-Type", form.FormDataContentType())

		rec := api.send(adminCaller, req)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		var body errorResponse
		decode(t, rec, &body)
		assert.Equal(t, "Debe adjuntar el archivo de carga académica.", body.Errors["file"])
		assert.Equal(t, "El inicio del periodo es obligatorio.", body.Errors["period_start"])
	})

	t.Run("discard forgets the preview", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, application.BookingBestEffort)
		api.createLab("Laboratorio de Redes")

		rec := api.send(adminCaller, importRequest(t, "2024-01-01", "2024-01-14",
			[]any{"SN/RD", "13", "2:00 PM", "Redes I", "0801", "M. López"},
		))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var preview previewResponse
		decode(t, rec, &preview)

		rec = api.do(adminCaller, http.MethodDelete, "/imports/"+preview.Token, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = api.do(adminCaller, http.MethodPost, "/imports/"+preview.Token+"/commit", nil)
		assert.Equal(t, http.StatusGone, rec.Code)
	})
}

type unavailableLabs struct{}

func (unavailableLabs) CreateLab(context.Context, application.CreateLabParams) (application.Lab, error) {
	return application.Lab{}, fmt.Errorf("insert lab: %w", persistence.ErrUnavailable)
}

func (unavailableLabs) UpdateLab(context.Context, application.UpdateLabParams) (application.Lab, error) {
	return application.Lab{}, persistence.ErrUnavailable
}

func (unavailableLabs) DeleteLab(context.Context, application.Principal, string) error {
	return persistence.ErrUnavailable
}

func (unavailableLabs) ListLabs(context.Context, application.Principal) ([]application.Lab, error) {
	return nil, fmt.Errorf("list labs: %w", persistence.ErrUnavailable)
}

func (unavailableLabs) ListStatuses(context.Context, application.Principal) ([]application.LabStatusView, error) {
	return nil, persistence.ErrUnavailable
}

func TestUnavailableStoreMapsTo503(t *testing.T) {
	t.Parallel()

	handler := NewRouter(RouterConfig{Labs: NewLabHandler(unavailableLabs{}, nil)})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/labs", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	var body errorResponse
	decode(t, rec, &body)
	assert.Equal(t, "STORE_UNAVAILABLE", body.ErrorCode)
}

func importRequest(t *testing.T, periodStart, periodEnd string, rows ...[]any) *http.Request {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	header := []any{"espacio_aprendizaje", "dias_habiles", "hora", "nombre_materia", "seccion", "nombre"}
	require.NoError(t, f.SetSheetRow(sheet, "A1", &header))
	for i, row := range rows {
		values := row
		require.NoError(t, f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &values))
	}
	sheetBuf, err := f.WriteToBuffer()
	require.NoError(t, err)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	require.NoError(t, form.WriteField("period_start", periodStart))
	require.NoError(t, form.WriteField("period_end", periodEnd))
	part, err := form.CreateFormFile("file", "carga.xlsx")
	require.NoError(t, err)
	_, err = io.Copy(part, sheetBuf)
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/imports", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	return req
}
