package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/lab-portal/internal/interval"
	"github.com/example/lab-portal/internal/labstatus"
	"github.com/example/lab-portal/internal/persistence"
)

// LabRepository captures the persistence operations needed for labs.
type LabRepository interface {
	CreateLab(ctx context.Context, lab Lab) (Lab, error)
	GetLab(ctx context.Context, id string) (Lab, error)
	UpdateLab(ctx context.Context, lab Lab) (Lab, error)
	DeleteLab(ctx context.Context, id string) error
	ListLabs(ctx context.Context) ([]Lab, error)
}

// ReservationReader lists stored reservations.
type ReservationReader interface {
	ListReservations(ctx context.Context, filter ReservationRepositoryFilter) ([]Reservation, error)
}

// LabService orchestrates validation, authorization, and persistence for labs.
type LabService struct {
	labs         LabRepository
	reservations ReservationReader
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewLabService constructs a lab service with the provided dependencies.
func NewLabService(labs LabRepository, reservations ReservationReader, idGenerator func() string, now func() time.Time) *LabService {
	return NewLabServiceWithLogger(labs, reservations, idGenerator, now, nil)
}

// NewLabServiceWithLogger constructs a lab service with a specified logger.
func NewLabServiceWithLogger(labs LabRepository, reservations ReservationReader, idGenerator func() string, now func() time.Time, logger *slog.Logger) *LabService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &LabService{
		labs:         labs,
		reservations: reservations,
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

func (s *LabService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "LabService", operation, attrs...)
}

// CreateLab validates input and persists a new lab for administrators.
func (s *LabService) CreateLab(ctx context.Context, params CreateLabParams) (lab Lab, err error) {
	if s == nil {
		err = fmt.Errorf("LabService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateLab",
		"principal_id", params.Principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create lab", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("lab_id", lab.ID).InfoContext(ctx, "lab created")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	input := normalizeLabInput(params.Input)
	if vErr := validateLabInput(input); vErr.HasErrors() {
		err = vErr
		return
	}
	if s.labs == nil {
		err = fmt.Errorf("lab repository not configured")
		return
	}

	lab = Lab{
		ID:          s.idGenerator(),
		Name:        input.Name,
		Location:    input.Location,
		Description: input.Description,
		Status:      input.Status,
		CreatedAt:   s.now(),
	}
	lab.UpdatedAt = lab.CreatedAt

	lab, err = s.labs.CreateLab(ctx, lab)
	if err != nil {
		err = mapLabRepoError(err)
	}
	return
}

// UpdateLab validates input and replaces the editable fields of a lab.
func (s *LabService) UpdateLab(ctx context.Context, params UpdateLabParams) (lab Lab, err error) {
	if s == nil {
		err = fmt.Errorf("LabService is nil")
		return
	}
	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.labs == nil {
		err = fmt.Errorf("lab repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateLab",
		"principal_id", params.Principal.UserID,
		"lab_id", params.LabID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update lab", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("status", string(lab.Status)).InfoContext(ctx, "lab updated")
	}()

	var existing Lab
	existing, err = s.labs.GetLab(ctx, params.LabID)
	if err != nil {
		err = mapLabRepoError(err)
		return
	}

	input := normalizeLabInput(params.Input)
	if vErr := validateLabInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	updated := existing
	updated.Name = input.Name
	updated.Location = input.Location
	updated.Description = input.Description
	updated.Status = input.Status
	updated.UpdatedAt = s.now()

	lab, err = s.labs.UpdateLab(ctx, updated)
	if err != nil {
		err = mapLabRepoError(err)
	}
	return
}

// DeleteLab removes a lab. The store removes its equipment and reservations.
func (s *LabService) DeleteLab(ctx context.Context, principal Principal, labID string) error {
	if s == nil {
		return fmt.Errorf("LabService is nil")
	}
	if !principal.IsAdmin {
		return ErrUnauthorized
	}
	if s.labs == nil {
		return fmt.Errorf("lab repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteLab",
		"principal_id", principal.UserID,
		"lab_id", labID,
	)

	if err := s.labs.DeleteLab(ctx, labID); err != nil {
		err = mapLabRepoError(err)
		logger.ErrorContext(ctx, "failed to delete lab", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "lab deleted")
	return nil
}

// GetLab returns a single lab.
func (s *LabService) GetLab(ctx context.Context, labID string) (Lab, error) {
	if s == nil || s.labs == nil {
		return Lab{}, fmt.Errorf("lab repository not configured")
	}
	lab, err := s.labs.GetLab(ctx, labID)
	if err != nil {
		return Lab{}, mapLabRepoError(err)
	}
	return lab, nil
}

// ListLabs returns every lab ordered by name.
func (s *LabService) ListLabs(ctx context.Context, principal Principal) (labs []Lab, err error) {
	if s == nil {
		err = fmt.Errorf("LabService is nil")
		return
	}
	if s.labs == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListLabs",
		"principal_id", principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list labs", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(labs)).InfoContext(ctx, "labs listed")
	}()

	labs, err = s.listSorted(ctx)
	return
}

// ListStatuses resolves the live status of every lab at the current instant.
func (s *LabService) ListStatuses(ctx context.Context, principal Principal) (views []LabStatusView, err error) {
	if s == nil {
		err = fmt.Errorf("LabService is nil")
		return
	}
	if s.labs == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListStatuses",
		"principal_id", principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to resolve lab statuses", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(views)).InfoContext(ctx, "lab statuses resolved")
	}()

	var labs []Lab
	labs, err = s.listSorted(ctx)
	if err != nil {
		return
	}

	now := s.now()
	active := make(map[string][]interval.Interval)
	if s.reservations != nil {
		// any reservation containing now overlaps [now, now+1ns)
		from, to := now, now.Add(time.Nanosecond)
		var current []Reservation
		current, err = s.reservations.ListReservations(ctx, ReservationRepositoryFilter{From: &from, To: &to})
		if err != nil {
			return
		}
		for _, r := range current {
			active[r.LabID] = append(active[r.LabID], interval.Interval{Start: r.Start, End: r.End})
		}
	}

	views = make([]LabStatusView, 0, len(labs))
	for _, lab := range labs {
		views = append(views, LabStatusView{
			Lab:    lab,
			Status: labstatus.Resolve(lab.Status, active[lab.ID], now),
		})
	}
	return
}

func (s *LabService) listSorted(ctx context.Context) ([]Lab, error) {
	raw, err := s.labs.ListLabs(ctx)
	if err != nil {
		return nil, err
	}
	labs := make([]Lab, len(raw))
	copy(labs, raw)
	sort.Slice(labs, func(i, j int) bool {
		if strings.EqualFold(labs[i].Name, labs[j].Name) {
			return labs[i].ID < labs[j].ID
		}
		return strings.ToLower(labs[i].Name) < strings.ToLower(labs[j].Name)
	})
	return labs, nil
}

func normalizeLabInput(input LabInput) LabInput {
	input.Name = strings.TrimSpace(input.Name)
	input.Location = strings.TrimSpace(input.Location)
	input.Description = strings.TrimSpace(input.Description)
	if input.Status == "" {
		input.Status = labstatus.LifecycleAvailable
	}
	return input
}

func validateLabInput(input LabInput) *ValidationError {
	vErr := &ValidationError{}

	if input.Name == "" {
		vErr.add("name", "name is required")
	}
	if input.Location == "" {
		vErr.add("location", "location is required")
	}
	if !input.Status.Valid() {
		vErr.add("status", "status must be available or under_maintenance")
	}

	return vErr
}

func mapLabRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		return fieldError("status", "status must be available or under_maintenance")
	}
	return err
}
