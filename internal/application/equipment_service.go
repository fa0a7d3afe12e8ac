package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/lab-portal/internal/notify"
	"github.com/example/lab-portal/internal/persistence"
)

const defaultInventoryLogLimit = 200

// EquipmentRepository captures the persistence operations needed for equipment.
type EquipmentRepository interface {
	CreateEquipment(ctx context.Context, item Equipment) (Equipment, error)
	GetEquipment(ctx context.Context, id string) (Equipment, error)
	UpdateEquipment(ctx context.Context, item Equipment) (Equipment, error)
	DeleteEquipment(ctx context.Context, id string) error
	ListEquipment(ctx context.Context, labID string) ([]Equipment, error)
}

// InventoryLog is the append-only inventory history.
type InventoryLog interface {
	AppendInventoryChange(ctx context.Context, change InventoryChange) error
	ListInventoryChanges(ctx context.Context, filter InventoryLogFilter) ([]InventoryChange, error)
}

// EquipmentService manages lab inventory and records every mutation in the
// inventory log.
type EquipmentService struct {
	equipment   EquipmentRepository
	labs        LabRepository
	log         InventoryLog
	publisher   notify.Publisher
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewEquipmentService constructs an equipment service with the provided dependencies.
func NewEquipmentService(equipment EquipmentRepository, labs LabRepository, log InventoryLog, publisher notify.Publisher, idGenerator func() string, now func() time.Time) *EquipmentService {
	return NewEquipmentServiceWithLogger(equipment, labs, log, publisher, idGenerator, now, nil)
}

// NewEquipmentServiceWithLogger constructs an equipment service with a specified logger.
func NewEquipmentServiceWithLogger(equipment EquipmentRepository, labs LabRepository, log InventoryLog, publisher notify.Publisher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *EquipmentService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &EquipmentService{
		equipment:   equipment,
		labs:        labs,
		log:         log,
		publisher:   publisher,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *EquipmentService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EquipmentService", operation, attrs...)
}

// CreateEquipment adds an item to a lab and logs the addition.
func (s *EquipmentService) CreateEquipment(ctx context.Context, params CreateEquipmentParams) (item Equipment, err error) {
	if s == nil {
		err = fmt.Errorf("EquipmentService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateEquipment",
		"principal_id", params.Principal.UserID,
		"lab_id", params.LabID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create equipment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("equipment_id", item.ID).InfoContext(ctx, "equipment created")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.equipment == nil || s.labs == nil {
		err = fmt.Errorf("equipment repository not configured")
		return
	}

	input := normalizeEquipmentInput(params.Input)
	if vErr := validateEquipmentInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	var lab Lab
	lab, err = s.labs.GetLab(ctx, params.LabID)
	if err != nil {
		err = mapLabRepoError(err)
		return
	}

	item = Equipment{
		ID:             s.idGenerator(),
		LabID:          lab.ID,
		Name:           input.Name,
		Quantity:       input.Quantity,
		Status:         input.Status,
		AlertThreshold: input.AlertThreshold,
		CreatedAt:      s.now(),
	}
	item.UpdatedAt = item.CreatedAt

	item, err = s.equipment.CreateEquipment(ctx, item)
	if err != nil {
		err = mapEquipmentRepoError(err)
		return
	}

	s.record(ctx, logger, lab, item, InventoryAdded, item.Quantity, params.Principal)
	return
}

// UpdateEquipment replaces the editable fields of an item, logs the change
// and publishes a low stock event when the quantity crosses the threshold.
func (s *EquipmentService) UpdateEquipment(ctx context.Context, params UpdateEquipmentParams) (item Equipment, err error) {
	if s == nil {
		err = fmt.Errorf("EquipmentService is nil")
		return
	}
	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.equipment == nil || s.labs == nil {
		err = fmt.Errorf("equipment repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateEquipment",
		"principal_id", params.Principal.UserID,
		"equipment_id", params.EquipmentID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update equipment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("quantity", item.Quantity).InfoContext(ctx, "equipment updated")
	}()

	var existing Equipment
	existing, err = s.equipment.GetEquipment(ctx, params.EquipmentID)
	if err != nil {
		err = mapEquipmentRepoError(err)
		return
	}

	input := normalizeEquipmentInput(params.Input)
	if vErr := validateEquipmentInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	var lab Lab
	lab, err = s.labs.GetLab(ctx, existing.LabID)
	if err != nil {
		err = mapLabRepoError(err)
		return
	}

	updated := existing
	updated.Name = input.Name
	updated.Quantity = input.Quantity
	updated.Status = input.Status
	updated.AlertThreshold = input.AlertThreshold
	updated.UpdatedAt = s.now()

	item, err = s.equipment.UpdateEquipment(ctx, updated)
	if err != nil {
		err = mapEquipmentRepoError(err)
		return
	}

	s.record(ctx, logger, lab, item, InventoryUpdated, item.Quantity-existing.Quantity, params.Principal)

	if notify.CrossedThreshold(existing.Quantity, item.Quantity, item.AlertThreshold) {
		s.publish(ctx, logger, notify.Event{
			Kind:       notify.KindLowStock,
			OccurredAt: item.UpdatedAt,
			LowStock: &notify.LowStock{
				EquipmentID: item.ID,
				Name:        item.Name,
				LabID:       lab.ID,
				LabName:     lab.Name,
				OldQuantity: existing.Quantity,
				NewQuantity: item.Quantity,
				Threshold:   item.AlertThreshold,
			},
		})
	}
	return
}

// DeleteEquipment removes an item and logs its remaining quantity as removed.
func (s *EquipmentService) DeleteEquipment(ctx context.Context, principal Principal, equipmentID string) (err error) {
	if s == nil {
		return fmt.Errorf("EquipmentService is nil")
	}
	if !principal.IsAdmin {
		return ErrUnauthorized
	}
	if s.equipment == nil || s.labs == nil {
		return fmt.Errorf("equipment repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteEquipment",
		"principal_id", principal.UserID,
		"equipment_id", equipmentID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete equipment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "equipment deleted")
	}()

	var existing Equipment
	existing, err = s.equipment.GetEquipment(ctx, equipmentID)
	if err != nil {
		return mapEquipmentRepoError(err)
	}
	var lab Lab
	lab, err = s.labs.GetLab(ctx, existing.LabID)
	if err != nil {
		return mapLabRepoError(err)
	}

	if err = s.equipment.DeleteEquipment(ctx, equipmentID); err != nil {
		return mapEquipmentRepoError(err)
	}

	removed := existing
	removed.Quantity = 0
	s.record(ctx, logger, lab, removed, InventoryDeleted, -existing.Quantity, principal)
	return nil
}

// ListEquipment returns the inventory of a lab ordered by name.
func (s *EquipmentService) ListEquipment(ctx context.Context, principal Principal, labID string) (items []Equipment, err error) {
	if s == nil {
		err = fmt.Errorf("EquipmentService is nil")
		return
	}
	if s.equipment == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListEquipment",
		"principal_id", principal.UserID,
		"lab_id", labID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list equipment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(items)).InfoContext(ctx, "equipment listed")
	}()

	if s.labs != nil {
		if _, err = s.labs.GetLab(ctx, labID); err != nil {
			err = mapLabRepoError(err)
			return
		}
	}

	var raw []Equipment
	raw, err = s.equipment.ListEquipment(ctx, labID)
	if err != nil {
		err = mapEquipmentRepoError(err)
		return
	}
	items = make([]Equipment, len(raw))
	copy(items, raw)
	sort.SliceStable(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return
}

// InventoryHistory returns inventory log entries, newest first, for administrators.
func (s *EquipmentService) InventoryHistory(ctx context.Context, principal Principal, filter InventoryLogFilter) (changes []InventoryChange, err error) {
	if s == nil {
		err = fmt.Errorf("EquipmentService is nil")
		return
	}
	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.log == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "InventoryHistory",
		"principal_id", principal.UserID,
		"lab_id", filter.LabID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list inventory history", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(changes)).InfoContext(ctx, "inventory history listed")
	}()

	if filter.Limit <= 0 {
		filter.Limit = defaultInventoryLogLimit
	}
	changes, err = s.log.ListInventoryChanges(ctx, filter)
	return
}

// record appends an inventory log entry. The mutation has already been
// stored, so a failed append is logged and not returned.
func (s *EquipmentService) record(ctx context.Context, logger *slog.Logger, lab Lab, item Equipment, kind InventoryChangeKind, delta int, actor Principal) {
	if s.log == nil {
		return
	}
	change := InventoryChange{
		ID:            s.idGenerator(),
		LabID:         lab.ID,
		LabName:       lab.Name,
		ItemID:        item.ID,
		ItemName:      item.Name,
		Kind:          kind,
		QuantityDelta: delta,
		NewQuantity:   item.Quantity,
		ActorEmail:    actor.Email,
		RecordedAt:    s.now(),
	}
	if err := s.log.AppendInventoryChange(ctx, change); err != nil {
		logger.WarnContext(ctx, "failed to append inventory change", "error", err, "change_kind", string(kind))
	}
}

func (s *EquipmentService) publish(ctx context.Context, logger *slog.Logger, event notify.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.WarnContext(ctx, "failed to publish notification", "error", err, "event_kind", string(event.Kind))
	}
}

func normalizeEquipmentInput(input EquipmentInput) EquipmentInput {
	input.Name = strings.TrimSpace(input.Name)
	if input.Status == "" {
		input.Status = EquipmentAvailable
	}
	return input
}

func validateEquipmentInput(input EquipmentInput) *ValidationError {
	vErr := &ValidationError{}

	if input.Name == "" {
		vErr.add("name", "name is required")
	}
	if input.Quantity < 0 {
		vErr.add("quantity", "quantity must not be negative")
	}
	if input.AlertThreshold < 0 {
		vErr.add("alert_threshold", "alert threshold must not be negative")
	}
	if !input.Status.Valid() {
		vErr.add("status", "status must be available, in_maintenance or out_of_service")
	}

	return vErr
}

func mapEquipmentRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		return fieldError("lab_id", "lab does not exist")
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		return fieldError("quantity", "quantity and alert threshold must not be negative")
	}
	return err
}
