// Package adapters connects the persistence repositories to the ports the
// application services and the notifier depend on. Persistence models never
// leak past this package.
package adapters

import (
	"context"
	"time"

	"github.com/example/lab-portal/internal/application"
	"github.com/example/lab-portal/internal/labstatus"
	"github.com/example/lab-portal/internal/notify"
	"github.com/example/lab-portal/internal/persistence"
)

// Repositories bundles every application port backed by one store.
type Repositories struct {
	Labs         *LabRepository
	Equipment    *EquipmentRepository
	Inventory    *InventoryLog
	Reservations *ReservationRepository
	Outbox       *Outbox
}

// New adapts a persistence store.
func New(store persistence.Store) Repositories {
	return Repositories{
		Labs:         &LabRepository{repo: store},
		Equipment:    &EquipmentRepository{repo: store},
		Inventory:    &InventoryLog{repo: store},
		Reservations: &ReservationRepository{repo: store},
		Outbox:       &Outbox{repo: store},
	}
}

// LabRepository implements application.LabRepository.
type LabRepository struct {
	repo persistence.LabRepository
}

// NewLabRepository adapts a persistence lab repository.
func NewLabRepository(repo persistence.LabRepository) *LabRepository {
	return &LabRepository{repo: repo}
}

func (a *LabRepository) CreateLab(ctx context.Context, lab application.Lab) (application.Lab, error) {
	if err := a.repo.CreateLab(ctx, toPersistenceLab(lab)); err != nil {
		return application.Lab{}, err
	}
	return a.GetLab(ctx, lab.ID)
}

func (a *LabRepository) GetLab(ctx context.Context, id string) (application.Lab, error) {
	stored, err := a.repo.GetLab(ctx, id)
	if err != nil {
		return application.Lab{}, err
	}
	return toApplicationLab(stored), nil
}

func (a *LabRepository) UpdateLab(ctx context.Context, lab application.Lab) (application.Lab, error) {
	if err := a.repo.UpdateLab(ctx, toPersistenceLab(lab)); err != nil {
		return application.Lab{}, err
	}
	return a.GetLab(ctx, lab.ID)
}

func (a *LabRepository) DeleteLab(ctx context.Context, id string) error {
	return a.repo.DeleteLab(ctx, id)
}

func (a *LabRepository) ListLabs(ctx context.Context) ([]application.Lab, error) {
	models, err := a.repo.ListLabs(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	labs := make([]application.Lab, 0, len(models))
	for _, model := range models {
		labs = append(labs, toApplicationLab(model))
	}
	return labs, nil
}

// EquipmentRepository implements application.EquipmentRepository.
type EquipmentRepository struct {
	repo persistence.EquipmentRepository
}

// NewEquipmentRepository adapts a persistence equipment repository.
func NewEquipmentRepository(repo persistence.EquipmentRepository) *EquipmentRepository {
	return &EquipmentRepository{repo: repo}
}

func (a *EquipmentRepository) CreateEquipment(ctx context.Context, item application.Equipment) (application.Equipment, error) {
	if err := a.repo.CreateEquipment(ctx, toPersistenceEquipment(item)); err != nil {
		return application.Equipment{}, err
	}
	return a.GetEquipment(ctx, item.ID)
}

func (a *EquipmentRepository) GetEquipment(ctx context.Context, id string) (application.Equipment, error) {
	stored, err := a.repo.GetEquipment(ctx, id)
	if err != nil {
		return application.Equipment{}, err
	}
	return toApplicationEquipment(stored), nil
}

func (a *EquipmentRepository) UpdateEquipment(ctx context.Context, item application.Equipment) (application.Equipment, error) {
	if err := a.repo.UpdateEquipment(ctx, toPersistenceEquipment(item)); err != nil {
		return application.Equipment{}, err
	}
	return a.GetEquipment(ctx, item.ID)
}

func (a *EquipmentRepository) DeleteEquipment(ctx context.Context, id string) error {
	return a.repo.DeleteEquipment(ctx, id)
}

func (a *EquipmentRepository) ListEquipment(ctx context.Context, labID string) ([]application.Equipment, error) {
	models, err := a.repo.ListEquipment(ctx, labID)
	if err != nil {
		return nil, err
	}
	items := make([]application.Equipment, 0, len(models))
	for _, model := range models {
		items = append(items, toApplicationEquipment(model))
	}
	return items, nil
}

// InventoryLog implements application.InventoryLog.
type InventoryLog struct {
	repo persistence.InventoryLogRepository
}

// NewInventoryLog adapts a persistence inventory log.
func NewInventoryLog(repo persistence.InventoryLogRepository) *InventoryLog {
	return &InventoryLog{repo: repo}
}

func (a *InventoryLog) AppendInventoryChange(ctx context.Context, change application.InventoryChange) error {
	return a.repo.AppendInventoryChange(ctx, persistence.InventoryChange{
		ID:            change.ID,
		LabID:         change.LabID,
		LabName:       change.LabName,
		ItemID:        change.ItemID,
		ItemName:      change.ItemName,
		Kind:          string(change.Kind),
		QuantityDelta: change.QuantityDelta,
		NewQuantity:   change.NewQuantity,
		ActorEmail:    change.ActorEmail,
		RecordedAt:    change.RecordedAt,
	})
}

func (a *InventoryLog) ListInventoryChanges(ctx context.Context, filter application.InventoryLogFilter) ([]application.InventoryChange, error) {
	models, err := a.repo.ListInventoryChanges(ctx, persistence.InventoryFilter{
		LabID:  filter.LabID,
		ItemID: filter.ItemID,
		Limit:  filter.Limit,
	})
	if err != nil {
		return nil, err
	}
	changes := make([]application.InventoryChange, 0, len(models))
	for _, m := range models {
		changes = append(changes, application.InventoryChange{
			ID:            m.ID,
			LabID:         m.LabID,
			LabName:       m.LabName,
			ItemID:        m.ItemID,
			ItemName:      m.ItemName,
			Kind:          application.InventoryChangeKind(m.Kind),
			QuantityDelta: m.QuantityDelta,
			NewQuantity:   m.NewQuantity,
			ActorEmail:    m.ActorEmail,
			RecordedAt:    m.RecordedAt,
		})
	}
	return changes, nil
}

// ReservationRepository implements application.ReservationRepository.
type ReservationRepository struct {
	repo persistence.ReservationRepository
}

// NewReservationRepository adapts a persistence reservation repository.
func NewReservationRepository(repo persistence.ReservationRepository) *ReservationRepository {
	return &ReservationRepository{repo: repo}
}

func (a *ReservationRepository) CreateReservation(ctx context.Context, reservation application.Reservation) error {
	return a.repo.CreateReservation(ctx, toPersistenceReservation(reservation))
}

func (a *ReservationRepository) CreateReservations(ctx context.Context, reservations []application.Reservation) error {
	models := make([]persistence.Reservation, 0, len(reservations))
	for _, r := range reservations {
		models = append(models, toPersistenceReservation(r))
	}
	return a.repo.CreateReservations(ctx, models)
}

func (a *ReservationRepository) CreateReservationIfFree(ctx context.Context, reservation application.Reservation) error {
	return a.repo.CreateReservationIfFree(ctx, toPersistenceReservation(reservation))
}

func (a *ReservationRepository) GetReservation(ctx context.Context, id string) (application.Reservation, error) {
	stored, err := a.repo.GetReservation(ctx, id)
	if err != nil {
		return application.Reservation{}, err
	}
	return toApplicationReservation(stored), nil
}

func (a *ReservationRepository) ListReservations(ctx context.Context, filter application.ReservationRepositoryFilter) ([]application.Reservation, error) {
	models, err := a.repo.ListReservations(ctx, persistence.ReservationFilter{
		LabID:   filter.LabID,
		OwnerID: filter.OwnerID,
		From:    cloneTime(filter.From),
		To:      cloneTime(filter.To),
	})
	if err != nil {
		return nil, err
	}
	reservations := make([]application.Reservation, 0, len(models))
	for _, model := range models {
		reservations = append(reservations, toApplicationReservation(model))
	}
	return reservations, nil
}

func (a *ReservationRepository) DeleteReservation(ctx context.Context, id string) error {
	return a.repo.DeleteReservation(ctx, id)
}

// Outbox implements notify.Outbox on the store's outbox table.
type Outbox struct {
	repo persistence.OutboxRepository
}

// NewOutbox adapts a persistence outbox repository.
func NewOutbox(repo persistence.OutboxRepository) *Outbox {
	return &Outbox{repo: repo}
}

func (a *Outbox) EnqueueMessage(ctx context.Context, msg notify.Message) error {
	return a.repo.EnqueueOutboxMessage(ctx, persistence.OutboxMessage{
		ID:        msg.ID,
		Kind:      msg.Kind,
		Payload:   append([]byte(nil), msg.Payload...),
		CreatedAt: msg.CreatedAt,
	})
}

func toApplicationLab(model persistence.Lab) application.Lab {
	return application.Lab{
		ID:          model.ID,
		Name:        model.Name,
		Location:    model.Location,
		Description: model.Description,
		Status:      labstatus.Lifecycle(model.Status),
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func toPersistenceLab(lab application.Lab) persistence.Lab {
	return persistence.Lab{
		ID:          lab.ID,
		Name:        lab.Name,
		Location:    lab.Location,
		Description: lab.Description,
		Status:      string(lab.Status),
		CreatedAt:   lab.CreatedAt,
		UpdatedAt:   lab.UpdatedAt,
	}
}

func toApplicationEquipment(model persistence.Equipment) application.Equipment {
	return application.Equipment{
		ID:             model.ID,
		LabID:          model.LabID,
		Name:           model.Name,
		Quantity:       model.Quantity,
		Status:         application.EquipmentStatus(model.Status),
		AlertThreshold: model.AlertThreshold,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

func toPersistenceEquipment(item application.Equipment) persistence.Equipment {
	return persistence.Equipment{
		ID:             item.ID,
		LabID:          item.LabID,
		Name:           item.Name,
		Quantity:       item.Quantity,
		Status:         string(item.Status),
		AlertThreshold: item.AlertThreshold,
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
	}
}

func toApplicationReservation(model persistence.Reservation) application.Reservation {
	r := application.Reservation{
		ID:         model.ID,
		LabID:      model.LabID,
		LabName:    model.LabName,
		Kind:       application.ReservationKind(model.Kind),
		OwnerID:    model.OwnerID,
		OwnerEmail: model.OwnerEmail,
		Purpose:    model.Purpose,
		Start:      model.Start,
		End:        model.End,
		CreatedAt:  model.CreatedAt,
	}
	if model.ImportKey != nil {
		r.ImportKey = *model.ImportKey
	}
	if model.Class != nil {
		class := application.ClassDetails(*model.Class)
		r.Class = &class
	}
	return r
}

func toPersistenceReservation(r application.Reservation) persistence.Reservation {
	model := persistence.Reservation{
		ID:         r.ID,
		LabID:      r.LabID,
		LabName:    r.LabName,
		Kind:       string(r.Kind),
		OwnerID:    r.OwnerID,
		OwnerEmail: r.OwnerEmail,
		Purpose:    r.Purpose,
		Start:      r.Start,
		End:        r.End,
		CreatedAt:  r.CreatedAt,
	}
	if r.ImportKey != "" {
		key := r.ImportKey
		model.ImportKey = &key
	}
	if r.Class != nil {
		class := persistence.ClassDetails(*r.Class)
		model.Class = &class
	}
	return model
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}
