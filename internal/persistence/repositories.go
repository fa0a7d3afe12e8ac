package persistence

import (
	"context"
	"time"
)

// LabRepository exposes CRUD operations for labs. Deleting a lab removes its
// equipment and reservations.
type LabRepository interface {
	CreateLab(ctx context.Context, lab Lab) error
	UpdateLab(ctx context.Context, lab Lab) error
	GetLab(ctx context.Context, id string) (Lab, error)
	ListLabs(ctx context.Context) ([]Lab, error)
	DeleteLab(ctx context.Context, id string) error
}

// EquipmentRepository exposes CRUD operations for lab inventory.
type EquipmentRepository interface {
	CreateEquipment(ctx context.Context, item Equipment) error
	UpdateEquipment(ctx context.Context, item Equipment) error
	GetEquipment(ctx context.Context, id string) (Equipment, error)
	ListEquipment(ctx context.Context, labID string) ([]Equipment, error)
	DeleteEquipment(ctx context.Context, id string) error
}

// InventoryFilter narrows inventory log queries.
type InventoryFilter struct {
	LabID  string
	ItemID string
	Limit  int
}

// InventoryLogRepository appends and reads the inventory change log.
// Entries are never modified once written.
type InventoryLogRepository interface {
	AppendInventoryChange(ctx context.Context, change InventoryChange) error
	ListInventoryChanges(ctx context.Context, filter InventoryFilter) ([]InventoryChange, error)
}

// ReservationFilter narrows reservation queries. From and To select
// reservations overlapping the half-open window [From, To).
type ReservationFilter struct {
	LabID   string
	OwnerID string
	From    *time.Time
	To      *time.Time
}

// ReservationRepository stores reservations.
type ReservationRepository interface {
	CreateReservation(ctx context.Context, reservation Reservation) error
	// CreateReservations stores every reservation or none of them.
	CreateReservations(ctx context.Context, reservations []Reservation) error
	// CreateReservationIfFree checks for an overlapping reservation of the
	// same lab and inserts in one atomic step. An overlap yields *OverlapError.
	CreateReservationIfFree(ctx context.Context, reservation Reservation) error
	GetReservation(ctx context.Context, id string) (Reservation, error)
	ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error)
	DeleteReservation(ctx context.Context, id string) error
}

// OutboxRepository queues notifications for an external relay.
type OutboxRepository interface {
	EnqueueOutboxMessage(ctx context.Context, msg OutboxMessage) error
	ListPendingOutboxMessages(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxMessageDelivered(ctx context.Context, id string, deliveredAt time.Time) error
}

// Store groups every repository backed by one storage engine.
type Store interface {
	LabRepository
	EquipmentRepository
	InventoryLogRepository
	ReservationRepository
	OutboxRepository
	Close() error
}
