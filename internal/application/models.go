package application

import (
	"io"
	"time"

	"github.com/example/lab-portal/internal/importer"
	"github.com/example/lab-portal/internal/labstatus"
)

// BulkImportOwner is the owner recorded on reservations created by an import.
const BulkImportOwner = "bulk-import"

// Principal represents the user invoking a service method.
type Principal struct {
	UserID  string
	Email   string
	IsAdmin bool
}

// LabInput captures caller provided lab fields.
type LabInput struct {
	Name        string
	Location    string
	Description string
	Status      labstatus.Lifecycle
}

// Lab is a bookable laboratory.
type Lab struct {
	ID          string
	Name        string
	Location    string
	Description string
	Status      labstatus.Lifecycle
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateLabParams wraps the data required to create a lab.
type CreateLabParams struct {
	Principal Principal
	Input     LabInput
}

// UpdateLabParams wraps the data required to update a lab.
type UpdateLabParams struct {
	Principal Principal
	LabID     string
	Input     LabInput
}

// LabStatusView pairs a lab with its status at the moment of the request.
type LabStatusView struct {
	Lab    Lab
	Status labstatus.Status
}

// EquipmentStatus is the operational state of an equipment item.
type EquipmentStatus string

const (
	EquipmentAvailable     EquipmentStatus = "available"
	EquipmentInMaintenance EquipmentStatus = "in_maintenance"
	EquipmentOutOfService  EquipmentStatus = "out_of_service"
)

// Valid reports whether s is a known equipment status.
func (s EquipmentStatus) Valid() bool {
	switch s {
	case EquipmentAvailable, EquipmentInMaintenance, EquipmentOutOfService:
		return true
	}
	return false
}

// EquipmentInput captures caller provided equipment fields.
type EquipmentInput struct {
	Name           string
	Quantity       int
	Status         EquipmentStatus
	AlertThreshold int
}

// Equipment is an inventory item that belongs to a lab.
type Equipment struct {
	ID             string
	LabID          string
	Name           string
	Quantity       int
	Status         EquipmentStatus
	AlertThreshold int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateEquipmentParams wraps the data required to add equipment to a lab.
type CreateEquipmentParams struct {
	Principal Principal
	LabID     string
	Input     EquipmentInput
}

// UpdateEquipmentParams wraps the data required to update equipment.
type UpdateEquipmentParams struct {
	Principal   Principal
	EquipmentID string
	Input       EquipmentInput
}

// InventoryChangeKind classifies an inventory log entry.
type InventoryChangeKind string

const (
	InventoryAdded   InventoryChangeKind = "added"
	InventoryUpdated InventoryChangeKind = "updated"
	InventoryDeleted InventoryChangeKind = "deleted"
)

// InventoryChange is one append-only entry of the inventory history.
type InventoryChange struct {
	ID            string
	LabID         string
	LabName       string
	ItemID        string
	ItemName      string
	Kind          InventoryChangeKind
	QuantityDelta int
	NewQuantity   int
	ActorEmail    string
	RecordedAt    time.Time
}

// InventoryLogFilter narrows an inventory history listing.
type InventoryLogFilter struct {
	LabID  string
	ItemID string
	Limit  int
}

// ReservationKind distinguishes user bookings from imported classes.
type ReservationKind string

const (
	ReservationAdHoc          ReservationKind = "ad_hoc"
	ReservationScheduledClass ReservationKind = "scheduled_class"
)

// ClassDetails holds the academic data of an imported class.
type ClassDetails struct {
	Faculty        string
	Career         string
	InstructorID   string
	InstructorName string
	Section        string
	Enrolled       int
}

// Reservation occupies a lab for the half-open interval [Start, End).
type Reservation struct {
	ID         string
	LabID      string
	LabName    string
	Kind       ReservationKind
	OwnerID    string
	OwnerEmail string
	Purpose    string
	Start      time.Time
	End        time.Time
	ImportKey  string
	Class      *ClassDetails
	CreatedAt  time.Time
}

// BookParams wraps the data required to book a lab. A zero End books the
// configured default slot length.
type BookParams struct {
	Principal Principal
	LabID     string
	Purpose   string
	Start     time.Time
	End       time.Time
}

// OverlapWarning reports two stored reservations of one lab that overlap.
type OverlapWarning struct {
	FirstID  string
	SecondID string
	Start    time.Time
	End      time.Time
}

// LabReservations is the calendar of a lab together with any overlaps found
// among the stored reservations.
type LabReservations struct {
	Reservations []Reservation
	Overlaps     []OverlapWarning
}

// ReservationScope selects the upcoming or past half of a user's reservations.
type ReservationScope string

const (
	ScopeUpcoming ReservationScope = "upcoming"
	ScopePast     ReservationScope = "past"
)

// ListMineParams wraps the data required to list the caller's reservations.
// From and To are calendar days; either may be nil.
type ListMineParams struct {
	Principal Principal
	Scope     ReservationScope
	From      *time.Time
	To        *time.Time
}

// PreviewImportParams wraps the data required to preview an academic load import.
type PreviewImportParams struct {
	Principal Principal
	File      io.Reader
	Period    importer.Period
}

// ImportPreview is the reconciled, not yet committed content of an import file.
type ImportPreview struct {
	Token          string
	ExpiresAt      time.Time
	MappingVersion string
	Drafts         []importer.Draft
	Failures       []importer.RowFailure
	Collisions     []importer.Collision
	Duplicates     int
}

// ImportResult reports a committed import.
type ImportResult struct {
	ReservationIDs []string
}
