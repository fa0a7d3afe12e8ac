package persistence

import "time"

// Lab represents a laboratory that can be reserved.
type Lab struct {
	ID          string
	Name        string
	Location    string
	Description string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Equipment represents an inventory item kept in a lab.
type Equipment struct {
	ID             string
	LabID          string
	Name           string
	Quantity       int
	Status         string
	AlertThreshold int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// InventoryChange is an append-only record of an equipment mutation.
type InventoryChange struct {
	ID            string
	LabID         string
	LabName       string
	ItemID        string
	ItemName      string
	Kind          string
	QuantityDelta int
	NewQuantity   int
	ActorEmail    string
	RecordedAt    time.Time
}

// Reservation is a booked interval of a lab. Class is set for scheduled
// classes created by the academic load import.
type Reservation struct {
	ID         string
	LabID      string
	LabName    string
	Kind       string
	OwnerID    string
	OwnerEmail string
	Purpose    string
	Start      time.Time
	End        time.Time
	ImportKey  *string
	Class      *ClassDetails
	CreatedAt  time.Time
}

// ClassDetails carries the academic metadata of a scheduled class.
type ClassDetails struct {
	Faculty        string
	Career         string
	InstructorID   string
	InstructorName string
	Section        string
	Enrolled       int
}

// OutboxMessage is an encoded notification awaiting delivery.
type OutboxMessage struct {
	ID          string
	Kind        string
	Payload     []byte
	CreatedAt   time.Time
	DeliveredAt *time.Time
}
