package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/lab-portal/internal/application"
	"github.com/example/lab-portal/internal/labstatus"
	"github.com/example/lab-portal/internal/persistence"
)

var (
	labCounter         uint64
	equipmentCounter   uint64
	reservationCounter uint64
)

// referenceTime is a Monday morning so that weekday based fixtures line up.
var referenceTime = time.Date(2024, time.January, 8, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ------------------------------ Lab fixtures ------------------------------

// LabFixture is a deterministic lab record.
type LabFixture struct {
	ID          string
	Name        string
	Location    string
	Description string
	Status      labstatus.Lifecycle
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LabOption configures a LabFixture.
type LabOption func(*LabFixture)

// NewLabFixture returns an available lab with generated identity.
func NewLabFixture(opts ...LabOption) LabFixture {
	idx := atomic.AddUint64(&labCounter, 1)
	created := referenceTime.Add(-time.Duration(idx) * time.Hour)
	fixture := LabFixture{
		ID:        fmt.Sprintf("lab-%03d", idx),
		Name:      fmt.Sprintf("Laboratorio %03d", idx),
		Location:  "Edificio B",
		Status:    labstatus.LifecycleAvailable,
		CreatedAt: created,
		UpdatedAt: created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithLabID overrides the generated lab ID.
func WithLabID(id string) LabOption {
	return func(f *LabFixture) { f.ID = id }
}

// WithLabName overrides the generated name.
func WithLabName(name string) LabOption {
	return func(f *LabFixture) { f.Name = name }
}

// WithLabUnderMaintenance marks the lab as not bookable.
func WithLabUnderMaintenance() LabOption {
	return func(f *LabFixture) { f.Status = labstatus.LifecycleUnderMaintenance }
}

// Application returns the fixture as an application.Lab.
func (f LabFixture) Application() application.Lab {
	return application.Lab{
		ID:          f.ID,
		Name:        f.Name,
		Location:    f.Location,
		Description: f.Description,
		Status:      f.Status,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// Persistence returns the fixture as a persistence.Lab.
func (f LabFixture) Persistence() persistence.Lab {
	return persistence.Lab{
		ID:          f.ID,
		Name:        f.Name,
		Location:    f.Location,
		Description: f.Description,
		Status:      string(f.Status),
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// Input returns the editable fields of the fixture.
func (f LabFixture) Input() application.LabInput {
	return application.LabInput{
		Name:        f.Name,
		Location:    f.Location,
		Description: f.Description,
		Status:      f.Status,
	}
}

// --------------------------- Equipment fixtures ---------------------------

// EquipmentFixture is a deterministic inventory item.
type EquipmentFixture struct {
	ID             string
	LabID          string
	Name           string
	Quantity       int
	Status         application.EquipmentStatus
	AlertThreshold int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EquipmentOption configures an EquipmentFixture.
type EquipmentOption func(*EquipmentFixture)

// NewEquipmentFixture returns an available item of labID.
func NewEquipmentFixture(labID string, opts ...EquipmentOption) EquipmentFixture {
	idx := atomic.AddUint64(&equipmentCounter, 1)
	fixture := EquipmentFixture{
		ID:        fmt.Sprintf("eq-%03d", idx),
		LabID:     labID,
		Name:      fmt.Sprintf("Equipo %03d", idx),
		Quantity:  5,
		Status:    application.EquipmentAvailable,
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEquipmentID overrides the generated ID.
func WithEquipmentID(id string) EquipmentOption {
	return func(f *EquipmentFixture) { f.ID = id }
}

// WithEquipmentName overrides the generated name.
func WithEquipmentName(name string) EquipmentOption {
	return func(f *EquipmentFixture) { f.Name = name }
}

// WithEquipmentStock sets quantity and low stock threshold.
func WithEquipmentStock(quantity, threshold int) EquipmentOption {
	return func(f *EquipmentFixture) {
		f.Quantity = quantity
		f.AlertThreshold = threshold
	}
}

// Application returns the fixture as an application.Equipment.
func (f EquipmentFixture) Application() application.Equipment {
	return application.Equipment{
		ID:             f.ID,
		LabID:          f.LabID,
		Name:           f.Name,
		Quantity:       f.Quantity,
		Status:         f.Status,
		AlertThreshold: f.AlertThreshold,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}

// Persistence returns the fixture as a persistence.Equipment.
func (f EquipmentFixture) Persistence() persistence.Equipment {
	return persistence.Equipment{
		ID:             f.ID,
		LabID:          f.LabID,
		Name:           f.Name,
		Quantity:       f.Quantity,
		Status:         string(f.Status),
		AlertThreshold: f.AlertThreshold,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}

// -------------------------- Reservation fixtures --------------------------

// ReservationFixture is a deterministic reservation. Start defaults to one
// hour after ReferenceTime and the slot lasts 90 minutes.
type ReservationFixture struct {
	ID         string
	LabID      string
	LabName    string
	Kind       application.ReservationKind
	OwnerID    string
	OwnerEmail string
	Purpose    string
	Start      time.Time
	End        time.Time
	ImportKey  string
	Class      *application.ClassDetails
	CreatedAt  time.Time
}

// ReservationOption configures a ReservationFixture.
type ReservationOption func(*ReservationFixture)

// NewReservationFixture returns an ad hoc reservation of lab.
func NewReservationFixture(lab LabFixture, opts ...ReservationOption) ReservationFixture {
	idx := atomic.AddUint64(&reservationCounter, 1)
	start := referenceTime.Add(time.Hour)
	fixture := ReservationFixture{
		ID:         fmt.Sprintf("res-%03d", idx),
		LabID:      lab.ID,
		LabName:    lab.Name,
		Kind:       application.ReservationAdHoc,
		OwnerID:    "student-1",
		OwnerEmail: "ana@uni.example",
		Purpose:    fmt.Sprintf("Práctica %03d", idx),
		Start:      start,
		End:        start.Add(90 * time.Minute),
		CreatedAt:  referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithReservationID overrides the generated ID.
func WithReservationID(id string) ReservationOption {
	return func(f *ReservationFixture) { f.ID = id }
}

// WithReservationOwner overrides the owner.
func WithReservationOwner(id, email string) ReservationOption {
	return func(f *ReservationFixture) {
		f.OwnerID = id
		f.OwnerEmail = email
	}
}

// WithReservationWindow sets start and end.
func WithReservationWindow(start, end time.Time) ReservationOption {
	return func(f *ReservationFixture) {
		f.Start = start
		f.End = end
	}
}

// WithScheduledClass turns the fixture into an imported class occurrence.
func WithScheduledClass(importKey string, class application.ClassDetails) ReservationOption {
	return func(f *ReservationFixture) {
		f.Kind = application.ReservationScheduledClass
		f.OwnerID = application.BulkImportOwner
		f.OwnerEmail = application.BulkImportOwner
		f.ImportKey = importKey
		details := class
		f.Class = &details
	}
}

// Application returns the fixture as an application.Reservation.
func (f ReservationFixture) Application() application.Reservation {
	r := application.Reservation{
		ID:         f.ID,
		LabID:      f.LabID,
		LabName:    f.LabName,
		Kind:       f.Kind,
		OwnerID:    f.OwnerID,
		OwnerEmail: f.OwnerEmail,
		Purpose:    f.Purpose,
		Start:      f.Start,
		End:        f.End,
		ImportKey:  f.ImportKey,
		CreatedAt:  f.CreatedAt,
	}
	if f.Class != nil {
		class := *f.Class
		r.Class = &class
	}
	return r
}

// Persistence returns the fixture as a persistence.Reservation.
func (f ReservationFixture) Persistence() persistence.Reservation {
	r := persistence.Reservation{
		ID:         f.ID,
		LabID:      f.LabID,
		LabName:    f.LabName,
		Kind:       string(f.Kind),
		OwnerID:    f.OwnerID,
		OwnerEmail: f.OwnerEmail,
		Purpose:    f.Purpose,
		Start:      f.Start,
		End:        f.End,
		CreatedAt:  f.CreatedAt,
	}
	if f.ImportKey != "" {
		key := f.ImportKey
		r.ImportKey = &key
	}
	if f.Class != nil {
		class := persistence.ClassDetails(*f.Class)
		r.Class = &class
	}
	return r
}
