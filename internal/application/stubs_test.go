package application

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/example/lab-portal/internal/labstatus"
	"github.com/example/lab-portal/internal/notify"
	"github.com/example/lab-portal/internal/persistence"
)

var (
	adminPrincipal   = Principal{UserID: "admin-1", Email: "admin@uni.example", IsAdmin: true}
	studentPrincipal = Principal{UserID: "student-1", Email: "ana@uni.example"}
	otherPrincipal   = Principal{UserID: "student-2", Email: "luis@uni.example"}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}

type labRepoStub struct {
	mu   sync.Mutex
	labs map[string]Lab

	createErr error
	listErr   error
}

func newLabRepoStub(labs ...Lab) *labRepoStub {
	stub := &labRepoStub{labs: make(map[string]Lab)}
	for _, lab := range labs {
		stub.labs[lab.ID] = lab
	}
	return stub
}

func (r *labRepoStub) CreateLab(ctx context.Context, lab Lab) (Lab, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return Lab{}, r.createErr
	}
	r.labs[lab.ID] = lab
	return lab, nil
}

func (r *labRepoStub) GetLab(ctx context.Context, id string) (Lab, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lab, ok := r.labs[id]
	if !ok {
		return Lab{}, persistence.ErrNotFound
	}
	return lab, nil
}

func (r *labRepoStub) UpdateLab(ctx context.Context, lab Lab) (Lab, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.labs[lab.ID]; !ok {
		return Lab{}, persistence.ErrNotFound
	}
	r.labs[lab.ID] = lab
	return lab, nil
}

func (r *labRepoStub) DeleteLab(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.labs[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(r.labs, id)
	return nil
}

func (r *labRepoStub) ListLabs(ctx context.Context) ([]Lab, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]Lab, 0, len(r.labs))
	for _, lab := range r.labs {
		out = append(out, lab)
	}
	return out, nil
}

type reservationRepoStub struct {
	mu           sync.Mutex
	reservations []Reservation

	listErr  error
	batchErr error
	// afterList runs after ListReservations has copied its result and
	// released the lock.
	afterList func()
	lastList  ReservationRepositoryFilter
}

func (r *reservationRepoStub) ListReservations(ctx context.Context, filter ReservationRepositoryFilter) ([]Reservation, error) {
	r.mu.Lock()
	r.lastList = filter
	if r.listErr != nil {
		r.mu.Unlock()
		return nil, r.listErr
	}
	var out []Reservation
	for _, res := range r.reservations {
		if filter.LabID != "" && res.LabID != filter.LabID {
			continue
		}
		if filter.OwnerID != "" && res.OwnerID != filter.OwnerID {
			continue
		}
		if filter.From != nil && !res.End.After(*filter.From) {
			continue
		}
		if filter.To != nil && !res.Start.Before(*filter.To) {
			continue
		}
		out = append(out, res)
	}
	r.mu.Unlock()

	if r.afterList != nil {
		r.afterList()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r *reservationRepoStub) CreateReservation(ctx context.Context, reservation Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reservations = append(r.reservations, reservation)
	return nil
}

func (r *reservationRepoStub) CreateReservations(ctx context.Context, reservations []Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.batchErr != nil {
		return r.batchErr
	}
	r.reservations = append(r.reservations, reservations...)
	return nil
}

func (r *reservationRepoStub) CreateReservationIfFree(ctx context.Context, reservation Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.reservations {
		if existing.LabID == reservation.LabID && existing.Start.Before(reservation.End) && existing.End.After(reservation.Start) {
			return &persistence.OverlapError{ExistingID: existing.ID, LabID: existing.LabID, Start: existing.Start, End: existing.End}
		}
	}
	r.reservations = append(r.reservations, reservation)
	return nil
}

func (r *reservationRepoStub) GetReservation(ctx context.Context, id string) (Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.reservations {
		if res.ID == id {
			return res, nil
		}
	}
	return Reservation{}, persistence.ErrNotFound
}

func (r *reservationRepoStub) DeleteReservation(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, res := range r.reservations {
		if res.ID == id {
			r.reservations = append(r.reservations[:i], r.reservations[i+1:]...)
			return nil
		}
	}
	return persistence.ErrNotFound
}

func (r *reservationRepoStub) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reservations)
}

type equipmentRepoStub struct {
	items     map[string]Equipment
	updateErr error
}

func newEquipmentRepoStub(items ...Equipment) *equipmentRepoStub {
	stub := &equipmentRepoStub{items: make(map[string]Equipment)}
	for _, item := range items {
		stub.items[item.ID] = item
	}
	return stub
}

func (r *equipmentRepoStub) CreateEquipment(ctx context.Context, item Equipment) (Equipment, error) {
	r.items[item.ID] = item
	return item, nil
}

func (r *equipmentRepoStub) GetEquipment(ctx context.Context, id string) (Equipment, error) {
	item, ok := r.items[id]
	if !ok {
		return Equipment{}, persistence.ErrNotFound
	}
	return item, nil
}

func (r *equipmentRepoStub) UpdateEquipment(ctx context.Context, item Equipment) (Equipment, error) {
	if r.updateErr != nil {
		return Equipment{}, r.updateErr
	}
	r.items[item.ID] = item
	return item, nil
}

func (r *equipmentRepoStub) DeleteEquipment(ctx context.Context, id string) error {
	if _, ok := r.items[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *equipmentRepoStub) ListEquipment(ctx context.Context, labID string) ([]Equipment, error) {
	var out []Equipment
	for _, item := range r.items {
		if item.LabID == labID {
			out = append(out, item)
		}
	}
	return out, nil
}

type inventoryLogStub struct {
	changes    []InventoryChange
	appendErr  error
	lastFilter InventoryLogFilter
}

func (l *inventoryLogStub) AppendInventoryChange(ctx context.Context, change InventoryChange) error {
	if l.appendErr != nil {
		return l.appendErr
	}
	l.changes = append(l.changes, change)
	return nil
}

func (l *inventoryLogStub) ListInventoryChanges(ctx context.Context, filter InventoryLogFilter) ([]InventoryChange, error) {
	l.lastFilter = filter
	return append([]InventoryChange(nil), l.changes...), nil
}

type publisherStub struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (p *publisherStub) Publish(ctx context.Context, event notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *publisherStub) published() []notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Event(nil), p.events...)
}

func testLab(id, name string) Lab {
	created := time.Date(2023, time.December, 1, 8, 0, 0, 0, time.UTC)
	return Lab{
		ID:        id,
		Name:      name,
		Location:  "Edificio B",
		Status:    labstatus.LifecycleAvailable,
		CreatedAt: created,
		UpdatedAt: created,
	}
}
