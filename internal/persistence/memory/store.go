// Package memory provides a map-backed persistence.Store used by tests and by
// deployments that run without a database file.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/lab-portal/internal/persistence"
)

// Store keeps every record in process memory guarded by a single RWMutex.
type Store struct {
	mu           sync.RWMutex
	labs         map[string]persistence.Lab
	equipment    map[string]persistence.Equipment
	changes      []persistence.InventoryChange
	reservations map[string]persistence.Reservation
	importKeys   map[string]string
	outbox       map[string]persistence.OutboxMessage
}

var _ persistence.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		labs:         make(map[string]persistence.Lab),
		equipment:    make(map[string]persistence.Equipment),
		reservations: make(map[string]persistence.Reservation),
		importKeys:   make(map[string]string),
		outbox:       make(map[string]persistence.OutboxMessage),
	}
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// --- LabRepository ---

// CreateLab stores a new lab. Lab names are unique ignoring case.
func (s *Store) CreateLab(ctx context.Context, lab persistence.Lab) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.labs[lab.ID]; ok {
		return fmt.Errorf("memory: lab %s: %w", lab.ID, persistence.ErrDuplicate)
	}
	if err := s.ensureUniqueLabNameLocked(lab.ID, lab.Name); err != nil {
		return err
	}

	s.labs[lab.ID] = lab
	return nil
}

// UpdateLab replaces an existing lab.
func (s *Store) UpdateLab(ctx context.Context, lab persistence.Lab) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.labs[lab.ID]; !ok {
		return persistence.ErrNotFound
	}
	if err := s.ensureUniqueLabNameLocked(lab.ID, lab.Name); err != nil {
		return err
	}

	s.labs[lab.ID] = lab
	return nil
}

// GetLab retrieves a lab by ID.
func (s *Store) GetLab(ctx context.Context, id string) (persistence.Lab, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lab, ok := s.labs[id]
	if !ok {
		return persistence.Lab{}, persistence.ErrNotFound
	}
	return lab, nil
}

// ListLabs returns every lab ordered by name.
func (s *Store) ListLabs(ctx context.Context) ([]persistence.Lab, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	labs := make([]persistence.Lab, 0, len(s.labs))
	for _, lab := range s.labs {
		labs = append(labs, lab)
	}

	sort.Slice(labs, func(i, j int) bool {
		if labs[i].Name == labs[j].Name {
			return labs[i].ID < labs[j].ID
		}
		return labs[i].Name < labs[j].Name
	})
	return labs, nil
}

// DeleteLab removes a lab together with its equipment and reservations.
// Inventory change entries are kept.
func (s *Store) DeleteLab(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.labs[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.labs, id)

	for itemID, item := range s.equipment {
		if item.LabID == id {
			delete(s.equipment, itemID)
		}
	}
	for resID, res := range s.reservations {
		if res.LabID == id {
			s.deleteReservationLocked(resID, res)
		}
	}
	return nil
}

func (s *Store) ensureUniqueLabNameLocked(id, name string) error {
	for existingID, lab := range s.labs {
		if existingID == id {
			continue
		}
		if strings.EqualFold(lab.Name, name) {
			return fmt.Errorf("memory: lab name %q: %w", name, persistence.ErrDuplicate)
		}
	}
	return nil
}

// --- EquipmentRepository ---

// CreateEquipment stores a new inventory item. The lab must exist.
func (s *Store) CreateEquipment(ctx context.Context, item persistence.Equipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.equipment[item.ID]; ok {
		return fmt.Errorf("memory: equipment %s: %w", item.ID, persistence.ErrDuplicate)
	}
	if _, ok := s.labs[item.LabID]; !ok {
		return fmt.Errorf("memory: lab %s: %w", item.LabID, persistence.ErrForeignKeyViolation)
	}

	s.equipment[item.ID] = item
	return nil
}

// UpdateEquipment replaces an existing inventory item.
func (s *Store) UpdateEquipment(ctx context.Context, item persistence.Equipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.equipment[item.ID]; !ok {
		return persistence.ErrNotFound
	}
	if _, ok := s.labs[item.LabID]; !ok {
		return fmt.Errorf("memory: lab %s: %w", item.LabID, persistence.ErrForeignKeyViolation)
	}

	s.equipment[item.ID] = item
	return nil
}

// GetEquipment retrieves an inventory item by ID.
func (s *Store) GetEquipment(ctx context.Context, id string) (persistence.Equipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.equipment[id]
	if !ok {
		return persistence.Equipment{}, persistence.ErrNotFound
	}
	return item, nil
}

// ListEquipment returns items ordered by name. An empty labID lists every lab.
func (s *Store) ListEquipment(ctx context.Context, labID string) ([]persistence.Equipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]persistence.Equipment, 0)
	for _, item := range s.equipment {
		if labID != "" && item.LabID != labID {
			continue
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Name == items[j].Name {
			return items[i].ID < items[j].ID
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

// DeleteEquipment removes an inventory item.
func (s *Store) DeleteEquipment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.equipment[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.equipment, id)
	return nil
}

// --- InventoryLogRepository ---

// AppendInventoryChange records a change entry.
func (s *Store) AppendInventoryChange(ctx context.Context, change persistence.InventoryChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.changes {
		if existing.ID == change.ID {
			return fmt.Errorf("memory: inventory change %s: %w", change.ID, persistence.ErrDuplicate)
		}
	}
	s.changes = append(s.changes, change)
	return nil
}

// ListInventoryChanges returns matching entries, newest first.
func (s *Store) ListInventoryChanges(ctx context.Context, filter persistence.InventoryFilter) ([]persistence.InventoryChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]persistence.InventoryChange, 0)
	for _, change := range s.changes {
		if filter.LabID != "" && change.LabID != filter.LabID {
			continue
		}
		if filter.ItemID != "" && change.ItemID != filter.ItemID {
			continue
		}
		result = append(result, change)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].RecordedAt.Equal(result[j].RecordedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].RecordedAt.After(result[j].RecordedAt)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// --- ReservationRepository ---

// CreateReservation stores a reservation without checking for overlaps.
func (s *Store) CreateReservation(ctx context.Context, reservation persistence.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateReservationLocked(reservation); err != nil {
		return err
	}
	s.insertReservationLocked(reservation)
	return nil
}

// CreateReservations stores every reservation or none of them.
func (s *Store) CreateReservations(ctx context.Context, reservations []persistence.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seenIDs := make(map[string]struct{}, len(reservations))
	seenKeys := make(map[string]struct{}, len(reservations))
	for _, res := range reservations {
		if err := s.validateReservationLocked(res); err != nil {
			return err
		}
		if _, ok := seenIDs[res.ID]; ok {
			return fmt.Errorf("memory: reservation %s: %w", res.ID, persistence.ErrDuplicate)
		}
		seenIDs[res.ID] = struct{}{}
		if res.ImportKey != nil {
			if _, ok := seenKeys[*res.ImportKey]; ok {
				return fmt.Errorf("memory: import key %s: %w", *res.ImportKey, persistence.ErrDuplicate)
			}
			seenKeys[*res.ImportKey] = struct{}{}
		}
	}

	for _, res := range reservations {
		s.insertReservationLocked(res)
	}
	return nil
}

// CreateReservationIfFree inserts the reservation unless it overlaps another
// reservation of the same lab.
func (s *Store) CreateReservationIfFree(ctx context.Context, reservation persistence.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateReservationLocked(reservation); err != nil {
		return err
	}

	for _, existing := range s.sortedReservationsLocked() {
		if existing.LabID != reservation.LabID {
			continue
		}
		if existing.Start.Before(reservation.End) && reservation.Start.Before(existing.End) {
			return &persistence.OverlapError{
				ExistingID: existing.ID,
				LabID:      existing.LabID,
				Start:      existing.Start,
				End:        existing.End,
			}
		}
	}

	s.insertReservationLocked(reservation)
	return nil
}

// GetReservation retrieves a reservation by ID.
func (s *Store) GetReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.reservations[id]
	if !ok {
		return persistence.Reservation{}, persistence.ErrNotFound
	}
	return cloneReservation(res), nil
}

// ListReservations returns matching reservations ordered by start time.
func (s *Store) ListReservations(ctx context.Context, filter persistence.ReservationFilter) ([]persistence.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]persistence.Reservation, 0)
	for _, res := range s.sortedReservationsLocked() {
		if filter.LabID != "" && res.LabID != filter.LabID {
			continue
		}
		if filter.OwnerID != "" && res.OwnerID != filter.OwnerID {
			continue
		}
		if filter.To != nil && !res.Start.Before(*filter.To) {
			continue
		}
		if filter.From != nil && !res.End.After(*filter.From) {
			continue
		}
		result = append(result, cloneReservation(res))
	}
	return result, nil
}

// DeleteReservation removes a reservation.
func (s *Store) DeleteReservation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.reservations[id]
	if !ok {
		return persistence.ErrNotFound
	}
	s.deleteReservationLocked(id, res)
	return nil
}

func (s *Store) validateReservationLocked(res persistence.Reservation) error {
	if _, ok := s.reservations[res.ID]; ok {
		return fmt.Errorf("memory: reservation %s: %w", res.ID, persistence.ErrDuplicate)
	}
	if _, ok := s.labs[res.LabID]; !ok {
		return fmt.Errorf("memory: lab %s: %w", res.LabID, persistence.ErrForeignKeyViolation)
	}
	if !res.End.After(res.Start) {
		return fmt.Errorf("memory: reservation %s ends before it starts: %w", res.ID, persistence.ErrConstraintViolation)
	}
	if res.ImportKey != nil {
		if _, ok := s.importKeys[*res.ImportKey]; ok {
			return fmt.Errorf("memory: import key %s: %w", *res.ImportKey, persistence.ErrDuplicate)
		}
	}
	return nil
}

func (s *Store) insertReservationLocked(res persistence.Reservation) {
	s.reservations[res.ID] = cloneReservation(res)
	if res.ImportKey != nil {
		s.importKeys[*res.ImportKey] = res.ID
	}
}

func (s *Store) deleteReservationLocked(id string, res persistence.Reservation) {
	delete(s.reservations, id)
	if res.ImportKey != nil {
		delete(s.importKeys, *res.ImportKey)
	}
}

func (s *Store) sortedReservationsLocked() []persistence.Reservation {
	list := make([]persistence.Reservation, 0, len(s.reservations))
	for _, res := range s.reservations {
		list = append(list, res)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Start.Equal(list[j].Start) {
			return list[i].ID < list[j].ID
		}
		return list[i].Start.Before(list[j].Start)
	})
	return list
}

// --- OutboxRepository ---

// EnqueueOutboxMessage stores a pending message.
func (s *Store) EnqueueOutboxMessage(ctx context.Context, msg persistence.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.outbox[msg.ID]; ok {
		return fmt.Errorf("memory: outbox message %s: %w", msg.ID, persistence.ErrDuplicate)
	}
	msg.Payload = append([]byte(nil), msg.Payload...)
	s.outbox[msg.ID] = msg
	return nil
}

// ListPendingOutboxMessages returns undelivered messages, oldest first.
func (s *Store) ListPendingOutboxMessages(ctx context.Context, limit int) ([]persistence.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]persistence.OutboxMessage, 0)
	for _, msg := range s.outbox {
		if msg.DeliveredAt != nil {
			continue
		}
		msg.Payload = append([]byte(nil), msg.Payload...)
		pending = append(pending, msg)
	}

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// MarkOutboxMessageDelivered stamps a message as delivered.
func (s *Store) MarkOutboxMessageDelivered(ctx context.Context, id string, deliveredAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.outbox[id]
	if !ok {
		return persistence.ErrNotFound
	}
	at := deliveredAt
	msg.DeliveredAt = &at
	s.outbox[id] = msg
	return nil
}

func cloneReservation(res persistence.Reservation) persistence.Reservation {
	clone := res
	if res.ImportKey != nil {
		key := *res.ImportKey
		clone.ImportKey = &key
	}
	if res.Class != nil {
		class := *res.Class
		clone.Class = &class
	}
	return clone
}
