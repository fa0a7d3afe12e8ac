package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/lab-portal/internal/calendar"
	"github.com/example/lab-portal/internal/interval"
	"github.com/example/lab-portal/internal/labstatus"
	"github.com/example/lab-portal/internal/notify"
	"github.com/example/lab-portal/internal/persistence"
	"github.com/example/lab-portal/internal/scheduler"
)

// DefaultSlot is the booking length used when only a start is supplied.
const DefaultSlot = 90 * time.Minute

// BookingMode selects how the conflict check and the insert are combined.
type BookingMode string

const (
	// BookingBestEffort reads the lab calendar and then writes. Two
	// concurrent bookings may both pass the check.
	BookingBestEffort BookingMode = "best-effort"
	// BookingTransactional runs the check and the insert in one store transaction.
	BookingTransactional BookingMode = "transactional"
)

// ParseBookingMode converts a configuration value into a BookingMode.
func ParseBookingMode(value string) (BookingMode, error) {
	switch mode := BookingMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case "":
		return BookingBestEffort, nil
	case BookingBestEffort, BookingTransactional:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown booking mode %q", value)
	}
}

// ReservationRepositoryFilter narrows reservation listings. From and To select
// reservations that overlap [From, To); either bound may be nil.
type ReservationRepositoryFilter struct {
	LabID   string
	OwnerID string
	From    *time.Time
	To      *time.Time
}

// ReservationRepository captures the persistence operations needed for reservations.
type ReservationRepository interface {
	ReservationReader
	CreateReservation(ctx context.Context, reservation Reservation) error
	CreateReservations(ctx context.Context, reservations []Reservation) error
	CreateReservationIfFree(ctx context.Context, reservation Reservation) error
	GetReservation(ctx context.Context, id string) (Reservation, error)
	DeleteReservation(ctx context.Context, id string) error
}

// ReservationServiceConfig tunes booking behaviour.
type ReservationServiceConfig struct {
	Mode     BookingMode
	Slot     time.Duration
	Location *time.Location
}

// ReservationService books, cancels and lists lab reservations.
type ReservationService struct {
	reservations ReservationRepository
	labs         LabRepository
	publisher    notify.Publisher
	cfg          ReservationServiceConfig
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewReservationService constructs a reservation service using best-effort booking.
func NewReservationService(reservations ReservationRepository, labs LabRepository, publisher notify.Publisher, idGenerator func() string, now func() time.Time) *ReservationService {
	return NewReservationServiceWithLogger(reservations, labs, publisher, ReservationServiceConfig{}, idGenerator, now, nil)
}

// NewReservationServiceWithLogger constructs a reservation service with a specified configuration and logger.
func NewReservationServiceWithLogger(reservations ReservationRepository, labs LabRepository, publisher notify.Publisher, cfg ReservationServiceConfig, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ReservationService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if cfg.Mode == "" {
		cfg.Mode = BookingBestEffort
	}
	if cfg.Slot <= 0 {
		cfg.Slot = DefaultSlot
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ReservationService{
		reservations: reservations,
		labs:         labs,
		publisher:    publisher,
		cfg:          cfg,
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

func (s *ReservationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ReservationService", operation, attrs...)
}

// Mode reports the configured booking mode.
func (s *ReservationService) Mode() BookingMode {
	return s.cfg.Mode
}

// Book reserves a lab for the caller.
//
// Past slots are rejected before the store is read. In best-effort mode the
// lab calendar is read and checked, then the reservation is written; in
// transactional mode the store performs both steps atomically.
func (s *ReservationService) Book(ctx context.Context, params BookParams) (reservation Reservation, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Book",
		"principal_id", params.Principal.UserID,
		"lab_id", params.LabID,
		"booking_mode", string(s.cfg.Mode),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to book reservation", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("reservation_id", reservation.ID).InfoContext(ctx, "reservation booked")
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}
	if s.reservations == nil || s.labs == nil {
		err = fmt.Errorf("reservation repository not configured")
		return
	}

	var slot interval.Interval
	slot, err = s.validateBooking(params)
	if err != nil {
		return
	}
	logger = logger.With("start", slot.Start, "duration", slot.Duration())

	now := s.now()
	candidate := scheduler.Booking{ResourceID: params.LabID, Interval: slot}
	if err = scheduler.RejectPast(candidate, now); err != nil {
		return
	}

	var lab Lab
	lab, err = s.labs.GetLab(ctx, params.LabID)
	if err != nil {
		err = mapLabRepoError(err)
		return
	}
	if lab.Status == labstatus.LifecycleUnderMaintenance {
		err = fieldError("lab_id", "lab is under maintenance")
		return
	}

	reservation = Reservation{
		ID:         s.idGenerator(),
		LabID:      lab.ID,
		LabName:    lab.Name,
		Kind:       ReservationAdHoc,
		OwnerID:    params.Principal.UserID,
		OwnerEmail: params.Principal.Email,
		Purpose:    strings.TrimSpace(params.Purpose),
		Start:      slot.Start,
		End:        slot.End,
		CreatedAt:  now,
	}
	candidate.ID = reservation.ID

	if s.cfg.Mode == BookingTransactional {
		err = s.reservations.CreateReservationIfFree(ctx, reservation)
	} else {
		err = s.checkThenCreate(ctx, candidate, reservation, now)
	}
	if err != nil {
		err = mapReservationRepoError(err, candidate)
		reservation = Reservation{}
		return
	}

	s.publish(ctx, logger, notify.Event{
		Kind:       notify.KindReservationCreated,
		OccurredAt: now,
		ReservationCreated: &notify.ReservationCreated{
			ReservationIDs: []string{reservation.ID},
			LabID:          reservation.LabID,
			LabName:        reservation.LabName,
			OwnerEmail:     reservation.OwnerEmail,
			Purpose:        reservation.Purpose,
			Start:          reservation.Start,
			End:            reservation.End,
			Count:          1,
		},
	})
	return
}

func (s *ReservationService) checkThenCreate(ctx context.Context, candidate scheduler.Booking, reservation Reservation, now time.Time) error {
	existing, err := s.reservations.ListReservations(ctx, ReservationRepositoryFilter{
		LabID: candidate.ResourceID,
		From:  &candidate.Interval.Start,
		To:    &candidate.Interval.End,
	})
	if err != nil {
		return err
	}
	if err := scheduler.CheckConflict(candidate, toBookings(existing), now); err != nil {
		return err
	}
	return s.reservations.CreateReservation(ctx, reservation)
}

func (s *ReservationService) validateBooking(params BookParams) (interval.Interval, error) {
	vErr := &ValidationError{}

	if strings.TrimSpace(params.LabID) == "" {
		vErr.add("lab_id", "lab is required")
	}
	if strings.TrimSpace(params.Purpose) == "" {
		vErr.add("purpose", "purpose is required")
	}
	if params.Start.IsZero() {
		vErr.add("start", "start is required")
	}

	var slot interval.Interval
	if !params.Start.IsZero() {
		var err error
		if params.End.IsZero() {
			slot, err = interval.FromDuration(params.Start, s.cfg.Slot)
		} else {
			slot, err = interval.New(params.Start, params.End)
		}
		if err != nil {
			vErr.add("end", "end must be after start")
		}
	}

	if vErr.HasErrors() {
		return interval.Interval{}, vErr
	}
	return slot, nil
}

// Cancel deletes a reservation. Only its owner or an administrator may cancel it.
func (s *ReservationService) Cancel(ctx context.Context, principal Principal, reservationID string) (err error) {
	if s == nil {
		return fmt.Errorf("ReservationService is nil")
	}
	if s.reservations == nil {
		return fmt.Errorf("reservation repository not configured")
	}

	logger := s.loggerWith(ctx, "Cancel",
		"principal_id", principal.UserID,
		"reservation_id", reservationID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel reservation", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "reservation cancelled")
	}()

	var existing Reservation
	existing, err = s.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		return mapReservationRepoError(err, scheduler.Booking{})
	}
	if !principal.IsAdmin && !ownedBy(existing, principal) {
		return ErrUnauthorized
	}

	if err = s.reservations.DeleteReservation(ctx, reservationID); err != nil {
		return mapReservationRepoError(err, scheduler.Booking{})
	}
	return nil
}

// ownedBy reports whether principal booked r. Imported classes belong to no
// user.
func ownedBy(r Reservation, principal Principal) bool {
	if principal.UserID == "" || r.OwnerID == BulkImportOwner {
		return false
	}
	return r.OwnerID == principal.UserID
}

// ListForLab returns the reservations of a lab that overlap [from, to) and
// reports any pair of them that overlaps. Stored overlaps can exist after
// best-effort races and are left for an administrator to resolve.
func (s *ReservationService) ListForLab(ctx context.Context, principal Principal, labID string, from, to *time.Time) (listing LabReservations, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}
	if s.reservations == nil || s.labs == nil {
		err = fmt.Errorf("reservation repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "ListForLab",
		"principal_id", principal.UserID,
		"lab_id", labID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list lab reservations", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(listing.Reservations), "overlap_count", len(listing.Overlaps)).InfoContext(ctx, "lab reservations listed")
	}()

	if _, err = s.labs.GetLab(ctx, labID); err != nil {
		err = mapLabRepoError(err)
		return
	}

	listing.Reservations, err = s.reservations.ListReservations(ctx, ReservationRepositoryFilter{LabID: labID, From: from, To: to})
	if err != nil {
		return
	}
	sortByStart(listing.Reservations)

	for _, c := range scheduler.DetectOverlaps(toBookings(listing.Reservations)) {
		start, end := c.Second.Interval.Start, c.First.Interval.End
		if c.Second.Interval.End.Before(end) {
			end = c.Second.Interval.End
		}
		listing.Overlaps = append(listing.Overlaps, OverlapWarning{
			FirstID:  c.First.ID,
			SecondID: c.Second.ID,
			Start:    start,
			End:      end,
		})
	}
	if len(listing.Overlaps) > 0 {
		logger.WarnContext(ctx, "overlapping reservations stored", "overlap_count", len(listing.Overlaps))
	}
	return
}

// ListAll returns the reservations of every lab that overlap [from, to).
func (s *ReservationService) ListAll(ctx context.Context, principal Principal, from, to *time.Time) (reservations []Reservation, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}
	if s.reservations == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListAll",
		"principal_id", principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list reservations", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(reservations)).InfoContext(ctx, "reservations listed")
	}()

	reservations, err = s.reservations.ListReservations(ctx, ReservationRepositoryFilter{From: from, To: to})
	if err != nil {
		return
	}
	sortByStart(reservations)
	return
}

// ListMine returns the caller's reservations. Upcoming reservations start
// after now and are ordered soonest first; past reservations are ordered most
// recent first. From and To restrict the start to whole calendar days in the
// configured location; a lone From selects that single day.
func (s *ReservationService) ListMine(ctx context.Context, params ListMineParams) (reservations []Reservation, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}
	if params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}
	if s.reservations == nil {
		return nil, nil
	}

	scope := params.Scope
	if scope == "" {
		scope = ScopeUpcoming
	}

	logger := s.loggerWith(ctx, "ListMine",
		"principal_id", params.Principal.UserID,
		"scope", string(scope),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list own reservations", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(reservations)).InfoContext(ctx, "own reservations listed")
	}()

	if scope != ScopeUpcoming && scope != ScopePast {
		err = fieldError("scope", "scope must be upcoming or past")
		return
	}

	var all []Reservation
	all, err = s.reservations.ListReservations(ctx, ReservationRepositoryFilter{OwnerID: params.Principal.UserID})
	if err != nil {
		return
	}

	lower, upper := s.dayBounds(params.From, params.To)
	now := s.now()
	reservations = make([]Reservation, 0, len(all))
	for _, r := range all {
		upcoming := !r.Start.Before(now)
		if upcoming != (scope == ScopeUpcoming) {
			continue
		}
		if lower != nil && r.Start.Before(*lower) {
			continue
		}
		if upper != nil && !r.Start.Before(*upper) {
			continue
		}
		reservations = append(reservations, r)
	}

	sortByStart(reservations)
	if scope == ScopePast {
		for i, j := 0, len(reservations)-1; i < j; i, j = i+1, j-1 {
			reservations[i], reservations[j] = reservations[j], reservations[i]
		}
	}
	return
}

func (s *ReservationService) dayBounds(from, to *time.Time) (*time.Time, *time.Time) {
	var lower, upper *time.Time
	if from != nil {
		start := startOfDay(*from, s.cfg.Location)
		lower = &start
	}
	switch {
	case to != nil:
		end := startOfDay(*to, s.cfg.Location).AddDate(0, 0, 1)
		upper = &end
	case lower != nil:
		end := lower.AddDate(0, 0, 1)
		upper = &end
	}
	return lower, upper
}

// ExportCalendar renders the reservations of a lab overlapping [from, to) as iCalendar.
func (s *ReservationService) ExportCalendar(ctx context.Context, principal Principal, labID string, from, to *time.Time) (feed string, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}
	if s.reservations == nil || s.labs == nil {
		err = fmt.Errorf("reservation repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "ExportCalendar",
		"principal_id", principal.UserID,
		"lab_id", labID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to export calendar", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "calendar exported")
	}()

	var lab Lab
	lab, err = s.labs.GetLab(ctx, labID)
	if err != nil {
		err = mapLabRepoError(err)
		return
	}

	var reservations []Reservation
	reservations, err = s.reservations.ListReservations(ctx, ReservationRepositoryFilter{LabID: labID, From: from, To: to})
	if err != nil {
		return
	}
	sortByStart(reservations)

	entries := make([]calendar.Entry, 0, len(reservations))
	for _, r := range reservations {
		entries = append(entries, calendarEntry(lab, r))
	}
	feed = calendar.Render(lab.Name, entries, s.now())
	return
}

func calendarEntry(lab Lab, r Reservation) calendar.Entry {
	entry := calendar.Entry{
		UID:       r.ID,
		Summary:   r.Purpose,
		Location:  strings.TrimSpace(lab.Name + " " + lab.Location),
		Category:  string(r.Kind),
		Organizer: r.OwnerEmail,
		Interval:  interval.Interval{Start: r.Start, End: r.End},
	}
	if r.OwnerEmail == BulkImportOwner {
		entry.Organizer = ""
	}
	if r.Class != nil {
		var lines []string
		if r.Class.InstructorName != "" {
			lines = append(lines, "Instructor: "+r.Class.InstructorName)
		}
		if r.Class.Section != "" {
			lines = append(lines, "Section: "+r.Class.Section)
		}
		if r.Class.Career != "" {
			lines = append(lines, "Career: "+r.Class.Career)
		}
		if r.Class.Faculty != "" {
			lines = append(lines, "Faculty: "+r.Class.Faculty)
		}
		entry.Description = strings.Join(lines, "\n")
	}
	return entry
}

func (s *ReservationService) publish(ctx context.Context, logger *slog.Logger, event notify.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.WarnContext(ctx, "failed to publish notification", "error", err, "event_kind", string(event.Kind))
	}
}

func toBookings(reservations []Reservation) []scheduler.Booking {
	bookings := make([]scheduler.Booking, 0, len(reservations))
	for _, r := range reservations {
		bookings = append(bookings, scheduler.Booking{
			ID:         r.ID,
			ResourceID: r.LabID,
			Interval:   interval.Interval{Start: r.Start, End: r.End},
		})
	}
	return bookings
}

func sortByStart(reservations []Reservation) {
	sort.SliceStable(reservations, func(i, j int) bool {
		if reservations[i].Start.Equal(reservations[j].Start) {
			return reservations[i].ID < reservations[j].ID
		}
		return reservations[i].Start.Before(reservations[j].Start)
	})
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

func mapReservationRepoError(err error, candidate scheduler.Booking) error {
	if err == nil {
		return nil
	}

	var overlap *persistence.OverlapError
	if errors.As(err, &overlap) {
		return &scheduler.ConflictError{
			Candidate: candidate,
			Existing: scheduler.Booking{
				ID:         overlap.ExistingID,
				ResourceID: overlap.LabID,
				Interval:   interval.Interval{Start: overlap.Start, End: overlap.End},
			},
		}
	}

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return fieldError("lab_id", "lab does not exist")
	case errors.Is(err, persistence.ErrConstraintViolation):
		return fieldError("end", "end must be after start")
	}
	return err
}
