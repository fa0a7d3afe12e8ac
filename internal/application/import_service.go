package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/example/lab-portal/internal/importer"
	"github.com/example/lab-portal/internal/notify"
	"github.com/example/lab-portal/internal/scheduler"
)

// DefaultPreviewTTL is how long an uncommitted import preview is kept.
const DefaultPreviewTTL = 15 * time.Minute

const importPurpose = "academic load import"

// ImportService turns academic load spreadsheets into scheduled class
// reservations. A preview is reconciled and parked under a token; committing
// the token writes every draft in one atomic batch.
type ImportService struct {
	reservations ReservationRepository
	labs         LabRepository
	reconciler   *importer.Reconciler
	publisher    notify.Publisher
	previews     *cache.Cache
	ttl          time.Duration
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewImportService constructs an import service with the default preview TTL.
func NewImportService(reservations ReservationRepository, labs LabRepository, reconciler *importer.Reconciler, publisher notify.Publisher, idGenerator func() string, now func() time.Time) *ImportService {
	return NewImportServiceWithLogger(reservations, labs, reconciler, publisher, DefaultPreviewTTL, idGenerator, now, nil)
}

// NewImportServiceWithLogger constructs an import service with a specified preview TTL and logger.
func NewImportServiceWithLogger(reservations ReservationRepository, labs LabRepository, reconciler *importer.Reconciler, publisher notify.Publisher, ttl time.Duration, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ImportService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = DefaultPreviewTTL
	}
	if reconciler == nil {
		reconciler = importer.NewReconciler(importer.DefaultMapping(), nil, 0)
	}
	return &ImportService{
		reservations: reservations,
		labs:         labs,
		reconciler:   reconciler,
		publisher:    publisher,
		previews:     cache.New(ttl, 2*ttl),
		ttl:          ttl,
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

func (s *ImportService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ImportService", operation, attrs...)
}

// Preview reads and reconciles an academic load file against the current lab
// directory. Row failures are reported in the preview and never abort it.
func (s *ImportService) Preview(ctx context.Context, params PreviewImportParams) (preview ImportPreview, err error) {
	if s == nil {
		err = fmt.Errorf("ImportService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Preview",
		"principal_id", params.Principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to preview import", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"preview_token", preview.Token,
			"draft_count", len(preview.Drafts),
			"failure_count", len(preview.Failures),
			"collision_count", len(preview.Collisions),
			"duplicate_count", preview.Duplicates,
		).InfoContext(ctx, "import previewed")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.labs == nil {
		err = fmt.Errorf("lab repository not configured")
		return
	}

	vErr := &ValidationError{}
	if params.File == nil {
		vErr.add("file", "file is required")
	}
	if params.Period.Start.IsZero() {
		vErr.add("period_start", "period start is required")
	}
	if params.Period.End.IsZero() {
		vErr.add("period_end", "period end is required")
	}
	if !params.Period.Start.IsZero() && params.Period.End.Before(params.Period.Start) {
		vErr.add("period_end", "period end must not be before period start")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var rows []importer.Row
	rows, err = importer.ReadSheet(params.File)
	if err != nil {
		err = fieldError("file", err.Error())
		return
	}

	var labs []Lab
	labs, err = s.labs.ListLabs(ctx)
	if err != nil {
		err = mapLabRepoError(err)
		return
	}
	directory := make([]importer.Resource, 0, len(labs))
	for _, lab := range labs {
		directory = append(directory, importer.Resource{ID: lab.ID, Name: lab.Name})
	}

	result := s.reconciler.Reconcile(rows, directory, params.Period)
	for _, failure := range result.Failures {
		logger.WarnContext(ctx, "import row rejected",
			"row", failure.Row,
			"code", failure.Code,
			"failure_kind", failure.Kind(),
			"error", failure.Err,
		)
	}

	preview = ImportPreview{
		Token:          s.idGenerator(),
		ExpiresAt:      s.now().Add(s.ttl),
		MappingVersion: result.MappingVersion,
		Drafts:         result.Drafts,
		Failures:       result.Failures,
		Collisions:     result.Collisions,
		Duplicates:     result.Duplicates,
	}
	if preview.Token == "" {
		err = errors.New("preview token generator returned an empty token")
		preview = ImportPreview{}
		return
	}
	s.previews.Set(preview.Token, preview, cache.DefaultExpiration)
	return
}

// Commit writes every draft of a preview as scheduled class reservations in
// one atomic batch and discards the preview. When the batch fails nothing is
// written and the preview stays available for another attempt.
func (s *ImportService) Commit(ctx context.Context, principal Principal, token string) (result ImportResult, err error) {
	if s == nil {
		err = fmt.Errorf("ImportService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Commit",
		"principal_id", principal.UserID,
		"preview_token", token,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to commit import", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("reservation_count", len(result.ReservationIDs)).InfoContext(ctx, "import committed")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.reservations == nil {
		err = fmt.Errorf("reservation repository not configured")
		return
	}

	cached, ok := s.previews.Get(token)
	if !ok {
		err = ErrPreviewExpired
		return
	}
	preview := cached.(ImportPreview)
	if len(preview.Drafts) == 0 {
		err = fieldError("file", "the import contains no reservations")
		return
	}

	now := s.now()
	batch := make([]Reservation, 0, len(preview.Drafts))
	for _, draft := range preview.Drafts {
		batch = append(batch, s.reservationFromDraft(draft, now))
	}

	if err = s.reservations.CreateReservations(ctx, batch); err != nil {
		err = mapReservationRepoError(err, scheduler.Booking{})
		return
	}
	s.previews.Delete(token)

	result.ReservationIDs = make([]string, 0, len(batch))
	event := &notify.ReservationCreated{
		OwnerEmail: BulkImportOwner,
		Purpose:    importPurpose,
		Count:      len(batch),
	}
	labIDs := make(map[string]struct{})
	for _, r := range batch {
		result.ReservationIDs = append(result.ReservationIDs, r.ID)
		labIDs[r.LabID] = struct{}{}
		if event.Start.IsZero() || r.Start.Before(event.Start) {
			event.Start = r.Start
		}
		if r.End.After(event.End) {
			event.End = r.End
		}
	}
	event.ReservationIDs = result.ReservationIDs
	if len(labIDs) == 1 {
		event.LabID = batch[0].LabID
		event.LabName = batch[0].LabName
	}

	if s.publisher != nil {
		if perr := s.publisher.Publish(ctx, notify.Event{
			Kind:               notify.KindReservationCreated,
			OccurredAt:         now,
			ReservationCreated: event,
		}); perr != nil {
			logger.WarnContext(ctx, "failed to publish notification", "error", perr, "event_kind", string(notify.KindReservationCreated))
		}
	}
	return
}

// Discard abandons a preview before it is committed.
func (s *ImportService) Discard(ctx context.Context, principal Principal, token string) error {
	if s == nil {
		return fmt.Errorf("ImportService is nil")
	}
	if !principal.IsAdmin {
		return ErrUnauthorized
	}

	logger := s.loggerWith(ctx, "Discard",
		"principal_id", principal.UserID,
		"preview_token", token,
	)

	if _, ok := s.previews.Get(token); !ok {
		logger.ErrorContext(ctx, "failed to discard import", "error", ErrPreviewExpired, "error_kind", ErrorKind(ErrPreviewExpired))
		return ErrPreviewExpired
	}
	s.previews.Delete(token)
	logger.InfoContext(ctx, "import discarded")
	return nil
}

func (s *ImportService) reservationFromDraft(draft importer.Draft, now time.Time) Reservation {
	return Reservation{
		ID:         s.idGenerator(),
		LabID:      draft.LabID,
		LabName:    draft.LabName,
		Kind:       ReservationScheduledClass,
		OwnerID:    BulkImportOwner,
		OwnerEmail: BulkImportOwner,
		Purpose:    draft.Subject,
		Start:      draft.Interval.Start,
		End:        draft.Interval.End,
		ImportKey:  draft.Key,
		Class: &ClassDetails{
			Faculty:        draft.Class.Faculty,
			Career:         draft.Class.Career,
			InstructorID:   draft.Class.InstructorID,
			InstructorName: draft.Class.InstructorName,
			Section:        draft.Class.Section,
			Enrolled:       draft.Class.Enrolled,
		},
		CreatedAt: now,
	}
}
