package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/example/lab-portal/internal/persistence"
)

// ReservationRepository implements persistence.ReservationRepository using SQLite
type ReservationRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewReservationRepository creates a new SQLite reservation repository
func NewReservationRepository(pool *ConnectionPool) *ReservationRepository {
	return &ReservationRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

const reservationColumns = `id, lab_id, lab_name, kind, owner_id, owner_email, purpose, start_at, end_at,
	import_key, faculty, career, instructor_id, instructor_name, section, enrolled, created_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreateReservation inserts a reservation without an overlap check.
func (r *ReservationRepository) CreateReservation(ctx context.Context, reservation persistence.Reservation) error {
	if reservation.ID == "" {
		return persistence.ErrConstraintViolation
	}
	return r.retry.WithRetry(ctx, func() error {
		return insertReservation(ctx, r.pool.DB(), reservation)
	})
}

// CreateReservations inserts every reservation in one transaction.
func (r *ReservationRepository) CreateReservations(ctx context.Context, reservations []persistence.Reservation) error {
	if len(reservations) == 0 {
		return nil
	}
	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			for _, reservation := range reservations {
				if reservation.ID == "" {
					return persistence.ErrConstraintViolation
				}
				if err := insertReservation(ctx, tx, reservation); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// CreateReservationIfFree checks for an overlapping reservation of the same
// lab and inserts inside one write transaction.
func (r *ReservationRepository) CreateReservationIfFree(ctx context.Context, reservation persistence.Reservation) error {
	if reservation.ID == "" {
		return persistence.ErrConstraintViolation
	}
	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			var (
				existingID         string
				startText, endText string
			)
			err := tx.QueryRowContext(ctx, `
				SELECT id, start_at, end_at
				FROM reservations
				WHERE lab_id = ? AND start_at < ? AND end_at > ?
				ORDER BY start_at ASC, id ASC
				LIMIT 1`,
				reservation.LabID,
				formatTime(reservation.End),
				formatTime(reservation.Start),
			).Scan(&existingID, &startText, &endText)

			switch {
			case errors.Is(err, sql.ErrNoRows):
				return insertReservation(ctx, tx, reservation)
			case err != nil:
				return err
			}

			overlap := &persistence.OverlapError{ExistingID: existingID, LabID: reservation.LabID}
			if overlap.Start, err = parseTime("start_at", startText); err != nil {
				return err
			}
			if overlap.End, err = parseTime("end_at", endText); err != nil {
				return err
			}
			return overlap
		})
	})
}

// GetReservation retrieves a reservation by ID.
func (r *ReservationRepository) GetReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	row := r.helper.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	reservation, err := scanReservation(row)
	if err != nil {
		return persistence.Reservation{}, r.mapper.MapError(err)
	}
	return reservation, nil
}

// ListReservations returns matching reservations ordered by start time.
func (r *ReservationRepository) ListReservations(ctx context.Context, filter persistence.ReservationFilter) ([]persistence.Reservation, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.LabID != "" {
		conditions = append(conditions, "lab_id = ?")
		args = append(args, filter.LabID)
	}
	if filter.OwnerID != "" {
		conditions = append(conditions, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.From != nil {
		conditions = append(conditions, "end_at > ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		conditions = append(conditions, "start_at < ?")
		args = append(args, formatTime(*filter.To))
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY start_at ASC, id ASC"

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	reservations := make([]persistence.Reservation, 0)
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		reservations = append(reservations, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return reservations, nil
}

// DeleteReservation removes a reservation.
func (r *ReservationRepository) DeleteReservation(ctx context.Context, id string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

func insertReservation(ctx context.Context, db execer, res persistence.Reservation) error {
	var (
		importKey                                              sql.NullString
		faculty, career, instructorID, instructorName, section sql.NullString
		enrolled                                               sql.NullInt64
	)
	if res.ImportKey != nil {
		importKey = sql.NullString{String: *res.ImportKey, Valid: true}
	}
	if res.Class != nil {
		faculty = sql.NullString{String: res.Class.Faculty, Valid: true}
		career = sql.NullString{String: res.Class.Career, Valid: true}
		instructorID = sql.NullString{String: res.Class.InstructorID, Valid: true}
		instructorName = sql.NullString{String: res.Class.InstructorName, Valid: true}
		section = sql.NullString{String: res.Class.Section, Valid: true}
		enrolled = sql.NullInt64{Int64: int64(res.Class.Enrolled), Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID,
		res.LabID,
		res.LabName,
		res.Kind,
		res.OwnerID,
		res.OwnerEmail,
		res.Purpose,
		formatTime(res.Start),
		formatTime(res.End),
		importKey,
		faculty,
		career,
		instructorID,
		instructorName,
		section,
		enrolled,
		formatTime(res.CreatedAt),
	)
	return err
}

func scanReservation(row rowScanner) (persistence.Reservation, error) {
	var (
		res                                                    persistence.Reservation
		startAt, endAt, createdAt                              string
		importKey                                              sql.NullString
		faculty, career, instructorID, instructorName, section sql.NullString
		enrolled                                               sql.NullInt64
	)
	if err := row.Scan(
		&res.ID,
		&res.LabID,
		&res.LabName,
		&res.Kind,
		&res.OwnerID,
		&res.OwnerEmail,
		&res.Purpose,
		&startAt,
		&endAt,
		&importKey,
		&faculty,
		&career,
		&instructorID,
		&instructorName,
		&section,
		&enrolled,
		&createdAt,
	); err != nil {
		return persistence.Reservation{}, err
	}

	var err error
	if res.Start, err = parseTime("start_at", startAt); err != nil {
		return persistence.Reservation{}, err
	}
	if res.End, err = parseTime("end_at", endAt); err != nil {
		return persistence.Reservation{}, err
	}
	if res.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Reservation{}, err
	}

	if importKey.Valid {
		key := importKey.String
		res.ImportKey = &key
	}
	if faculty.Valid {
		res.Class = &persistence.ClassDetails{
			Faculty:        faculty.String,
			Career:         career.String,
			InstructorID:   instructorID.String,
			InstructorName: instructorName.String,
			Section:        section.String,
			Enrolled:       int(enrolled.Int64),
		}
	}
	return res, nil
}
