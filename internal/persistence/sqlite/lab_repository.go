package sqlite

import (
	"context"
	"fmt"

	"github.com/example/lab-portal/internal/persistence"
)

// LabRepository implements persistence.LabRepository using SQLite
type LabRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewLabRepository creates a new SQLite lab repository
func NewLabRepository(pool *ConnectionPool) *LabRepository {
	return &LabRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const labColumns = `id, name, location, description, status, created_at, updated_at`

// CreateLab inserts a new lab.
func (r *LabRepository) CreateLab(ctx context.Context, lab persistence.Lab) error {
	if lab.ID == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO labs (`+labColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lab.ID,
		lab.Name,
		lab.Location,
		lab.Description,
		lab.Status,
		formatTime(lab.CreatedAt),
		formatTime(lab.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateLab updates an existing lab.
func (r *LabRepository) UpdateLab(ctx context.Context, lab persistence.Lab) error {
	result, err := r.helper.Exec(ctx, `
		UPDATE labs
		SET name = ?, location = ?, description = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		lab.Name,
		lab.Location,
		lab.Description,
		lab.Status,
		formatTime(lab.UpdatedAt),
		lab.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// GetLab retrieves a lab by ID.
func (r *LabRepository) GetLab(ctx context.Context, id string) (persistence.Lab, error) {
	if id == "" {
		return persistence.Lab{}, persistence.ErrNotFound
	}
	row := r.helper.QueryRow(ctx, `SELECT `+labColumns+` FROM labs WHERE id = ?`, id)
	lab, err := scanLab(row)
	if err != nil {
		return persistence.Lab{}, r.mapper.MapError(err)
	}
	return lab, nil
}

// ListLabs returns all labs ordered by name then ID.
func (r *LabRepository) ListLabs(ctx context.Context) ([]persistence.Lab, error) {
	rows, err := r.helper.Query(ctx, `SELECT `+labColumns+` FROM labs ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	labs := make([]persistence.Lab, 0)
	for rows.Next() {
		lab, err := scanLab(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		labs = append(labs, lab)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return labs, nil
}

// DeleteLab removes a lab. Equipment and reservations cascade.
func (r *LabRepository) DeleteLab(ctx context.Context, id string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM labs WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

func scanLab(row rowScanner) (persistence.Lab, error) {
	var (
		lab                  persistence.Lab
		createdAt, updatedAt string
	)
	if err := row.Scan(&lab.ID, &lab.Name, &lab.Location, &lab.Description, &lab.Status, &createdAt, &updatedAt); err != nil {
		return persistence.Lab{}, err
	}

	var err error
	if lab.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Lab{}, err
	}
	if lab.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Lab{}, err
	}
	return lab, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func requireAffected(result rowsAffecter) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
