package sqlite

import (
	"context"
	"strings"

	"github.com/example/lab-portal/internal/persistence"
)

// EquipmentRepository implements persistence.EquipmentRepository and
// persistence.InventoryLogRepository.
type EquipmentRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewEquipmentRepository creates a new SQLite equipment repository
func NewEquipmentRepository(pool *ConnectionPool) *EquipmentRepository {
	return &EquipmentRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const equipmentColumns = `id, lab_id, name, quantity, status, alert_threshold, created_at, updated_at`

// CreateEquipment inserts a new inventory item.
func (r *EquipmentRepository) CreateEquipment(ctx context.Context, item persistence.Equipment) error {
	if item.ID == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO equipment (`+equipmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.LabID,
		item.Name,
		item.Quantity,
		item.Status,
		item.AlertThreshold,
		formatTime(item.CreatedAt),
		formatTime(item.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateEquipment updates an existing inventory item.
func (r *EquipmentRepository) UpdateEquipment(ctx context.Context, item persistence.Equipment) error {
	result, err := r.helper.Exec(ctx, `
		UPDATE equipment
		SET lab_id = ?, name = ?, quantity = ?, status = ?, alert_threshold = ?, updated_at = ?
		WHERE id = ?`,
		item.LabID,
		item.Name,
		item.Quantity,
		item.Status,
		item.AlertThreshold,
		formatTime(item.UpdatedAt),
		item.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// GetEquipment retrieves an inventory item by ID.
func (r *EquipmentRepository) GetEquipment(ctx context.Context, id string) (persistence.Equipment, error) {
	row := r.helper.QueryRow(ctx, `SELECT `+equipmentColumns+` FROM equipment WHERE id = ?`, id)
	item, err := scanEquipment(row)
	if err != nil {
		return persistence.Equipment{}, r.mapper.MapError(err)
	}
	return item, nil
}

// ListEquipment returns items ordered by name. An empty labID lists every lab.
func (r *EquipmentRepository) ListEquipment(ctx context.Context, labID string) ([]persistence.Equipment, error) {
	query := `SELECT ` + equipmentColumns + ` FROM equipment`
	var args []any
	if labID != "" {
		query += ` WHERE lab_id = ?`
		args = append(args, labID)
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	items := make([]persistence.Equipment, 0)
	for rows.Next() {
		item, err := scanEquipment(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return items, nil
}

// DeleteEquipment removes an inventory item.
func (r *EquipmentRepository) DeleteEquipment(ctx context.Context, id string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM equipment WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// AppendInventoryChange records a change entry.
func (r *EquipmentRepository) AppendInventoryChange(ctx context.Context, change persistence.InventoryChange) error {
	_, err := r.helper.Exec(ctx, `
		INSERT INTO inventory_changes
			(id, lab_id, lab_name, item_id, item_name, kind, quantity_delta, new_quantity, actor_email, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		change.ID,
		change.LabID,
		change.LabName,
		change.ItemID,
		change.ItemName,
		change.Kind,
		change.QuantityDelta,
		change.NewQuantity,
		change.ActorEmail,
		formatTime(change.RecordedAt),
	)
	return r.mapper.MapError(err)
}

// ListInventoryChanges returns matching entries, newest first.
func (r *EquipmentRepository) ListInventoryChanges(ctx context.Context, filter persistence.InventoryFilter) ([]persistence.InventoryChange, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.LabID != "" {
		conditions = append(conditions, "lab_id = ?")
		args = append(args, filter.LabID)
	}
	if filter.ItemID != "" {
		conditions = append(conditions, "item_id = ?")
		args = append(args, filter.ItemID)
	}

	query := `
		SELECT id, lab_id, lab_name, item_id, item_name, kind, quantity_delta, new_quantity, actor_email, recorded_at
		FROM inventory_changes`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY recorded_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	changes := make([]persistence.InventoryChange, 0)
	for rows.Next() {
		var (
			change     persistence.InventoryChange
			recordedAt string
		)
		if err := rows.Scan(
			&change.ID,
			&change.LabID,
			&change.LabName,
			&change.ItemID,
			&change.ItemName,
			&change.Kind,
			&change.QuantityDelta,
			&change.NewQuantity,
			&change.ActorEmail,
			&recordedAt,
		); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if change.RecordedAt, err = parseTime("recorded_at", recordedAt); err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return changes, nil
}

func scanEquipment(row rowScanner) (persistence.Equipment, error) {
	var (
		item                 persistence.Equipment
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&item.ID,
		&item.LabID,
		&item.Name,
		&item.Quantity,
		&item.Status,
		&item.AlertThreshold,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Equipment{}, err
	}

	var err error
	if item.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Equipment{}, err
	}
	if item.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Equipment{}, err
	}
	return item, nil
}
