package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/lab-portal/internal/persistence"
)

// OutboxRepository implements persistence.OutboxRepository using SQLite
type OutboxRepository struct {
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewOutboxRepository creates a new SQLite outbox repository
func NewOutboxRepository(pool *ConnectionPool) *OutboxRepository {
	return &OutboxRepository{
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// EnqueueOutboxMessage stores a pending message.
func (r *OutboxRepository) EnqueueOutboxMessage(ctx context.Context, msg persistence.OutboxMessage) error {
	_, err := r.helper.Exec(ctx, `
		INSERT INTO outbox_messages (id, kind, payload, created_at)
		VALUES (?, ?, ?, ?)`,
		msg.ID,
		msg.Kind,
		msg.Payload,
		formatTime(msg.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// ListPendingOutboxMessages returns undelivered messages, oldest first.
func (r *OutboxRepository) ListPendingOutboxMessages(ctx context.Context, limit int) ([]persistence.OutboxMessage, error) {
	query := `
		SELECT id, kind, payload, created_at
		FROM outbox_messages
		WHERE delivered_at IS NULL
		ORDER BY created_at ASC, id ASC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	messages := make([]persistence.OutboxMessage, 0)
	for rows.Next() {
		var (
			msg       persistence.OutboxMessage
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.Kind, &msg.Payload, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if msg.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return messages, nil
}

// MarkOutboxMessageDelivered stamps a message as delivered.
func (r *OutboxRepository) MarkOutboxMessageDelivered(ctx context.Context, id string, deliveredAt time.Time) error {
	result, err := r.helper.Exec(ctx,
		`UPDATE outbox_messages SET delivered_at = ? WHERE id = ?`,
		sql.NullString{String: formatTime(deliveredAt), Valid: true},
		id,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}
