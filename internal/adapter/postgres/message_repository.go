package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/martin-1103/gbika-sub001/internal/domain"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

const messageColumns = `id, session_id, text, sender, sender_display_name, status, moderated_by, moderated_at, created_at`

func scanMessage(row pgx.Row) (*domain.ChatMessage, error) {
	var (
		m           domain.ChatMessage
		displayName *string
	)
	err := row.Scan(&m.ID, &m.SessionID, &m.Text, &m.Sender, &displayName, &m.Status, &m.ModeratedBy, &m.ModeratedAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if displayName != nil {
		m.SenderDisplayName = *displayName
	}
	return &m, nil
}

const insertMessage = `
INSERT INTO livechat_messages (` + messageColumns + `)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING`

func (r *MessageRepo) Insert(ctx context.Context, m *domain.ChatMessage) error {
	_, err := r.pool.Exec(ctx, insertMessage,
		m.ID, m.SessionID, m.Text, m.Sender, m.SenderDisplayName, m.Status, m.ModeratedBy, m.ModeratedAt, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, messageID uuid.UUID) (*domain.ChatMessage, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM livechat_messages WHERE id = $1`, messageID)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message by ID: %w", err)
	}
	return m, nil
}

// The WHERE clause is the only pending check; no row means either the message
// is missing or someone else already moderated it.
const transitionMessage = `
UPDATE livechat_messages
SET status = $2, moderated_by = $3, moderated_at = $4
WHERE id = $1 AND status = 'pending'
RETURNING ` + messageColumns

func (r *MessageRepo) TransitionFromPending(ctx context.Context, messageID uuid.UUID, status domain.MessageStatus, moderatorID string, at time.Time) (*domain.ChatMessage, error) {
	m, err := scanMessage(r.pool.QueryRow(ctx, transitionMessage, messageID, status, moderatorID, at))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to transition message: %w", err)
	}

	current, err := r.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return nil, &domain.AlreadyModeratedError{Status: current.Status}
}

const listPending = `
SELECT ` + messageColumns + `
FROM livechat_messages
WHERE status = 'pending'
ORDER BY created_at, id
LIMIT $1`

func (r *MessageRepo) ListPending(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	rows, err := r.pool.Query(ctx, listPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending message: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending messages: %w", err)
	}
	return out, nil
}
