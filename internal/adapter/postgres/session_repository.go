package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/martin-1103/gbika-sub001/internal/domain"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

var _ domain.SessionRepository = (*SessionRepo)(nil)

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const insertSession = `
INSERT INTO livechat_sessions (id, participant_id, display_name, city, country, is_active, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.pool.Exec(ctx, insertSession,
		s.ID, s.ParticipantID, s.DisplayName, s.City, s.Country, s.IsActive, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

const selectSession = `
SELECT id, participant_id, display_name, city, country, is_active, expires_at, created_at
FROM livechat_sessions
WHERE id = $1`

func (r *SessionRepo) GetByID(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	var s domain.Session
	err := r.pool.QueryRow(ctx, selectSession, sessionID).Scan(
		&s.ID, &s.ParticipantID, &s.DisplayName, &s.City, &s.Country, &s.IsActive, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session by ID: %w", err)
	}
	return &s, nil
}

func (r *SessionRepo) Invalidate(ctx context.Context, sessionID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE livechat_sessions SET is_active = FALSE WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}
