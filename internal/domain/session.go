package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session is one anonymous listener's chat participation window.
type Session struct {
	ID            uuid.UUID
	ParticipantID uuid.UUID
	DisplayName   string
	City          *string
	Country       *string
	IsActive      bool
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// Usable reports whether the session may still authenticate connections.
func (s *Session) Usable(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, sessionID uuid.UUID) (*Session, error)
	Invalidate(ctx context.Context, sessionID uuid.UUID) error
}
