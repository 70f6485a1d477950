package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/martin-1103/gbika-sub001/internal/domain"
)

const (
	maxNameLength     = 50
	maxLocationLength = 100
)

type SessionService struct {
	sessions  domain.SessionRepository
	tokens    domain.TokenIssuer
	sanitizer domain.Sanitizer
	clock     clockwork.Clock
	ttl       time.Duration
}

func NewSessionService(sessions domain.SessionRepository, tokens domain.TokenIssuer, sanitizer domain.Sanitizer, clock clockwork.Clock, ttl time.Duration) *SessionService {
	return &SessionService{
		sessions:  sessions,
		tokens:    tokens,
		sanitizer: sanitizer,
		clock:     clock,
		ttl:       ttl,
	}
}

type CreateSessionRequest struct {
	Name    string
	City    string
	Country string
}

type CreatedSession struct {
	Session *domain.Session
	Token   string
}

// Create registers a new anonymous listener and mints its token. The display
// name and location pass through the same sanitizer as chat text.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest) (*CreatedSession, error) {
	name := s.sanitizer.Sanitize(strings.TrimSpace(req.Name))
	if name == "" {
		return nil, invalid("name", "name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, invalid("name", fmt.Sprintf("name exceeds %d characters", maxNameLength))
	}

	city, err := s.optionalField("city", req.City)
	if err != nil {
		return nil, err
	}
	country, err := s.optionalField("country", req.Country)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	session := &domain.Session{
		ID:            uuid.New(),
		ParticipantID: uuid.New(),
		DisplayName:   name,
		City:          city,
		Country:       country,
		IsActive:      true,
		ExpiresAt:     now.Add(s.ttl).Truncate(time.Second),
		CreatedAt:     now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: create session: %w", domain.ErrUnavailable, err)
	}

	token, err := s.tokens.IssueSession(session)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	return &CreatedSession{Session: session, Token: token}, nil
}

// End invalidates a session. Ending an unknown session reports domain.ErrSessionNotFound.
func (s *SessionService) End(ctx context.Context, sessionID uuid.UUID) error {
	err := s.sessions.Invalidate(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: invalidate session: %w", domain.ErrUnavailable, err)
	}
	return nil
}

func (s *SessionService) optionalField(field, value string) (*string, error) {
	trimmed := s.sanitizer.Sanitize(strings.TrimSpace(value))
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > maxLocationLength {
		return nil, invalid(field, fmt.Sprintf("%s exceeds %d characters", field, maxLocationLength))
	}
	return &trimmed, nil
}
