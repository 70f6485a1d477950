package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/martin-1103/gbika-sub001/internal/domain"
)

const maxPendingPage = 200

// ModerationService is the only place that creates messages or moves them out of pending.
type ModerationService struct {
	messages  domain.MessageRepository
	sessions  domain.SessionRepository
	sanitizer domain.Sanitizer
	clock     clockwork.Clock
	maxLength int
}

func NewModerationService(messages domain.MessageRepository, sessions domain.SessionRepository, sanitizer domain.Sanitizer, clock clockwork.Clock, maxLength int) *ModerationService {
	return &ModerationService{
		messages:  messages,
		sessions:  sessions,
		sanitizer: sanitizer,
		clock:     clock,
		maxLength: maxLength,
	}
}

// Submit stores a listener message in pending state. The session is checked
// on every call, so a socket that outlives its session cannot keep posting;
// that case returns domain.ErrUnauthorized.
func (s *ModerationService) Submit(ctx context.Context, sessionID uuid.UUID, text string) (*domain.ChatMessage, error) {
	clean, err := s.cleanText(text)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: session gone", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: session lookup: %w", domain.ErrUnavailable, err)
	}
	if !session.Usable(s.clock.Now()) {
		return nil, fmt.Errorf("%w: session expired or ended", domain.ErrUnauthorized)
	}

	msg := &domain.ChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		Text:      clean,
		Sender:    domain.SenderUser,
		Status:    domain.StatusPending,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: persist message: %w", domain.ErrUnavailable, err)
	}
	return msg, nil
}

// Moderate applies action to a pending message. The pending check is enforced by
// the repository's conditional update, so concurrent moderators cannot both win.
func (s *ModerationService) Moderate(ctx context.Context, messageID uuid.UUID, action domain.ModerationAction, moderatorID string) (*domain.ChatMessage, error) {
	status, ok := action.TargetStatus()
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAction, action)
	}

	msg, err := s.messages.TransitionFromPending(ctx, messageID, status, moderatorID, s.clock.Now().UTC())
	if errors.Is(err, domain.ErrMessageNotFound) || errors.Is(err, domain.ErrConflict) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: moderate message: %w", domain.ErrUnavailable, err)
	}
	return msg, nil
}

// PostAdminMessage creates a staff-authored message addressed to a session.
// Admin messages skip moderation and are stored as approved.
func (s *ModerationService) PostAdminMessage(ctx context.Context, sessionID uuid.UUID, text string, author domain.Identity) (*domain.ChatMessage, error) {
	clean, err := s.cleanText(text)
	if err != nil {
		return nil, err
	}

	if _, err := s.sessions.GetByID(ctx, sessionID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: session lookup: %w", domain.ErrUnavailable, err)
	}

	now := s.clock.Now().UTC()
	moderatedBy := author.ParticipantID
	msg := &domain.ChatMessage{
		ID:                uuid.New(),
		SessionID:         sessionID,
		Text:              clean,
		Sender:            domain.SenderAdmin,
		SenderDisplayName: adminDisplayName(author),
		Status:            domain.StatusApproved,
		ModeratedBy:       &moderatedBy,
		ModeratedAt:       &now,
		CreatedAt:         now,
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: persist admin message: %w", domain.ErrUnavailable, err)
	}
	return msg, nil
}

// RecordAdminMessage stores an admin message received from another relay instance.
// Inserting a message that already exists is a no-op.
func (s *ModerationService) RecordAdminMessage(ctx context.Context, msg *domain.ChatMessage) error {
	if msg.Sender != domain.SenderAdmin {
		return fmt.Errorf("%w: not an admin message", domain.ErrInvalidPayload)
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		return fmt.Errorf("%w: persist admin message: %w", domain.ErrUnavailable, err)
	}
	return nil
}

// ListPending returns the oldest pending messages first.
func (s *ModerationService) ListPending(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 || limit > maxPendingPage {
		limit = maxPendingPage
	}
	msgs, err := s.messages.ListPending(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list pending: %w", domain.ErrUnavailable, err)
	}
	return msgs, nil
}

func (s *ModerationService) cleanText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", invalid("text", "message text is required")
	}
	if utf8.RuneCountInString(trimmed) > s.maxLength {
		return "", invalid("text", fmt.Sprintf("message text exceeds %d characters", s.maxLength))
	}

	clean := s.sanitizer.Sanitize(trimmed)
	if clean == "" {
		return "", invalid("text", "message text is empty after sanitizing")
	}
	return clean, nil
}

func adminDisplayName(author domain.Identity) string {
	if author.DisplayName != "" {
		return author.DisplayName
	}
	return "Admin"
}
