package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type MessageStatus string

const (
	StatusPending  MessageStatus = "pending"
	StatusApproved MessageStatus = "approved"
	StatusRejected MessageStatus = "rejected"
	StatusBlocked  MessageStatus = "blocked"
)

// Terminal reports whether no further transition is allowed from s.
func (s MessageStatus) Terminal() bool {
	return s != StatusPending
}

type Sender string

const (
	SenderUser  Sender = "user"
	SenderAdmin Sender = "admin"
)

type ModerationAction string

const (
	ActionApprove ModerationAction = "approve"
	ActionReject  ModerationAction = "reject"
	ActionBlock   ModerationAction = "block"
)

// TargetStatus maps an action to the terminal status it produces.
func (a ModerationAction) TargetStatus() (MessageStatus, bool) {
	switch a {
	case ActionApprove:
		return StatusApproved, true
	case ActionReject:
		return StatusRejected, true
	case ActionBlock:
		return StatusBlocked, true
	default:
		return "", false
	}
}

type ChatMessage struct {
	ID                uuid.UUID     `json:"id"`
	SessionID         uuid.UUID     `json:"sessionId"`
	Text              string        `json:"text"`
	Sender            Sender        `json:"sender"`
	SenderDisplayName string        `json:"senderDisplayName,omitempty"`
	Status            MessageStatus `json:"status"`
	ModeratedBy       *string       `json:"moderatedBy,omitempty"`
	ModeratedAt       *time.Time    `json:"moderatedAt,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
}

type MessageRepository interface {
	// Insert stores msg. Inserting an ID that already exists is a no-op.
	Insert(ctx context.Context, msg *ChatMessage) error
	GetByID(ctx context.Context, messageID uuid.UUID) (*ChatMessage, error)
	// TransitionFromPending moves a pending message to status in a single
	// conditional update. It returns ErrMessageNotFound or an
	// *AlreadyModeratedError when no pending row matched.
	TransitionFromPending(ctx context.Context, messageID uuid.UUID, status MessageStatus, moderatorID string, at time.Time) (*ChatMessage, error)
	ListPending(ctx context.Context, limit int) ([]ChatMessage, error)
}

// Sanitizer strips markup and unsafe content from user-supplied text.
type Sanitizer interface {
	Sanitize(text string) string
}
