package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleListener    Role = "listener"
	RoleModerator   Role = "moderator"
	RoleBroadcaster Role = "broadcaster"
)

// Staff reports whether r belongs to the privileged moderator side.
func (r Role) Staff() bool {
	return r == RoleModerator || r == RoleBroadcaster
}

func (r Role) Valid() bool {
	return r == RoleListener || r.Staff()
}

var (
	ListenerRoles = []Role{RoleListener}
	StaffRoles    = []Role{RoleModerator, RoleBroadcaster}
)

// Identity is the authenticated principal behind a token.
// SessionID is uuid.Nil for staff identities. A zero ExpiresAt never expires.
type Identity struct {
	SessionID     uuid.UUID
	ParticipantID string
	DisplayName   string
	City          string
	Country       string
	Role          Role
	ExpiresAt     time.Time
}

// Connection is the live-socket record kept by the registry.
type Connection struct {
	ID            string
	SessionID     uuid.UUID
	ParticipantID string
	DisplayName   string
	City          string
	Country       string
	Role          Role
	ConnectedAt   time.Time
	ExpiresAt     time.Time
}

// Expired reports whether the connection's credentials have lapsed at now.
func (c Connection) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

func NewConnection(identity Identity, now time.Time) Connection {
	return Connection{
		SessionID:     identity.SessionID,
		ParticipantID: identity.ParticipantID,
		DisplayName:   identity.DisplayName,
		City:          identity.City,
		Country:       identity.Country,
		Role:          identity.Role,
		ConnectedAt:   now,
		ExpiresAt:     identity.ExpiresAt,
	}
}
