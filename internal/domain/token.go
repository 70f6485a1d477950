package domain

import (
	"time"

	"github.com/google/uuid"
)

// TokenClaims is the verified content of a bearer token.
type TokenClaims struct {
	Subject   string
	SessionID uuid.UUID
	Role      Role
	Name      string
	City      string
	Country   string
	ExpiresAt time.Time
}

type TokenVerifier interface {
	Verify(token string) (*TokenClaims, error)
}

type TokenIssuer interface {
	IssueSession(session *Session) (string, error)
}
