// Package token signs and verifies the HS256 bearer tokens used by listeners
// and staff to open live-chat connections.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/martin-1103/gbika-sub001/internal/domain"
)

const issuer = "livechat"

type Claims struct {
	jwt.RegisteredClaims
	SessionID string      `json:"sid,omitempty"`
	Role      domain.Role `json:"role"`
	Name      string      `json:"name"`
	City      string      `json:"city,omitempty"`
	Country   string      `json:"country,omitempty"`
}

type Manager struct {
	secret []byte
	clock  clockwork.Clock
}

var (
	_ domain.TokenVerifier = (*Manager)(nil)
	_ domain.TokenIssuer   = (*Manager)(nil)
)

func NewManager(secret string, clock clockwork.Clock) *Manager {
	return &Manager{secret: []byte(secret), clock: clock}
}

// IssueSession mints a listener token that expires together with the session.
func (m *Manager) IssueSession(session *domain.Session) (string, error) {
	claims := &Claims{
		RegisteredClaims: m.registered(session.ParticipantID.String(), session.ExpiresAt),
		SessionID:        session.ID.String(),
		Role:             domain.RoleListener,
		Name:             session.DisplayName,
		City:             deref(session.City),
		Country:          deref(session.Country),
	}
	return m.sign(claims)
}

// IssueStaff mints a moderator or broadcaster token.
func (m *Manager) IssueStaff(subject, name string, role domain.Role, ttl time.Duration) (string, time.Time, error) {
	if !role.Staff() {
		return "", time.Time{}, fmt.Errorf("role %q is not a staff role", role)
	}
	if subject == "" {
		return "", time.Time{}, errors.New("subject is required")
	}

	expiresAt := m.clock.Now().Add(ttl)
	token, err := m.sign(&Claims{
		RegisteredClaims: m.registered(subject, expiresAt),
		Role:             role,
		Name:             name,
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verify checks signature and expiry. Expired tokens yield domain.ErrTokenExpired,
// every other failure domain.ErrUnauthorized.
func (m *Manager) Verify(raw string) (*domain.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, domain.ErrUnauthorized
	}
	return toDomain(claims)
}

func toDomain(c *Claims) (*domain.TokenClaims, error) {
	if !c.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrUnauthorized, c.Role)
	}

	out := &domain.TokenClaims{
		Subject: c.Subject,
		Role:    c.Role,
		Name:    c.Name,
		City:    c.City,
		Country: c.Country,
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}

	if c.Role == domain.RoleListener {
		sessionID, err := uuid.Parse(c.SessionID)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed session id", domain.ErrUnauthorized)
		}
		out.SessionID = sessionID
	}
	return out, nil
}

func (m *Manager) registered(subject string, expiresAt time.Time) jwt.RegisteredClaims {
	now := m.clock.Now()
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

func (m *Manager) sign(claims *Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
