package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/martin-1103/gbika-sub001/internal/domain"
	"golang.org/x/sync/singleflight"
)

const sessionLookupTimeout = 5 * time.Second

type Authenticator struct {
	tokens   domain.TokenVerifier
	sessions domain.SessionRepository
	clock    clockwork.Clock

	lookups singleflight.Group
}

func NewAuthenticator(tokens domain.TokenVerifier, sessions domain.SessionRepository, clock clockwork.Clock) *Authenticator {
	return &Authenticator{
		tokens:   tokens,
		sessions: sessions,
		clock:    clock,
	}
}

// Authenticate validates token and, for listeners, the session it references.
// It returns domain.ErrUnauthorized, domain.ErrTokenExpired, domain.ErrForbidden
// or domain.ErrUnavailable on rejection.
func (a *Authenticator) Authenticate(ctx context.Context, token string, allowed []domain.Role) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
	}

	claims, err := a.tokens.Verify(token)
	if err != nil {
		return domain.Identity{}, err
	}

	if !slices.Contains(allowed, claims.Role) {
		return domain.Identity{}, fmt.Errorf("%w: %s", domain.ErrForbidden, claims.Role)
	}

	if claims.Role.Staff() {
		return domain.Identity{
			ParticipantID: claims.Subject,
			DisplayName:   claims.Name,
			Role:          claims.Role,
			ExpiresAt:     claims.ExpiresAt,
		}, nil
	}

	session, err := a.lookupSession(ctx, claims)
	if err != nil {
		return domain.Identity{}, err
	}

	return domain.Identity{
		SessionID:     session.ID,
		ParticipantID: session.ParticipantID.String(),
		DisplayName:   session.DisplayName,
		City:          valueOr(session.City),
		Country:       valueOr(session.Country),
		Role:          domain.RoleListener,
		ExpiresAt:     earliest(session.ExpiresAt, claims.ExpiresAt),
	}, nil
}

// lookupSession coalesces concurrent lookups of one session. The shared call
// is detached from the first caller's ctx so its cancellation cannot fail
// the other waiters.
func (a *Authenticator) lookupSession(ctx context.Context, claims *domain.TokenClaims) (*domain.Session, error) {
	v, err, _ := a.lookups.Do(claims.SessionID.String(), func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionLookupTimeout)
		defer cancel()
		return a.sessions.GetByID(lookupCtx, claims.SessionID)
	})
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: invalid session", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: session lookup: %w", domain.ErrUnavailable, err)
	}

	session := v.(*domain.Session)
	if !session.Usable(a.clock.Now()) {
		return nil, fmt.Errorf("%w: invalid session", domain.ErrUnauthorized)
	}
	return session, nil
}

func earliest(a, b time.Time) time.Time {
	if b.IsZero() || (!a.IsZero() && a.Before(b)) {
		return a
	}
	return b
}

func valueOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
