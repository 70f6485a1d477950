package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/martin-1103/gbika-sub001/internal/app"
	"github.com/martin-1103/gbika-sub001/internal/domain"
	"github.com/martin-1103/gbika-sub001/internal/platform/config"
)

// --- Mock implementations ---

type mockSessionService struct {
	createFn func(ctx context.Context, req app.CreateSessionRequest) (*app.CreatedSession, error)
	endFn    func(ctx context.Context, sessionID uuid.UUID) error
}

func (m *mockSessionService) Create(ctx context.Context, req app.CreateSessionRequest) (*app.CreatedSession, error) {
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockSessionService) End(ctx context.Context, sessionID uuid.UUID) error {
	if m.endFn != nil {
		return m.endFn(ctx, sessionID)
	}
	return nil
}

type mockModerationService struct {
	moderateFn    func(ctx context.Context, messageID uuid.UUID, action domain.ModerationAction, moderatorID string) (*domain.ChatMessage, error)
	postAdminFn   func(ctx context.Context, sessionID uuid.UUID, text string, author domain.Identity) (*domain.ChatMessage, error)
	listPendingFn func(ctx context.Context, limit int) ([]domain.ChatMessage, error)
}

func (m *mockModerationService) Moderate(ctx context.Context, messageID uuid.UUID, action domain.ModerationAction, moderatorID string) (*domain.ChatMessage, error) {
	if m.moderateFn != nil {
		return m.moderateFn(ctx, messageID, action, moderatorID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockModerationService) PostAdminMessage(ctx context.Context, sessionID uuid.UUID, text string, author domain.Identity) (*domain.ChatMessage, error) {
	if m.postAdminFn != nil {
		return m.postAdminFn(ctx, sessionID, text, author)
	}
	return nil, errors.New("not implemented")
}

func (m *mockModerationService) ListPending(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	if m.listPendingFn != nil {
		return m.listPendingFn(ctx, limit)
	}
	return nil, nil
}

// mockAuth resolves "Bearer <token>" against a fixed table.
type mockAuth struct {
	identities map[string]domain.Identity
	err        error
}

func (m *mockAuth) Authenticate(_ context.Context, token string, allowed []domain.Role) (domain.Identity, error) {
	if m.err != nil {
		return domain.Identity{}, m.err
	}
	identity, ok := m.identities[token]
	if !ok {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	for _, r := range allowed {
		if r == identity.Role {
			return identity, nil
		}
	}
	return domain.Identity{}, domain.ErrForbidden
}

type mockRelay struct {
	mu        sync.Mutex
	moderated []*domain.ChatMessage
	admin     []*domain.ChatMessage
	ended     []uuid.UUID
}

func (m *mockRelay) HandleUpgrade(c echo.Context) error {
	return c.NoContent(http.StatusSwitchingProtocols)
}

func (m *mockRelay) PublishModeration(_ context.Context, msg *domain.ChatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moderated = append(m.moderated, msg)
}

func (m *mockRelay) BroadcastAdmin(_ context.Context, msg *domain.ChatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admin = append(m.admin, msg)
}

func (m *mockRelay) EndSession(_ context.Context, sessionID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended = append(m.ended, sessionID)
}

func (m *mockRelay) ConnectionCount() int { return 3 }

// --- Test helpers ---

var (
	listenerIdentity = domain.Identity{
		SessionID:     uuid.MustParse("6f1c2f7e-2f0a-4a55-9d6b-0d6a3c1b9e11"),
		ParticipantID: "3c5d9a1e-8f2b-4b0e-9e1f-2a7c6d4e8b90",
		DisplayName:   "Rina",
		Role:          domain.RoleListener,
	}
	moderatorIdentity = domain.Identity{ParticipantID: "mod-1", DisplayName: "Pak Budi", Role: domain.RoleModerator}
)

type testDeps struct {
	sessions   *mockSessionService
	moderation *mockModerationService
	auth       *mockAuth
	relay      *mockRelay
}

func newTestDeps() *testDeps {
	return &testDeps{
		sessions:   &mockSessionService{},
		moderation: &mockModerationService{},
		auth: &mockAuth{identities: map[string]domain.Identity{
			"listener-token":  listenerIdentity,
			"moderator-token": moderatorIdentity,
		}},
		relay: &mockRelay{},
	}
}

func newTestServer(t *testing.T, deps *testDeps, opts ...func(*Deps)) *Server {
	t.Helper()

	cfg := &config.Config{
		AppURL:                    "https://radio.example.org",
		SessionRateLimitPerSecond: 100,
		SessionRateLimitBurst:     100,
	}
	d := Deps{
		Sessions:   deps.sessions,
		Moderation: deps.moderation,
		Auth:       deps.auth,
		Relay:      deps.relay,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return NewServer(cfg, d)
}

func withHealthChecks(checks ...HealthCheck) func(*Deps) {
	return func(d *Deps) {
		d.HealthChecks = checks
	}
}

// do runs a request through the full router, middleware included.
func do(srv *Server, method, path, token string, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(handler echo.HandlerFunc, c echo.Context) error {
	return ErrorHandlingMiddleware()(handler)(c)
}
