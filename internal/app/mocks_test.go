package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/martin-1103/gbika-sub001/internal/domain"
)

// --- Mock SessionRepository ---

type mockSessionRepo struct {
	createFn     func(ctx context.Context, session *domain.Session) error
	getByIDFn    func(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error)
	invalidateFn func(ctx context.Context, sessionID uuid.UUID) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *domain.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) GetByID(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, sessionID)
	}
	return nil, domain.ErrSessionNotFound
}

func (m *mockSessionRepo) Invalidate(ctx context.Context, sessionID uuid.UUID) error {
	if m.invalidateFn != nil {
		return m.invalidateFn(ctx, sessionID)
	}
	return nil
}

// --- Mock TokenVerifier / TokenIssuer ---

type mockTokens struct {
	verifyFn       func(token string) (*domain.TokenClaims, error)
	issueSessionFn func(session *domain.Session) (string, error)
}

func (m *mockTokens) Verify(token string) (*domain.TokenClaims, error) {
	if m.verifyFn != nil {
		return m.verifyFn(token)
	}
	return nil, domain.ErrUnauthorized
}

func (m *mockTokens) IssueSession(session *domain.Session) (string, error) {
	if m.issueSessionFn != nil {
		return m.issueSessionFn(session)
	}
	return "token-" + session.ID.String(), nil
}

// --- Fake MessageRepository ---

// fakeMessageRepo mirrors the conditional-update semantics of the Postgres repository.
type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[uuid.UUID]domain.ChatMessage
	inserts  int
	err      error
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[uuid.UUID]domain.ChatMessage)}
}

func (f *fakeMessageRepo) Insert(_ context.Context, msg *domain.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, exists := f.messages[msg.ID]; exists {
		return nil
	}
	f.messages[msg.ID] = *msg
	f.inserts++
	return nil
}

func (f *fakeMessageRepo) GetByID(_ context.Context, messageID uuid.UUID) (*domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return &msg, nil
}

func (f *fakeMessageRepo) TransitionFromPending(_ context.Context, messageID uuid.UUID, status domain.MessageStatus, moderatorID string, at time.Time) (*domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	if msg.Status != domain.StatusPending {
		return nil, &domain.AlreadyModeratedError{Status: msg.Status}
	}
	msg.Status = status
	msg.ModeratedBy = &moderatorID
	msg.ModeratedAt = &at
	f.messages[messageID] = msg
	return &msg, nil
}

func (f *fakeMessageRepo) ListPending(_ context.Context, limit int) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.ChatMessage
	for _, msg := range f.messages {
		if msg.Status == domain.StatusPending && len(out) < limit {
			out = append(out, msg)
		}
	}
	return out, nil
}

// --- Sanitizer stub ---

type stripTagsSanitizer struct{}

func (stripTagsSanitizer) Sanitize(text string) string {
	return strings.TrimSpace(strings.NewReplacer("<b>", "", "</b>", "", "<script>", "", "</script>", "").Replace(text))
}
