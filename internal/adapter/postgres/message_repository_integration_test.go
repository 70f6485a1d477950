package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/martin-1103/gbika-sub001/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingMessage(t *testing.T, repo *MessageRepo, sessionID uuid.UUID, createdAt time.Time) *domain.ChatMessage {
	t.Helper()
	m := &domain.ChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		Text:      "Tuhan memberkati",
		Sender:    domain.SenderUser,
		Status:    domain.StatusPending,
		CreatedAt: createdAt.UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.Insert(context.Background(), m))
	return m
}

func TestMessageRepo_InsertAndGet(t *testing.T) {
	pool := setupTestDB(t)
	session := newSession(t, NewSessionRepo(pool))
	repo := NewMessageRepo(pool)

	created := newPendingMessage(t, repo, session.ID, time.Now())
	got, err := repo.GetByID(context.Background(), created.ID)

	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, session.ID, got.SessionID)
	assert.Equal(t, "Tuhan memberkati", got.Text)
	assert.Equal(t, domain.SenderUser, got.Sender)
	assert.Empty(t, got.SenderDisplayName)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Nil(t, got.ModeratedBy)
	assert.Nil(t, got.ModeratedAt)
}

func TestMessageRepo_InsertDuplicateIsNoop(t *testing.T) {
	pool := setupTestDB(t)
	session := newSession(t, NewSessionRepo(pool))
	repo := NewMessageRepo(pool)

	by := "mod-1"
	at := time.Now().UTC().Truncate(time.Microsecond)
	admin := &domain.ChatMessage{
		ID:                uuid.New(),
		SessionID:         session.ID,
		Text:              "Terima kasih",
		Sender:            domain.SenderAdmin,
		SenderDisplayName: "Pak Budi",
		Status:            domain.StatusApproved,
		ModeratedBy:       &by,
		ModeratedAt:       &at,
		CreatedAt:         at,
	}
	require.NoError(t, repo.Insert(context.Background(), admin))

	changed := *admin
	changed.Text = "overwritten"
	require.NoError(t, repo.Insert(context.Background(), &changed))

	got, err := repo.GetByID(context.Background(), admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "Terima kasih", got.Text)
	assert.Equal(t, "Pak Budi", got.SenderDisplayName)
}

func TestMessageRepo_GetMissing(t *testing.T) {
	repo := NewMessageRepo(setupTestDB(t))

	_, err := repo.GetByID(context.Background(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestMessageRepo_TransitionFromPending(t *testing.T) {
	pool := setupTestDB(t)
	session := newSession(t, NewSessionRepo(pool))
	repo := NewMessageRepo(pool)
	msg := newPendingMessage(t, repo, session.ID, time.Now())
	at := time.Now().UTC().Truncate(time.Microsecond)

	moderated, err := repo.TransitionFromPending(context.Background(), msg.ID, domain.StatusApproved, "mod-1", at)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, moderated.Status)
	require.NotNil(t, moderated.ModeratedBy)
	assert.Equal(t, "mod-1", *moderated.ModeratedBy)
	require.NotNil(t, moderated.ModeratedAt)
	assert.True(t, at.Equal(*moderated.ModeratedAt))
}

func TestMessageRepo_TransitionTwiceConflicts(t *testing.T) {
	pool := setupTestDB(t)
	session := newSession(t, NewSessionRepo(pool))
	repo := NewMessageRepo(pool)
	msg := newPendingMessage(t, repo, session.ID, time.Now())

	_, err := repo.TransitionFromPending(context.Background(), msg.ID, domain.StatusApproved, "mod-1", time.Now())
	require.NoError(t, err)

	_, err = repo.TransitionFromPending(context.Background(), msg.ID, domain.StatusRejected, "mod-2", time.Now())
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.EqualError(t, err, "Message already moderated with status: approved")

	got, err := repo.GetByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, got.Status)
	assert.Equal(t, "mod-1", *got.ModeratedBy)
}

func TestMessageRepo_TransitionMissing(t *testing.T) {
	repo := NewMessageRepo(setupTestDB(t))

	_, err := repo.TransitionFromPending(context.Background(), uuid.New(), domain.StatusApproved, "mod-1", time.Now())

	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestMessageRepo_ConcurrentTransitionsSingleWinner(t *testing.T) {
	pool := setupTestDB(t)
	session := newSession(t, NewSessionRepo(pool))
	repo := NewMessageRepo(pool)
	msg := newPendingMessage(t, repo, session.ID, time.Now())

	const moderators = 10
	results := make(chan error, moderators)
	var wg sync.WaitGroup
	for i := range moderators {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := domain.StatusApproved
			if i%2 == 0 {
				status = domain.StatusBlocked
			}
			_, err := repo.TransitionFromPending(context.Background(), msg.ID, status, "mod", time.Now())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Equal(t, 1, wins)
}

func TestMessageRepo_ListPending(t *testing.T) {
	pool := setupTestDB(t)
	session := newSession(t, NewSessionRepo(pool))
	repo := NewMessageRepo(pool)
	base := time.Now().Add(-time.Minute)

	first := newPendingMessage(t, repo, session.ID, base)
	second := newPendingMessage(t, repo, session.ID, base.Add(time.Second))
	done := newPendingMessage(t, repo, session.ID, base.Add(2*time.Second))
	_, err := repo.TransitionFromPending(context.Background(), done.ID, domain.StatusRejected, "mod-1", time.Now())
	require.NoError(t, err)

	pending, err := repo.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)

	limited, err := repo.ListPending(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
