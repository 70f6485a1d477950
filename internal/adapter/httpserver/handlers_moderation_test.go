package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/martin-1103/gbika-sub001/internal/adapter/metrics"
	"github.com/martin-1103/gbika-sub001/internal/domain"
	apperrors "github.com/martin-1103/gbika-sub001/internal/platform/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func moderatePath(id string) string {
	return "/api/livechat/messages/" + id + "/moderate"
}

func TestModerate_Approve(t *testing.T) {
	deps := newTestDeps()
	messageID := uuid.New()
	moderatedAt := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	moderator := "mod-1"

	var gotAction domain.ModerationAction
	var gotModerator string
	deps.moderation.moderateFn = func(_ context.Context, id uuid.UUID, action domain.ModerationAction, moderatorID string) (*domain.ChatMessage, error) {
		require.Equal(t, messageID, id)
		gotAction, gotModerator = action, moderatorID
		return &domain.ChatMessage{
			ID:          id,
			SessionID:   listenerIdentity.SessionID,
			Text:        "Salam dari Bandung",
			Sender:      domain.SenderUser,
			Status:      domain.StatusApproved,
			ModeratedBy: &moderator,
			ModeratedAt: &moderatedAt,
		}, nil
	}
	srv := newTestServer(t, deps)

	rec := do(srv, http.MethodPost, moderatePath(messageID.String()), "moderator-token", `{"action":"approve"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.ActionApprove, gotAction)
	assert.Equal(t, "mod-1", gotModerator)

	var msg domain.ChatMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, domain.StatusApproved, msg.Status)
	require.NotNil(t, msg.ModeratedBy)
	assert.Equal(t, "mod-1", *msg.ModeratedBy)

	require.Len(t, deps.relay.moderated, 1)
	assert.Equal(t, messageID, deps.relay.moderated[0].ID)
}

func TestModerate_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		token      string
		body       string
		serviceErr error
		wantStatus int
		wantError  string
	}{
		{
			name:       "no token",
			path:       moderatePath(uuid.NewString()),
			body:       `{"action":"approve"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "listener token",
			path:       moderatePath(uuid.NewString()),
			token:      "listener-token",
			body:       `{"action":"approve"}`,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "unknown token",
			path:       moderatePath(uuid.NewString()),
			token:      "forged",
			body:       `{"action":"approve"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed id",
			path:       moderatePath("not-a-uuid"),
			token:      "moderator-token",
			body:       `{"action":"approve"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			path:       moderatePath(uuid.NewString()),
			token:      "moderator-token",
			body:       `{"action":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown action",
			path:       moderatePath(uuid.NewString()),
			token:      "moderator-token",
			body:       `{"action":"delete"}`,
			serviceErr: domain.ErrInvalidAction,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "missing message",
			path:       moderatePath(uuid.NewString()),
			token:      "moderator-token",
			body:       `{"action":"approve"}`,
			serviceErr: domain.ErrMessageNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "already moderated",
			path:       moderatePath(uuid.NewString()),
			token:      "moderator-token",
			body:       `{"action":"reject"}`,
			serviceErr: &domain.AlreadyModeratedError{Status: domain.StatusApproved},
			wantStatus: http.StatusConflict,
			wantError:  "Message already moderated with status: approved",
		},
		{
			name:       "store down",
			path:       moderatePath(uuid.NewString()),
			token:      "moderator-token",
			body:       `{"action":"approve"}`,
			serviceErr: fmt.Errorf("%w: update", domain.ErrUnavailable),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps()
			deps.moderation.moderateFn = func(_ context.Context, _ uuid.UUID, _ domain.ModerationAction, _ string) (*domain.ChatMessage, error) {
				if tt.serviceErr == nil {
					return nil, errors.New("moderate should not be reached")
				}
				return nil, tt.serviceErr
			}
			srv := newTestServer(t, deps)

			rec := do(srv, "POST", tt.path, tt.token, tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantError != "" {
				var resp apperrors.ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantError, resp.Error)
			}
			assert.Empty(t, deps.relay.moderated)
		})
	}
}

func TestListMessages(t *testing.T) {
	deps := newTestDeps()
	var gotLimit int
	deps.moderation.listPendingFn = func(_ context.Context, limit int) ([]domain.ChatMessage, error) {
		gotLimit = limit
		return []domain.ChatMessage{
			{ID: uuid.New(), Text: "first", Status: domain.StatusPending},
			{ID: uuid.New(), Text: "second", Status: domain.StatusPending},
		}, nil
	}
	srv := newTestServer(t, deps)

	rec := do(srv, http.MethodGet, "/api/livechat/messages?status=pending&limit=10", "moderator-token", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, gotLimit)

	var resp pendingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "first", resp.Messages[0].Text)
}

func TestListMessages_DefaultsAndEmpty(t *testing.T) {
	deps := newTestDeps()
	var gotLimit int
	deps.moderation.listPendingFn = func(_ context.Context, limit int) ([]domain.ChatMessage, error) {
		gotLimit = limit
		return nil, nil
	}
	srv := newTestServer(t, deps)

	rec := do(srv, http.MethodGet, "/api/livechat/messages", "moderator-token", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultPendingLimit, gotLimit)
	assert.JSONEq(t, `{"messages":[],"count":0}`, rec.Body.String())
}

func TestListMessages_BadQuery(t *testing.T) {
	srv := newTestServer(t, newTestDeps())

	for _, query := range []string{"?status=approved", "?limit=0", "?limit=abc", "?limit=-5"} {
		rec := do(srv, http.MethodGet, "/api/livechat/messages"+query, "moderator-token", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestPostAdminMessage(t *testing.T) {
	deps := newTestDeps()
	sessionID := uuid.New()
	var gotAuthor domain.Identity
	deps.moderation.postAdminFn = func(_ context.Context, id uuid.UUID, text string, author domain.Identity) (*domain.ChatMessage, error) {
		gotAuthor = author
		return &domain.ChatMessage{
			ID:                uuid.New(),
			SessionID:         id,
			Text:              text,
			Sender:            domain.SenderAdmin,
			SenderDisplayName: author.DisplayName,
			Status:            domain.StatusApproved,
		}, nil
	}
	srv := newTestServer(t, deps)

	rec := do(srv, http.MethodPost, "/api/livechat/sessions/"+sessionID.String()+"/messages", "moderator-token", `{"text":"Terima kasih!"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, moderatorIdentity, gotAuthor)

	var msg domain.ChatMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, domain.SenderAdmin, msg.Sender)
	assert.Equal(t, domain.StatusApproved, msg.Status)
	assert.Equal(t, sessionID, msg.SessionID)

	require.Len(t, deps.relay.admin, 1)
	assert.Equal(t, "Terima kasih!", deps.relay.admin[0].Text)
}

func TestPostAdminMessage_Errors(t *testing.T) {
	tests := []struct {
		name       string
		sessionID  string
		serviceErr error
		wantStatus int
	}{
		{"malformed session id", "abc", nil, http.StatusBadRequest},
		{"unknown session", uuid.NewString(), domain.ErrSessionNotFound, http.StatusNotFound},
		{"empty text", uuid.NewString(), fmt.Errorf("%w: text is required", domain.ErrInvalidPayload), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps()
			deps.moderation.postAdminFn = func(_ context.Context, _ uuid.UUID, _ string, _ domain.Identity) (*domain.ChatMessage, error) {
				return nil, tt.serviceErr
			}
			srv := newTestServer(t, deps)

			rec := do(srv, http.MethodPost, "/api/livechat/sessions/"+tt.sessionID+"/messages", "moderator-token", `{"text":""}`)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Empty(t, deps.relay.admin)
		})
	}
}

func TestModerate_CountsOutcomes(t *testing.T) {
	deps := newTestDeps()
	deps.moderation.moderateFn = func(_ context.Context, id uuid.UUID, action domain.ModerationAction, _ string) (*domain.ChatMessage, error) {
		if action == domain.ActionBlock {
			return &domain.ChatMessage{ID: id, Status: domain.StatusBlocked}, nil
		}
		return nil, &domain.AlreadyModeratedError{Status: domain.StatusBlocked}
	}
	lm := metrics.NewLivechatMetrics(prometheus.NewRegistry())
	srv := newTestServer(t, deps, func(d *Deps) { d.Livechat = lm })

	id := uuid.NewString()
	do(srv, http.MethodPost, moderatePath(id), "moderator-token", `{"action":"block"}`)
	do(srv, http.MethodPost, moderatePath(id), "moderator-token", `{"action":"reject"}`)

	assert.InDelta(t, 1, testutil.ToFloat64(lm.ModerationOutcomes.WithLabelValues("blocked")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(lm.ModerationOutcomes.WithLabelValues("conflict")), 0)
}
