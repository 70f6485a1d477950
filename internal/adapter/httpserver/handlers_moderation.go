package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/martin-1103/gbika-sub001/internal/domain"
	apperrors "github.com/martin-1103/gbika-sub001/internal/platform/errors"
)

const defaultPendingLimit = 50

type moderateRequest struct {
	Action string `json:"action"`
}

type adminMessageRequest struct {
	Text string `json:"text"`
}

type pendingResponse struct {
	Messages []domain.ChatMessage `json:"messages"`
	Count    int                  `json:"count"`
}

func (s *Server) handleModerate(c echo.Context) error {
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperrors.ValidationError("Invalid message ID").WithField("id", c.Param("id"))
	}

	var req moderateRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("Invalid request body")
	}

	ctx := c.Request().Context()
	moderator := identityFrom(c)

	msg, err := s.moderation.Moderate(ctx, messageID, domain.ModerationAction(req.Action), moderator.ParticipantID)
	if err != nil {
		appErr := domainError(err)
		s.countModeration(string(appErr.Type))
		return appErr.WithField("message_id", messageID.String())
	}
	s.countModeration(string(msg.Status))

	s.relay.PublishModeration(ctx, msg)

	if err := c.JSON(http.StatusOK, msg); err != nil {
		return fmt.Errorf("failed to write moderation response: %w", err)
	}
	return nil
}

// countModeration records an outcome label: the resulting status on success,
// the error type otherwise.
func (s *Server) countModeration(outcome string) {
	if s.livechat != nil {
		s.livechat.ModerationOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (s *Server) handleListMessages(c echo.Context) error {
	if status := c.QueryParam("status"); status != "" && status != string(domain.StatusPending) {
		return apperrors.ValidationError("Only status=pending is supported").WithField("status", status)
	}

	limit := defaultPendingLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return apperrors.ValidationError("limit must be a positive integer").WithField("limit", raw)
		}
		limit = n
	}

	msgs, err := s.moderation.ListPending(c.Request().Context(), limit)
	if err != nil {
		return domainError(err)
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}

	if err := c.JSON(http.StatusOK, pendingResponse{Messages: msgs, Count: len(msgs)}); err != nil {
		return fmt.Errorf("failed to write pending messages: %w", err)
	}
	return nil
}

// handlePostAdminMessage sends a staff reply into a listener's session.
func (s *Server) handlePostAdminMessage(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperrors.ValidationError("Invalid session ID").WithField("id", c.Param("id"))
	}

	var req adminMessageRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("Invalid request body")
	}

	ctx := c.Request().Context()
	msg, err := s.moderation.PostAdminMessage(ctx, sessionID, req.Text, identityFrom(c))
	if err != nil {
		return domainError(err).WithField("session_id", sessionID.String())
	}

	s.relay.BroadcastAdmin(ctx, msg)

	if err := c.JSON(http.StatusCreated, msg); err != nil {
		return fmt.Errorf("failed to write admin message: %w", err)
	}
	return nil
}
