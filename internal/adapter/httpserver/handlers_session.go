package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/martin-1103/gbika-sub001/internal/app"
	apperrors "github.com/martin-1103/gbika-sub001/internal/platform/errors"
)

type createSessionRequest struct {
	Name    string `json:"name"`
	City    string `json:"city"`
	Country string `json:"country"`
}

type sessionUser struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	City    *string `json:"city"`
	Country *string `json:"country"`
}

type createSessionResponse struct {
	SessionToken string      `json:"sessionToken"`
	SessionID    string      `json:"sessionId"`
	User         sessionUser `json:"user"`
	ExpiresAt    time.Time   `json:"expiresAt"`
}

func (s *Server) handleCreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("Invalid request body")
	}

	created, err := s.sessions.Create(c.Request().Context(), app.CreateSessionRequest{
		Name:    req.Name,
		City:    req.City,
		Country: req.Country,
	})
	if err != nil {
		return domainError(err)
	}

	session := created.Session
	response := createSessionResponse{
		SessionToken: created.Token,
		SessionID:    session.ID.String(),
		User: sessionUser{
			ID:      session.ParticipantID.String(),
			Name:    session.DisplayName,
			City:    session.City,
			Country: session.Country,
		},
		ExpiresAt: session.ExpiresAt,
	}
	if err := c.JSON(http.StatusCreated, response); err != nil {
		return fmt.Errorf("failed to write session response: %w", err)
	}
	return nil
}

// handleEndSession logs the listener out and closes every socket of the session.
func (s *Server) handleEndSession(c echo.Context) error {
	ctx := c.Request().Context()
	identity := identityFrom(c)

	if err := s.sessions.End(ctx, identity.SessionID); err != nil {
		return domainError(err)
	}
	s.relay.EndSession(ctx, identity.SessionID)

	return c.NoContent(http.StatusNoContent)
}
