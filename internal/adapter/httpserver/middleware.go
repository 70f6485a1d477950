package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/martin-1103/gbika-sub001/internal/app"
	"github.com/martin-1103/gbika-sub001/internal/domain"
	"github.com/martin-1103/gbika-sub001/internal/platform/correlation"
	apperrors "github.com/martin-1103/gbika-sub001/internal/platform/errors"
)

const identityKey = "identity"

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(echo.HeaderXRequestID)
		if id == "" {
			id = correlation.NewID()
		}
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(echo.HeaderXRequestID, id)
		return next(c)
	}
}

// requireRoles authenticates the bearer token against roles and stores the
// identity in the echo context under "identity".
func (s *Server) requireRoles(roles []domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c.Request())
			if !ok {
				return apperrors.UnauthorizedError("Missing bearer token")
			}

			identity, err := s.auth.Authenticate(c.Request().Context(), token, roles)
			if err != nil {
				return authError(err)
			}

			c.Set(identityKey, identity)
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get(echo.HeaderAuthorization)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func identityFrom(c echo.Context) domain.Identity {
	identity, _ := c.Get(identityKey).(domain.Identity)
	return identity
}

func authError(err error) *apperrors.Error {
	switch {
	case errors.Is(err, domain.ErrTokenExpired):
		return apperrors.UnauthorizedError("Token expired")
	case errors.Is(err, domain.ErrUnauthorized):
		return apperrors.UnauthorizedError("Invalid token")
	case errors.Is(err, domain.ErrForbidden):
		return apperrors.ForbiddenError("Role not permitted")
	default:
		return apperrors.UnavailableError("Authentication unavailable", err)
	}
}

// domainError translates service errors into structured HTTP errors.
func domainError(err error) *apperrors.Error {
	if validation, ok := errors.AsType[*app.ValidationError](err); ok {
		return apperrors.ValidationError(validation.Reason).WithField("field", validation.Field)
	}

	switch {
	case errors.Is(err, domain.ErrInvalidPayload):
		return apperrors.ValidationError(err.Error())
	case errors.Is(err, domain.ErrInvalidAction):
		return apperrors.UnprocessableError("Invalid moderation action")
	case errors.Is(err, domain.ErrSessionNotFound):
		return apperrors.NotFoundError("Session not found")
	case errors.Is(err, domain.ErrMessageNotFound):
		return apperrors.NotFoundError("Message not found")
	case errors.Is(err, domain.ErrConflict):
		return apperrors.ConflictError(err.Error())
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrTokenExpired), errors.Is(err, domain.ErrForbidden):
		return authError(err)
	default:
		return apperrors.InternalError("Storage unavailable", err)
	}
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var structuredErr *apperrors.Error
			if httpErr, ok := errors.AsType[*echo.HTTPError](err); ok {
				structuredErr = WrapHTTPError(httpErr)
			} else {
				structuredErr = apperrors.AsStructuredError(err)
			}
			logError(c, structuredErr)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	if identity, ok := c.Get(identityKey).(domain.Identity); ok {
		attrs = append(attrs, "participant_id", identity.ParticipantID, "role", identity.Role)
	}

	switch err.Type {
	case apperrors.TypeValidation, apperrors.TypeUnprocessable:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeUnauthorized, apperrors.TypeForbidden:
		slog.InfoContext(ctx, "Access denied", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeConflict:
		slog.WarnContext(ctx, "Conflict", attrs...)
	case apperrors.TypeUnavailable:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.WarnContext(ctx, "Dependency unavailable", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

func WrapHTTPError(httpErr *echo.HTTPError) *apperrors.Error {
	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok && msg != "" {
		message = msg
	}

	var errType apperrors.ErrorType
	switch httpErr.Code {
	case http.StatusBadRequest, http.StatusMethodNotAllowed, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		errType = apperrors.TypeValidation
	case http.StatusUnauthorized:
		errType = apperrors.TypeUnauthorized
	case http.StatusForbidden:
		errType = apperrors.TypeForbidden
	case http.StatusNotFound:
		errType = apperrors.TypeNotFound
	case http.StatusConflict:
		errType = apperrors.TypeConflict
	case http.StatusUnprocessableEntity:
		errType = apperrors.TypeUnprocessable
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		errType = apperrors.TypeUnavailable
	default:
		errType = apperrors.TypeInternal
	}

	err := &apperrors.Error{
		Type:    errType,
		Message: message,
		Context: make(map[string]any),
	}

	if httpErr.Internal != nil {
		err.Cause = httpErr.Internal
	}

	return err
}
