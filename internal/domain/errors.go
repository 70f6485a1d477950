package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrTokenExpired    = errors.New("token expired")
	ErrForbidden       = errors.New("role not permitted")
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrInvalidAction   = errors.New("invalid moderation action")
	ErrUnavailable     = errors.New("dependency unavailable")
)

// AlreadyModeratedError reports a moderation attempt on a terminal message.
type AlreadyModeratedError struct {
	Status MessageStatus
}

func (e *AlreadyModeratedError) Error() string {
	return fmt.Sprintf("Message already moderated with status: %s", e.Status)
}

func (e *AlreadyModeratedError) Is(target error) bool {
	return target == ErrConflict
}
