package app

import (
	"github.com/martin-1103/gbika-sub001/internal/domain"
)

// ValidationError names the offending field of a rejected request.
// It matches domain.ErrInvalidPayload under errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == domain.ErrInvalidPayload
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
