package domain

import (
	"errors"
	"fmt"
)

var ErrValidation = errors.New("validation failed")

// ValidationError is a rejected input or a broken business rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func Invalid(field string, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
