package domain

import "errors"

var (
	ErrDuplicateMenuOption = errors.New("duplicate menu option number")
	ErrInvalidMenuOption   = errors.New("invalid menu option")
	ErrInvalidSection      = errors.New("invalid content section")
	ErrSectionNotFound     = errors.New("content section not found")
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrAIDisabled          = errors.New("ai disabled")
	ErrEmptyCompletion     = errors.New("empty completion")
)

// ValidationError is returned at the config-write boundary
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
