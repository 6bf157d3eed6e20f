package domain

import "errors"

// Sentinel errors returned by the core. Callers classify with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	ErrDependency        = errors.New("dependency unavailable")
)
