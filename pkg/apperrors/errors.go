package apperrors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidState        = errors.New("invalid state")
	ErrAlreadyRun          = errors.New("already run today")
	ErrNoEnabledProviders  = errors.New("no enabled providers with credentials")
	ErrNoActivePrompts     = errors.New("no active prompts")
	ErrOutsideScanWindow   = errors.New("outside daily scan window")
	ErrConcurrencyConflict = errors.New("lost concurrent state transition")
)
