package services

import "errors"

// Outcomes callers branch on. Store failures are not listed here: they come
// back as *providers.StoreError, wrapped.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidState      = errors.New("invalid state")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrPersistence       = errors.New("persistence failure")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrLockUnavailable   = errors.New("lock unavailable")
)
