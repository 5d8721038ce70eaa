package service

import "errors"

var (
	ErrValidation   = errors.New("validation failed")
	ErrIDRequired   = errors.New("id is required")
	ErrNotFound     = errors.New("document not found")
	ErrAccessDenied = errors.New("access denied")
	ErrNotReady     = errors.New("document is not ready")
)
