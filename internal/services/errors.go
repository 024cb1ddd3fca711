package services

import "errors"

// Errors returned by the services. Callers compare with errors.Is; the
// messages never reveal whether a foreign record exists.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrForbidden       = errors.New("forbidden")
)
