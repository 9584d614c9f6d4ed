package services

import "errors"

var (
	// Requested resource does not exist.
	ErrNotFound = errors.New("requested resource not found")

	ErrHistoryDisabled = errors.New("tournament history is not enabled on this server")
	ErrInvalidPage     = errors.New("invalid pagination parameters")
)
