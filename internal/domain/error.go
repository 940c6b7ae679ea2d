package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Job lifecycle
	ErrInvalidTransition = errors.New("invalid job state transition")
	ErrMessageTooLong    = errors.New("message exceeds maximum length")

	// Completion and delivery
	ErrPromptTooLarge    = errors.New("prompt leaves no room for a reply")
	ErrEmptyCompletion   = errors.New("empty completion")
	ErrRecipientUnknown  = errors.New("recipient could not be resolved")
	ErrUnsupportedTarget = errors.New("unsupported delivery target")
	ErrLeaseHeld         = errors.New("poller lease is held by another process")
)
