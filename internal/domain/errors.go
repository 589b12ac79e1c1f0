package domain

import "errors"

var (
	// ErrValidation marks caller-supplied input that was rejected before any record was written.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a lookup for a record that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a state transition attempted from a state that does not permit it.
	ErrConflict = errors.New("conflict")

	// ErrNoRecipients is returned when a distribution scope resolves to zero recipients.
	ErrNoRecipients = errors.New("no recipients in scope")

	// ErrAlreadyRunning is returned when a dispatch run is requested while another run holds the guard.
	ErrAlreadyRunning = errors.New("dispatch run already in progress")
)
