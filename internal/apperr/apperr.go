// Package apperr defines the sentinel error taxonomy shared across the
// session engine, manager, and worker protocol (spec §7).
package apperr

import "errors"

var (
	// ErrAlreadyStarted is returned by Session.Start when called twice.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrAdapterNotFound is returned by Manager.Spawn for an unknown adapter type.
	ErrAdapterNotFound = errors.New("adapter not found")

	// ErrDuplicateID is returned by Manager.Spawn when a session id is already in use.
	ErrDuplicateID = errors.New("duplicate session id")

	// ErrSessionNotFound is returned by Manager lookups for an unknown id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionTerminal is returned when an operation requires a non-terminal
	// status but the session is stopped or errored.
	ErrSessionTerminal = errors.New("session is in a terminal state")

	// ErrWorkerExited names a worker process exiting before it acknowledges
	// an operation. No package in this module returns it.
	ErrWorkerExited = errors.New("worker exited")

	// ErrUnknownAdapterModule is returned by registerAdapters for a module
	// name not present in the static registry.
	ErrUnknownAdapterModule = errors.New("unknown adapter module")
)
