package domain

import "errors"

var (
	// ErrInvalidSignature is returned when a webhook body does not match its signature header
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrShuttingDown is returned when work is submitted after shutdown started
	ErrShuttingDown = errors.New("service is shutting down")

	// ErrOverloaded is returned when too many events are already waiting
	ErrOverloaded = errors.New("too many pending events")

	// ErrStorageUnreachable is returned when the remote store does not answer the probe
	ErrStorageUnreachable = errors.New("storage unreachable")

	// ErrInvalidMapping is returned when a source mapping update fails validation
	ErrInvalidMapping = errors.New("invalid source mapping")
)
