package service

import "errors"

var (
	// ErrValidation rejects a malformed submission or registration before
	// it reaches the queue. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrBackpressure signals a full ingestion queue. The submission id is
	// unrecorded so the client can retry the same request.
	ErrBackpressure = errors.New("ingestion queue full")

	// ErrNotStarted guards operations that need a running service.
	ErrNotStarted = errors.New("service not started")
)
