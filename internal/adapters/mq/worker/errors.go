package worker

import "errors"

// ErrPoolStopped means the pool shut down before a batch finished.
var ErrPoolStopped = errors.New("worker pool stopped")
