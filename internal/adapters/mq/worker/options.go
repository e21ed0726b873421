package worker

import "github.com/okian/arena/pkg/logger"

// Option applies a configuration option to the RatingWorker.
type Option func(*RatingWorker)

// WithName sets the worker name used in logs.
func WithName(name string) Option {
	return func(w *RatingWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(w *RatingWorker) {
		if l != nil {
			w.logger = l
		}
	}
}
