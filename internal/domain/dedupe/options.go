package dedupe

// Option applies a configuration option to the seen-set.
type Option func(*seenSet)

// WithMaxSize bounds the number of remembered ids. The oldest id is
// evicted once the bound is reached. Zero or negative disables eviction.
func WithMaxSize(maxSize int) Option {
	return func(s *seenSet) {
		s.maxSize = maxSize
	}
}
