package config

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package, for errors.Is from callers.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

func wrapInvalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}
