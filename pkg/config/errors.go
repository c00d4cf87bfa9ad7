package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound indicates the configuration file is missing.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrProfileNotFound indicates a named research profile does not exist.
	ErrProfileNotFound = errors.New("profile not found")
)

// ValidationError describes an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}

// LoadError wraps a failure while reading or parsing configuration.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading configuration from %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
