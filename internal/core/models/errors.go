package models

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCollection       = errors.New("collection is empty")
	ErrInvalidConfiguration  = errors.New("invalid configuration")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// ConfigurationError reports a rejected setting. It matches
// ErrInvalidConfiguration with errors.Is.
type ConfigurationError struct {
	Field  string
	Reason string
}

func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}
