package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound indicates the configuration file was not found.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidYAML indicates YAML parsing failed.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrValidationFailed indicates configuration validation failed.
	ErrValidationFailed = errors.New("configuration validation failed")

	// ErrProviderNotFound indicates an LLM provider missing from the registry.
	ErrProviderNotFound = errors.New("LLM provider not found")

	// ErrPromptNotFound indicates a prompt type missing from the registry.
	ErrPromptNotFound = errors.New("prompt template not found")

	// ErrNoModels indicates no model of the requested type is configured.
	ErrNoModels = errors.New("no models configured for type")

	// ErrMissingRequiredField indicates a required field is missing.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrInvalidValue indicates a field has an invalid value.
	ErrInvalidValue = errors.New("invalid field value")
)

// ValidationError wraps configuration validation errors with component context.
type ValidationError struct {
	Component string // component being validated (provider, model, prompt, ...)
	ID        string // id of the component
	Field     string // field name (optional)
	Err       error
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s %q: field %q: %v", e.Component, e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Component, e.ID, e.Err)
}

// Unwrap exposes the underlying error for errors.Is checks.
func (e *ValidationError) Unwrap() error { return e.Err }
