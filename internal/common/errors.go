// Package common defines shared constants and the error taxonomy used across
// the service. Callers should use errors.Is against the Error* sentinels to
// classify a failure and errors.As against *AppError to read its message.
package common

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Kinds surfaced to the transport boundary.
	ErrorValidation      = errors.New("validation failed")
	ErrorConflict        = errors.New("conflict")
	ErrorUnauthorized    = errors.New("unauthorized")
	ErrorBadRequest      = errors.New("bad request")
	ErrorExternalService = errors.New("external service unavailable")
	ErrorConfiguration   = errors.New("configuration error")
	ErrorInternal        = errors.New("internal error")

	// Token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// AppError is a classified failure. Kind is one of the Error* sentinels above,
// Message is safe to show to clients, Fields carries per-field validation
// messages and Err keeps the underlying cause for logs.
type AppError struct {
	Kind    error
	Message string
	Fields  map[string][]string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Is reports whether target is the error's kind.
func (e *AppError) Is(target error) bool {
	return target == e.Kind
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Validation builds a validation error from a field -> messages map.
func Validation(fields map[string][]string) *AppError {
	return &AppError{Kind: ErrorValidation, Message: "Validation failed", Fields: fields}
}

// ValidationField is a shortcut for a single-field validation error.
func ValidationField(field, message string) *AppError {
	return Validation(map[string][]string{field: {message}})
}

func Conflict(message string) *AppError {
	return &AppError{Kind: ErrorConflict, Message: message}
}

func Unauthorized(message string) *AppError {
	if message == "" {
		message = "Unauthorized"
	}
	return &AppError{Kind: ErrorUnauthorized, Message: message}
}

func NotFound(message string) *AppError {
	return &AppError{Kind: ErrorNotFound, Message: message}
}

func BadRequest(message string) *AppError {
	return &AppError{Kind: ErrorBadRequest, Message: message}
}

// ExternalService reports a downstream dependency failure (mail, identity provider).
func ExternalService(message string, cause error) *AppError {
	return &AppError{Kind: ErrorExternalService, Message: message, Err: cause}
}

// Configuration reports a missing or invalid deployment setting.
func Configuration(key string) *AppError {
	return &AppError{Kind: ErrorConfiguration, Message: "Missing or invalid configuration: " + key}
}

// Internal wraps an unexpected failure. The message never reaches clients.
func Internal(cause error) *AppError {
	return &AppError{Kind: ErrorInternal, Message: "internal error", Err: cause}
}

// ConfigurationErrors collects one Configuration error per key, in order.
type ConfigurationErrors []*AppError

func (c ConfigurationErrors) Error() string {
	keys := make([]string, 0, len(c))
	for _, e := range c {
		keys = append(keys, strings.TrimPrefix(e.Message, "Missing or invalid configuration: "))
	}
	return "missing or invalid configuration: " + strings.Join(keys, ", ")
}

// Is lets errors.Is(err, ErrorConfiguration) match the whole collection.
func (c ConfigurationErrors) Is(target error) bool {
	return target == ErrorConfiguration
}
