// Package apperror provides a structured error type shared across the
// coordinator, modeled around the error taxonomy in spec section 7:
// transient I/O, malformed input, authorization denial, provider failure,
// and fatal errors.
package apperror

import "fmt"

// Type classifies an AppError along the lines the coordinator must
// distinguish when deciding whether to retry, skip, or surface an error.
type Type string

const (
	TypeTransientIO      Type = "transient_io"
	TypeMalformed        Type = "malformed"
	TypeAuthzDenied      Type = "authz_denied"
	TypeProviderFailure  Type = "provider_failure"
	TypeFatal            Type = "fatal"
)

// AppError is a structured error carrying a classification, an optional
// human-readable detail string, and an optional wrapped cause.
type AppError struct {
	Type    Type
	Message string
	Details string
	Cause   error
}

// New creates an AppError with no cause.
func New(t Type, message string) *AppError {
	return &AppError{Type: t, Message: message}
}

// Newf creates an AppError with a formatted message.
func Newf(t Type, format string, args ...any) *AppError {
	return New(t, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with a classification and message.
func Wrap(cause error, t Type, message string) *AppError {
	return &AppError{Type: t, Message: message, Cause: cause}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(cause error, t Type, format string, args ...any) *AppError {
	return Wrap(cause, t, fmt.Sprintf(format, args...))
}

// WithDetails sets Details in place and returns the receiver for chaining.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithDetailsf sets a formatted Details in place.
func (e *AppError) WithDetailsf(format string, args ...any) *AppError {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsType reports whether err is an *AppError of the given type.
func IsType(err error, t Type) bool {
	ae, ok := err.(*AppError)
	return ok && ae.Type == t
}

// GetType returns the error's Type, or TypeFatal if err is not an *AppError.
func GetType(err error) Type {
	if ae, ok := err.(*AppError); ok {
		return ae.Type
	}
	return TypeFatal
}

// LogFields builds a map suitable for structured logging (slog.Any/With),
// matching spec section 7's required fields (error, plus classification and
// cause when present).
func LogFields(err error) map[string]any {
	fields := map[string]any{"error": err.Error()}
	ae, ok := err.(*AppError)
	if !ok {
		return fields
	}
	fields["error_type"] = string(ae.Type)
	if ae.Details != "" {
		fields["error_details"] = ae.Details
	}
	if ae.Cause != nil {
		fields["underlying_error"] = ae.Cause.Error()
	}
	return fields
}

// Transient, Malformed, AuthzDenied, ProviderFailure, and Fatal are
// convenience constructors for the five taxonomy members in spec section 7.

func Transient(message string) *AppError { return New(TypeTransientIO, message) }
func Malformed(message string) *AppError { return New(TypeMalformed, message) }
func AuthzDenied(message string) *AppError { return New(TypeAuthzDenied, message) }
func ProviderFailure(cause error, message string) *AppError {
	return Wrap(cause, TypeProviderFailure, message)
}
func Fatal(cause error, message string) *AppError {
	return Wrap(cause, TypeFatal, message)
}
