package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeSequencing    ErrorType = "sequencing"
	ErrorTypePrivacy       ErrorType = "privacy"
	ErrorTypeGeneration    ErrorType = "generation"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s - %s", msg, e.Details)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext returns a copy of the error carrying an extra context value.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	c := e.clone()
	c.Context[key] = value
	return c
}

// WithDetails returns a copy of the error with the given details.
func (e *AppError) WithDetails(details string) *AppError {
	c := e.clone()
	c.Details = details
	return c
}

// Detailf is WithDetails with formatting.
func (e *AppError) Detailf(format string, args ...interface{}) *AppError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// Wrap returns a copy of the error caused by err.
func (e *AppError) Wrap(err error) *AppError {
	c := e.clone()
	c.Cause = err
	return c
}

func (e *AppError) clone() *AppError {
	c := *e
	c.Context = make(map[string]interface{}, len(e.Context)+1)
	for k, v := range e.Context {
		c.Context[k] = v
	}
	return &c
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *AppError {
	return NewAppError(ErrorTypeValidation, code, message)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(code, message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, code, message)
}

// NewSequencingError creates an error for an operation invoked in the wrong lifecycle state.
func NewSequencingError(code, message string) *AppError {
	return NewAppError(ErrorTypeSequencing, code, message)
}

// NewPrivacyError creates a privacy error
func NewPrivacyError(code, message string) *AppError {
	return NewAppError(ErrorTypePrivacy, code, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, "INTERNAL_ERROR", message)
}

// TypeOf reports the ErrorType of the first AppError in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type, true
	}
	return "", false
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	t, ok := TypeOf(err)
	return ok && t == ErrorTypeConfiguration
}

// IsSequencing reports whether err is a sequencing error.
func IsSequencing(err error) bool {
	t, ok := TypeOf(err)
	return ok && t == ErrorTypeSequencing
}
