// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes following domain-driven design
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Calculation failures (422)
	// These abort a pricing run: no correct monetary result is possible.
	CodeConversion     = "CONVERSION_ERROR"
	CodeConfiguration  = "CONFIGURATION_ERROR"
	CodeExchangeRate   = "EXCHANGE_RATE_ERROR"
	CodeNoPricingFound = "NO_PRICING_FOUND"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict = "CONFLICT"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (units, currencies, rule IDs, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewConversion creates a fatal unit-conversion error. Raised when no
// conversion factor exists between two units for a given fuel.
func NewConversion(fromUnit, toUnit string) *AppError {
	return &AppError{
		Code:       CodeConversion,
		Message:    fmt.Sprintf("no conversion factor from %s to %s", fromUnit, toUnit),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"from_unit": fromUnit, "to_unit": toUnit},
	}
}

// NewConfiguration creates a fatal rule-configuration error, e.g. a tax
// rule that declares neither a percentage nor a unit rate.
func NewConfiguration(message string) *AppError {
	return &AppError{
		Code:       CodeConfiguration,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewExchangeRate creates a fatal exchange-rate error. The whole
// calculation aborts because no partial-currency fallback is defined.
func NewExchangeRate(from, to string, err error) *AppError {
	return &AppError{
		Code:       CodeExchangeRate,
		Message:    fmt.Sprintf("cannot obtain exchange rate %s -> %s", from, to),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"from_currency": from, "to_currency": to},
		Err:        err,
	}
}

// NewNoPricingFound is returned when no candidate pricing survives
// filtering for any supplier at the requested location.
func NewNoPricingFound(airport string) *AppError {
	return &AppError{
		Code:       CodeNoPricingFound,
		Message:    "no applicable fuel pricing found",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"airport": airport},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsConversion checks if error is CodeConversion
func IsConversion(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeConversion
	}
	return false
}
