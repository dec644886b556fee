package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/folio-tracker/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents malformed request input (4xx)
	CategoryValidation ErrorCategory = "validation"
	// CategoryAuthorization represents authorization errors
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryUpstream represents price provider or data store failures
	CategoryUpstream ErrorCategory = "upstream"
	// CategorySystem represents unexpected internal errors
	CategorySystem ErrorCategory = "system"
)

// Error codes
const (
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeValidation     = "VALIDATION_ERROR"
	CodeInvalidPeriod  = "INVALID_PERIOD"
	CodeNotFound       = "NOT_FOUND"
	CodeRateLimit      = "RATE_LIMIT_EXCEEDED"
	CodeUpstream       = "UPSTREAM_ERROR"
	CodeDatabase       = "DATABASE_ERROR"
	CodeProvider       = "PROVIDER_ERROR"
	CodeInternal       = "INTERNAL_ERROR"
	CodeDemoReadOnly   = "DEMO_READ_ONLY"
	CodeOversell       = "INSUFFICIENT_BALANCE"
	CodeImmutableField = "IMMUTABLE_FIELD"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusUnauthorized,
		Code:       CodeUnauthorized,
		Message:    "Unauthorized",
	}
}

// NewValidationError creates a validation error for a malformed request
func NewValidationError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeValidation,
		Message:    message,
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeValidation,
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewInvalidPeriodError rejects a period outside the fixed enumeration
func NewInvalidPeriodError(period string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidPeriod,
		Message:    fmt.Sprintf("invalid period: %q", period),
		Details: map[string]interface{}{
			"period": period,
		},
	}
}

// NewDemoReadOnlyError rejects writes against the demo portfolio
func NewDemoReadOnlyError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeDemoReadOnly,
		Message:    "the demo portfolio is read-only",
	}
}

// NewInsufficientBalanceError rejects a ledger entry that would oversell a holding
func NewInsufficientBalanceError(ticker string, available, requested string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeOversell,
		Message:    fmt.Sprintf("insufficient %s balance: available %s, requested %s", ticker, available, requested),
		Details: map[string]interface{}{
			"ticker":    ticker,
			"available": available,
			"requested": requested,
		},
	}
}

// NewImmutableFieldError rejects a correction touching a field outside the whitelist
func NewImmutableFieldError(field string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeImmutableField,
		Message:    fmt.Sprintf("field '%s' cannot be corrected", field),
		Details: map[string]interface{}{
			"field": field,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimit,
		Message:    "rate limit exceeded",
	}
}

// NewDatabaseError wraps a data store failure
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUpstream,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeDatabase,
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewProviderError wraps a price provider failure
func NewProviderError(provider string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUpstream,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeProvider,
		Message:    fmt.Sprintf("price provider error: %s", provider),
		Cause:      cause,
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternal,
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error, looking through wrapping
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	return NewInternalError(err.Error(), err)
}

// categorizeServiceError categorizes a ServiceError
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	c := &CategorizedError{
		Code:    err.Code,
		Message: err.Message,
		Details: err.Details,
	}

	switch err.Code {
	case CodeValidation, CodeInvalidPeriod, CodeDemoReadOnly, CodeOversell, CodeImmutableField:
		c.Category, c.StatusCode = CategoryValidation, http.StatusBadRequest
	case CodeNotFound, "PORTFOLIO_NOT_FOUND", "TRANSACTION_NOT_FOUND":
		c.Category, c.StatusCode = CategoryNotFound, http.StatusNotFound
	case CodeUnauthorized:
		c.Category, c.StatusCode = CategoryAuthorization, http.StatusUnauthorized
	default:
		c.Category, c.StatusCode = CategorySystem, http.StatusInternalServerError
	}
	return c
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsUpstream reports whether the error came from the provider or the store
func IsUpstream(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryUpstream
}
