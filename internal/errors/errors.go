package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"hypocycle/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid         = "CONFIG_INVALID"
	CodeDatabaseError         = "DATABASE_ERROR"
	CodeNotFound              = "NOT_FOUND"
	CodeInternalError         = "INTERNAL_ERROR"
	CodeExternalService       = "EXTERNAL_SERVICE_ERROR"
	CodeInvalidInput          = "INVALID_INPUT"
	CodeUnsupportedHypothesis = "UNSUPPORTED_HYPOTHESIS"
	CodeSchemaViolation       = "SCHEMA_VIOLATION"
	CodeExecutionError        = "EXECUTION_ERROR"
	CodeEmptyResultSet        = "EMPTY_RESULT_SET"
	CodeCancelled             = "CANCELLED"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code:    CodeExternalService,
		Message: fmt.Sprintf("%s service error", service),
		Cause:   cause,
	}
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// Classify maps any error to a code. AppErrors keep their own code; domain
// errors are recognized anywhere in the chain.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case core.IsSchemaViolation(err):
		return CodeSchemaViolation
	case core.IsUnsupportedHypothesis(err):
		return CodeUnsupportedHypothesis
	case core.IsEmptyResultSet(err):
		return CodeEmptyResultSet
	case core.IsExecutionError(err):
		return CodeExecutionError
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternalError
}

// HTTPStatus returns the response status for an error code.
func HTTPStatus(code string) int {
	switch code {
	case CodeUnsupportedHypothesis:
		return http.StatusUnprocessableEntity
	case CodeInvalidInput, CodeEmptyResultSet:
		return http.StatusBadRequest
	case CodeExecutionError, CodeExternalService:
		return http.StatusBadGateway
	case CodeNotFound:
		return http.StatusNotFound
	case CodeCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
