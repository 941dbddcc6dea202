package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions. Each structured error type
// below matches its sentinel under errors.Is.
var (
	ErrUnsupportedHypothesis = errors.New("unsupported hypothesis")
	ErrSchemaViolation       = errors.New("schema violation")
	ErrExecution             = errors.New("execution failed")
	ErrEmptyResultSet        = errors.New("empty result set")
)

// UnsupportedHypothesisError is returned when no reasoning collaborator
// recognizes the hypothesis. The original text is kept so callers can queue
// it for human or external review.
type UnsupportedHypothesisError struct {
	Hypothesis string
	Source     string
	Reason     string
}

func (e *UnsupportedHypothesisError) Error() string {
	msg := fmt.Sprintf("%s: %q", ErrUnsupportedHypothesis, e.Hypothesis)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *UnsupportedHypothesisError) Is(target error) bool {
	return target == ErrUnsupportedHypothesis
}

// SchemaViolationError names the offending field and the shape it should have had.
type SchemaViolationError struct {
	Field    string
	Expected string
	Got      string
}

func (e *SchemaViolationError) Error() string {
	if e.Got != "" {
		return fmt.Sprintf("%s: %s: expected %s, got %s", ErrSchemaViolation, e.Field, e.Expected, e.Got)
	}
	return fmt.Sprintf("%s: %s: expected %s", ErrSchemaViolation, e.Field, e.Expected)
}

func (e *SchemaViolationError) Is(target error) bool {
	return target == ErrSchemaViolation
}

// ExecutionError is a per-sample failure from the simulated or live strategy.
type ExecutionError struct {
	SampleID SampleID
	Reason   string
	Cause    error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("%s for sample %s: %s", ErrExecution, e.SampleID, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}

// EmptyResultSetError signals that analysis was requested with no measurements.
type EmptyResultSetError struct {
	Hypothesis string
}

func (e *EmptyResultSetError) Error() string {
	return fmt.Sprintf("%s: no measurements to analyze for %q", ErrEmptyResultSet, e.Hypothesis)
}

func (e *EmptyResultSetError) Is(target error) bool {
	return target == ErrEmptyResultSet
}

// Error constructors with context
func NewUnsupportedHypothesis(hypothesis, source, reason string) error {
	return &UnsupportedHypothesisError{Hypothesis: hypothesis, Source: source, Reason: reason}
}

func NewSchemaViolation(field, expected, got string) error {
	return &SchemaViolationError{Field: field, Expected: expected, Got: got}
}

func NewExecutionError(id SampleID, reason string, cause error) *ExecutionError {
	return &ExecutionError{SampleID: id, Reason: reason, Cause: cause}
}

// JoinExecutionErrors folds per-sample failures into one error that still
// unwraps to every *ExecutionError.
func JoinExecutionErrors(errs []*ExecutionError) error {
	if len(errs) == 0 {
		return nil
	}
	joined := make([]error, len(errs))
	for i, e := range errs {
		joined[i] = e
	}
	return errors.Join(joined...)
}

// Error checking helpers
func IsUnsupportedHypothesis(err error) bool {
	return errors.Is(err, ErrUnsupportedHypothesis)
}

func IsSchemaViolation(err error) bool {
	return errors.Is(err, ErrSchemaViolation)
}

func IsExecutionError(err error) bool {
	return errors.Is(err, ErrExecution)
}

func IsEmptyResultSet(err error) bool {
	return errors.Is(err, ErrEmptyResultSet)
}
