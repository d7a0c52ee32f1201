package errors

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Queue errors. Stores return these sentinels (possibly wrapped with %w) so
// callers can match them with errors.Is.
var (
	ErrQueueNotFound     = NewNotFoundError("queue", "queue not found")
	ErrEntryNotFound     = NewNotFoundError("queue entry", "queue entry not found")
	ErrAlreadyInQueue    = NewAlreadyExistsError("queue entry", "user is already waiting in this queue")
	ErrConflict          = NewConflictError("queue", "queue was modified concurrently")
	ErrQueueEmpty        = &QueueEmptyError{}
	ErrJoinFailed        = &RetryExhaustedError{Operation: "join"}
	ErrAdvanceConflict   = &RetryExhaustedError{Operation: "advance"}
	ErrLeaveFailed       = &RetryExhaustedError{Operation: "leave"}
	ErrInvalidTransition = &InvalidTransitionError{}
	ErrInvalidArgument   = NewValidationError("", "invalid argument")
	ErrInternal          = NewInternalError("internal server error", nil)
	ErrUnauthenticated   = &UnauthenticatedError{}
)

// ValidationError represents a validation failure with field-level details
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s - %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is matches any *ValidationError so callers can test with errors.Is(err, ErrInvalidArgument).
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// GRPCStatus returns the gRPC status for this error
func (e *ValidationError) GRPCStatus() *status.Status {
	return status.New(codes.InvalidArgument, e.Error())
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// GRPCStatus returns the gRPC status for this error
func (e *NotFoundError) GRPCStatus() *status.Status {
	return status.New(codes.NotFound, e.Error())
}

// AlreadyExistsError represents a resource already exists error
type AlreadyExistsError struct {
	Resource string
	Message  string
}

// NewAlreadyExistsError creates a new already exists error
func NewAlreadyExistsError(resource, message string) *AlreadyExistsError {
	return &AlreadyExistsError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface
func (e *AlreadyExistsError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s already exists", e.Resource)
}

// GRPCStatus returns the gRPC status for this error
func (e *AlreadyExistsError) GRPCStatus() *status.Status {
	return status.New(codes.AlreadyExists, e.Error())
}

// ConflictError reports that a version-checked write lost against a
// concurrent writer. It is retried inside the usecase and only escapes
// wrapped in a RetryExhaustedError.
type ConflictError struct {
	Resource string
	Message  string
}

// NewConflictError creates a new conflict error
func NewConflictError(resource, message string) *ConflictError {
	return &ConflictError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s modified concurrently", e.Resource)
}

// Is matches any *ConflictError.
func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ConflictError)
	return ok
}

// GRPCStatus returns the gRPC status for this error
func (e *ConflictError) GRPCStatus() *status.Status {
	return status.New(codes.Aborted, e.Error())
}

// RetryExhaustedError is returned once an operation has lost every attempt
// of its retry budget to concurrent writers. The caller may retry the whole
// operation.
type RetryExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
}

// Error implements the error interface
func (e *RetryExhaustedError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Operation)
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the last conflict observed
func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// Is matches a RetryExhaustedError for the same operation, or any operation
// when the target leaves Operation empty.
func (e *RetryExhaustedError) Is(target error) bool {
	t, ok := target.(*RetryExhaustedError)
	if !ok {
		return false
	}
	return t.Operation == "" || t.Operation == e.Operation
}

// GRPCStatus returns the gRPC status for this error
func (e *RetryExhaustedError) GRPCStatus() *status.Status {
	return status.New(codes.Aborted, e.Error())
}

// QueueEmptyError signals that an advance found no waiting entry. The
// usecase turns it into an empty result; it never reaches a client.
type QueueEmptyError struct{}

// Error implements the error interface
func (e *QueueEmptyError) Error() string {
	return "queue has no waiting entries"
}

// GRPCStatus returns the gRPC status for this error
func (e *QueueEmptyError) GRPCStatus() *status.Status {
	return status.New(codes.FailedPrecondition, e.Error())
}

// InvalidTransitionError reports a status change the entry lifecycle does not allow.
type InvalidTransitionError struct {
	From string
	To   string
}

// NewInvalidTransitionError creates a new invalid transition error
func NewInvalidTransitionError(from, to string) *InvalidTransitionError {
	return &InvalidTransitionError{From: from, To: to}
}

// Error implements the error interface
func (e *InvalidTransitionError) Error() string {
	if e.From == "" && e.To == "" {
		return "invalid status transition"
	}
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// Is matches any *InvalidTransitionError.
func (e *InvalidTransitionError) Is(target error) bool {
	_, ok := target.(*InvalidTransitionError)
	return ok
}

// GRPCStatus returns the gRPC status for this error
func (e *InvalidTransitionError) GRPCStatus() *status.Status {
	return status.New(codes.FailedPrecondition, e.Error())
}

// UnauthenticatedError is returned when a request carries no caller identity.
type UnauthenticatedError struct{}

// Error implements the error interface
func (e *UnauthenticatedError) Error() string {
	return "caller identity is required"
}

// GRPCStatus returns the gRPC status for this error
func (e *UnauthenticatedError) GRPCStatus() *status.Status {
	return status.New(codes.Unauthenticated, e.Error())
}

// InternalError represents an internal server error with context
type InternalError struct {
	Message string
	Err     error
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *InternalError {
	return &InternalError{
		Message: message,
		Err:     err,
	}
}

// Error implements the error interface
func (e *InternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *InternalError) Unwrap() error {
	return e.Err
}

// GRPCStatus returns the gRPC status for this error
func (e *InternalError) GRPCStatus() *status.Status {
	return status.New(codes.Internal, e.Message)
}

// GRPCStatuser interface for errors that can provide gRPC status
type GRPCStatuser interface {
	GRPCStatus() *status.Status
}

// Code returns the gRPC code carried by err, or codes.Unknown.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var s GRPCStatuser
	if As(err, &s) {
		return s.GRPCStatus().Code()
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Unknown
}
