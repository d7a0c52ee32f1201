package presenter

import (
	"errors"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"

	apperrors "grpc-queue-service/pkg/errors"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

var errorNames = map[codes.Code]string{
	codes.InvalidArgument:    "invalid_input",
	codes.NotFound:           "not_found",
	codes.AlreadyExists:      "already_exists",
	codes.Aborted:            "conflict",
	codes.FailedPrecondition: "failed_precondition",
	codes.Unauthenticated:    "unauthenticated",
	codes.ResourceExhausted:  "rate_limit_exceeded",
	codes.Canceled:           "canceled",
	codes.DeadlineExceeded:   "timeout",
}

// Error maps an error to its HTTP status and body. Internal failures are
// reported without detail.
func Error(err error) (int, ErrorBody) {
	code := apperrors.Code(err)
	name, known := errorNames[code]
	if !known {
		return http.StatusInternalServerError, ErrorBody{
			Error:   "internal_error",
			Message: "An internal error occurred",
		}
	}

	return runtime.HTTPStatusFromCode(code), ErrorBody{
		Error:     name,
		Message:   err.Error(),
		Retryable: errors.Is(err, &apperrors.RetryExhaustedError{}),
	}
}
