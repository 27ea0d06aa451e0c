package apierror

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrUnavailable    ErrorCode = "UNAVAILABLE"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrCycleCancelled ErrorCode = "CYCLE_CANCELLED"
	ErrCycleFailed    ErrorCode = "CYCLE_FAILED"
)

// APIError is the JSON body of every failed API response.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, cause error) APIError {
	apiErr := APIError{Code: code, Message: message}
	if cause != nil {
		apiErr.Details = cause.Error()
		logrus.WithField("code", code).WithError(cause).Error(message)
	}
	return apiErr
}

// FromCycleError classifies an error returned by a pipeline cycle.
func FromCycleError(err error) APIError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewAPIError(ErrCycleCancelled, "cycle was cancelled before it finished", err)
	}
	return NewAPIError(ErrCycleFailed, "cycle failed", err)
}

func MapErrorToHTTPStatus(err error) int {
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError
	}
	switch apiErr.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrUnavailable, ErrCycleCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
