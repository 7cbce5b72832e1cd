package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// error kinds returned by the API client, compare with errors.Is
var (
	ErrRateLimitExceeded    = errors.New("RATE_LIMIT_EXCEEDED")
	ErrTransientFailure     = errors.New("TRANSIENT_FAILURE")
	ErrAuthorizationFailure = errors.New("AUTHORIZATION_FAILURE")
	ErrNotFound             = errors.New("NOT_FOUND")
	ErrMalformedResponse    = errors.New("MALFORMED_RESPONSE")
	ErrRequestRejected      = errors.New("REQUEST_REJECTED") // any other 4xx, never retried
	ErrInvalidQuery         = errors.New("INVALID_QUERY")
)

// RequestError describes a failed API call
type RequestError struct {
	Kind       error
	Method     string
	Endpoint   string
	StatusCode int // 0 when no response was received
	Attempts   int
	Err        error
}

func (e *RequestError) Error() string {
	msg := fmt.Sprintf("%s: %s %s", e.Kind, e.Method, e.Endpoint)

	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" returned status %d", e.StatusCode)
	}

	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Is matches the error kind
func (e *RequestError) Is(target error) bool {
	return e.Kind == target
}

// Reason returns a short reason, used in the skipped summary
func Reason(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		if reqErr.StatusCode != 0 {
			return fmt.Sprintf("%s (status %d)", reqErr.Kind, reqErr.StatusCode)
		}
		return reqErr.Kind.Error()
	}

	return err.Error()
}

type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewAPIError(errReason error) APIError {
	switch {
	case errors.Is(errReason, ErrInvalidQuery):
		return APIError{
			Status:  http.StatusBadRequest,
			Code:    ErrInvalidQuery.Error(),
			Message: errReason.Error(),
		}

	case errors.Is(errReason, ErrAuthorizationFailure):
		return APIError{
			Status:  http.StatusUnauthorized,
			Code:    ErrAuthorizationFailure.Error(),
			Message: "the analysis service rejected the API token. check the token and its permissions on the organization",
		}

	case errors.Is(errReason, ErrRateLimitExceeded):
		return APIError{
			Status:  http.StatusTooManyRequests,
			Code:    ErrRateLimitExceeded.Error(),
			Message: "analysis service rate limit reached. wait few minutes and try again",
		}

	case errors.Is(errReason, ErrNotFound):
		return APIError{
			Status:  http.StatusNotFound,
			Code:    ErrNotFound.Error(),
			Message: "organization not found on the analysis service",
		}

	case errors.Is(errReason, context.Canceled), errors.Is(errReason, context.DeadlineExceeded):
		return APIError{
			Status:  http.StatusGatewayTimeout,
			Code:    "CANCELED",
			Message: "report generation was interrupted",
		}

	case errors.Is(errReason, ErrTransientFailure), errors.Is(errReason, ErrMalformedResponse), errors.Is(errReason, ErrRequestRejected):
		return APIError{
			Status:  http.StatusBadGateway,
			Code:    kindOf(errReason),
			Message: "internal server error. contact our support with the reason code for assistance",
		}
	}

	return APIError{
		Status:  http.StatusInternalServerError,
		Code:    "GENERIC_ERROR",
		Message: "internal server error. contact our support with the reason code for assistance",
	}
}

func kindOf(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind.Error()
	}
	return err.Error()
}
