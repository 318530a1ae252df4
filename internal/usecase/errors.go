package usecase

import (
	"errors"
	"fmt"

	"poizon-bot/internal/domain"
)

type ErrorCode string

const (
	ErrorTransport      ErrorCode = "TRANSPORT_ERROR"
	ErrorInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrorQuotaExceeded  ErrorCode = "QUOTA_EXCEEDED"
	ErrorNotFound       ErrorCode = "NOT_FOUND"
	ErrorUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrorMissingContext ErrorCode = "MISSING_CONTEXT"
	ErrorInternal       ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// classify maps a failure onto the error taxonomy. reason is used when err
// is not already an *Error.
func classify(reason string, err error) *Error {
	var uerr *Error
	if errors.As(err, &uerr) {
		return uerr
	}
	var statusErr httpStatusCoder
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded):
		return newError(ErrorQuotaExceeded, reason, err)
	case errors.Is(err, domain.ErrNotFound):
		return newError(ErrorNotFound, reason, err)
	case errors.Is(err, domain.ErrMalformedProduct), errors.Is(err, domain.ErrInvalidStatus):
		return newError(ErrorInvalidInput, reason, err)
	case errors.As(err, &statusErr):
		return newError(ErrorTransport, reason, err)
	}
	return newError(ErrorInternal, reason, err)
}
