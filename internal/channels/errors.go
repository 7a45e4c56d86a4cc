// Package channels holds the transport-level error taxonomy and rate limiting
// shared by platform clients.
package channels

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies a failed platform call.
type ErrorCode string

const (
	// ErrCodeConnection covers network failures and 5xx responses.
	ErrCodeConnection ErrorCode = "CONNECTION_ERROR"
	// ErrCodeAuthentication means the bot token was rejected.
	ErrCodeAuthentication ErrorCode = "AUTH_ERROR"
	// ErrCodePermission means the bot lacks a permission for the call.
	// Unpinning and deleting in a locked channel fail this way.
	ErrCodePermission ErrorCode = "PERMISSION_DENIED"
	ErrCodeRateLimit  ErrorCode = "RATE_LIMIT_ERROR"
	// ErrCodeInvalidInput is a 400, usually content over the length limit.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeNotFound means the message or channel is already gone.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeTimeout covers cancelled contexts and rate limiter waits.
	ErrCodeTimeout  ErrorCode = "TIMEOUT_ERROR"
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeConfig   ErrorCode = "CONFIG_ERROR"
)

// Error is a platform failure tagged with an ErrorCode. Op names the
// operation that failed, e.g. "unpin" or "send_message".
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Op)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure came from the network or the
// platform's load rather than from the request itself. The pin service
// never retries; transient failures are only logged more quietly.
func (e *Error) Transient() bool {
	switch e.Code {
	case ErrCodeRateLimit, ErrCodeTimeout, ErrCodeConnection:
		return true
	default:
		return false
	}
}

// NewError creates an Error with the given code.
func NewError(code ErrorCode, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

func ErrConnection(op string, err error) *Error     { return NewError(ErrCodeConnection, op, err) }
func ErrAuthentication(op string, err error) *Error { return NewError(ErrCodeAuthentication, op, err) }
func ErrPermission(op string, err error) *Error     { return NewError(ErrCodePermission, op, err) }
func ErrNotFound(op string, err error) *Error       { return NewError(ErrCodeNotFound, op, err) }
func ErrTimeout(op string, err error) *Error        { return NewError(ErrCodeTimeout, op, err) }
func ErrInternal(op string, err error) *Error       { return NewError(ErrCodeInternal, op, err) }
func ErrConfig(op string, err error) *Error         { return NewError(ErrCodeConfig, op, err) }

// FromHTTPStatus maps a REST response status onto an error code.
func FromHTTPStatus(status int) ErrorCode {
	switch {
	case status == http.StatusUnauthorized:
		return ErrCodeAuthentication
	case status == http.StatusForbidden:
		return ErrCodePermission
	case status == http.StatusNotFound:
		return ErrCodeNotFound
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimit
	case status == http.StatusBadRequest:
		return ErrCodeInvalidInput
	case status >= 500:
		return ErrCodeConnection
	default:
		return ErrCodeInternal
	}
}

// GetErrorCode returns the code of the first *Error in err's chain, or
// ErrCodeInternal when there is none.
func GetErrorCode(err error) ErrorCode {
	var chErr *Error
	if errors.As(err, &chErr) {
		return chErr.Code
	}
	return ErrCodeInternal
}

// IsPermissionDenied reports whether err is a permission failure.
func IsPermissionDenied(err error) bool {
	return err != nil && GetErrorCode(err) == ErrCodePermission
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool {
	return err != nil && GetErrorCode(err) == ErrCodeNotFound
}

// IsTransient reports whether err is a transient *Error.
func IsTransient(err error) bool {
	var chErr *Error
	return errors.As(err, &chErr) && chErr.Transient()
}
