package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents an error code
type ErrorCode string

const (
	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeRateLimited  ErrorCode = "RATE_LIMITED"

	// Room errors
	ErrCodeRoomNotFound  ErrorCode = "ROOM_NOT_FOUND"
	ErrCodeRoomFull      ErrorCode = "ROOM_FULL"
	ErrCodeInvalidRoomID ErrorCode = "INVALID_ROOM_ID"

	// Call errors
	ErrCodeCallAlreadyActive ErrorCode = "CALL_ALREADY_ACTIVE"
	ErrCodeCallNotActive     ErrorCode = "CALL_NOT_ACTIVE"

	// Media errors. Permission and device-absence errors are terminal for
	// the feature that hit them and must not be retried.
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrCodeDeviceNotFound   ErrorCode = "DEVICE_NOT_FOUND"
	ErrCodeMediaFailed      ErrorCode = "MEDIA_FAILED"

	// Network errors
	ErrCodeNetworkError      ErrorCode = "NETWORK_ERROR"
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"

	// Peer errors
	ErrCodePeerFailed    ErrorCode = "PEER_FAILED"
	ErrCodeInvalidRole   ErrorCode = "INVALID_ROLE"
	ErrCodePeerDestroyed ErrorCode = "PEER_DESTROYED"

	// Caption errors
	ErrCodeRecognizerFailed ErrorCode = "RECOGNIZER_FAILED"
	ErrCodeDetectionFailed  ErrorCode = "DETECTION_FAILED"

	// Protocol errors
	ErrCodeInvalidMessage ErrorCode = "INVALID_MESSAGE"

	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// AppError represents an application error
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: getHTTPStatus(code),
	}
}

// NewAppErrorf creates a new application error with formatting
func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: getHTTPStatus(code),
	}
}

// getHTTPStatus returns the HTTP status code for an error code
func getHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound, ErrCodeRoomNotFound, ErrCodeDeviceNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodePermissionDenied:
		return http.StatusForbidden
	case ErrCodeCallAlreadyActive:
		return http.StatusConflict
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeInvalidInput, ErrCodeInvalidRoomID, ErrCodeInvalidMessage, ErrCodeInvalidRole, ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case ErrCodeRoomFull:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// AsAppError converts an error to AppError
func AsAppError(err error) (*AppError, bool) {
	appErr, ok := err.(*AppError)
	return appErr, ok
}

// WrapError wraps a standard error as an AppError
func WrapError(code ErrorCode, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    err.Error(),
		HTTPStatus: getHTTPStatus(code),
		Cause:      err,
	}
}

// IsTerminal reports whether the error is terminal for the feature that
// produced it: the error-handling policy forbids retrying these.
func IsTerminal(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case ErrCodePermissionDenied, ErrCodeDeviceNotFound, ErrCodePeerFailed:
		return true
	default:
		return false
	}
}
