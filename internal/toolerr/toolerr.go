package toolerr

import (
	"context"
	"errors"
	"fmt"
)

// Stable error codes reported to callers. Remote business codes and the
// http_<status> / put_failed_<status> families are built dynamically.
const (
	CodeMissingAPIKey   = "missing_api_key"
	CodeInvalidJSON     = "invalid_json"
	CodeTimeout         = "timeout"
	CodeParseFailed     = "parse_failed"
	CodeConvertFailed   = "convert_failed"
	CodeInvalidArgument = "invalid_argument"
	CodeInvalidURL      = "invalid_url"
	CodeUnsafeURL       = "unsafe_url"
	CodeFileTooLarge    = "file_too_large"
	CodeEmptyBody       = "empty_body"
	CodeNetworkError    = "network_error"
	CodeCanceled        = "canceled"
	CodeInternalError   = "internal_error"
	CodeDoc2xError      = "doc2x_error"
)

// Error is the structured failure every engine operation reports.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	UID       string `json:"uid,omitempty"`
}

func (e *Error) Error() string {
	if e.UID != "" {
		return fmt.Sprintf("%s: %s (uid=%s)", e.Code, e.Message, e.UID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Payload is the wire shape used when an error is rendered for a caller.
type Payload struct {
	Error *Error `json:"error"`
}

// ToPayload wraps the error for JSON rendering.
func (e *Error) ToPayload() Payload {
	return Payload{Error: e}
}

// New creates a non-uid error.
func New(code, message string, retryable bool) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable}
}

// Newf creates a non-retryable error with a formatted message.
func Newf(code string, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithUID creates an error annotated with the remote task uid.
func WithUID(code, message string, retryable bool, uid string) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable, UID: uid}
}

// InvalidArgument is the common validation failure.
func InvalidArgument(format string, args ...interface{}) *Error {
	return Newf(CodeInvalidArgument, format, args...)
}

// HTTPCode returns the code used for non-2xx API responses.
func HTTPCode(status int) string {
	return fmt.Sprintf("http_%d", status)
}

// PutFailedCode returns the code used for non-2xx signed-url uploads.
func PutFailedCode(status int) string {
	return fmt.Sprintf("put_failed_%d", status)
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsRetryable reports whether err carries a retryable *Error.
func IsRetryable(err error) bool {
	te, ok := As(err)
	return ok && te.Retryable
}

// FromContext converts a context error into a structured error.
func FromContext(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return New(CodeTimeout, "operation deadline exceeded", true)
	}
	return New(CodeCanceled, "operation canceled", false)
}

// From normalizes any error at the caller boundary; unknown failures become
// internal_error.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if te, ok := As(err); ok {
		return te
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return FromContext(err)
	}
	return New(CodeInternalError, err.Error(), false)
}
