package capture

import (
	"errors"
	"fmt"
)

// Error codes for capture failures.
const (
	CodeEnumerationFailed = "ENUMERATION_FAILED"
	CodeNoColorSource     = "NO_COLOR_SOURCE"
	CodeNoSupportedFormat = "NO_SUPPORTED_FORMAT"
	CodeInitFailed        = "INIT_FAILED"
	CodeReaderFailed      = "READER_FAILED"
	CodeNotPrepared       = "NOT_PREPARED"
	CodeAlreadyStarted    = "ALREADY_STARTED"
)

// Error is a capture failure with a stable code.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code && t.Message == ""
	}
	return false
}

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels for errors.Is checks against a code.
var (
	ErrNoColorSource     = &Error{Code: CodeNoColorSource}
	ErrNoSupportedFormat = &Error{Code: CodeNoSupportedFormat}
	ErrNotPrepared       = &Error{Code: CodeNotPrepared}
	ErrAlreadyStarted    = &Error{Code: CodeAlreadyStarted}
)

// IsNegotiationError reports whether err is a source or format negotiation
// failure.
func IsNegotiationError(err error) bool {
	return hasCode(err, CodeEnumerationFailed, CodeNoColorSource, CodeNoSupportedFormat)
}

// IsInitializationError reports whether err is a capture or reader
// initialization failure.
func IsInitializationError(err error) bool {
	return hasCode(err, CodeInitFailed, CodeReaderFailed)
}

// ErrorCode returns the code of a capture error, or "" for other errors.
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func hasCode(err error, codes ...string) bool {
	code := ErrorCode(err)
	for _, c := range codes {
		if code == c {
			return true
		}
	}
	return false
}
