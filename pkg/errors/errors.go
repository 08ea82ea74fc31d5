// Package errors provides structured error handling for thor
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeFile represents file operation errors
	ErrorTypeFile ErrorType = "file"
	// ErrorTypeQuery represents database query errors
	ErrorTypeQuery ErrorType = "query"
	// ErrorTypeTimeout represents a request that exceeded its deadline
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeRequest represents transport failures and HTTP error statuses
	ErrorTypeRequest ErrorType = "request"
	// ErrorTypeJSONDecode represents a response body that is not valid JSON
	ErrorTypeJSONDecode ErrorType = "json_decode"
	// ErrorTypeKey represents a missing or unexpected field in a decoded payload
	ErrorTypeKey ErrorType = "key"
	// ErrorTypeBlocked represents a session the upstream site refuses to serve
	ErrorTypeBlocked ErrorType = "blocked"
)

// Upstream names reported in error records.
const (
	NameTimeout          = "Timeout"
	NameRequestException = "RequestException"
	NameJSONDecodeError  = "JSONDecodeError"
	NameKeyError         = "KeyError"
	NameBlocked          = "Blocked"
	NameException        = "Exception"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// WrapTransport wraps an error returned by an HTTP round trip, classifying
// deadline expiry as a timeout and everything else as a request failure.
func WrapTransport(err error, message string) *Error {
	if err == nil {
		return nil
	}
	if IsTimeout(err) {
		return Wrap(err, ErrorTypeTimeout, message)
	}
	return Wrap(err, ErrorTypeRequest, message)
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if IsType(err, ErrorTypeTimeout) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// Name returns the upstream error name for err: Timeout, RequestException,
// JSONDecodeError, KeyError or Blocked. Errors of any other type are
// reported as Exception.
func Name(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		if IsTimeout(err) {
			return NameTimeout
		}
		return NameException
	}

	switch e.Type {
	case ErrorTypeTimeout:
		return NameTimeout
	case ErrorTypeRequest:
		return NameRequestException
	case ErrorTypeJSONDecode:
		return NameJSONDecodeError
	case ErrorTypeKey:
		return NameKeyError
	case ErrorTypeBlocked:
		return NameBlocked
	default:
		return NameException
	}
}

// Is, As and Join re-export the standard helpers so callers need a single
// errors import.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
