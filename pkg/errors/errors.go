package errors

import (
	goErrors "errors"
	"fmt"
)

// New creates an error with the given message.
func New(msg string) error {
	return goErrors.New(msg)
}

// ContextError annotates an error with the operation that caused it.
type ContextError struct {
	Context string
	Err     error
}

func (err ContextError) Error() string {
	return fmt.Sprintf("%s: %s", err.Context, err.Err)
}

// Unwrap returns the wrapped error.
func (err ContextError) Unwrap() error {
	return err.Err
}

// WithContext wraps err so that its message reads "<context>: <err>". The
// original error is recoverable through RootCause.
func WithContext(err error, context string) error {
	return ContextError{Context: context, Err: err}
}

// RootCause strips any context wrappers from err and returns the error that
// started the chain.
func RootCause(err error) error {
	for {
		ce, ok := err.(ContextError)
		if !ok {
			return err
		}
		err = ce.Err
	}
}

// FriendlyError is an error whose message is meant to be shown to the user
// as-is. Other errors get printed with their full context chain since they're
// most likely unexpected.
type FriendlyError struct {
	Message string
}

func (err FriendlyError) Error() string {
	return err.Message
}

// NewFriendlyError creates a FriendlyError according to the format specifier.
func NewFriendlyError(format string, args ...interface{}) error {
	return FriendlyError{Message: fmt.Sprintf(format, args...)}
}

// GetPrintableMessage returns the message that should be shown to the user
// for err.
func GetPrintableMessage(err error) string {
	if friendly, ok := RootCause(err).(FriendlyError); ok {
		return friendly.Message
	}
	return err.Error()
}
