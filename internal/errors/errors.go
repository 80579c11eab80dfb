package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess          Code = 0
	CodeInternal         Code = 1
	CodeUsage            Code = 2
	CodeNotFound         Code = 3
	CodeAmbiguous        Code = 4
	CodeDisabled         Code = 5
	CodeInvalidConfig    Code = 6
	CodeFiberMismatch    Code = 7
	CodeClosureViolation Code = 8
	CodeActionFailure    Code = 9
	CodeAuth             Code = 10
	CodeRateLimited      Code = 11
	CodeUnavailable      Code = 12
	CodeUnsupported      Code = 13
	CodeBlocked          Code = 16
)

// Error is a typed terminal error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	if termErr, ok := As(err); ok {
		return termErr.Code == code
	}
	return false
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if termErr, ok := As(err); ok {
		return int(termErr.Code)
	}
	return int(CodeInternal)
}
