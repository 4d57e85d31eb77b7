// Package errs defines the error taxonomy shared by the board, record,
// history and syncer packages.
//
// Every domain failure is an *Error carrying a Code. Callers branch on the
// code through the Is* helpers, which use errors.As so wrapped errors match.
package errs

import (
	"errors"
	"fmt"
)

// Code identifies the error category.
type Code string

const (
	// CodeValidation indicates malformed board content or a malformed attempt.
	// Fatal to the operation and never retried.
	CodeValidation Code = "VALIDATION"

	// CodeTransientStore indicates a store call failed after the retry
	// budget was spent. The live session is unaffected.
	CodeTransientStore Code = "TRANSIENT_STORE"

	// CodeInvariantViolation indicates more than one canonical row survived
	// a cleanup pass. Logged as a repair signal.
	CodeInvariantViolation Code = "INVARIANT_VIOLATION"

	// CodeInvalidRow indicates a persisted row failed classification at the
	// store boundary.
	CodeInvalidRow Code = "INVALID_ROW"

	// CodeRowNotFound indicates an update targeted a row that no longer exists.
	CodeRowNotFound Code = "ROW_NOT_FOUND"
)

// ErrRowNotFound is returned by stores when UpdateRow matches no row.
var ErrRowNotFound = &Error{Code: CodeRowNotFound, Message: "row not found"}

// Error is a categorized domain error.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Op names the operation that failed (e.g. "board.initialize").
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
// This lets errors.Is(err, ErrRowNotFound) match any row-not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Validation creates a CodeValidation error.
func Validation(op, format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Transient wraps a store failure that survived the retry budget.
func Transient(op string, err error) *Error {
	return &Error{Code: CodeTransientStore, Op: op, Message: "store call failed", Err: err}
}

// InvalidRow creates a CodeInvalidRow error for the given row id.
func InvalidRow(rowID, reason string) *Error {
	return &Error{Code: CodeInvalidRow, Op: "row " + rowID, Message: reason}
}

// InvariantViolation creates a CodeInvariantViolation error.
func InvariantViolation(op, format string, args ...any) *Error {
	return &Error{Code: CodeInvariantViolation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return CodeOf(err) == CodeValidation
}

// IsTransient returns true if err is a transient store error.
func IsTransient(err error) bool {
	return CodeOf(err) == CodeTransientStore
}

// IsInvalidRow returns true if err is an invalid-row classification.
func IsInvalidRow(err error) bool {
	return CodeOf(err) == CodeInvalidRow
}

// IsNotFound returns true if err reports a missing row.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeRowNotFound
}
