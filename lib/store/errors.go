package store

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message. Engine failures are kept in Err.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	Err  error   // The underlying engine error, if any.
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("StoreError (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so callers can test with
// errors.Is(err, store.NewError(store.RetCReadOnly, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

func wrapError(code RetCode, msg string, err error) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
		Err:  err,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess       RetCode = iota // 0: Command executed successfully.
	RetCInternalError                // 1: Command failed due to an engine error.
	RetCUnknownBucket                // 2: Bucket is not part of the config.
	RetCReadOnly                     // 3: Write on a readonly store.
	RetCClosed                       // 4: Store has been closed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnknownBucket:
		return "UnknownBucket"
	case RetCReadOnly:
		return "ReadOnly"
	case RetCClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Sentinels for errors.Is.
var (
	ErrUnknownBucket = NewError(RetCUnknownBucket, "unknown bucket")
	ErrReadOnly      = NewError(RetCReadOnly, "store is readonly")
	ErrClosed        = NewError(RetCClosed, "store is closed")
)
