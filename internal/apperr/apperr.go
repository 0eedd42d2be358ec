package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation      Code = "VALIDATION_FAILURE"
	CodeDuplicateActive Code = "DUPLICATE_ACTIVE_REGISTRATION"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInvalidState    Code = "INVALID_TRANSITION"
	CodeCapacityReached Code = "CAPACITY_REACHED"
	CodePermission      Code = "PERMISSION_DENIED"
	CodeStorage         Code = "STORAGE_FAILURE"
)

type Error struct {
	Code   Code
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("%s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func Storage(reason string, err error) *Error {
	return New(CodeStorage, reason, err)
}

// CodeOf returns the code of the first *Error in err's chain. Errors that
// carry no code are storage failures from the caller's point of view.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeStorage
}

func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Soft reports whether err is an expected business outcome (stale link,
// race, duplicate) rather than an infrastructure failure.
func Soft(err error) bool {
	switch CodeOf(err) {
	case CodeValidation, CodeDuplicateActive, CodeNotFound, CodeInvalidState, CodeCapacityReached, CodePermission:
		return true
	}
	return false
}
