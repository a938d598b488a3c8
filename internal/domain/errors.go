package domain

import (
	"errors"
	"fmt"
)

// Code is a machine-readable domain error code.
type Code string

const (
	CodeValidation       Code = "VALIDATION"
	CodeInvalidState     Code = "INVALID_STATE"
	CodeNotOwner         Code = "NOT_OWNER"
	CodeNotAssignee      Code = "NOT_ASSIGNEE"
	CodeSelfAssignment   Code = "SELF_ASSIGNMENT"
	CodeSelfPurchase     Code = "SELF_PURCHASE"
	CodeInsufficientFund Code = "INSUFFICIENT_FUNDS"
	CodeAlreadyPurchased Code = "ALREADY_PURCHASED"
	CodeNoPendingDebt    Code = "NO_PENDING_DEBT"
	CodeNotFound         Code = "NOT_FOUND"
	CodeForbidden        Code = "FORBIDDEN"
)

// Error is a user-visible domain failure. Anything that is not an *Error is
// an internal failure.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

// Is matches any *Error carrying the same code, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrValidation        = &Error{Code: CodeValidation}
	ErrInvalidState      = &Error{Code: CodeInvalidState}
	ErrNotOwner          = &Error{Code: CodeNotOwner}
	ErrNotAssignee       = &Error{Code: CodeNotAssignee}
	ErrSelfAssignment    = &Error{Code: CodeSelfAssignment}
	ErrSelfPurchase      = &Error{Code: CodeSelfPurchase}
	ErrInsufficientFunds = &Error{Code: CodeInsufficientFund}
	ErrAlreadyPurchased  = &Error{Code: CodeAlreadyPurchased}
	ErrNoPendingDebt     = &Error{Code: CodeNoPendingDebt}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrForbidden         = &Error{Code: CodeForbidden}
)

func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetails returns a copy of the error with extra structured context.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func Validation(format string, args ...any) *Error {
	return Errorf(CodeValidation, format, args...)
}

func InvalidState(format string, args ...any) *Error {
	return Errorf(CodeInvalidState, format, args...)
}

func NotFound(kind, id string) *Error {
	return (&Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", kind, id)}).
		WithDetails(map[string]any{"kind": kind, "id": id})
}

func Forbidden(format string, args ...any) *Error {
	return Errorf(CodeForbidden, format, args...)
}

// CodeOf returns the domain code of err, or "" for internal errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
