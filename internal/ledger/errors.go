package ledger

import "errors"

// Code is a stable, machine-readable error code surfaced to client
// layers alongside the field that caused the failure.
type Code string

const (
	CodeInvalidAmount       Code = "invalid_amount"
	CodeInsufficientBalance Code = "insufficient_balance"
	CodeNotFound            Code = "not_found"
	CodeInvalidRequest      Code = "invalid_request"
	CodeBusy                Code = "busy"
)

// Error is a ledger business error. All of them except ErrBusy are
// terminal: callers must not retry them. ErrBusy signals transient lock
// contention and may be retried with backoff.
type Error struct {
	Code  Code
	Field string
	msg   string
}

func (e *Error) Error() string { return e.msg }

// Is matches any *Error with the same code, so sentinel comparisons via
// errors.Is work regardless of the Field annotation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithField returns a copy of the error annotated with the offending
// field or path.
func (e *Error) WithField(field string) *Error {
	return &Error{Code: e.Code, Field: field, msg: e.msg}
}

var (
	ErrInvalidAmount       = &Error{Code: CodeInvalidAmount, Field: "amount", msg: "amount must be a positive number of centavos"}
	ErrInsufficientBalance = &Error{Code: CodeInsufficientBalance, Field: "amount", msg: "amount exceeds available balance"}
	ErrNotFound            = &Error{Code: CodeNotFound, msg: "not found"}
	ErrInvalidRequest      = &Error{Code: CodeInvalidRequest, msg: "missing required field"}
	ErrBusy                = &Error{Code: CodeBusy, msg: "account is locked by a concurrent operation"}
)

// Retryable reports whether the error is transient contention rather
// than a terminal business failure.
func Retryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeBusy
}
