// Package apperr defines the typed failures returned by the ledger and reminder services.
// Every error carries a message that can be shown to the user as is.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation          Kind = "validation"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindAlreadySettled      Kind = "already_settled"
	KindNothingToForgive    Kind = "nothing_to_forgive"
	KindHasRepaymentHistory Kind = "has_repayment_history"
	KindOverRepayment       Kind = "over_repayment"
	KindNotFound            Kind = "not_found"
	KindDependencyFailure   Kind = "dependency_failure"
	KindInvalidTransition   Kind = "invalid_transition"
	KindNotYetPayable       Kind = "not_yet_payable"
	KindConflict            Kind = "conflict"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
	ErrAlreadySettled      = &Error{Kind: KindAlreadySettled}
	ErrNothingToForgive    = &Error{Kind: KindNothingToForgive}
	ErrHasRepaymentHistory = &Error{Kind: KindHasRepaymentHistory}
	ErrOverRepayment       = &Error{Kind: KindOverRepayment}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrDependencyFailure   = &Error{Kind: KindDependencyFailure}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition}
	ErrNotYetPayable       = &Error{Kind: KindNotYetPayable}
	ErrConflict            = &Error{Kind: KindConflict}
)

// Error is a failure of a known kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func NotFound(entity string, id any) *Error {
	return New(KindNotFound, "%s %v not found", entity, id)
}

// Dependency wraps a failure reported by a store. Errors that already carry a kind
// pass through unchanged so a NotFound from the store stays a NotFound.
func Dependency(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return &Error{Kind: KindDependencyFailure, Message: op, Err: err}
}

// KindOf returns the kind of err, or KindDependencyFailure for untyped errors.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindDependencyFailure
}

// Message returns the user-facing text of err.
func Message(err error) string {
	var typed *Error
	if errors.As(err, &typed) && typed.Message != "" {
		return typed.Message
	}
	return err.Error()
}
