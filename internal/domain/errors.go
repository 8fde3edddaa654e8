package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies ledger failures so callers can map them to responses
type ErrorKind string

const (
	KindInsufficientFunds      ErrorKind = "INSUFFICIENT_FUNDS"
	KindInvalidStateTransition ErrorKind = "INVALID_STATE_TRANSITION"
	KindValidation             ErrorKind = "VALIDATION_ERROR"
	KindNotFound               ErrorKind = "NOT_FOUND"
	KindReplicationFailure     ErrorKind = "REPLICATION_FAILURE"
	KindConcurrencyConflict    ErrorKind = "CONCURRENCY_CONFLICT"
)

// LedgerError is the typed error returned by every ledger operation
type LedgerError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *LedgerError) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// Is matches on Kind. A target carrying a Reason must match it as well.
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// Sentinels for errors.Is checks
var (
	ErrInsufficientFunds      = &LedgerError{Kind: KindInsufficientFunds}
	ErrInvalidStateTransition = &LedgerError{Kind: KindInvalidStateTransition}
	ErrValidation             = &LedgerError{Kind: KindValidation}
	ErrNotFound               = &LedgerError{Kind: KindNotFound}
	ErrReplicationFailure     = &LedgerError{Kind: KindReplicationFailure}
	ErrConcurrencyConflict    = &LedgerError{Kind: KindConcurrencyConflict}

	// ErrActiveInvestment blocks withdrawals while the user still holds an active investment
	ErrActiveInvestment = &LedgerError{Kind: KindValidation, Reason: "active investment in progress"}
)

// ErrForbidden is returned when the acting user lacks the capability for an admin operation
var ErrForbidden = errors.New("insufficient privileges")

// NewValidationError creates a ValidationError with the given reason
func NewValidationError(format string, args ...interface{}) error {
	return &LedgerError{Kind: KindValidation, Reason: fmt.Sprintf(format, args...)}
}

// NewNotFoundError reports an unknown entity
func NewNotFoundError(entity string, id interface{}) error {
	return &LedgerError{Kind: KindNotFound, Reason: fmt.Sprintf("%s %v not found", entity, id)}
}

// NewTransitionError reports a rejected state change
func NewTransitionError(entity string, from, to interface{}) error {
	return &LedgerError{
		Kind:   KindInvalidStateTransition,
		Reason: fmt.Sprintf("%s cannot move from %v to %v", entity, from, to),
	}
}

// NewInsufficientFundsError reports a debit larger than the available balance
func NewInsufficientFundsError(requested, available fmt.Stringer) error {
	return &LedgerError{
		Kind:   KindInsufficientFunds,
		Reason: fmt.Sprintf("insufficient balance: requested %s, available %s", requested, available),
	}
}

// NewReplicationError wraps a backup target failure
func NewReplicationError(op string, err error) error {
	return &LedgerError{Kind: KindReplicationFailure, Reason: op, Err: err}
}

// NewConflictError wraps a serialization failure from the store
func NewConflictError(err error) error {
	return &LedgerError{Kind: KindConcurrencyConflict, Reason: "concurrent update, retry", Err: err}
}

// KindOf returns the LedgerError kind carried by err, or "" for foreign errors
func KindOf(err error) ErrorKind {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// ReasonOf returns the user-facing reason carried by err
func ReasonOf(err error) string {
	var le *LedgerError
	if errors.As(err, &le) && le.Reason != "" {
		return le.Reason
	}
	return err.Error()
}
