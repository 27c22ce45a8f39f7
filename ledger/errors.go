/*
errors.go - Centralized error taxonomy for the ledger core

PURPOSE:
  All error kinds in one place. Callers use errors.Is against the sentinels
  and errors.As against the structured types for details.

ERROR KINDS:
  ValidationError     malformed/out-of-range write input, raised before any I/O
  NotFoundError       dangling link, profile, local customer or movement
  Duplicate           registered user already linked, or adding yourself
  PartialWriteError   commission insert failed after the primary was written
  TransientError      storage unavailable during a fetch; retry is safe
  OutstandingBalance  delete requested while balances are non-zero (warning)
  ProfitLossProtected reset/delete attempted on the profit-and-loss customer

PROPAGATION:
  The aggregation engine (balance.go) never returns errors. Only the resolver
  and the write paths raise these.

SEE ALSO:
  - api/handlers.go: maps kinds to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")

	// ErrDuplicateCustomer is returned when the owner already linked this
	// registered user. The UI shows "already in your list".
	ErrDuplicateCustomer = errors.New("customer already in list")

	// ErrCannotAddSelf is returned when the owner tries to add their own profile.
	ErrCannotAddSelf = errors.New("cannot add yourself as a customer")

	ErrPartialWrite = errors.New("partial write")
	ErrTransient    = errors.New("storage temporarily unavailable")

	ErrOutstandingBalance  = errors.New("customer has outstanding balance")
	ErrProfitLossProtected = errors.New("profit and loss account cannot be reset or deleted")

	ErrUsernameTaken = errors.New("username already taken")

	// ErrCommissionReadOnly is returned when editing a derived commission movement.
	ErrCommissionReadOnly = errors.New("commission movements are edited through their primary movement")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type NotFoundError struct {
	Resource string // "customer", "profile", "local_customer", "movement"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// PartialWriteError reports that the primary movement was written but its
// commission counterpart was not. RolledBack tells whether the primary was
// removed again (transaction rollback or compensating delete).
type PartialWriteError struct {
	PrimaryID  MovementID
	RolledBack bool
	Err        error
}

func (e *PartialWriteError) Error() string {
	state := "primary left without its commission pair"
	if e.RolledBack {
		state = "primary rolled back"
	}
	return fmt.Sprintf("commission insert failed for movement %s (%s): %v", e.PrimaryID, state, e.Err)
}

func (e *PartialWriteError) Unwrap() []error { return []error{ErrPartialWrite, e.Err} }

type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *TransientError) Unwrap() []error { return []error{ErrTransient, e.Err} }

// OutstandingBalanceError lists the non-zero balances that a delete would discard.
type OutstandingBalanceError struct {
	CustomerLinkID LinkID
	Balances       []Balance
}

func (e *OutstandingBalanceError) Error() string {
	parts := make([]string, 0, len(e.Balances))
	for _, b := range e.Balances {
		parts = append(parts, b.Value.StringFixed(2)+" "+string(b.Currency))
	}
	return fmt.Sprintf("customer %s has outstanding balance: %s", e.CustomerLinkID, strings.Join(parts, ", "))
}

func (e *OutstandingBalanceError) Unwrap() error { return ErrOutstandingBalance }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicateCustomer) ||
		errors.Is(err, ErrCannotAddSelf) ||
		errors.Is(err, ErrUsernameTaken) ||
		errors.Is(err, ErrOutstandingBalance) ||
		errors.Is(err, ErrProfitLossProtected) ||
		errors.Is(err, ErrCommissionReadOnly)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// transient wraps a store failure on the read path unless it is already a
// domain error.
func transient(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) || IsClientError(err) || errors.Is(err, ErrTransient) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}
