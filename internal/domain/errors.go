/**
 * @description
 * Sentinel errors shared across the service. Callers wrap these with
 * fmt.Errorf("...: %w", err) and the API layer maps them to HTTP status
 * codes with errors.Is. None of them are retried automatically.
 */
package domain

import "errors"

var (
	// ErrValidation marks rejected input; no partial mutation happened.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an absent listing or user.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds marks a wallet debit rejected before any charge.
	ErrInsufficientFunds = errors.New("insufficient balance")

	// ErrStateConflict marks a mutation against a soft-deleted or
	// already-reverted record.
	ErrStateConflict = errors.New("state conflict")
)
