// Package common defines shared constants and sentinel errors used across
// the EduChain server layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorValidation   = errors.New("validation error")

	// Minting errors.
	ErrAlreadyMinted   = errors.New("certificate already minted")
	ErrMintInProgress  = errors.New("certificate mint in progress")
	ErrNoFunding       = errors.New("no funding available")
	ErrTxNotConfirmed  = errors.New("transaction not confirmed")
	ErrTxExecutionFail = errors.New("transaction execution failed")

	// Token errors.
	ErrInvalidToken = errors.New("invalid token")
)

// ValidationError carries a user-facing message for a rejected input.
// It matches ErrorValidation via errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrorValidation }

// NewValidationError is a shorthand for &ValidationError{Field: field, Message: msg}.
func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
