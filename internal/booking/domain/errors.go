package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the booking error taxonomy. Handlers map these to
// HTTP statuses; repositories and services wrap them with %w.
var (
	// ErrNotFound indicates a missing booking, provider, service or promo code.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates the requested status change is not in the
	// transition table for the booking's current state.
	ErrInvalidTransition = errors.New("invalid booking state transition")
	// ErrNotAllowed indicates the actor may not perform the operation
	// (wrong provider, wrong customer, wrong role).
	ErrNotAllowed = errors.New("actor not allowed")
	// ErrProviderUnavailable indicates the provider claim lost the race or the
	// provider is no longer eligible.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrPromoExhausted indicates the promo code is no longer redeemable.
	ErrPromoExhausted = errors.New("promo code exhausted or inactive")
	// ErrBookingNotCompleted indicates a review on a booking that has not completed.
	ErrBookingNotCompleted = errors.New("booking not completed")
)

// ValidationError carries field-level detail for malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for a field.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsConflict reports whether err is a retry-with-different-parameters conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrPromoExhausted)
}
