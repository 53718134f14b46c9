package model

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad user input: non-positive amounts, a missing
	// ticker, or a command used outside its required context.
	ErrValidation = errors.New("model: validation failed")

	// ErrNoPosition is returned when selling a ticker the guild does not hold.
	ErrNoPosition = errors.New("model: no position")

	// ErrInsufficientQuantity is returned when a sell exceeds the held quantity.
	ErrInsufficientQuantity = errors.New("model: insufficient quantity")

	// ErrQuoteUnavailable covers provider failures, timeouts and empty results.
	ErrQuoteUnavailable = errors.New("model: quote unavailable")

	// ErrStorage wraps transaction and connection failures.
	ErrStorage = errors.New("model: storage failure")

	// ErrDelivery wraps failures to send a reply or notification.
	ErrDelivery = errors.New("model: delivery failed")
)

// ValidationError carries a message that is shown to the requester as-is.
type ValidationError struct {
	Msg string
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Msg: msg}
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InsufficientQuantityError reports how much was held when a sell was rejected.
type InsufficientQuantityError struct {
	Ticker    string
	Held      int64
	Requested int64
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("cannot sell %d of %s: only %d held", e.Requested, e.Ticker, e.Held)
}

func (e *InsufficientQuantityError) Is(target error) bool { return target == ErrInsufficientQuantity }
