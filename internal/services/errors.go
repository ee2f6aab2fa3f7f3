package services

import (
	"errors"
	"fmt"
	"strings"

	domain "github.com/petcorner/storefront/internal/domain"
)

var (
	// ErrInvalidPrice signals a negative unit price or tax rate.
	ErrInvalidPrice = errors.New("pricing: invalid price")
	// ErrInvalidQuantity signals a quantity below one.
	ErrInvalidQuantity = errors.New("pricing: invalid quantity")
	// ErrGeolocationUnavailable indicates one of the coordinate pairs is missing or unusable.
	ErrGeolocationUnavailable = errors.New("delivery: geolocation unavailable")
	// ErrEmptyCart is returned when checkout is attempted without products.
	ErrEmptyCart = errors.New("cart: empty")
	// ErrIncompleteCheckout indicates required checkout fields are missing.
	ErrIncompleteCheckout = errors.New("checkout: incomplete")
	// ErrIllegalTransition indicates the requested status change or action is not allowed.
	ErrIllegalTransition = errors.New("order: illegal transition")
	// ErrNetwork wraps any order repository failure.
	ErrNetwork = errors.New("order: repository unavailable")
	// ErrInvalidInput signals the caller omitted an identifier or supplied an unusable value.
	ErrInvalidInput = errors.New("order: invalid input")
	// ErrNotFound indicates a single order (or product) lookup returned nothing.
	ErrNotFound = errors.New("order: not found")
)

// IncompleteCheckoutError lists the checkout fields that were missing.
type IncompleteCheckoutError struct {
	Missing []string
}

func (e *IncompleteCheckoutError) Error() string {
	return fmt.Sprintf("%s: missing %s", ErrIncompleteCheckout, strings.Join(e.Missing, ", "))
}

func (e *IncompleteCheckoutError) Unwrap() error { return ErrIncompleteCheckout }

// IllegalTransitionError names the current and requested states of a rejected transition.
type IllegalTransitionError struct {
	Current   domain.OrderStatus
	Requested domain.OrderStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrIllegalTransition, e.Current, e.Requested)
}

func (e *IllegalTransitionError) Unwrap() error { return ErrIllegalTransition }

// ActionNotPermittedError is returned when a customer action is not exposed for the order status.
type ActionNotPermittedError struct {
	Status domain.OrderStatus
	Action CustomerAction
}

func (e *ActionNotPermittedError) Error() string {
	return fmt.Sprintf("%s: action %q not permitted while %s", ErrIllegalTransition, e.Action, e.Status)
}

func (e *ActionNotPermittedError) Unwrap() error { return ErrIllegalTransition }

// StaleStatusError is returned when a status change names a current status the order no longer has.
type StaleStatusError struct {
	Expected domain.OrderStatus
	Actual   domain.OrderStatus
}

func (e *StaleStatusError) Error() string {
	return fmt.Sprintf("%s: order is %s, not %s", ErrIllegalTransition, e.Actual, e.Expected)
}

func (e *StaleStatusError) Unwrap() error { return ErrIllegalTransition }

// NetworkError wraps a failed repository call.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrNetwork, e.Op, e.Err)
}

func (e *NetworkError) Unwrap() []error { return []error{ErrNetwork, e.Err} }

// UserMessage converts any error surfaced by the order core into a single human-readable message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var incomplete *IncompleteCheckoutError
	switch {
	case errors.As(err, &incomplete):
		return "Please complete the following fields: " + strings.Join(incomplete.Missing, ", ") + "."
	case errors.Is(err, ErrEmptyCart):
		return "Your cart is empty."
	case errors.Is(err, ErrInvalidQuantity):
		return "One of the cart quantities is invalid."
	case errors.Is(err, ErrInvalidPrice):
		return "One of the products has an invalid price."
	case errors.Is(err, ErrIllegalTransition):
		return "This action is not available for the order in its current state."
	case errors.Is(err, ErrNotFound):
		return "The order could not be found."
	case errors.Is(err, ErrGeolocationUnavailable):
		return "Your location is unavailable; delivery cost will be estimated later."
	case errors.Is(err, ErrInvalidInput):
		return "The request is missing required information."
	case errors.Is(err, ErrNetwork):
		return "The order service is unreachable. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
