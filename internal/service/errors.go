package service

import (
	"fmt"

	"storefront/internal/models"

	"github.com/go-faster/errors"
)

// ValidationError is a user-correctable input problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ErrEmptyCart is returned when an order is placed from a cart without lines.
var ErrEmptyCart = &ValidationError{Field: "cart", Message: "cart is empty"}

// InsufficientStockError reports a reservation that could not be satisfied.
// Available is the quantity on hand when the reservation was refused.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// InvalidTransitionError is returned when an order cannot move to the
// requested status from its current one.
type InvalidTransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

// AuthorizationError is returned when the actor is neither the owner of the
// resource nor an admin.
type AuthorizationError struct {
	Action string
}

func (e *AuthorizationError) Error() string {
	return "not allowed to " + e.Action
}

// NotFoundError is returned for a missing order, product or cart line.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// TransactionFault wraps a store-level failure. Nothing was committed, so
// the operation can be retried as is.
type TransactionFault struct {
	Op  string
	Err error
}

func (e *TransactionFault) Error() string {
	return fmt.Sprintf("%s: transaction aborted: %v", e.Op, e.Err)
}

func (e *TransactionFault) Unwrap() error {
	return e.Err
}

func isDomainError(err error) bool {
	var (
		validation *ValidationError
		stock      *InsufficientStockError
		transition *InvalidTransitionError
		authz      *AuthorizationError
		notFound   *NotFoundError
		fault      *TransactionFault
	)
	return errors.As(err, &validation) ||
		errors.As(err, &stock) ||
		errors.As(err, &transition) ||
		errors.As(err, &authz) ||
		errors.As(err, &notFound) ||
		errors.As(err, &fault)
}

// classify passes domain errors through unchanged and turns anything else
// into a TransactionFault for op.
func classify(op string, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	return &TransactionFault{Op: op, Err: err}
}

// failureReason is the metric label for an aborted operation.
func failureReason(err error) string {
	var (
		validation *ValidationError
		stock      *InsufficientStockError
		transition *InvalidTransitionError
		authz      *AuthorizationError
		notFound   *NotFoundError
	)
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.As(err, &stock):
		return "insufficient_stock"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &transition):
		return "invalid_transition"
	case errors.As(err, &authz):
		return "forbidden"
	default:
		return "tx_fault"
	}
}
