package order

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for order operations.
var (
	ErrEmptyLines     = errors.New("order must contain at least one item")
	ErrUserRequired   = errors.New("user id is required")
	ErrNotFound       = errors.New("order not found")
	ErrAlreadyExists  = errors.New("order document already exists")
	ErrNotCancellable = errors.New("only received orders can be cancelled")
	ErrForbidden      = errors.New("order belongs to another user")
	ErrTerminalStatus = errors.New("order is already picked")
	ErrRepairNotFound = errors.New("repair not found")
)

// InvalidStatusError indicates a status value outside the enum.
type InvalidStatusError struct {
	Value string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid status %q: valid statuses are Received, Prepared, Picked", e.Value)
}

// InvalidLineError indicates a line with a non-positive quantity or a
// negative price.
type InvalidLineError struct {
	ItemID string
	Reason string
}

func (e *InvalidLineError) Error() string {
	return fmt.Sprintf("item %s: %s", e.ItemID, e.Reason)
}

// TotalMismatchError indicates a supplied total that differs from the sum of
// the line totals.
type TotalMismatchError struct {
	Supplied decimal.Decimal
	Computed decimal.Decimal
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("total amount %s does not match line total %s", e.Supplied, e.Computed)
}
