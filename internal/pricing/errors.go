package pricing

import (
	"errors"
	"fmt"

	"github.com/noah-isme/backend-invoice/internal/money"
)

var (
	// ErrInvalidLineItem matches every InvalidLineItemError.
	ErrInvalidLineItem = errors.New("invalid line item")
	// ErrInvalidCharge matches every InvalidChargeError.
	ErrInvalidCharge = errors.New("invalid charge")
	// ErrNegativeNetTotal is returned when the discount exceeds the grand total.
	ErrNegativeNetTotal = errors.New("net total is negative")
)

// InvalidLineItemError reports a rejected item by its zero-based position.
type InvalidLineItemError struct {
	Index  int
	Field  string
	Reason string
}

func (e *InvalidLineItemError) Error() string {
	return fmt.Sprintf("items[%d].%s: %s", e.Index, e.Field, e.Reason)
}

func (e *InvalidLineItemError) Is(target error) bool { return target == ErrInvalidLineItem }

// InvalidChargeError reports a rejected service charge or VAT specification.
type InvalidChargeError struct {
	Charge string
	Reason string
}

func (e *InvalidChargeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Charge, e.Reason)
}

func (e *InvalidChargeError) Is(target error) bool { return target == ErrInvalidCharge }

// NegativeNetTotalError carries the figures that produced a negative net total.
type NegativeNetTotalError struct {
	GrandTotal money.Decimal
	Discount   money.Decimal
}

func (e *NegativeNetTotalError) Error() string {
	return fmt.Sprintf("special discount %s exceeds grand total %s", e.Discount.StringFixed(), e.GrandTotal.StringFixed())
}

func (e *NegativeNetTotalError) Is(target error) bool { return target == ErrNegativeNetTotal }
