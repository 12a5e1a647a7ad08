package money

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of minor-unit digits kept after rounding.
const Places = 2

var hundred = decimal.NewFromInt(100)

// ErrInvalidAmount is returned when a value is negative where a non-negative
// amount is required, or when it cannot be represented as a finite decimal.
var ErrInvalidAmount = errors.New("invalid amount")

// InvalidAmountError carries the offending field and value.
type InvalidAmountError struct {
	Field string
	Value string
}

func (e *InvalidAmountError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid amount %s", e.Value)
	}
	return fmt.Sprintf("%s: invalid amount %s", e.Field, e.Value)
}

// Is makes errors.Is(err, ErrInvalidAmount) hold for every InvalidAmountError.
func (e *InvalidAmountError) Is(target error) bool { return target == ErrInvalidAmount }

// Decimal is an arbitrary precision decimal used for quantities, prices and
// every derived monetary value. The zero value is 0.
type Decimal struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Decimal{}

// FromInt converts an integer.
func FromInt(v int64) Decimal { return Decimal{d: decimal.NewFromInt(v)} }

// Bounds on parsed input. Exponent notation is accepted, but the value it
// denotes must fit these digit counts once trailing zeros are dropped.
const (
	MaxIntegerDigits  = 15
	MaxFractionDigits = 6

	maxInputLen = 64
)

// Parse reads a decimal from its textual form. NaN, infinities and values
// outside MaxIntegerDigits/MaxFractionDigits are rejected.
func Parse(s string) (Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Zero, &InvalidAmountError{Value: `""`}
	}
	if len(trimmed) > maxInputLen {
		return Zero, &InvalidAmountError{Value: trimmed[:maxInputLen] + "..."}
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Zero, &InvalidAmountError{Value: trimmed}
	}
	if !withinBounds(d) {
		return Zero, &InvalidAmountError{Value: trimmed}
	}
	return Decimal{d: d}, nil
}

// withinBounds reports whether d has at most MaxIntegerDigits before the point
// and MaxFractionDigits after it. Only the exponent and the short coefficient
// are inspected, so huge exponents never get expanded.
func withinBounds(d decimal.Decimal) bool {
	coef := d.Coefficient()
	if coef.Sign() == 0 {
		return true
	}
	digits := strings.TrimLeft(coef.String(), "-")
	exp := int64(d.Exponent())
	for exp < 0 && strings.HasSuffix(digits, "0") {
		digits = digits[:len(digits)-1]
		exp++
	}
	if exp < -MaxFractionDigits {
		return false
	}
	return int64(len(digits))+exp <= MaxIntegerDigits
}

// MustParse is Parse that panics; intended for constants and tests.
func MustParse(s string) Decimal {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (x Decimal) Add(y Decimal) Decimal { return Decimal{d: x.d.Add(y.d)} }
func (x Decimal) Sub(y Decimal) Decimal { return Decimal{d: x.d.Sub(y.d)} }
func (x Decimal) Mul(y Decimal) Decimal { return Decimal{d: x.d.Mul(y.d)} }

// Div divides x by y keeping 16 fractional digits. Division by zero is an
// InvalidAmountError.
func (x Decimal) Div(y Decimal) (Decimal, error) {
	if y.d.IsZero() {
		return Zero, &InvalidAmountError{Field: "divisor", Value: "0"}
	}
	return Decimal{d: x.d.DivRound(y.d, 16)}, nil
}

// Percent returns x * p / 100 without rounding.
func (x Decimal) Percent(p Decimal) Decimal {
	return Decimal{d: x.d.Mul(p.d).Div(hundred)}
}

// Round rounds half away from zero to two places. For the non-negative values
// handled here this is round-half-up.
func (x Decimal) Round() Decimal { return Decimal{d: x.d.Round(Places)} }

func (x Decimal) Cmp(y Decimal) int { return x.d.Cmp(y.d) }
func (x Decimal) Equal(y Decimal) bool { return x.d.Equal(y.d) }
func (x Decimal) IsNegative() bool { return x.d.IsNegative() }
func (x Decimal) IsPositive() bool { return x.d.IsPositive() }
func (x Decimal) IsZero() bool { return x.d.IsZero() }
func (x Decimal) Decimal() decimal.Decimal { return x.d }

// String renders the exact value without trailing zero padding.
func (x Decimal) String() string { return x.d.String() }

// StringFixed renders the value with exactly two decimals, as printed on invoices.
func (x Decimal) StringFixed() string { return x.d.StringFixed(Places) }

// RequireNonNegative returns an InvalidAmountError naming field when x < 0.
func (x Decimal) RequireNonNegative(field string) error {
	if x.IsNegative() {
		return &InvalidAmountError{Field: field, Value: x.String()}
	}
	return nil
}

// Sum adds all values.
func Sum(values ...Decimal) Decimal {
	total := Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// MarshalJSON emits a bare JSON number so clients never see quoted amounts.
func (x Decimal) MarshalJSON() ([]byte, error) {
	return []byte(x.d.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and numeric strings.
func (x *Decimal) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*x = Zero
		return nil
	}
	text := strings.Trim(string(trimmed), `"`)
	v, err := Parse(text)
	if err != nil {
		return err
	}
	*x = v
	return nil
}
