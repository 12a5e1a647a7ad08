package pricing

import (
	"strings"

	"github.com/noah-isme/backend-invoice/internal/money"
)

// ChargeKind selects how a charge value is interpreted.
type ChargeKind string

const (
	ChargePercentage ChargeKind = "percentage"
	ChargeFixed      ChargeKind = "fixed"
)

// ParseChargeKind defaults to fixed when raw is empty.
func ParseChargeKind(raw string) (ChargeKind, bool) {
	switch ChargeKind(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ChargeFixed:
		return ChargeFixed, true
	case ChargePercentage:
		return ChargePercentage, true
	default:
		return ChargeKind(raw), false
	}
}

// ChargeSpec configures a service charge or VAT.
type ChargeSpec struct {
	Kind  ChargeKind
	Value money.Decimal
}

// Charge is a resolved ChargeSpec.
type Charge struct {
	Kind   ChargeKind
	Value  money.Decimal
	Amount money.Decimal
}

// ResolveCharge applies spec to base. Percentage charges are base*value/100,
// fixed charges are the value itself; both are rounded to minor units.
func ResolveCharge(name string, spec ChargeSpec, base money.Decimal) (Charge, error) {
	if spec.Value.IsNegative() {
		return Charge{}, &InvalidChargeError{Charge: name, Reason: "value cannot be negative"}
	}
	kind := spec.Kind
	if kind == "" {
		kind = ChargeFixed
	}
	var amount money.Decimal
	switch kind {
	case ChargePercentage:
		amount = base.Percent(spec.Value).Round()
	case ChargeFixed:
		amount = spec.Value.Round()
	default:
		return Charge{}, &InvalidChargeError{Charge: name, Reason: "type must be percentage or fixed"}
	}
	return Charge{Kind: kind, Value: spec.Value, Amount: amount}, nil
}
