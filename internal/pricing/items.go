package pricing

import (
	"errors"
	"strings"

	"github.com/noah-isme/backend-invoice/internal/money"
)

// Unit is the measurement a line item is sold in.
type Unit string

const (
	UnitCubicFeet  Unit = "CFT"
	UnitPieces     Unit = "PCS"
	UnitSquareFeet Unit = "SFT"
	UnitKilogram   Unit = "KG"
	UnitLitre      Unit = "LTR"
	UnitMetre      Unit = "M"
	UnitCentimetre Unit = "CM"
	UnitMillimetre Unit = "MM"
)

// DefaultUnit applies when an item does not name one.
const DefaultUnit = UnitPieces

var knownUnits = map[Unit]struct{}{
	UnitCubicFeet: {}, UnitPieces: {}, UnitSquareFeet: {}, UnitKilogram: {},
	UnitLitre: {}, UnitMetre: {}, UnitCentimetre: {}, UnitMillimetre: {},
}

// ParseUnit normalises case and applies the default for empty input.
func ParseUnit(raw string) (Unit, bool) {
	u := Unit(strings.ToUpper(strings.TrimSpace(raw)))
	if u == "" {
		return DefaultUnit, true
	}
	_, ok := knownUnits[u]
	return u, ok
}

// Item is a raw line item as received from a caller.
type Item struct {
	SrNo        int
	ProductName string
	Unit        Unit
	Quantity    money.Decimal
	UnitPrice   money.Decimal
}

// Line is a normalised item carrying its derived total.
type Line struct {
	SrNo        int
	ProductName string
	Unit        Unit
	Quantity    money.Decimal
	UnitPrice   money.Decimal
	Total       money.Decimal
}

// CheckItem returns every violation for a single item at index.
func CheckItem(index int, it Item) []error {
	var errs []error
	if strings.TrimSpace(it.ProductName) == "" {
		errs = append(errs, &InvalidLineItemError{Index: index, Field: "productName", Reason: "product name is required"})
	}
	if !it.Quantity.IsPositive() {
		errs = append(errs, &InvalidLineItemError{Index: index, Field: "quantity", Reason: "quantity must be greater than 0"})
	}
	if it.UnitPrice.IsNegative() {
		errs = append(errs, &InvalidLineItemError{Index: index, Field: "price", Reason: "price cannot be negative"})
	}
	return errs
}

// NormalizeItems validates each item and computes round(quantity x price).
// Order and serial numbers are preserved. All violations are reported; the
// joined error unwraps to the individual InvalidLineItemError values.
func NormalizeItems(items []Item) ([]Line, error) {
	var errs []error
	lines := make([]Line, 0, len(items))
	for i, it := range items {
		if itemErrs := CheckItem(i, it); len(itemErrs) > 0 {
			errs = append(errs, itemErrs...)
			continue
		}
		unit := it.Unit
		if unit == "" {
			unit = DefaultUnit
		}
		lines = append(lines, Line{
			SrNo:        it.SrNo,
			ProductName: strings.TrimSpace(it.ProductName),
			Unit:        unit,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Total:       it.Quantity.Mul(it.UnitPrice).Round(),
		})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return lines, nil
}

// Subtotal sums the line totals.
func Subtotal(lines []Line) money.Decimal {
	total := money.Zero
	for _, l := range lines {
		total = total.Add(l.Total)
	}
	return total
}
