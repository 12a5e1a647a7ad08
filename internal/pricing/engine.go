package pricing

import (
	"github.com/noah-isme/backend-invoice/internal/money"
)

// Input groups everything the totals depend on.
type Input struct {
	Items           []Item
	ServiceCharge   ChargeSpec
	VAT             ChargeSpec
	SpecialDiscount money.Decimal
}

// Summary aggregates computed pricing components.
type Summary struct {
	Lines           []Line
	Subtotal        money.Decimal
	ServiceCharge   Charge
	VAT             Charge
	SpecialDiscount money.Decimal
	GrandTotal      money.Decimal
	NetTotal        money.Decimal
}

// Compute derives every invoice total from in. Steps run in a fixed order:
// line totals, subtotal, service charge, VAT, grand total, net total. Both
// charges use the subtotal as their base. Compute has no side effects.
func Compute(in Input) (Summary, error) {
	if err := in.SpecialDiscount.RequireNonNegative("specialDiscount"); err != nil {
		return Summary{}, err
	}
	lines, err := NormalizeItems(in.Items)
	if err != nil {
		return Summary{}, err
	}
	subtotal := Subtotal(lines)

	service, err := ResolveCharge("serviceCharge", in.ServiceCharge, subtotal)
	if err != nil {
		return Summary{}, err
	}
	vat, err := ResolveCharge("vat", in.VAT, subtotal)
	if err != nil {
		return Summary{}, err
	}

	discount := in.SpecialDiscount.Round()
	grand := subtotal.Add(service.Amount).Add(vat.Amount)
	net := grand.Sub(discount)
	if net.IsNegative() {
		return Summary{}, &NegativeNetTotalError{GrandTotal: grand, Discount: discount}
	}

	return Summary{
		Lines:           lines,
		Subtotal:        subtotal,
		ServiceCharge:   service,
		VAT:             vat,
		SpecialDiscount: discount,
		GrandTotal:      grand,
		NetTotal:        net,
	}, nil
}

// Input rebuilds the pipeline input from a computed summary. Feeding it back
// into Compute yields an identical Summary.
func (s Summary) Input() Input {
	items := make([]Item, len(s.Lines))
	for i, l := range s.Lines {
		items[i] = Item{SrNo: l.SrNo, ProductName: l.ProductName, Unit: l.Unit, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	return Input{
		Items:           items,
		ServiceCharge:   ChargeSpec{Kind: s.ServiceCharge.Kind, Value: s.ServiceCharge.Value},
		VAT:             ChargeSpec{Kind: s.VAT.Kind, Value: s.VAT.Value},
		SpecialDiscount: s.SpecialDiscount,
	}
}
