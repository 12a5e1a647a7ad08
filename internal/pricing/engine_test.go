package pricing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-invoice/internal/money"
)

func d(s string) money.Decimal { return money.MustParse(s) }

func sampleItems() []Item {
	return []Item{
		{SrNo: 1, ProductName: "Widget", Quantity: d("2"), UnitPrice: d("100")},
		{SrNo: 2, ProductName: "Gadget", Quantity: d("1"), UnitPrice: d("50")},
	}
}

func requireAmount(t *testing.T, want string, got money.Decimal) {
	t.Helper()
	require.Truef(t, got.Equal(d(want)), "want %s got %s", want, got)
}

func TestComputeFixedServicePercentageVAT(t *testing.T) {
	sum, err := Compute(Input{
		Items:         sampleItems(),
		ServiceCharge: ChargeSpec{Kind: ChargeFixed, Value: d("0")},
		VAT:           ChargeSpec{Kind: ChargePercentage, Value: d("15")},
	})
	require.NoError(t, err)
	requireAmount(t, "250", sum.Subtotal)
	requireAmount(t, "0", sum.ServiceCharge.Amount)
	requireAmount(t, "37.5", sum.VAT.Amount)
	requireAmount(t, "287.5", sum.GrandTotal)
	requireAmount(t, "287.5", sum.NetTotal)
}

func TestComputePercentageServiceFixedVATWithDiscount(t *testing.T) {
	sum, err := Compute(Input{
		Items:           sampleItems(),
		ServiceCharge:   ChargeSpec{Kind: ChargePercentage, Value: d("10")},
		VAT:             ChargeSpec{Kind: ChargeFixed, Value: d("20")},
		SpecialDiscount: d("10"),
	})
	require.NoError(t, err)
	requireAmount(t, "250", sum.Subtotal)
	requireAmount(t, "25", sum.ServiceCharge.Amount)
	requireAmount(t, "20", sum.VAT.Amount)
	requireAmount(t, "295", sum.GrandTotal)
	requireAmount(t, "285", sum.NetTotal)
}

func TestVATUsesSubtotalNotServiceInclusiveBase(t *testing.T) {
	sum, err := Compute(Input{
		Items:         sampleItems(),
		ServiceCharge: ChargeSpec{Kind: ChargePercentage, Value: d("10")},
		VAT:           ChargeSpec{Kind: ChargePercentage, Value: d("10")},
	})
	require.NoError(t, err)
	requireAmount(t, "25", sum.VAT.Amount)
	requireAmount(t, "300", sum.GrandTotal)
}

func TestLineTotalsAreRounded(t *testing.T) {
	lines, err := NormalizeItems([]Item{
		{SrNo: 7, ProductName: "Tile", Unit: UnitSquareFeet, Quantity: d("3"), UnitPrice: d("0.335")},
		{SrNo: 3, ProductName: "Sand", Quantity: d("1.5"), UnitPrice: d("3.33")},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	requireAmount(t, "1.01", lines[0].Total)
	requireAmount(t, "5", lines[1].Total)
	require.Equal(t, 7, lines[0].SrNo)
	require.Equal(t, 3, lines[1].SrNo)
	require.Equal(t, DefaultUnit, lines[1].Unit)
	requireAmount(t, "6.01", Subtotal(lines))
}

func TestZeroQuantityReportsIndex(t *testing.T) {
	items := sampleItems()
	items[1].Quantity = d("0")
	_, err := Compute(Input{Items: items})
	require.ErrorIs(t, err, ErrInvalidLineItem)

	var itemErr *InvalidLineItemError
	require.True(t, errors.As(err, &itemErr))
	require.Equal(t, 1, itemErr.Index)
	require.Equal(t, "quantity", itemErr.Field)
}

func TestNormalizeCollectsEveryViolation(t *testing.T) {
	_, err := NormalizeItems([]Item{
		{ProductName: " ", Quantity: d("1"), UnitPrice: d("1")},
		{ProductName: "ok", Quantity: d("-1"), UnitPrice: d("-2")},
	})
	require.Error(t, err)
	joined, ok := err.(interface{ Unwrap() []error })
	require.True(t, ok)
	require.Len(t, joined.Unwrap(), 3)
}

func TestPercentageOfZeroSubtotalIsZero(t *testing.T) {
	charge, err := ResolveCharge("vat", ChargeSpec{Kind: ChargePercentage, Value: d("15")}, money.Zero)
	require.NoError(t, err)
	require.True(t, charge.Amount.IsZero())

	sum, err := Compute(Input{VAT: ChargeSpec{Kind: ChargePercentage, Value: d("15")}})
	require.NoError(t, err)
	require.True(t, sum.NetTotal.IsZero())
}

func TestResolveChargeRejectsNegativeAndUnknownKinds(t *testing.T) {
	_, err := ResolveCharge("serviceCharge", ChargeSpec{Kind: ChargeFixed, Value: d("-1")}, d("10"))
	require.ErrorIs(t, err, ErrInvalidCharge)

	_, err = ResolveCharge("vat", ChargeSpec{Kind: "compound", Value: d("1")}, d("10"))
	require.ErrorIs(t, err, ErrInvalidCharge)

	charge, err := ResolveCharge("vat", ChargeSpec{Value: d("12.345")}, d("10"))
	require.NoError(t, err)
	require.Equal(t, ChargeFixed, charge.Kind)
	requireAmount(t, "12.35", charge.Amount)
}

func TestDiscountAboveGrandTotalIsRejected(t *testing.T) {
	_, err := Compute(Input{Items: sampleItems(), SpecialDiscount: d("250.01")})
	require.ErrorIs(t, err, ErrNegativeNetTotal)

	sum, err := Compute(Input{Items: sampleItems(), SpecialDiscount: d("250")})
	require.NoError(t, err)
	require.True(t, sum.NetTotal.IsZero())

	_, err = Compute(Input{Items: sampleItems(), SpecialDiscount: d("-5")})
	require.ErrorIs(t, err, money.ErrInvalidAmount)
}

func TestComputeIsIdempotent(t *testing.T) {
	first, err := Compute(Input{
		Items: []Item{
			{SrNo: 1, ProductName: "A", Quantity: d("0.333"), UnitPrice: d("19.99")},
			{SrNo: 2, ProductName: "B", Quantity: d("7"), UnitPrice: d("1.115")},
		},
		ServiceCharge:   ChargeSpec{Kind: ChargePercentage, Value: d("12.5")},
		VAT:             ChargeSpec{Kind: ChargePercentage, Value: d("7.25")},
		SpecialDiscount: d("1.005"),
	})
	require.NoError(t, err)

	second, err := Compute(first.Input())
	require.NoError(t, err)
	require.True(t, first.Subtotal.Equal(second.Subtotal))
	require.True(t, first.GrandTotal.Equal(second.GrandTotal))
	require.True(t, first.NetTotal.Equal(second.NetTotal))
	require.Equal(t, first.GrandTotal.String(), second.GrandTotal.String())
}
