package invoice

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/backend-invoice/internal/money"
	"github.com/noah-isme/backend-invoice/internal/pricing"
)

// PaymentStatus tracks whether an invoice has been settled.
type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusPaid    PaymentStatus = "paid"
	StatusOverdue PaymentStatus = "overdue"
)

// Valid reports whether s is one of the known statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusOverdue:
		return true
	}
	return false
}

// LineItem is a persisted invoice row. Total is always derived.
type LineItem struct {
	SrNo        int           `json:"srNo" bson:"srNo"`
	ProductName string        `json:"productName" bson:"productName"`
	Measurement pricing.Unit  `json:"measurement" bson:"measurement"`
	Quantity    money.Decimal `json:"quantity" bson:"quantity"`
	Price       money.Decimal `json:"price" bson:"price"`
	Total       money.Decimal `json:"total" bson:"total"`
}

// Charge is a resolved service charge or VAT.
type Charge struct {
	Type   pricing.ChargeKind `json:"type" bson:"type"`
	Value  money.Decimal      `json:"value" bson:"value"`
	Amount money.Decimal      `json:"amount" bson:"amount"`
}

// Invoice is the stored record. Every monetary field except the charge values,
// quantities and prices is produced by pricing.Compute.
type Invoice struct {
	ID              string        `json:"id" bson:"_id"`
	InvoiceNumber   string        `json:"invoiceNumber" bson:"invoiceNumber"`
	Date            time.Time     `json:"date" bson:"date"`
	DueDate         time.Time     `json:"dueDate" bson:"dueDate"`
	CustomerName    string        `json:"customerName" bson:"customerName"`
	CustomerEmail   string        `json:"customerEmail,omitempty" bson:"customerEmail,omitempty"`
	CustomerAddress string        `json:"customerAddress,omitempty" bson:"customerAddress,omitempty"`
	CustomerPhone   string        `json:"customerPhone,omitempty" bson:"customerPhone,omitempty"`
	PaymentStatus   PaymentStatus `json:"paymentStatus" bson:"paymentStatus"`
	Items           []LineItem    `json:"items" bson:"items"`
	Subtotal        money.Decimal `json:"subtotal" bson:"subtotal"`
	ServiceCharge   Charge        `json:"serviceCharge" bson:"serviceCharge"`
	VAT             Charge        `json:"vat" bson:"vat"`
	SpecialDiscount money.Decimal `json:"specialDiscount" bson:"specialDiscount"`
	GrandTotal      money.Decimal `json:"grandTotal" bson:"grandTotal"`
	NetTotal        money.Decimal `json:"netTotal" bson:"netTotal"`
	Notes           string        `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt       time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// PricingInput extracts the caller-authoritative fields that feed the totals.
func (inv Invoice) PricingInput() pricing.Input {
	items := make([]pricing.Item, len(inv.Items))
	for i, it := range inv.Items {
		items[i] = pricing.Item{
			SrNo:        it.SrNo,
			ProductName: it.ProductName,
			Unit:        it.Measurement,
			Quantity:    it.Quantity,
			UnitPrice:   it.Price,
		}
	}
	return pricing.Input{
		Items:           items,
		ServiceCharge:   pricing.ChargeSpec{Kind: inv.ServiceCharge.Type, Value: inv.ServiceCharge.Value},
		VAT:             pricing.ChargeSpec{Kind: inv.VAT.Type, Value: inv.VAT.Value},
		SpecialDiscount: inv.SpecialDiscount,
	}
}

// ApplySummary overwrites every derived field from sum.
func (inv *Invoice) ApplySummary(sum pricing.Summary) {
	inv.Items = make([]LineItem, len(sum.Lines))
	for i, l := range sum.Lines {
		inv.Items[i] = LineItem{
			SrNo:        l.SrNo,
			ProductName: l.ProductName,
			Measurement: l.Unit,
			Quantity:    l.Quantity,
			Price:       l.UnitPrice,
			Total:       l.Total,
		}
	}
	inv.Subtotal = sum.Subtotal
	inv.ServiceCharge = Charge{Type: sum.ServiceCharge.Kind, Value: sum.ServiceCharge.Value, Amount: sum.ServiceCharge.Amount}
	inv.VAT = Charge{Type: sum.VAT.Kind, Value: sum.VAT.Value, Amount: sum.VAT.Amount}
	inv.SpecialDiscount = sum.SpecialDiscount
	inv.GrandTotal = sum.GrandTotal
	inv.NetTotal = sum.NetTotal
}

// SameTotals reports whether both invoices carry identical derived figures.
func (inv Invoice) SameTotals(other Invoice) bool {
	if len(inv.Items) != len(other.Items) {
		return false
	}
	for i := range inv.Items {
		if !inv.Items[i].Total.Equal(other.Items[i].Total) {
			return false
		}
	}
	return inv.Subtotal.Equal(other.Subtotal) &&
		inv.ServiceCharge.Amount.Equal(other.ServiceCharge.Amount) &&
		inv.VAT.Amount.Equal(other.VAT.Amount) &&
		inv.GrandTotal.Equal(other.GrandTotal) &&
		inv.NetTotal.Equal(other.NetTotal)
}

// ListFilter narrows and pages List results. Results are always ordered by
// issue date, newest first.
type ListFilter struct {
	Status PaymentStatus
	Limit  int
	Offset int
}

// NumberPrefix returns the monthly prefix used for generated numbers, e.g. INV-202410-.
func NumberPrefix(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("INV-%04d%02d-", t.Year(), int(t.Month()))
}

// FormatNumber renders the seq-th generated number for the month of t.
func FormatNumber(t time.Time, seq int64) string {
	return fmt.Sprintf("%s%03d", NumberPrefix(t), seq)
}

// NumberSeq extracts the sequence from a number carrying prefix. Numbers
// whose suffix is not 1 to 18 digits, such as manually entered ones, report
// false.
func NumberSeq(prefix, number string) (int64, bool) {
	rest, ok := strings.CutPrefix(number, prefix)
	if !ok || rest == "" || len(rest) > 18 {
		return 0, false
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return 0, false
		}
	}
	seq, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// NormalizeNumber trims and uppercases a caller supplied invoice number.
func NormalizeNumber(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
