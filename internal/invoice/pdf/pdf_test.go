package pdf

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-invoice/internal/invoice"
	"github.com/noah-isme/backend-invoice/internal/money"
	"github.com/noah-isme/backend-invoice/internal/pricing"
)

func TestRenderProducesPDF(t *testing.T) {
	inv := invoice.Invoice{
		InvoiceNumber:   "INV-202410-001",
		Date:            time.Date(2024, 10, 7, 0, 0, 0, 0, time.UTC),
		DueDate:         time.Date(2024, 10, 22, 0, 0, 0, 0, time.UTC),
		CustomerName:    "Chloé Café",
		CustomerAddress: "12 Timber Road",
		PaymentStatus:   invoice.StatusPending,
		Items: []invoice.LineItem{
			{SrNo: 1, ProductName: "Teak", Measurement: pricing.UnitCubicFeet, Quantity: money.MustParse("2"), Price: money.MustParse("100"), Total: money.MustParse("200")},
			{SrNo: 2, ProductName: strings.Repeat("very long product name ", 5), Measurement: pricing.UnitPieces, Quantity: money.MustParse("1"), Price: money.MustParse("50"), Total: money.MustParse("50")},
		},
		Subtotal:      money.MustParse("250"),
		ServiceCharge: invoice.Charge{Type: pricing.ChargeFixed, Value: money.MustParse("10"), Amount: money.MustParse("10")},
		VAT:           invoice.Charge{Type: pricing.ChargePercentage, Value: money.MustParse("15"), Amount: money.MustParse("37.5")},
		GrandTotal:    money.MustParse("297.5"),
		NetTotal:      money.MustParse("297.5"),
		Notes:         "Deliver before noon",
	}

	var buf bytes.Buffer
	require.NoError(t, Renderer{Issuer: "Timber Traders", Currency: "Rs."}.Render(&buf, inv))
	require.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	require.Contains(t, buf.String(), "%%EOF")
}

func TestRenderEmptyInvoice(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Renderer{}.Render(&buf, invoice.Invoice{InvoiceNumber: "X"}))
	require.NotZero(t, buf.Len())
}

func TestChargeLabel(t *testing.T) {
	require.Equal(t, "VAT (15%)", chargeLabel("VAT", invoice.Charge{Type: pricing.ChargePercentage, Value: money.MustParse("15")}))
	require.Equal(t, "VAT", chargeLabel("VAT", invoice.Charge{Type: pricing.ChargeFixed, Value: money.MustParse("15")}))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
