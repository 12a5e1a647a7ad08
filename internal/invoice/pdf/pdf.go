// Package pdf renders invoices as single-document A4 PDFs.
package pdf

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf/v2"

	"github.com/noah-isme/backend-invoice/internal/invoice"
	"github.com/noah-isme/backend-invoice/internal/money"
	"github.com/noah-isme/backend-invoice/internal/pricing"
)

const (
	pageWidth = 190.0
	dateFmt   = "02-Jan-2006"
)

// Renderer implements invoice.Renderer.
type Renderer struct {
	// Issuer is printed in the header. Defaults to "Invoice".
	Issuer string
	// Currency prefixes every amount, e.g. "Rs.". Empty prints bare numbers.
	Currency string
}

func (r Renderer) amount(d money.Decimal) string {
	if r.Currency == "" {
		return d.StringFixed()
	}
	return r.Currency + " " + d.StringFixed()
}

func chargeLabel(name string, c invoice.Charge) string {
	if c.Type == pricing.ChargePercentage {
		return fmt.Sprintf("%s (%s%%)", name, c.Value.String())
	}
	return name
}

// Render writes the PDF for inv to w.
func (r Renderer) Render(w io.Writer, inv invoice.Invoice) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetTitle(inv.InvoiceNumber, true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	issuer := strings.TrimSpace(r.Issuer)
	if issuer == "" {
		issuer = "Invoice"
	}
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(pageWidth, 10, tr(issuer), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(pageWidth, 6, tr(inv.InvoiceNumber), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(pageWidth, 8, "Bill To", "1", 1, "L", true, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(95, 7, tr("Name: "+inv.CustomerName), "LB", 0, "L", false, 0, "")
	pdf.CellFormat(95, 7, "Date: "+inv.Date.Format(dateFmt), "RB", 1, "L", false, 0, "")
	pdf.CellFormat(95, 7, tr("Phone: "+inv.CustomerPhone), "LB", 0, "L", false, 0, "")
	due := ""
	if !inv.DueDate.IsZero() {
		due = inv.DueDate.Format(dateFmt)
	}
	pdf.CellFormat(95, 7, "Due: "+due, "RB", 1, "L", false, 0, "")
	pdf.CellFormat(95, 7, tr("Email: "+inv.CustomerEmail), "LB", 0, "L", false, 0, "")
	pdf.CellFormat(95, 7, "Status: "+strings.ToUpper(string(inv.PaymentStatus)), "RB", 1, "L", false, 0, "")
	if inv.CustomerAddress != "" {
		pdf.MultiCell(pageWidth, 6, tr("Address: "+inv.CustomerAddress), "LRB", "L", false)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(200, 200, 200)
	pdf.CellFormat(15, 7, "Sr", "1", 0, "C", true, 0, "")
	pdf.CellFormat(75, 7, "Product", "1", 0, "C", true, 0, "")
	pdf.CellFormat(20, 7, "Unit", "1", 0, "C", true, 0, "")
	pdf.CellFormat(25, 7, "Qty", "1", 0, "C", true, 0, "")
	pdf.CellFormat(25, 7, "Price", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 7, "Total", "1", 1, "C", true, 0, "")

	pdf.SetFont("Arial", "", 10)
	for _, it := range inv.Items {
		pdf.CellFormat(15, 6, fmt.Sprintf("%d", it.SrNo), "1", 0, "C", false, 0, "")
		pdf.CellFormat(75, 6, tr(truncate(it.ProductName, 42)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, string(it.Measurement), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, it.Quantity.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, it.Price.StringFixed(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, it.Total.StringFixed(), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	rows := []struct {
		label string
		value money.Decimal
	}{
		{"Subtotal", inv.Subtotal},
		{chargeLabel("Service charge", inv.ServiceCharge), inv.ServiceCharge.Amount},
		{chargeLabel("VAT", inv.VAT), inv.VAT.Amount},
		{"Grand total", inv.GrandTotal},
		{"Special discount", inv.SpecialDiscount},
	}
	for _, row := range rows {
		pdf.CellFormat(130, 7, "", "", 0, "L", false, 0, "")
		pdf.CellFormat(30, 7, tr(row.label), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 7, tr(r.amount(row.value)), "1", 1, "R", false, 0, "")
	}
	pdf.SetFont("Arial", "B", 12)
	pdf.SetFillColor(220, 235, 220)
	pdf.CellFormat(130, 9, "", "", 0, "L", false, 0, "")
	pdf.CellFormat(30, 9, "Net total", "1", 0, "L", true, 0, "")
	pdf.CellFormat(30, 9, tr(r.amount(inv.NetTotal)), "1", 1, "R", true, 0, "")

	if notes := strings.TrimSpace(inv.Notes); notes != "" {
		pdf.Ln(6)
		pdf.SetFont("Arial", "I", 9)
		pdf.MultiCell(pageWidth, 5, tr("Notes: "+notes), "", "L", false)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render invoice %s: %w", inv.InvoiceNumber, err)
	}
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

var _ invoice.Renderer = Renderer{}
