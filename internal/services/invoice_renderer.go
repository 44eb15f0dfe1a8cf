package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/clovermart/api/internal/domain"
)

const invoiceTextContentType = "text/plain; charset=utf-8"

var errRenderEmptyInvoice = errors.New("invoice renderer: invoice has no lines")

// TextInvoiceRenderer renders invoices as plain-text documents. It prints the
// figures it is given verbatim; no amount is recomputed here.
type TextInvoiceRenderer struct{}

// RenderInvoice implements DocumentRenderer.
func (TextInvoiceRenderer) RenderInvoice(_ context.Context, invoice domain.Invoice) ([]byte, string, error) {
	if len(invoice.Lines) == 0 {
		return nil, "", errRenderEmptyInvoice
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INVOICE %s\n", invoice.Number)
	fmt.Fprintf(&b, "Issued: %s\n", invoice.IssuedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "Order:  %s\n", invoice.OrderID)
	if invoice.CustomerName != "" {
		fmt.Fprintf(&b, "Billed to: %s", invoice.CustomerName)
		if invoice.CustomerMail != "" {
			fmt.Fprintf(&b, " <%s>", invoice.CustomerMail)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for _, line := range invoice.Lines {
		name := line.Name
		if line.Variant != "" {
			name = fmt.Sprintf("%s (%s)", name, line.Variant)
		}
		fmt.Fprintf(&b, "%3d x %-40s %12s\n", line.Quantity, name, formatAmount(line.Total, invoice.Currency))
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "%-46s %12s\n", "Subtotal", formatAmount(invoice.Totals.Subtotal, invoice.Currency))
	if invoice.Totals.Discount > 0 {
		label := "Discount"
		if invoice.CouponCode != "" {
			label = fmt.Sprintf("Discount (%s)", invoice.CouponCode)
		}
		fmt.Fprintf(&b, "%-46s %12s\n", label, "-"+formatAmount(invoice.Totals.Discount, invoice.Currency))
	}
	fmt.Fprintf(&b, "%-46s %12s\n", "Tax", formatAmount(invoice.Totals.Tax, invoice.Currency))
	if invoice.Totals.Shipping > 0 {
		fmt.Fprintf(&b, "%-46s %12s\n", "Shipping", formatAmount(invoice.Totals.Shipping, invoice.Currency))
	}
	fmt.Fprintf(&b, "%-46s %12s\n", "Total", formatAmount(invoice.Totals.Total, invoice.Currency))
	if invoice.PaymentRef != "" {
		fmt.Fprintf(&b, "\nPayment reference: %s\n", invoice.PaymentRef)
	}

	return []byte(b.String()), invoiceTextContentType, nil
}

// formatAmount renders a minor-unit amount with two decimal places.
func formatAmount(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%s %d.%02d", sign, currency, amount/100, amount%100)
}
