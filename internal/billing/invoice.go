package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/dairy/internal/domain/models"
)

// InvoiceDocument is the structured, renderer-agnostic form of an invoice.
type InvoiceDocument struct {
	CustomerID   string           `json:"customerId"`
	CustomerName string           `json:"customerName"`
	Phone        string           `json:"phone"`
	PeriodLabel  string           `json:"periodLabel"`
	Lines        []InvoiceLine    `json:"lines"`
	Payments     []InvoicePayment `json:"payments"`
	TotalCharges decimal.Decimal  `json:"totalCharges"`
	TotalPaid    decimal.Decimal  `json:"totalPaid"`
	Due          decimal.Decimal  `json:"due"`
}

// InvoiceLine is one delivery entry on the invoice.
type InvoiceLine struct {
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Total       decimal.Decimal `json:"total"`
}

// InvoicePayment is one payment received during the invoiced period.
type InvoicePayment struct {
	Date   time.Time       `json:"date"`
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

// BuildInvoice formats a period summary for the given customer. Lines keep
// the summary's date order and their dates are expressed in loc, the calendar
// the period was cut in. A nil loc means UTC.
func BuildInvoice(customer models.Customer, summary PeriodSummary, loc *time.Location) (InvoiceDocument, error) {
	if customer.ID != summary.CustomerID {
		return InvoiceDocument{}, invalid(ErrCustomerMismatch, "customer %q, summary for %q", customer.ID, summary.CustomerID)
	}
	if loc == nil {
		loc = time.UTC
	}

	doc := InvoiceDocument{
		CustomerID:   customer.ID,
		CustomerName: customer.Name,
		Phone:        customer.Phone,
		PeriodLabel:  summary.PeriodLabel,
		Lines:        make([]InvoiceLine, 0, len(summary.Entries)),
		Payments:     make([]InvoicePayment, 0, len(summary.Payments)),
		TotalCharges: summary.TotalCharges,
		TotalPaid:    summary.TotalPaid,
		Due:          summary.Due,
	}

	for _, entry := range summary.Entries {
		doc.Lines = append(doc.Lines, InvoiceLine{
			Date:        entry.Date.In(loc),
			Description: DescribeEntry(entry),
			Total:       entry.Total,
		})
	}

	for _, payment := range summary.Payments {
		doc.Payments = append(doc.Payments, InvoicePayment{
			Date:   payment.Date.In(loc),
			Method: payment.Method,
			Amount: payment.Amount,
		})
	}

	return doc, nil
}

// DescribeEntry renders the lines of an entry for humans, e.g.
// "Cow 2 L @ 50.00, Feed 1 x 20.00".
func DescribeEntry(entry models.Entry) string {
	parts := make([]string, 0, len(entry.Milk)+len(entry.Extras))
	for _, line := range entry.Milk {
		parts = append(parts, fmt.Sprintf("%s %s L @ %s", line.Type, line.Quantity.String(), FormatAmount(line.RatePerLitre)))
	}
	for _, line := range entry.Extras {
		parts = append(parts, fmt.Sprintf("%s %s x %s", line.Name, line.Quantity.String(), FormatAmount(line.Rate)))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}
