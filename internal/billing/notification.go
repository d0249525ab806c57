package billing

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/dairy/internal/domain/models"
)

// Notification is the billing notice for one customer.
type Notification struct {
	CustomerID   string          `json:"customerId"`
	Phone        string          `json:"phone"`
	Message      string          `json:"message"`
	InvoiceURL   string          `json:"invoiceUrl"`
	TotalCharges decimal.Decimal `json:"totalCharges"`
	Due          decimal.Decimal `json:"due"`
}

// NotificationBatch holds one notification per customer, in customer order.
type NotificationBatch struct {
	PeriodLabel   string         `json:"periodLabel"`
	Notifications []Notification `json:"notifications"`
}

// SummaryLookup returns the summary of a customer for the batch period. A
// false second result means the customer had no activity.
type SummaryLookup func(customerID string) (PeriodSummary, bool)

// NotificationBuilder formats billing notices linking to the hosted invoice.
type NotificationBuilder struct {
	baseURL string
}

// NewNotificationBuilder builds notices whose invoice links start at baseURL.
func NewNotificationBuilder(baseURL string) *NotificationBuilder {
	return &NotificationBuilder{baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Build returns exactly one notification per customer, including customers
// without entries or payments, who get zero totals.
func (b *NotificationBuilder) Build(period Period, customers []models.Customer, summaryOf SummaryLookup) NotificationBatch {
	batch := NotificationBatch{
		PeriodLabel:   period.String(),
		Notifications: make([]Notification, 0, len(customers)),
	}

	for _, customer := range customers {
		summary, ok := PeriodSummary{}, false
		if summaryOf != nil {
			summary, ok = summaryOf(customer.ID)
		}
		if !ok || summary.CustomerID != customer.ID {
			summary = EmptySummary(customer.ID, period)
		}
		batch.Notifications = append(batch.Notifications, b.Message(customer, summary))
	}

	return batch
}

// Message formats the notice of a single customer.
func (b *NotificationBuilder) Message(customer models.Customer, summary PeriodSummary) Notification {
	link := b.InvoiceURL(customer.ID, summary.Period)
	text := fmt.Sprintf("Namaste %s, aapka %s bill %s Rs. Due: %s. Invoice: %s",
		customer.Name,
		summary.PeriodLabel,
		FormatAmount(summary.TotalCharges),
		FormatAmount(summary.Due),
		link,
	)

	return Notification{
		CustomerID:   customer.ID,
		Phone:        customer.Phone,
		Message:      text,
		InvoiceURL:   link,
		TotalCharges: summary.TotalCharges,
		Due:          summary.Due,
	}
}

// InvoiceURL is the link to the hosted invoice of a customer for a period.
// Explicit bounds are written as RFC3339 instants so the link selects the
// same window whatever calendar the server parses it in.
func (b *NotificationBuilder) InvoiceURL(customerID string, period Period) string {
	link := fmt.Sprintf("%s/api/customers/%s/invoice", b.baseURL, url.PathEscape(customerID))

	query := url.Values{}
	switch {
	case period.Month != "":
		query.Set("month", period.Month)
	case !period.IsAllTime():
		if !period.Start.IsZero() {
			query.Set("from", period.Start.Format(time.RFC3339Nano))
		}
		if !period.End.IsZero() {
			query.Set("to", period.End.Format(time.RFC3339Nano))
		}
	}

	if encoded := query.Encode(); encoded != "" {
		link += "?" + encoded
	}
	return link
}

// WriteCSV writes the batch as phone,message rows for manual dispatch.
func (nb NotificationBatch) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	for _, n := range nb.Notifications {
		if err := writer.Write([]string{n.Phone, n.Message}); err != nil {
			return fmt.Errorf("write notification row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
