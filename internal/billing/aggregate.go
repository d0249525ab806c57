package billing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/dairy/internal/domain/models"
)

// PeriodSummary is the derived billing state of one customer over one
// period. It is recomputed on demand and never persisted.
type PeriodSummary struct {
	CustomerID   string           `json:"customerId"`
	Period       Period           `json:"-"`
	PeriodLabel  string           `json:"periodLabel"`
	PeriodStart  *time.Time       `json:"periodStart,omitempty"`
	PeriodEnd    *time.Time       `json:"periodEnd,omitempty"`
	Entries      []models.Entry   `json:"entries"`
	Payments     []models.Payment `json:"payments"`
	TotalCharges decimal.Decimal  `json:"totalCharges"`
	TotalPaid    decimal.Decimal  `json:"totalPaid"`
	Due          decimal.Decimal  `json:"due"`
}

// EmptySummary is the summary of a customer without activity in the period.
func EmptySummary(customerID string, period Period) PeriodSummary {
	return Aggregate(customerID, period, nil, nil)
}

// Aggregate sums the valuated entries and the payments of one customer that
// fall inside period. Records of other customers or outside the window are
// ignored. Entries and payments come back sorted by date; ties keep their
// input order.
func Aggregate(customerID string, period Period, entries []models.Entry, payments []models.Payment) PeriodSummary {
	summary := PeriodSummary{
		CustomerID:   customerID,
		Period:       period,
		PeriodLabel:  period.String(),
		Entries:      make([]models.Entry, 0, len(entries)),
		Payments:     make([]models.Payment, 0, len(payments)),
		TotalCharges: decimal.Zero,
		TotalPaid:    decimal.Zero,
	}
	if !period.Start.IsZero() {
		start := period.Start
		summary.PeriodStart = &start
	}
	if !period.End.IsZero() {
		end := period.End
		summary.PeriodEnd = &end
	}

	for _, entry := range entries {
		if entry.CustomerID != customerID || !period.Contains(entry.Date) {
			continue
		}
		summary.Entries = append(summary.Entries, entry)
		summary.TotalCharges = summary.TotalCharges.Add(entry.Total)
	}

	for _, payment := range payments {
		if payment.CustomerID != customerID || !period.Contains(payment.Date) {
			continue
		}
		summary.Payments = append(summary.Payments, payment)
		summary.TotalPaid = summary.TotalPaid.Add(payment.Amount)
	}

	sort.SliceStable(summary.Entries, func(i, j int) bool {
		return summary.Entries[i].Date.Before(summary.Entries[j].Date)
	})
	sort.SliceStable(summary.Payments, func(i, j int) bool {
		return summary.Payments[i].Date.Before(summary.Payments[j].Date)
	})

	summary.Due = Due(summary.TotalCharges, summary.TotalPaid)
	return summary
}

// Due is the outstanding amount: charges minus payments. A negative result
// is a credit and is deliberately not clamped. Periods are independent; no
// balance is carried from one period into the next.
func Due(totalCharges, totalPaid decimal.Decimal) decimal.Decimal {
	return totalCharges.Sub(totalPaid)
}
