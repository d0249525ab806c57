package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MilkType names a kind of milk with its own rate per litre.
type MilkType string

const (
	MilkCow     MilkType = "Cow"
	MilkBuffalo MilkType = "Buffalo"
)

// MilkLine is one milk delivery within an entry. RatePerLitre is recorded at
// valuation time and stays frozen afterwards.
type MilkLine struct {
	Type         MilkType        `json:"type"`
	Quantity     decimal.Decimal `json:"qty"`
	RatePerLitre decimal.Decimal `json:"ratePerLitre"`
	Amount       decimal.Decimal `json:"amount"`
}

// ExtraLine is a non-milk billable item (feed, container deposit...).
type ExtraLine struct {
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"qty"`
	Rate     decimal.Decimal `json:"rate"`
	Amount   decimal.Decimal `json:"amount"`
}

// Entry is one dated delivery record for a customer.
type Entry struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customerId"`
	Date       time.Time       `json:"date"`
	Milk       []MilkLine      `json:"milk"`
	Extras     []ExtraLine     `json:"extras"`
	Total      decimal.Decimal `json:"total"`
	ValuatedAt *time.Time      `json:"valuatedAt,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Valuated reports whether the entry total has been computed.
func (e Entry) Valuated() bool {
	return e.ValuatedAt != nil
}

// Correction is the audit trail of an explicit re-valuation.
type Correction struct {
	ID            string          `json:"id"`
	EntryID       string          `json:"entryId"`
	CustomerID    string          `json:"customerId"`
	Reason        string          `json:"reason"`
	PreviousTotal decimal.Decimal `json:"previousTotal"`
	NewTotal      decimal.Decimal `json:"newTotal"`
	CorrectedAt   time.Time       `json:"correctedAt"`
}
