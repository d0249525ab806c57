package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is money received from a customer. Immutable once recorded.
type Payment struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customerId"`
	Date       time.Time       `json:"date"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	CreatedAt  time.Time       `json:"createdAt"`
}
