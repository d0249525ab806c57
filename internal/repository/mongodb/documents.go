package mongodb

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mamadbah2/dairy/internal/domain/models"
)

// Amounts are stored as Decimal128 so that totals survive the round trip
// without float drift.

type milkLineDocument struct {
	Type         string               `bson:"type"`
	Quantity     primitive.Decimal128 `bson:"qty"`
	RatePerLitre primitive.Decimal128 `bson:"rate_per_litre"`
	Amount       primitive.Decimal128 `bson:"amount"`
}

type extraLineDocument struct {
	Name     string               `bson:"name"`
	Quantity primitive.Decimal128 `bson:"qty"`
	Rate     primitive.Decimal128 `bson:"rate"`
	Amount   primitive.Decimal128 `bson:"amount"`
}

type entryDocument struct {
	ID         string               `bson:"_id"`
	CustomerID string               `bson:"customer_id"`
	Date       time.Time            `bson:"date"`
	Milk       []milkLineDocument   `bson:"milk"`
	Extras     []extraLineDocument  `bson:"extras"`
	Total      primitive.Decimal128 `bson:"total"`
	ValuatedAt *time.Time           `bson:"valuated_at,omitempty"`
	CreatedAt  time.Time            `bson:"created_at"`
}

type paymentDocument struct {
	ID         string               `bson:"_id"`
	CustomerID string               `bson:"customer_id"`
	Date       time.Time            `bson:"date"`
	Amount     primitive.Decimal128 `bson:"amount"`
	Method     string               `bson:"method"`
	CreatedAt  time.Time            `bson:"created_at"`
}

type correctionDocument struct {
	ID            string               `bson:"_id"`
	EntryID       string               `bson:"entry_id"`
	CustomerID    string               `bson:"customer_id"`
	Reason        string               `bson:"reason"`
	PreviousTotal primitive.Decimal128 `bson:"previous_total"`
	NewTotal      primitive.Decimal128 `bson:"new_total"`
	CorrectedAt   time.Time            `bson:"corrected_at"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("encode amount %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		// NaN and infinities are never written by this package.
		return decimal.Zero
	}
	return d
}

// encoder collects the first conversion error so the document builders stay linear.
type encoder struct {
	err error
}

func (e *encoder) dec(d decimal.Decimal) primitive.Decimal128 {
	if e.err != nil {
		return primitive.Decimal128{}
	}
	v, err := toDecimal128(d)
	e.err = err
	return v
}

func newEntryDocument(entry models.Entry) (entryDocument, error) {
	var enc encoder

	doc := entryDocument{
		ID:         entry.ID,
		CustomerID: entry.CustomerID,
		Date:       entry.Date.UTC(),
		Milk:       make([]milkLineDocument, 0, len(entry.Milk)),
		Extras:     make([]extraLineDocument, 0, len(entry.Extras)),
		Total:      enc.dec(entry.Total),
		ValuatedAt: entry.ValuatedAt,
		CreatedAt:  entry.CreatedAt.UTC(),
	}
	for _, line := range entry.Milk {
		doc.Milk = append(doc.Milk, milkLineDocument{
			Type:         string(line.Type),
			Quantity:     enc.dec(line.Quantity),
			RatePerLitre: enc.dec(line.RatePerLitre),
			Amount:       enc.dec(line.Amount),
		})
	}
	for _, line := range entry.Extras {
		doc.Extras = append(doc.Extras, extraLineDocument{
			Name:     line.Name,
			Quantity: enc.dec(line.Quantity),
			Rate:     enc.dec(line.Rate),
			Amount:   enc.dec(line.Amount),
		})
	}

	if enc.err != nil {
		return entryDocument{}, fmt.Errorf("encode entry %s: %w", entry.ID, enc.err)
	}
	return doc, nil
}

func (d entryDocument) toModel() models.Entry {
	entry := models.Entry{
		ID:         d.ID,
		CustomerID: d.CustomerID,
		Date:       d.Date,
		Milk:       make([]models.MilkLine, 0, len(d.Milk)),
		Extras:     make([]models.ExtraLine, 0, len(d.Extras)),
		Total:      fromDecimal128(d.Total),
		ValuatedAt: d.ValuatedAt,
		CreatedAt:  d.CreatedAt,
	}
	for _, line := range d.Milk {
		entry.Milk = append(entry.Milk, models.MilkLine{
			Type:         models.MilkType(line.Type),
			Quantity:     fromDecimal128(line.Quantity),
			RatePerLitre: fromDecimal128(line.RatePerLitre),
			Amount:       fromDecimal128(line.Amount),
		})
	}
	for _, line := range d.Extras {
		entry.Extras = append(entry.Extras, models.ExtraLine{
			Name:     line.Name,
			Quantity: fromDecimal128(line.Quantity),
			Rate:     fromDecimal128(line.Rate),
			Amount:   fromDecimal128(line.Amount),
		})
	}
	return entry
}

func newPaymentDocument(payment models.Payment) (paymentDocument, error) {
	amount, err := toDecimal128(payment.Amount)
	if err != nil {
		return paymentDocument{}, fmt.Errorf("encode payment %s: %w", payment.ID, err)
	}
	return paymentDocument{
		ID:         payment.ID,
		CustomerID: payment.CustomerID,
		Date:       payment.Date.UTC(),
		Amount:     amount,
		Method:     payment.Method,
		CreatedAt:  payment.CreatedAt.UTC(),
	}, nil
}

func (d paymentDocument) toModel() models.Payment {
	return models.Payment{
		ID:         d.ID,
		CustomerID: d.CustomerID,
		Date:       d.Date,
		Amount:     fromDecimal128(d.Amount),
		Method:     d.Method,
		CreatedAt:  d.CreatedAt,
	}
}

func newCorrectionDocument(c models.Correction) (correctionDocument, error) {
	var enc encoder
	doc := correctionDocument{
		ID:            c.ID,
		EntryID:       c.EntryID,
		CustomerID:    c.CustomerID,
		Reason:        c.Reason,
		PreviousTotal: enc.dec(c.PreviousTotal),
		NewTotal:      enc.dec(c.NewTotal),
		CorrectedAt:   c.CorrectedAt.UTC(),
	}
	if enc.err != nil {
		return correctionDocument{}, fmt.Errorf("encode correction %s: %w", c.ID, enc.err)
	}
	return doc, nil
}
