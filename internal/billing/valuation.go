package billing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/dairy/internal/domain/models"
)

// canonicalizer is implemented by resolvers that know the configured
// spelling of a milk type.
type canonicalizer interface {
	Canonical(milkType models.MilkType) (models.MilkType, bool)
}

// Valuator computes entry totals from their milk and extra lines.
type Valuator struct {
	rates RateResolver
	now   func() time.Time
}

// NewValuator builds a valuator backed by the given rate resolver.
func NewValuator(rates RateResolver) *Valuator {
	return &Valuator{rates: rates, now: time.Now}
}

// Valuate returns a copy of entry with every line amount and the rounded
// total filled in. Milk lines that already carry a rate keep it, so a second
// run over a valuated entry yields the same total. A single invalid line
// fails the whole entry.
func (v *Valuator) Valuate(entry models.Entry) (models.Entry, error) {
	out := entry
	out.Milk = make([]models.MilkLine, len(entry.Milk))
	out.Extras = make([]models.ExtraLine, len(entry.Extras))

	sum := decimal.Zero

	for i, line := range entry.Milk {
		if line.Quantity.IsNegative() {
			return models.Entry{}, invalid(ErrInvalidQuantity, "milk line %d (%s): %s litres", i, line.Type, line.Quantity)
		}

		if line.RatePerLitre.IsZero() {
			rate, err := v.rates.ResolveRate(line.Type, entry.Date)
			if err != nil {
				return models.Entry{}, err
			}
			line.RatePerLitre = rate
			if c, ok := v.rates.(canonicalizer); ok {
				if canonical, found := c.Canonical(line.Type); found {
					line.Type = canonical
				}
			}
		} else if line.RatePerLitre.IsNegative() {
			return models.Entry{}, invalid(ErrInvalidRate, "milk line %d (%s): negative rate per litre %s", i, line.Type, line.RatePerLitre)
		}

		line.Amount = line.Quantity.Mul(line.RatePerLitre)
		sum = sum.Add(line.Amount)
		out.Milk[i] = line
	}

	for i, line := range entry.Extras {
		line.Name = strings.TrimSpace(line.Name)
		if line.Name == "" {
			return models.Entry{}, invalid(ErrInvalidExtraLine, "extra line %d: empty name", i)
		}
		if line.Rate.IsNegative() {
			return models.Entry{}, invalid(ErrInvalidExtraLine, "extra line %d (%s): negative rate %s", i, line.Name, line.Rate)
		}
		if line.Quantity.IsNegative() {
			return models.Entry{}, invalid(ErrInvalidQuantity, "extra line %d (%s): quantity %s", i, line.Name, line.Quantity)
		}
		if line.Quantity.IsZero() {
			line.Quantity = decimal.NewFromInt(1)
		}

		line.Amount = line.Quantity.Mul(line.Rate)
		sum = sum.Add(line.Amount)
		out.Extras[i] = line
	}

	out.Total = RoundCurrency(sum)
	if out.ValuatedAt == nil {
		stamp := v.now().UTC()
		out.ValuatedAt = &stamp
	}

	return out, nil
}

// Revaluate re-resolves every milk rate at the entry date and recomputes the
// total. It is the only way to change a valuated entry and returns the audit
// record describing the change.
func (v *Valuator) Revaluate(entry models.Entry, reason string) (models.Entry, models.Correction, error) {
	reset := entry
	reset.ValuatedAt = nil
	reset.Milk = make([]models.MilkLine, len(entry.Milk))
	for i, line := range entry.Milk {
		line.RatePerLitre = decimal.Zero
		line.Amount = decimal.Zero
		reset.Milk[i] = line
	}

	updated, err := v.Valuate(reset)
	if err != nil {
		return models.Entry{}, models.Correction{}, err
	}

	correction := models.Correction{
		EntryID:       entry.ID,
		CustomerID:    entry.CustomerID,
		Reason:        strings.TrimSpace(reason),
		PreviousTotal: entry.Total,
		NewTotal:      updated.Total,
		CorrectedAt:   *updated.ValuatedAt,
	}

	return updated, correction, nil
}

// FilterExtras drops extras submitted without a name. This mirrors the entry
// form, which ignores blank extra rows instead of rejecting the submission.
func FilterExtras(lines []models.ExtraLine) []models.ExtraLine {
	out := make([]models.ExtraLine, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line.Name) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}
