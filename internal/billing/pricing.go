package billing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/dairy/internal/domain/models"
)

const rateDateLayout = "2006-01-02"

// RateResolver returns the rate per litre applicable to a milk type on a date.
type RateResolver interface {
	ResolveRate(milkType models.MilkType, asOf time.Time) (decimal.Decimal, error)
}

// RateStep is a rate that applies from EffectiveFrom until the next step of
// the same milk type. A zero EffectiveFrom applies to all dates.
type RateStep struct {
	Type          models.MilkType
	EffectiveFrom time.Time
	Rate          decimal.Decimal
}

type rateSchedule struct {
	canonical models.MilkType
	steps     []RateStep
}

// RateTable is an immutable price list keyed by milk type. Lookups are case
// insensitive; safe for concurrent use.
type RateTable struct {
	schedules map[string]rateSchedule
}

// NewRateTable builds a table from rate steps. Every rate must be positive.
func NewRateTable(steps ...RateStep) (*RateTable, error) {
	table := &RateTable{schedules: make(map[string]rateSchedule)}

	for _, step := range steps {
		name := strings.TrimSpace(string(step.Type))
		if name == "" {
			return nil, fmt.Errorf("rate step: milk type must not be empty")
		}
		if !step.Rate.IsPositive() {
			return nil, fmt.Errorf("rate step %s: rate must be positive, got %s", name, step.Rate)
		}

		key := strings.ToLower(name)
		schedule, ok := table.schedules[key]
		if !ok {
			schedule.canonical = models.MilkType(name)
		}
		step.Type = schedule.canonical
		schedule.steps = append(schedule.steps, step)
		table.schedules[key] = schedule
	}

	for key, schedule := range table.schedules {
		sort.SliceStable(schedule.steps, func(i, j int) bool {
			return schedule.steps[i].EffectiveFrom.Before(schedule.steps[j].EffectiveFrom)
		})
		for i := 1; i < len(schedule.steps); i++ {
			if schedule.steps[i].EffectiveFrom.Equal(schedule.steps[i-1].EffectiveFrom) {
				return nil, fmt.Errorf("rate step %s: duplicate effective date %s",
					schedule.canonical, schedule.steps[i].EffectiveFrom.Format(rateDateLayout))
			}
		}
		table.schedules[key] = schedule
	}

	return table, nil
}

// StaticRates builds a table with one date-independent rate per milk type.
func StaticRates(rates map[models.MilkType]decimal.Decimal) (*RateTable, error) {
	steps := make([]RateStep, 0, len(rates))
	for milkType, rate := range rates {
		steps = append(steps, RateStep{Type: milkType, Rate: rate})
	}
	return NewRateTable(steps...)
}

// ResolveRate returns the latest step effective on or before asOf.
func (t *RateTable) ResolveRate(milkType models.MilkType, asOf time.Time) (decimal.Decimal, error) {
	schedule, ok := t.lookup(milkType)
	if !ok {
		return decimal.Zero, invalid(ErrUnknownMilkType, "%q", milkType)
	}

	for i := len(schedule.steps) - 1; i >= 0; i-- {
		step := schedule.steps[i]
		if !step.EffectiveFrom.After(asOf) {
			return step.Rate, nil
		}
	}

	return decimal.Zero, invalid(ErrUnknownMilkType, "no %s rate effective on %s", schedule.canonical, asOf.Format(rateDateLayout))
}

// Canonical returns the configured spelling of a milk type.
func (t *RateTable) Canonical(milkType models.MilkType) (models.MilkType, bool) {
	schedule, ok := t.lookup(milkType)
	if !ok {
		return "", false
	}
	return schedule.canonical, true
}

// Types lists the configured milk types in alphabetical order.
func (t *RateTable) Types() []models.MilkType {
	out := make([]models.MilkType, 0, len(t.schedules))
	for _, schedule := range t.schedules {
		out = append(out, schedule.canonical)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *RateTable) lookup(milkType models.MilkType) (rateSchedule, bool) {
	if t == nil {
		return rateSchedule{}, false
	}
	schedule, ok := t.schedules[strings.ToLower(strings.TrimSpace(string(milkType)))]
	return schedule, ok
}

// ParseRates parses a comma separated list of rate tokens into steps. A token
// is "Type:rate" or "Type:rate@YYYY-MM-DD"; dated tokens are interpreted in loc.
//
//	Cow:50,Buffalo:60,Cow:55@2025-01-01
func ParseRates(list string, loc *time.Location) ([]RateStep, error) {
	if loc == nil {
		loc = time.UTC
	}

	var steps []RateStep
	for _, token := range strings.Split(list, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		name, value, ok := strings.Cut(token, ":")
		if !ok {
			return nil, fmt.Errorf("rate token %q: expected Type:rate", token)
		}

		var effective time.Time
		if rateText, dateText, dated := strings.Cut(value, "@"); dated {
			parsed, err := time.ParseInLocation(rateDateLayout, strings.TrimSpace(dateText), loc)
			if err != nil {
				return nil, fmt.Errorf("rate token %q: parse effective date: %w", token, err)
			}
			effective = parsed
			value = rateText
		}

		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("rate token %q: parse rate: %w", token, err)
		}

		steps = append(steps, RateStep{
			Type:          models.MilkType(strings.TrimSpace(name)),
			EffectiveFrom: effective,
			Rate:          rate,
		})
	}

	return steps, nil
}
