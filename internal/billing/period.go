package billing

import (
	"fmt"
	"strings"
	"time"
)

const (
	monthLayout = "2006-01"
	dayLayout   = "2006-01-02"

	allTimeLabel = "all-time"
)

// Period is a half-open window [Start, End). A zero Start or End leaves that
// side unbounded, so the zero Period covers the whole history.
type Period struct {
	Start time.Time
	End   time.Time
	// Month holds the YYYY-MM token when the period is a calendar month.
	Month string
	Label string
}

// AllTime returns the unbounded period.
func AllTime() Period {
	return Period{Label: allTimeLabel}
}

// ParseMonth turns a YYYY-MM token into the calendar month it names, with
// boundaries at midnight in loc (UTC when nil).
func ParseMonth(token string, loc *time.Location) (Period, error) {
	if loc == nil {
		loc = time.UTC
	}

	token = strings.TrimSpace(token)
	start, err := time.ParseInLocation(monthLayout, token, loc)
	if err != nil || len(token) != len(monthLayout) {
		return Period{}, invalid(ErrInvalidPeriod, "month %q must be formatted YYYY-MM", token)
	}

	return Period{
		Start: start,
		End:   start.AddDate(0, 1, 0),
		Month: token,
		Label: token,
	}, nil
}

// MonthOf returns the calendar month containing t, as seen in loc.
func MonthOf(t time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	token := start.Format(monthLayout)
	return Period{Start: start, End: start.AddDate(0, 1, 0), Month: token, Label: token}
}

// PreviousMonth returns the calendar month before the one containing t.
func PreviousMonth(t time.Time, loc *time.Location) Period {
	current := MonthOf(t, loc)
	return MonthOf(current.Start.AddDate(0, 0, -1), loc)
}

// NewPeriod builds an explicit window. Either bound may be zero; when both
// are set start must be strictly before end.
func NewPeriod(start, end time.Time) (Period, error) {
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return Period{}, invalid(ErrInvalidPeriod, "start %s is not before end %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	p := Period{Start: start, End: end}
	switch {
	case start.IsZero() && end.IsZero():
		p.Label = allTimeLabel
	case start.IsZero():
		p.Label = "until " + end.Format(dayLayout)
	case end.IsZero():
		p.Label = "since " + start.Format(dayLayout)
	default:
		p.Label = fmt.Sprintf("%s to %s", start.Format(dayLayout), end.Format(dayLayout))
	}
	return p, nil
}

// ParseSelector resolves the period selector accepted at the boundary: a
// month token, an explicit from/to pair (dates or RFC3339 instants, either
// side optional), or nothing at all for the whole history. Supplying both a
// month and explicit bounds is ambiguous and rejected.
func ParseSelector(month, from, to string, loc *time.Location) (Period, error) {
	month, from, to = strings.TrimSpace(month), strings.TrimSpace(from), strings.TrimSpace(to)

	if month != "" {
		if from != "" || to != "" {
			return Period{}, invalid(ErrInvalidPeriod, "month cannot be combined with from/to")
		}
		return ParseMonth(month, loc)
	}

	start, err := parseBound(from, loc)
	if err != nil {
		return Period{}, err
	}
	end, err := parseBound(to, loc)
	if err != nil {
		return Period{}, err
	}

	return NewPeriod(start, end)
}

func parseBound(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(dayLayout, value, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Time{}, invalid(ErrInvalidPeriod, "bound %q must be YYYY-MM-DD or RFC3339", value)
}

// Contains reports whether t falls inside the window.
func (p Period) Contains(t time.Time) bool {
	if !p.Start.IsZero() && t.Before(p.Start) {
		return false
	}
	if !p.End.IsZero() && !t.Before(p.End) {
		return false
	}
	return true
}

// IsAllTime reports whether the period has no bounds.
func (p Period) IsAllTime() bool {
	return p.Start.IsZero() && p.End.IsZero()
}

// String returns the human label of the period.
func (p Period) String() string {
	if p.Label != "" {
		return p.Label
	}
	if p.IsAllTime() {
		return allTimeLabel
	}
	labelled, err := NewPeriod(p.Start, p.End)
	if err != nil {
		return "invalid period"
	}
	return labelled.Label
}
