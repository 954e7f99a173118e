package core

import (
	"fmt"
	"strings"
	"time"
)

// Period names a reporting window that always ends "now".
type Period string

const (
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
	PeriodYear    Period = "year"
)

// ParsePeriod accepts month/quarter/year in any case and a few common synonyms.
// An empty string means month.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "month", "monthly", "this month", "mtd":
		return PeriodMonth, nil
	case "quarter", "quarterly", "this quarter", "qtd":
		return PeriodQuarter, nil
	case "year", "yearly", "annual", "this year", "ytd":
		return PeriodYear, nil
	}
	return "", NewValidationError("period", fmt.Sprintf("I don't know the period %q. Use month, quarter or year.", s))
}

// DateRange is an inclusive [Start, End] window.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies within the range, bounds included.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s to %s", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
}

// ResolvePeriod is the single definition of reporting periods used by every report.
//
//	month:   first day of the current month through now
//	quarter: first day of the current 3-month block (months Jan, Apr, Jul, Oct) through now
//	year:    January 1 of the current year through now
func ResolvePeriod(p Period, now time.Time) (DateRange, error) {
	loc := now.Location()
	var start time.Time
	switch p {
	case PeriodMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	case PeriodQuarter:
		first := time.Month((int(now.Month())-1)/3*3 + 1)
		start = time.Date(now.Year(), first, 1, 0, 0, 0, 0, loc)
	case PeriodYear:
		start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc)
	default:
		return DateRange{}, NewValidationError("period", fmt.Sprintf("unknown period %q", p))
	}
	return DateRange{Start: start, End: now}, nil
}

// TrailingYear is the 12 months ending now. Used for the VAT registration threshold test.
func TrailingYear(now time.Time) DateRange {
	return DateRange{Start: now.AddDate(-1, 0, 0), End: now}
}
