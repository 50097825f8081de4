package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// WINDOW - Named reporting range
// =============================================================================

type Window string

const (
	WindowToday Window = "today"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
	WindowYear  Window = "year"
	WindowAll   Window = "all"
)

var Windows = []Window{WindowToday, WindowWeek, WindowMonth, WindowYear, WindowAll}

// ParseWindow reads a window name. Empty means All.
func ParseWindow(s string) (Window, error) {
	if s == "" {
		return WindowAll, nil
	}
	w := Window(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Windows {
		if w == known {
			return w, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownWindow, s)
}

// =============================================================================
// PERIOD - Half-open time range
// =============================================================================

// Period is the range [Start, End). A zero Period is unbounded.
type Period struct {
	Start time.Time
	End   time.Time
}

func (p Period) Unbounded() bool { return p.Start.IsZero() && p.End.IsZero() }

// Contains returns true if t is within [Start, End).
func (p Period) Contains(t time.Time) bool {
	if p.Unbounded() {
		return true
	}
	return !t.Before(p.Start) && t.Before(p.End)
}

func (p Period) String() string {
	if p.Unbounded() {
		return "[all]"
	}
	return "[" + p.Start.Format(time.RFC3339) + ", " + p.End.Format(time.RFC3339) + ")"
}

// =============================================================================
// REPORTER - Calendar settings shared by filter and aggregator
// =============================================================================

// Reporter filters and aggregates cases. Weeks start on WeekStart and calendar
// boundaries are taken in Location.
type Reporter struct {
	WeekStart time.Weekday
	Location  *time.Location
}

// DefaultReporter uses Monday-start weeks in UTC.
func DefaultReporter() Reporter {
	return Reporter{WeekStart: time.Monday, Location: time.UTC}
}

func (r Reporter) loc() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// PeriodFor returns the calendar range for window containing asOf.
func (r Reporter) PeriodFor(w Window, asOf time.Time) Period {
	at := asOf.In(r.loc())
	switch w {
	case WindowToday:
		start := StartOfDay(at)
		return Period{Start: start, End: start.AddDate(0, 0, 1)}
	case WindowWeek:
		start := StartOfWeek(at, r.WeekStart)
		return Period{Start: start, End: start.AddDate(0, 0, 7)}
	case WindowMonth:
		start := StartOfMonth(at)
		return Period{Start: start, End: start.AddDate(0, 1, 0)}
	case WindowYear:
		start := StartOfYear(at)
		return Period{Start: start, End: start.AddDate(1, 0, 0)}
	default:
		return Period{}
	}
}

// =============================================================================
// FILTER
// =============================================================================

// Filter returns the cases whose date falls in the window, most recent first.
// Cases without a readable date are excluded from every window, All included;
// use Unparsed to list them.
func (r Reporter) Filter(cases []Case, w Window, asOf time.Time) []Case {
	period := r.PeriodFor(w, asOf)
	out := make([]Case, 0, len(cases))
	for _, c := range cases {
		if !c.Date.Valid() || !period.Contains(c.Date.Time) {
			continue
		}
		out = append(out, c)
	}
	sortByDateDesc(out)
	return out
}

// FilterPayments returns the payments of c received within the window.
func (r Reporter) FilterPayments(c Case, w Window, asOf time.Time) []Payment {
	period := r.PeriodFor(w, asOf)
	var out []Payment
	for _, p := range c.Payments {
		if p.Date.Valid() && period.Contains(p.Date.Time) {
			out = append(out, p)
		}
	}
	return out
}

// Unparsed returns the cases whose date is missing or unreadable.
func Unparsed(cases []Case) []Case {
	var out []Case
	for _, c := range cases {
		if !c.Date.Valid() {
			out = append(out, c)
		}
	}
	return out
}

// SortByDate returns every case, most recent first. Cases without a readable
// date sort as the zero instant, so they end up last.
func SortByDate(cases []Case) []Case {
	out := append([]Case(nil), cases...)
	sortByDateDesc(out)
	return out
}

func sortByDateDesc(cases []Case) {
	sort.SliceStable(cases, func(i, j int) bool {
		a, b := cases[i].Date.SortKey(), cases[j].Date.SortKey()
		if !a.Equal(b) {
			return a.After(b)
		}
		return cases[i].ID < cases[j].ID
	})
}
