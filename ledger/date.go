package ledger

import (
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// DATE - Tri-state normalized date
// =============================================================================

// DateStatus records how a raw date string fared during normalization.
// Unparsed is an outcome, not an error: read paths skip such records.
type DateStatus int

const (
	DateMissing  DateStatus = iota // no value was supplied
	DateParsed                     // Time holds a usable instant
	DateUnparsed                   // a value was supplied but could not be read
)

func (s DateStatus) String() string {
	switch s {
	case DateParsed:
		return "parsed"
	case DateUnparsed:
		return "unparsed"
	default:
		return "missing"
	}
}

// Date is a normalized date together with the raw text it came from.
type Date struct {
	Raw    string
	Time   time.Time
	Status DateStatus
}

func (d Date) Valid() bool { return d.Status == DateParsed }

// SortKey returns the instant used for ordering. Invalid dates sort as the
// zero instant so they sink to the bottom of a descending listing.
func (d Date) SortKey() time.Time {
	if !d.Valid() {
		return time.Time{}
	}
	return d.Time
}

// ISO returns the canonical YYYY-MM-DD form, or the raw text when invalid.
func (d Date) ISO() string {
	if !d.Valid() {
		return d.Raw
	}
	return d.Time.Format(isoDate)
}

// DateOf builds a parsed date for a calendar day.
func DateOf(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{Raw: t.Format(isoDate), Time: t, Status: DateParsed}
}

// =============================================================================
// NORMALIZER - Heterogeneous strings to instants
// =============================================================================

// DateOrder says how a non-ISO "a-b-c" string is read.
type DateOrder string

const (
	OrderDMY DateOrder = "DMY" // 15-03-2024
	OrderMDY DateOrder = "MDY" // 03-15-2024
)

const isoDate = "2006-01-02"

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	isoDate,
}

// Normalizer parses ISO-8601 dates and numeric day/month/year strings.
// It is best-effort: ambiguous strings are read using Order without
// disambiguation.
type Normalizer struct {
	Order    DateOrder
	Location *time.Location
}

// DefaultNormalizer reads non-ISO dates as day-month-year in UTC.
func DefaultNormalizer() Normalizer {
	return Normalizer{Order: OrderDMY, Location: time.UTC}
}

func (n Normalizer) loc() *time.Location {
	if n.Location == nil {
		return time.UTC
	}
	return n.Location
}

// Normalize returns the instant for raw, or false when it cannot be read.
func (n Normalizer) Normalize(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, n.loc()); err == nil {
			return t.In(n.loc()), true
		}
	}

	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '/' })
	if len(parts) != 3 || strings.Count(s, "-")+strings.Count(s, "/") != 2 {
		return time.Time{}, false
	}
	nums := make([]int, 3)
	for i, p := range parts {
		if !allDigits(p) {
			return time.Time{}, false
		}
		nums[i], _ = strconv.Atoi(p)
	}

	var day, month, year int
	switch {
	case len(parts[0]) == 4:
		year, month, day = nums[0], nums[1], nums[2]
	case n.Order == OrderMDY:
		month, day, year = nums[0], nums[1], nums[2]
	default:
		day, month, year = nums[0], nums[1], nums[2]
	}

	if month < 1 || month > 12 || day < 1 || year < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, n.loc())
	// time.Date rolls 31-02 over into March; treat that as unreadable.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

// Parse wraps Normalize into a tri-state Date.
func (n Normalizer) Parse(raw string) Date {
	if strings.TrimSpace(raw) == "" {
		return Date{Raw: raw, Status: DateMissing}
	}
	t, ok := n.Normalize(raw)
	if !ok {
		return Date{Raw: raw, Status: DateUnparsed}
	}
	return Date{Raw: raw, Time: t, Status: DateParsed}
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// =============================================================================
// CALENDAR UTILITIES
// =============================================================================

func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func StartOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns midnight of the most recent weekStart on or before t.
func StartOfWeek(t time.Time, weekStart time.Weekday) time.Time {
	offset := (int(t.Weekday()) - int(weekStart) + 7) % 7
	return StartOfDay(t).AddDate(0, 0, -offset)
}
