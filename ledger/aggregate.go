/*
aggregate.go - Window summaries and chart buckets

PURPOSE:
  Reduces a filtered case set into headline statistics and into a
  chronologically ordered series of per-bucket totals for charting.

BUCKET KEYS:
  today  -> hour of day      "09:00"
  week   -> day of week      "Mon"
  month  -> day of month     "15"
  year   -> month            "Jan"
  all    -> month and year   "Jan 2024"

ORDERING:
  Buckets are ordered by the earliest instant that landed in them, never
  by label. Day names sort Mon..Sun (for a Monday week start) and months
  Jan..Dec. The instant is kept only for sorting and is not exported.

CONSISTENCY:
  Stats.TotalRemaining == Stats.TotalBilled - Stats.TotalPaymentsReceived
  Stats.TotalBilled    == sum of Buckets[].Billed

  The second holds because Filter already dropped every case without a
  readable date, and only those cases would lack a bucket key.

SEE ALSO:
  - period.go: Filter and window ranges
  - view.go: Aggregates the live snapshot
*/
package ledger

import (
	"sort"
	"strconv"
	"time"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

type Stats struct {
	TotalBilled           Money `json:"total_billed"`
	TotalCases            int   `json:"total_cases"`
	TotalPaymentsReceived Money `json:"total_payments_received"`
	TotalRemaining        Money `json:"total_remaining"`
}

type Bucket struct {
	Label  string `json:"label"`
	Billed Money  `json:"billed"`
	Paid   Money  `json:"paid"`
	Cases  int    `json:"cases"`

	at time.Time
}

type Report struct {
	Window  Window    `json:"window"`
	AsOf    time.Time `json:"as_of"`
	Period  Period    `json:"-"`
	Stats   Stats     `json:"stats"`
	Buckets []Bucket  `json:"buckets"`
}

// =============================================================================
// AGGREGATE
// =============================================================================

// Aggregate filters cases to the window and summarizes them.
func (r Reporter) Aggregate(cases []Case, w Window, asOf time.Time) Report {
	filtered := r.Filter(cases, w, asOf)
	return Report{
		Window:  w,
		AsOf:    asOf,
		Period:  r.PeriodFor(w, asOf),
		Stats:   Summarize(filtered),
		Buckets: r.Buckets(filtered, w),
	}
}

// Summarize computes straight sums over an already-filtered set.
func Summarize(cases []Case) Stats {
	s := Stats{TotalBilled: Zero, TotalPaymentsReceived: Zero}
	for _, c := range cases {
		s.TotalBilled = s.TotalBilled.Add(c.TotalAmount)
		s.TotalPaymentsReceived = s.TotalPaymentsReceived.Add(c.PaidAmount)
		s.TotalCases++
	}
	s.TotalRemaining = s.TotalBilled.Sub(s.TotalPaymentsReceived)
	return s
}

// Buckets groups cases by the window's key, in chronological order.
// Cases without a readable date never land in a bucket.
func (r Reporter) Buckets(cases []Case, w Window) []Bucket {
	index := make(map[string]int)
	var buckets []Bucket

	for _, c := range cases {
		if !c.Date.Valid() {
			continue
		}
		at := c.Date.Time.In(r.loc())
		label := BucketLabel(w, at)

		i, ok := index[label]
		if !ok {
			i = len(buckets)
			index[label] = i
			buckets = append(buckets, Bucket{Label: label, Billed: Zero, Paid: Zero, at: at})
		}
		b := &buckets[i]
		b.Billed = b.Billed.Add(c.TotalAmount)
		b.Paid = b.Paid.Add(c.PaidAmount)
		b.Cases++
		if at.Before(b.at) {
			b.at = at
		}
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].at.Before(buckets[j].at)
	})
	if buckets == nil {
		buckets = []Bucket{}
	}
	return buckets
}

// BucketLabel returns the bucket key of t for window w.
func BucketLabel(w Window, t time.Time) string {
	switch w {
	case WindowToday:
		return t.Format("15:00")
	case WindowWeek:
		return t.Format("Mon")
	case WindowMonth:
		return strconv.Itoa(t.Day())
	case WindowYear:
		return t.Format("Jan")
	default:
		return t.Format("Jan 2006")
	}
}

// =============================================================================
// PAYMENT ACTIVITY - Money received, by payment date
// =============================================================================

// PaymentActivity sums payments whose own date falls in the window,
// regardless of when the case was billed.
type PaymentActivity struct {
	Window   Window                  `json:"window"`
	Count    int                     `json:"count"`
	Total    Money                   `json:"total"`
	ByMethod map[PaymentMethod]Money `json:"by_method"`
}

func (r Reporter) PaymentActivity(cases []Case, w Window, asOf time.Time) PaymentActivity {
	act := PaymentActivity{Window: w, Total: Zero, ByMethod: make(map[PaymentMethod]Money)}
	for _, c := range cases {
		for _, p := range r.FilterPayments(c, w, asOf) {
			act.Count++
			act.Total = act.Total.Add(p.Amount)
			method := p.Method
			if method == "" {
				method = "Unspecified"
			}
			act.ByMethod[method] = act.ByMethod[method].Add(p.Amount)
		}
	}
	return act
}
