/*
calculator.go - Paid and outstanding amounts for a case

PURPOSE:
  Derives the three money figures every view shows for a case. Nothing
  here is stored as a source of truth: the figures are recomputed from
  the particulars and payments whenever either changes.

RECONCILIATION INVARIANT:
  Total == Paid + Remaining, for every case, after every mutation.

  Total     = sum of particular amounts
  Paid      = sum of payment amounts
  Remaining = Total - Paid   (never clamped; negative means overpaid)

SETTLEMENT STATES:
  Remaining > 0   Outstanding
  Remaining == 0  Settled
  Remaining < 0   Overpaid

  The three states are kept apart; views must not collapse them into a
  paid/unpaid boolean.

SEE ALSO:
  - case.go: Case.Recompute
  - document.go: Amount coercion happens at ingestion, before this runs
*/
package ledger

// =============================================================================
// TOTALS
// =============================================================================

type Totals struct {
	Total     Money
	Paid      Money
	Remaining Money
}

type Settlement string

const (
	SettlementOutstanding Settlement = "outstanding"
	SettlementSettled     Settlement = "settled"
	SettlementOverpaid    Settlement = "overpaid"
)

func (t Totals) Settlement() Settlement {
	switch {
	case t.Remaining.IsPositive():
		return SettlementOutstanding
	case t.Remaining.IsNegative():
		return SettlementOverpaid
	default:
		return SettlementSettled
	}
}

// Reconciles reports whether Total == Paid + Remaining.
func (t Totals) Reconciles() bool {
	return t.Total.Equal(t.Paid.Add(t.Remaining))
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculate sums particulars and payments. It is pure: the same inputs
// always give the same totals.
func Calculate(particulars []Particular, payments []Payment) Totals {
	total := Zero
	for _, p := range particulars {
		total = total.Add(p.Amount)
	}

	paid := Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}

	return Totals{Total: total, Paid: paid, Remaining: total.Sub(paid)}
}
