/*
Package ledger provides the billing ledger and aggregation engine.

PURPOSE:
  This package owns the data model that ties a legal case to its charge lines
  (particulars) and payment events, the rules that derive paid and outstanding
  amounts, and the reporting math that buckets cases into time windows.

KEY CONCEPTS IN THIS FILE (money.go):
  - Money: An exact monetary quantity (decimal, never float)
  - EditableAmount: The text form an amount takes while being edited
  - CoerceMoney: Fail-soft conversion of stored document values

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point drift
  2. Two forms: persisted Money vs. transient EditableAmount, converted
     explicitly at the boundary
  3. Fail-soft reads, fail-fast writes: a malformed stored amount reads as 0,
     a malformed submitted amount is rejected

USAGE:
  fee := ledger.NewMoney(5000)
  total := fee.Add(ledger.NewMoney(500))

  m, err := ledger.EditableAmount("2500.50").Parse()

SEE ALSO:
  - calculator.go: Totals computed from Money sums
  - document.go: Ingestion uses CoerceMoney
*/
package ledger

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Exact monetary quantity
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

var Zero = Money{Value: decimal.Zero}

func NewMoney(v int64) Money            { return Money{Value: decimal.NewFromInt(v)} }
func NewMoneyFromFloat(v float64) Money { return Money{Value: decimal.NewFromFloat(v)} }

func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero
	}
	return Money{Value: d}
}

func (m Money) Add(o Money) Money        { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money        { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Neg() Money               { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool             { return m.Value.IsZero() }
func (m Money) IsNegative() bool         { return m.Value.IsNegative() }
func (m Money) IsPositive() bool         { return m.Value.IsPositive() }
func (m Money) Equal(o Money) bool       { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool    { return m.Value.LessThan(o.Value) }
func (m Money) String() string           { return m.Value.String() }
func (m Money) Float64() float64         { return m.Value.InexactFloat64() }
func (m Money) Cmp(o Money) int          { return m.Value.Cmp(o.Value) }

// Format renders the amount rounded to whole currency units with comma
// separated thousands. Locale-specific grouping is left to the UI.
func (m Money) Format() string {
	s := m.Value.Round(0).String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// MarshalJSON writes the amount as a JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Value.String()), nil
}

// UnmarshalJSON accepts numbers and numeric strings.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*m = Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", s, err)
	}
	m.Value = d
	return nil
}

// Sum adds up a list of amounts.
func Sum(amounts ...Money) Money {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// =============================================================================
// EDITABLE AMOUNT - Text form used while editing
// =============================================================================

// EditableAmount is the textual amount a user is typing. It is never stored.
type EditableAmount string

// Parse converts the text strictly. Empty or non-numeric text is an error.
func (e EditableAmount) Parse() (Money, error) {
	s := strings.TrimSpace(string(e))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return Zero, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("amount %q is not a number", string(e))
	}
	return Money{Value: d}, nil
}

// Money converts the text, defaulting to zero when it cannot be parsed.
func (e EditableAmount) Money() Money {
	m, err := e.Parse()
	if err != nil {
		return Zero
	}
	return m
}

// EditableFrom renders a stored amount back into its editable form.
func EditableFrom(m Money) EditableAmount {
	return EditableAmount(m.String())
}

// UnmarshalJSON accepts a JSON string or a bare number. Content is kept as
// text; Parse decides whether it is valid.
func (e *EditableAmount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*e = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*e = EditableAmount(str)
		return nil
	}
	*e = EditableAmount(s)
	return nil
}

// =============================================================================
// COERCION - Document values to Money
// =============================================================================

// CoerceMoney converts a loosely typed document value to Money.
// Missing or non-numeric values coerce to zero.
func CoerceMoney(v any) Money {
	switch x := v.(type) {
	case nil:
		return Zero
	case Money:
		return x
	case decimal.Decimal:
		return Money{Value: x}
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Zero
		}
		return NewMoneyFromFloat(x)
	case float32:
		return CoerceMoney(float64(x))
	case int:
		return NewMoney(int64(x))
	case int32:
		return NewMoney(int64(x))
	case int64:
		return NewMoney(x)
	case json.Number:
		return EditableAmount(x.String()).Money()
	case string:
		return EditableAmount(x).Money()
	default:
		return Zero
	}
}
