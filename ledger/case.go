package ledger

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CaseID string

// PaymentMethod is how a payment was received. The empty value means unset.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "Cash"
	MethodOnline       PaymentMethod = "Online"
	MethodCheque       PaymentMethod = "Cheque"
	MethodBankTransfer PaymentMethod = "Bank Transfer"
)

// PaymentMethods is the closed set accepted when recording a payment.
var PaymentMethods = []PaymentMethod{MethodCash, MethodOnline, MethodCheque, MethodBankTransfer}

func (m PaymentMethod) Valid() bool {
	for _, pm := range PaymentMethods {
		if m == pm {
			return true
		}
	}
	return false
}

// =============================================================================
// PARTICULAR - One charge line
// =============================================================================

type Particular struct {
	Type       ParticularType
	CustomType string
	Amount     Money

	// AppearanceDate is only meaningful for appearance-type charges.
	AppearanceDate Date
}

// DisplayName is the custom label for "Other" charges, else the type.
func (p Particular) DisplayName() string {
	if p.Type == ParticularOther && p.CustomType != "" {
		return p.CustomType
	}
	return string(p.Type)
}

// =============================================================================
// PAYMENT - One amount received
// =============================================================================

type Payment struct {
	Amount Money
	Method PaymentMethod
	Date   Date
}

// =============================================================================
// CASE - Aggregate root
// =============================================================================

// Identifiers are the human-facing fields that name a case.
type Identifiers struct {
	BillNumber      string `json:"bill_number" validate:"required"`
	CaseNumber      string `json:"case_number" validate:"required"`
	CaseDescription string `json:"case_description" validate:"required"`
}

// Case is a billing record for one legal matter. The case exclusively owns
// its particulars and payments. TotalAmount, PaidAmount and RemainingAmount
// are derived; call Recompute after changing either collection.
type Case struct {
	ID CaseID
	Identifiers
	Date Date

	Particulars []Particular
	Payments    []Payment

	TotalAmount     Money
	PaidAmount      Money
	RemainingAmount Money
}

// Totals returns the derived amounts as a value.
func (c Case) Totals() Totals {
	return Totals{Total: c.TotalAmount, Paid: c.PaidAmount, Remaining: c.RemainingAmount}
}

// Settlement classifies the case as outstanding, settled or overpaid.
func (c Case) Settlement() Settlement {
	return c.Totals().Settlement()
}

// Recompute refreshes the derived amounts from particulars and payments.
func (c *Case) Recompute() {
	t := Calculate(c.Particulars, c.Payments)
	c.TotalAmount = t.Total
	c.PaidAmount = t.Paid
	c.RemainingAmount = t.Remaining
}

// Clone returns a deep copy so callers can't mutate shared snapshots.
func (c Case) Clone() Case {
	out := c
	out.Particulars = append([]Particular(nil), c.Particulars...)
	out.Payments = append([]Payment(nil), c.Payments...)
	if out.Payments == nil {
		out.Payments = []Payment{}
	}
	return out
}
