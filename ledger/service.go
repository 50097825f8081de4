/*
service.go - Ledger mutations

PURPOSE:
  The only write path into the ledger. Each operation validates its input,
  loads the current case when it needs one, applies the change to the typed
  Case, recomputes the derived totals, and writes the resulting fields to
  the store in a single Update (or Create).

OPERATIONS:
  CreateCase         identifiers + date + >=1 particular, no payments
  UpdateCaseDetails  identifiers and/or date and/or full particulars list
  RecordPayment      append one payment
  RemovePayment      drop one payment by index
  GetCase            read one case

ATOMICITY:
  Validation runs before any store call; a rejected mutation writes
  nothing. Each mutation is one store write at single-case granularity.
  There is no cross-case transaction and no per-case lock: the store is
  last-write-wins.

FAILURES:
  ValidationError   input rejected before any write
  NotFoundError     unknown case id
  PersistenceError  store failed; never retried here, the caller decides

SEE ALSO:
  - document.go: Field maps written by each operation
  - calculator.go: Recompute
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// INPUTS
// =============================================================================

// NewParticular is a charge line as submitted by a form.
type NewParticular struct {
	Type           ParticularType `json:"type" validate:"required"`
	CustomType     string         `json:"custom_type"`
	Amount         EditableAmount `json:"amount" validate:"required"`
	AppearanceDate string         `json:"appearance_date"`
}

// NewCase is the input to CreateCase.
type NewCase struct {
	Identifiers
	Date        string          `json:"date" validate:"required"`
	Particulars []NewParticular `json:"particulars" validate:"required,min=1,dive"`
}

// CaseUpdate is the input to UpdateCaseDetails. Nil fields are left as is.
type CaseUpdate struct {
	Identifiers *Identifiers    `json:"identifiers,omitempty" validate:"omitempty"`
	Date        *string         `json:"date,omitempty"`
	Particulars []NewParticular `json:"particulars,omitempty" validate:"omitempty,dive"`
}

// NewPayment is the input to RecordPayment.
type NewPayment struct {
	Amount EditableAmount `json:"amount" validate:"required"`
	Method PaymentMethod  `json:"method" validate:"required"`
	Date   string         `json:"date" validate:"required"`
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store      DocumentStore
	Normalizer Normalizer

	validate *validator.Validate
}

func NewService(store DocumentStore, n Normalizer) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &Service{Store: store, Normalizer: n, validate: v}
}

// CreateCase validates input and stores a new case with no payments.
func (s *Service) CreateCase(ctx context.Context, in NewCase) (Case, error) {
	// Trimmed first so whitespace-only identifiers fail "required".
	in.Identifiers = trimIdentifiers(in.Identifiers)
	if err := s.check(in); err != nil {
		return Case{}, err
	}

	date, err := s.requireDate("date", in.Date)
	if err != nil {
		return Case{}, err
	}
	particulars, err := s.buildParticulars(in.Particulars)
	if err != nil {
		return Case{}, err
	}

	c := Case{
		Identifiers: in.Identifiers,
		Date:        date,
		Particulars: particulars,
		Payments:    []Payment{},
	}
	c.Recompute()

	id, err := s.Store.Create(ctx, ToDocument(c))
	if err != nil {
		return Case{}, &PersistenceError{Op: "create case", Err: err}
	}
	c.ID = id
	return c, nil
}

// UpdateCaseDetails replaces identifiers, date and/or the particulars list.
// Payments are untouched.
func (s *Service) UpdateCaseDetails(ctx context.Context, id CaseID, u CaseUpdate) (Case, error) {
	if u.Identifiers != nil {
		trimmed := trimIdentifiers(*u.Identifiers)
		u.Identifiers = &trimmed
	}
	if err := s.check(u); err != nil {
		return Case{}, err
	}
	if u.Particulars != nil && len(u.Particulars) == 0 {
		return Case{}, &ValidationError{Field: "particulars", Reason: "at least one particular is required"}
	}

	fields := Document{}
	var (
		date        Date
		particulars []Particular
		err         error
	)
	if u.Date != nil {
		if date, err = s.requireDate("date", *u.Date); err != nil {
			return Case{}, err
		}
	}
	if u.Particulars != nil {
		if particulars, err = s.buildParticulars(u.Particulars); err != nil {
			return Case{}, err
		}
	}

	c, err := s.GetCase(ctx, id)
	if err != nil {
		return Case{}, err
	}

	if u.Identifiers != nil {
		c.Identifiers = *u.Identifiers
		for k, v := range IdentifierFields(c.Identifiers) {
			fields[k] = v
		}
	}
	if u.Date != nil {
		c.Date = date
		fields[FieldDate] = date.ISO()
	}
	if u.Particulars != nil {
		c.Particulars = particulars
		fields[FieldParticulars] = ParticularDocs(particulars)
	}

	c.Recompute()
	fields[FieldTotalAmount] = moneyField(c.TotalAmount)
	fields[FieldRemainingAmount] = moneyField(c.RemainingAmount)

	if err := s.write(ctx, id, fields, "update case"); err != nil {
		return Case{}, err
	}
	return c, nil
}

// RecordPayment appends one payment to a case.
func (s *Service) RecordPayment(ctx context.Context, id CaseID, in NewPayment) (Case, error) {
	if err := s.check(in); err != nil {
		return Case{}, err
	}
	amount, err := in.Amount.Parse()
	if err != nil {
		return Case{}, &ValidationError{Field: "amount", Reason: err.Error()}
	}
	if !amount.IsPositive() {
		return Case{}, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if !in.Method.Valid() {
		return Case{}, &ValidationError{Field: "method", Reason: fmt.Sprintf("must be one of %v", PaymentMethods)}
	}
	date, err := s.requireDate("date", in.Date)
	if err != nil {
		return Case{}, err
	}

	c, err := s.GetCase(ctx, id)
	if err != nil {
		return Case{}, err
	}
	c.Payments = append(c.Payments, Payment{Amount: amount, Method: in.Method, Date: date})
	c.Recompute()

	if err := s.write(ctx, id, PaymentFields(c), "record payment"); err != nil {
		return Case{}, err
	}
	return c, nil
}

// RemovePayment drops the payment at index, keeping the totals reconciled.
func (s *Service) RemovePayment(ctx context.Context, id CaseID, index int) (Case, error) {
	c, err := s.GetCase(ctx, id)
	if err != nil {
		return Case{}, err
	}
	if index < 0 || index >= len(c.Payments) {
		return Case{}, &ValidationError{Field: "index", Reason: fmt.Sprintf("no payment at position %d", index)}
	}
	c.Payments = append(c.Payments[:index:index], c.Payments[index+1:]...)
	c.Recompute()

	if err := s.write(ctx, id, PaymentFields(c), "remove payment"); err != nil {
		return Case{}, err
	}
	return c, nil
}

// GetCase loads and ingests one case.
func (s *Service) GetCase(ctx context.Context, id CaseID) (Case, error) {
	doc, err := s.Store.Get(ctx, id)
	if errors.Is(err, ErrCaseNotFound) {
		return Case{}, &NotFoundError{CaseID: id}
	}
	if err != nil {
		return Case{}, &PersistenceError{Op: "load case", CaseID: id, Err: err}
	}
	return FromDocument(s.Normalizer, Record{ID: id, Doc: doc}), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) write(ctx context.Context, id CaseID, fields Document, op string) error {
	err := s.Store.Update(ctx, id, fields)
	if errors.Is(err, ErrCaseNotFound) {
		return &NotFoundError{CaseID: id}
	}
	if err != nil {
		return &PersistenceError{Op: op, CaseID: id, Err: err}
	}
	return nil
}

// check runs struct-tag validation and reports the first failing field.
func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fieldPath(fe.Namespace()), Reason: reasonFor(fe)}
	}
	return &ValidationError{Field: "input", Reason: err.Error()}
}

// fieldPath drops the struct name: "NewCase.particulars[0].amount" -> "particulars[0].amount".
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "needs at least " + fe.Param() + " item(s)"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func (s *Service) requireDate(field, raw string) (Date, error) {
	t, ok := s.Normalizer.Normalize(raw)
	if !ok {
		return Date{}, &ValidationError{Field: field, Reason: fmt.Sprintf("unreadable date %q", raw)}
	}
	// Stored in canonical form so later reads never depend on DateOrder.
	iso := t.Format(isoDate)
	return Date{Raw: iso, Time: t, Status: DateParsed}, nil
}

func (s *Service) buildParticulars(in []NewParticular) ([]Particular, error) {
	out := make([]Particular, 0, len(in))
	for i, np := range in {
		field := fmt.Sprintf("particulars[%d]", i)

		if _, ok := LookupParticularType(np.Type); !ok {
			return nil, &ValidationError{Field: field + ".type", Reason: fmt.Sprintf("unknown particular type %q", np.Type)}
		}
		amount, err := np.Amount.Parse()
		if err != nil {
			return nil, &ValidationError{Field: field + ".amount", Reason: err.Error()}
		}
		if amount.IsNegative() {
			return nil, &ValidationError{Field: field + ".amount", Reason: "must not be negative"}
		}

		p := Particular{
			Type:       np.Type,
			CustomType: strings.TrimSpace(np.CustomType),
			Amount:     amount,
		}
		if p.Type != ParticularOther {
			p.CustomType = ""
		}
		if p.Type.IsAppearance() && strings.TrimSpace(np.AppearanceDate) != "" {
			if p.AppearanceDate, err = s.requireDate(field+".appearance_date", np.AppearanceDate); err != nil {
				return nil, err
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func trimIdentifiers(id Identifiers) Identifiers {
	return Identifiers{
		BillNumber:      strings.TrimSpace(id.BillNumber),
		CaseNumber:      strings.TrimSpace(id.CaseNumber),
		CaseDescription: strings.TrimSpace(id.CaseDescription),
	}
}
