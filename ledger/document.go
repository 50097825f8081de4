/*
document.go - Case documents in and out of the store

PURPOSE:
  The store keeps each case as a flat field map keyed by an opaque id, with
  particulars and payments as ordered lists of flat maps. Older documents
  may lack fields or carry amounts as text. This file is the single place
  where those shapes become a typed Case, with defaults applied once:

    payments          absent        -> empty list
    any amount        missing/bad   -> 0
    date strings      any format    -> tri-state Date (see date.go)
    appearanceDate    non-appearance type -> dropped
    totalAmount etc.  stored        -> ignored, recomputed

  ToDocument writes the full field set back, including the derived totals
  so external readers of the raw store see consistent numbers.

SEE ALSO:
  - store.go: DocumentStore interface
  - calculator.go: Recompute after ingestion
*/
package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is a case as stored: a flat field map.
type Document map[string]any

// Record pairs a document with its store-assigned id.
type Record struct {
	ID  CaseID
	Doc Document
}

// Document field names.
const (
	FieldBillNumber      = "billNumber"
	FieldCaseNumber      = "caseNumber"
	FieldCaseDescription = "caseDescription"
	FieldDate            = "date"
	FieldParticulars     = "particulars"
	FieldPayments        = "payments"
	FieldTotalAmount     = "totalAmount"
	FieldPaidAmount      = "paidAmount"
	FieldRemainingAmount = "remainingAmount"

	FieldType           = "type"
	FieldCustomType     = "customType"
	FieldAmount         = "amount"
	FieldAppearanceDate = "appearanceDate"
	FieldMethod         = "method"
)

// =============================================================================
// INGESTION - Document to Case
// =============================================================================

// FromDocument builds a Case from a stored record and recomputes its totals.
func FromDocument(n Normalizer, rec Record) Case {
	doc := rec.Doc
	c := Case{
		ID: rec.ID,
		Identifiers: Identifiers{
			BillNumber:      stringField(doc, FieldBillNumber),
			CaseNumber:      stringField(doc, FieldCaseNumber),
			CaseDescription: stringField(doc, FieldCaseDescription),
		},
		Date:     n.Parse(stringField(doc, FieldDate)),
		Payments: []Payment{},
	}

	for _, m := range mapList(doc[FieldParticulars]) {
		p := Particular{
			Type:       ParticularType(stringField(m, FieldType)),
			CustomType: stringField(m, FieldCustomType),
			Amount:     storedAmount(m[FieldAmount]),
		}
		if p.Type.IsAppearance() {
			p.AppearanceDate = n.Parse(stringField(m, FieldAppearanceDate))
		}
		c.Particulars = append(c.Particulars, p)
	}

	for _, m := range mapList(doc[FieldPayments]) {
		c.Payments = append(c.Payments, Payment{
			Amount: storedAmount(m[FieldAmount]),
			Method: PaymentMethod(stringField(m, FieldMethod)),
			Date:   n.Parse(stringField(m, FieldDate)),
		})
	}

	c.Recompute()
	return c
}

// FromRecords ingests a full snapshot.
func FromRecords(n Normalizer, recs []Record) []Case {
	cases := make([]Case, 0, len(recs))
	for _, r := range recs {
		cases = append(cases, FromDocument(n, r))
	}
	return cases
}

// storedAmount coerces a stored amount and clamps negatives to zero.
// Payments keep their position so index-addressed removal still matches
// the stored list.
func storedAmount(v any) Money {
	m := CoerceMoney(v)
	if m.IsNegative() {
		return Zero
	}
	return m
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// mapList accepts the list shapes produced by JSON decoding and by
// in-process stores.
func mapList(v any) []map[string]any {
	switch xs := v.(type) {
	case []map[string]any:
		return xs
	case []Document:
		out := make([]map[string]any, len(xs))
		for i, d := range xs {
			out[i] = d
		}
		return out
	case []any:
		out := make([]map[string]any, 0, len(xs))
		for _, x := range xs {
			switch m := x.(type) {
			case map[string]any:
				out = append(out, m)
			case Document:
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// =============================================================================
// SERIALIZATION - Case to Document
// =============================================================================

// ToDocument writes every persisted field of c.
func ToDocument(c Case) Document {
	doc := IdentifierFields(c.Identifiers)
	doc[FieldDate] = c.Date.ISO()
	doc[FieldParticulars] = ParticularDocs(c.Particulars)
	for k, v := range PaymentFields(c) {
		doc[k] = v
	}
	doc[FieldTotalAmount] = moneyField(c.TotalAmount)
	return doc
}

// IdentifierFields is the partial update for an identifier edit.
func IdentifierFields(id Identifiers) Document {
	return Document{
		FieldBillNumber:      id.BillNumber,
		FieldCaseNumber:      id.CaseNumber,
		FieldCaseDescription: id.CaseDescription,
	}
}

// ParticularDocs serializes the particulars list.
func ParticularDocs(ps []Particular) []any {
	out := make([]any, 0, len(ps))
	for _, p := range ps {
		d := Document{
			FieldType:   string(p.Type),
			FieldAmount: moneyField(p.Amount),
		}
		if p.CustomType != "" {
			d[FieldCustomType] = p.CustomType
		}
		if p.Type.IsAppearance() && p.AppearanceDate.Valid() {
			d[FieldAppearanceDate] = p.AppearanceDate.ISO()
		}
		out = append(out, d)
	}
	return out
}

// PaymentFields is the partial update written after a payment change.
func PaymentFields(c Case) Document {
	pays := make([]any, 0, len(c.Payments))
	for _, p := range c.Payments {
		pays = append(pays, Document{
			FieldAmount: moneyField(p.Amount),
			FieldMethod: string(p.Method),
			FieldDate:   p.Date.ISO(),
		})
	}
	return Document{
		FieldPayments:        pays,
		FieldPaidAmount:      moneyField(c.PaidAmount),
		FieldRemainingAmount: moneyField(c.RemainingAmount),
	}
}

func moneyField(m Money) json.Number {
	return json.Number(m.String())
}

// =============================================================================
// COPYING
// =============================================================================

// Clone deep-copies a document, including nested lists and maps.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

// Merge overlays fields onto d, returning a new document.
func (d Document) Merge(fields Document) Document {
	out := d.Clone()
	if out == nil {
		out = Document{}
	}
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case Document:
		return x.Clone()
	case map[string]any:
		return map[string]any(Document(x).Clone())
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []Document:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e.Clone()
		}
		return out
	case []map[string]any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = map[string]any(Document(e).Clone())
		}
		return out
	default:
		return v
	}
}

// DecodeDocument parses JSON keeping numbers exact.
func DecodeDocument(data []byte) (Document, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode case document: %w", err)
	}
	return doc, nil
}
