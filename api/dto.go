/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Cases:     CaseDTO, ParticularDTO, PaymentDTO
  Requests:  CreateCaseRequest, UpdateCaseRequest, RecordPaymentRequest
  Reports:   SummaryResponse, ReportSnapshotDTO
  Scenarios: ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request bodies are converted to ledger inputs and validated there.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/service.go: Input types
*/
package api

import (
	"time"

	"github.com/warp/billing-ledger/ledger"
)

// =============================================================================
// CASES
// =============================================================================

type ParticularDTO struct {
	Type           string       `json:"type"`
	CustomType     string       `json:"custom_type,omitempty"`
	DisplayName    string       `json:"display_name"`
	Amount         ledger.Money `json:"amount"`
	AppearanceDate string       `json:"appearance_date,omitempty"`
}

type PaymentDTO struct {
	Index  int          `json:"index"`
	Amount ledger.Money `json:"amount"`
	Method string       `json:"method,omitempty"`
	Date   string       `json:"date"`
}

// CaseDTO represents a case in API responses.
type CaseDTO struct {
	ID              string          `json:"id"`
	BillNumber      string          `json:"bill_number"`
	CaseNumber      string          `json:"case_number"`
	CaseDescription string          `json:"case_description"`
	Date            string          `json:"date"`
	DateStatus      string          `json:"date_status"`
	Particulars     []ParticularDTO `json:"particulars"`
	Payments        []PaymentDTO    `json:"payments"`
	TotalAmount     ledger.Money    `json:"total_amount"`
	PaidAmount      ledger.Money    `json:"paid_amount"`
	RemainingAmount ledger.Money    `json:"remaining_amount"`
	Settlement      string          `json:"settlement"`
}

// CreateCaseRequest is the body of POST /api/cases.
type CreateCaseRequest struct {
	BillNumber      string                 `json:"bill_number"`
	CaseNumber      string                 `json:"case_number"`
	CaseDescription string                 `json:"case_description"`
	Date            string                 `json:"date"`
	Particulars     []ledger.NewParticular `json:"particulars"`
}

// UpdateCaseRequest is the body of PUT /api/cases/{id}. Omitted fields are
// left unchanged; identifiers are replaced as a group when any is sent.
type UpdateCaseRequest struct {
	BillNumber      *string                `json:"bill_number,omitempty"`
	CaseNumber      *string                `json:"case_number,omitempty"`
	CaseDescription *string                `json:"case_description,omitempty"`
	Date            *string                `json:"date,omitempty"`
	Particulars     []ledger.NewParticular `json:"particulars,omitempty"`
}

// RecordPaymentRequest is the body of POST /api/cases/{id}/payments.
type RecordPaymentRequest struct {
	Amount ledger.EditableAmount `json:"amount"`
	Method string                `json:"method"`
	Date   string                `json:"date"`
}

type CaseListResponse struct {
	Window ledger.Window `json:"window"`
	AsOf   time.Time     `json:"as_of"`
	Cases  []CaseDTO     `json:"cases"`
}

// =============================================================================
// REPORTS
// =============================================================================

type SummaryResponse struct {
	Window  ledger.Window   `json:"window"`
	AsOf    time.Time       `json:"as_of"`
	From    *time.Time      `json:"from,omitempty"`
	To      *time.Time      `json:"to,omitempty"`
	Stats   ledger.Stats    `json:"stats"`
	Buckets []ledger.Bucket `json:"buckets"`
	Stale   string          `json:"stale,omitempty"`
}

type ReportSnapshotDTO struct {
	ID      string          `json:"id"`
	TakenAt time.Time       `json:"taken_at"`
	Reason  string          `json:"reason"`
	Report  SummaryResponse `json:"report"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the error body for every endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toCaseDTO(c ledger.Case) CaseDTO {
	dto := CaseDTO{
		ID:              string(c.ID),
		BillNumber:      c.BillNumber,
		CaseNumber:      c.CaseNumber,
		CaseDescription: c.CaseDescription,
		Date:            c.Date.ISO(),
		DateStatus:      c.Date.Status.String(),
		Particulars:     make([]ParticularDTO, 0, len(c.Particulars)),
		Payments:        make([]PaymentDTO, 0, len(c.Payments)),
		TotalAmount:     c.TotalAmount,
		PaidAmount:      c.PaidAmount,
		RemainingAmount: c.RemainingAmount,
		Settlement:      string(c.Settlement()),
	}
	for _, p := range c.Particulars {
		pd := ParticularDTO{
			Type:        string(p.Type),
			CustomType:  p.CustomType,
			DisplayName: p.DisplayName(),
			Amount:      p.Amount,
		}
		if p.AppearanceDate.Status != ledger.DateMissing {
			pd.AppearanceDate = p.AppearanceDate.ISO()
		}
		dto.Particulars = append(dto.Particulars, pd)
	}
	for i, p := range c.Payments {
		dto.Payments = append(dto.Payments, PaymentDTO{
			Index:  i,
			Amount: p.Amount,
			Method: string(p.Method),
			Date:   p.Date.ISO(),
		})
	}
	return dto
}

func toCaseDTOs(cases []ledger.Case) []CaseDTO {
	out := make([]CaseDTO, len(cases))
	for i, c := range cases {
		out[i] = toCaseDTO(c)
	}
	return out
}

func toSummary(r ledger.Report) SummaryResponse {
	s := SummaryResponse{
		Window:  r.Window,
		AsOf:    r.AsOf,
		Stats:   r.Stats,
		Buckets: r.Buckets,
	}
	if !r.Period.Unbounded() {
		from, to := r.Period.Start, r.Period.End
		s.From, s.To = &from, &to
	}
	return s
}

func (req CreateCaseRequest) toNewCase() ledger.NewCase {
	return ledger.NewCase{
		Identifiers: ledger.Identifiers{
			BillNumber:      req.BillNumber,
			CaseNumber:      req.CaseNumber,
			CaseDescription: req.CaseDescription,
		},
		Date:        req.Date,
		Particulars: req.Particulars,
	}
}

// toCaseUpdate fills unsent identifiers from current so a partial identifier
// edit doesn't blank the others.
func (req UpdateCaseRequest) toCaseUpdate(current ledger.Identifiers) ledger.CaseUpdate {
	u := ledger.CaseUpdate{Date: req.Date, Particulars: req.Particulars}
	if req.BillNumber != nil || req.CaseNumber != nil || req.CaseDescription != nil {
		id := current
		if req.BillNumber != nil {
			id.BillNumber = *req.BillNumber
		}
		if req.CaseNumber != nil {
			id.CaseNumber = *req.CaseNumber
		}
		if req.CaseDescription != nil {
			id.CaseDescription = *req.CaseDescription
		}
		u.Identifiers = &id
	}
	return u
}
