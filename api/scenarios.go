/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built data sets that populate the store with realistic
	cases for demos. Dates are relative to the handler clock so every
	window (today/week/month/year) has something to show.

AVAILABLE SCENARIOS:

	small-practice: Cases created through the ledger API, with payments;
	                outstanding, settled and overpaid cases side by side
	legacy-import:  Raw documents as an older client wrote them: text
	                amounts, DD/MM/YYYY dates, stale totals, no payments
	                field, and one unreadable date
	empty:          Nothing; clears the store

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create cases via ledger.Service, or write raw documents
 3. The change feed refreshes the view as usual

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "small-practice"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.
	Stores that can't be reset return 501.

SEE ALSO:
  - handlers.go: Handler and error mapping
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/warp/billing-ledger/ledger"
)

// resettable stores can be wiped for demo loading.
type resettable interface {
	Reset(ctx context.Context) error
}

// seedable stores accept documents under caller-chosen ids.
type seedable interface {
	Put(ctx context.Context, id ledger.CaseID, doc ledger.Document) error
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "small-practice",
		Name:        "Small Practice",
		Description: "Six cases this year with partial, full and over-payments",
	},
	{
		ID:          "legacy-import",
		Name:        "Legacy Import",
		Description: "Old-format documents: text amounts, DD/MM/YYYY dates, an unreadable date",
	},
	{
		ID:          "empty",
		Name:        "Empty",
		Description: "No cases",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var loader func(context.Context) error
	switch req.ScenarioID {
	case "small-practice":
		loader = h.loadSmallPracticeScenario
	case "legacy-import":
		loader = h.loadLegacyImportScenario
	case "empty":
		loader = func(context.Context) error { return nil }
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	rs, ok := h.Store.(resettable)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Store can't be reset", nil)
		return
	}

	ctx := r.Context()
	if err := rs.Reset(ctx); err != nil {
		writeError(w, http.StatusBadGateway, "Failed to reset store", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	if err := loader(ctx); err != nil {
		writeLedgerError(w, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	zap.S().Infow("scenario loaded", "scenario", req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type demoPayment struct {
	amount  string
	method  ledger.PaymentMethod
	daysAgo int
}

type demoCase struct {
	bill, number, description string
	daysAgo                   int
	particulars               []ledger.NewParticular
	payments                  []demoPayment
}

func (h *Handler) loadSmallPracticeScenario(ctx context.Context) error {
	now := h.now()
	day := func(daysAgo int) string {
		return now.AddDate(0, 0, -daysAgo).Format("2006-01-02")
	}
	charge := func(t ledger.ParticularType, amount string) ledger.NewParticular {
		return ledger.NewParticular{Type: t, Amount: ledger.EditableAmount(amount)}
	}

	cases := []demoCase{
		{
			bill: "B-2001", number: "OS 114/2024", description: "Recovery suit, Sharma v. Mehta",
			daysAgo: 0,
			particulars: []ledger.NewParticular{
				charge(ledger.ParticularFiling, "5000"),
				charge(ledger.ParticularXerox, "500"),
			},
			payments: []demoPayment{{amount: "2000", method: ledger.MethodCash, daysAgo: 0}},
		},
		{
			bill: "B-2002", number: "CRL 56/2024", description: "Bail application",
			daysAgo: 2,
			particulars: []ledger.NewParticular{
				charge(ledger.ParticularDrafting, "3000"),
				{Type: ledger.ParticularAppearance, Amount: "2500", AppearanceDate: day(1)},
			},
			payments: []demoPayment{{amount: "5500", method: ledger.MethodOnline, daysAgo: 1}},
		},
		{
			bill: "B-2003", number: "MC 9/2024", description: "Maintenance petition",
			daysAgo: 12,
			particulars: []ledger.NewParticular{
				charge(ledger.ParticularConsultation, "1500"),
				charge(ledger.ParticularCourtFee, "750"),
				{Type: ledger.ParticularOther, CustomType: "Certified copies", Amount: "300"},
			},
		},
		{
			bill: "B-2004", number: "RFA 31/2023", description: "First appeal",
			daysAgo: 40,
			particulars: []ledger.NewParticular{
				charge(ledger.ParticularDrafting, "12000"),
				{Type: ledger.ParticularAppearance, Amount: "4000", AppearanceDate: day(30)},
				charge(ledger.ParticularTravel, "1200"),
			},
			payments: []demoPayment{
				{amount: "10000", method: ledger.MethodBankTransfer, daysAgo: 35},
				{amount: "7500", method: ledger.MethodCheque, daysAgo: 3},
			},
		},
		{
			bill: "B-2005", number: "EP 2/2024", description: "Execution petition",
			daysAgo: 95,
			particulars: []ledger.NewParticular{
				charge(ledger.ParticularFiling, "2500"),
				charge(ledger.ParticularNotary, "200"),
				charge(ledger.ParticularTyping, "150"),
			},
			payments: []demoPayment{{amount: "1000", method: ledger.MethodCash, daysAgo: 90}},
		},
		{
			bill: "B-2006", number: "WP 77/2023", description: "Writ petition, land records",
			daysAgo: 200,
			particulars: []ledger.NewParticular{
				charge(ledger.ParticularDrafting, "15000"),
				charge(ledger.ParticularCourtFee, "1000"),
			},
			payments: []demoPayment{{amount: "16000", method: ledger.MethodOnline, daysAgo: 150}},
		},
	}

	for _, dc := range cases {
		c, err := h.Service.CreateCase(ctx, ledger.NewCase{
			Identifiers: ledger.Identifiers{
				BillNumber:      dc.bill,
				CaseNumber:      dc.number,
				CaseDescription: dc.description,
			},
			Date:        day(dc.daysAgo),
			Particulars: dc.particulars,
		})
		if err != nil {
			return fmt.Errorf("case %s: %w", dc.bill, err)
		}
		for _, p := range dc.payments {
			_, err := h.Service.RecordPayment(ctx, c.ID, ledger.NewPayment{
				Amount: ledger.EditableAmount(p.amount),
				Method: p.method,
				Date:   day(p.daysAgo),
			})
			if err != nil {
				return fmt.Errorf("payment on %s: %w", dc.bill, err)
			}
		}
	}
	return nil
}

func (h *Handler) loadLegacyImportScenario(ctx context.Context) error {
	ss, ok := h.Store.(seedable)
	if !ok {
		return fmt.Errorf("store does not accept raw documents")
	}

	now := h.now()
	dmy := func(t time.Time) string { return t.Format("02/01/2006") }
	lastMonth := now.AddDate(0, -1, 0)

	docs := map[ledger.CaseID]ledger.Document{
		"legacy-1": {
			ledger.FieldBillNumber:      "A-17",
			ledger.FieldCaseNumber:      "OS 12/2019",
			ledger.FieldCaseDescription: "Partition suit",
			ledger.FieldDate:            dmy(now),
			ledger.FieldTotalAmount:     1, // stale, recomputed on read
			ledger.FieldParticulars: []any{
				map[string]any{ledger.FieldType: "Filing", ledger.FieldAmount: "5000"},
				map[string]any{
					ledger.FieldType:           "Appearance",
					ledger.FieldAmount:         1500,
					ledger.FieldAppearanceDate: dmy(now),
				},
			},
		},
		"legacy-2": {
			ledger.FieldBillNumber:      "A-18",
			ledger.FieldCaseNumber:      "CC 4/2020",
			ledger.FieldCaseDescription: "Cheque bounce complaint",
			ledger.FieldDate:            lastMonth.Format("2006-01-02"),
			ledger.FieldParticulars: []any{
				map[string]any{ledger.FieldType: "Drafting", ledger.FieldAmount: "2,500"},
				map[string]any{ledger.FieldType: "Typing", ledger.FieldAmount: "n/a"},
			},
			ledger.FieldPayments: []any{
				map[string]any{ledger.FieldAmount: "1000", ledger.FieldMethod: "Cash", ledger.FieldDate: dmy(lastMonth)},
			},
		},
		"legacy-3": {
			ledger.FieldBillNumber:      "A-19",
			ledger.FieldCaseNumber:      "Misc",
			ledger.FieldCaseDescription: "Consultation, date lost in import",
			ledger.FieldDate:            "sometime in March",
			ledger.FieldParticulars: []any{
				map[string]any{ledger.FieldType: "Consultation", ledger.FieldAmount: 800},
			},
		},
	}

	for id, doc := range docs {
		if err := ss.Put(ctx, id, doc); err != nil {
			return &ledger.PersistenceError{Op: "seed case", CaseID: id, Err: err}
		}
	}
	return nil
}
