/*
handlers.go - HTTP API handlers for the billing ledger

PURPOSE:
  Exposes the ledger via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to ledger.Service (writes) and ledger.View
  (reads of the push-fed snapshot).

ENDPOINTS:
  Cases:
    GET    /api/cases                        List cases (?window=&as_of=)
    POST   /api/cases                        Create case
    GET    /api/cases/{id}                   Get case
    PUT    /api/cases/{id}                   Update identifiers/date/particulars
    POST   /api/cases/{id}/payments          Record payment
    DELETE /api/cases/{id}/payments/{index}  Remove payment

  Reports:
    GET    /api/reports/summary              Stats + chart buckets
    GET    /api/reports/payments             Payments received in window
    GET    /api/reports/unparsed             Cases with unreadable dates
    GET    /api/reports/snapshots            Saved report snapshots
    POST   /api/reports/snapshots            Take snapshots now

  Other:
    GET    /api/particular-types             Registered charge types
    GET    /api/feed                         Websocket summary feed
    GET    /api/health                       Liveness + feed status
    GET    /api/scenarios                    Demo scenarios
    POST   /api/scenarios/load               Load a demo scenario

READ PATH:
  List and report endpoints read the View, which is refreshed by the store's
  change feed. GET /api/cases/{id} reads the store directly.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Case not found
  - 501: Capability not offered by the configured store
  - 502: Store failure (never retried)
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - feed.go: Websocket feed
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/billing-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   ledger.DocumentStore
	Service *ledger.Service
	View    *ledger.View

	// Reports is nil when the store can't keep report snapshots.
	Reports   ledger.ReportStore
	Scheduler *ReportScheduler
	Feed      *Feed

	// Now is the clock used when a request has no as_of.
	Now func() time.Time

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires a handler around a store. The view must already be
// subscribed (or be started by the caller).
func NewHandler(store ledger.DocumentStore, svc *ledger.Service, view *ledger.View) *Handler {
	h := &Handler{
		Store:   store,
		Service: svc,
		View:    view,
		Now:     time.Now,
	}
	if rs, ok := store.(ledger.ReportStore); ok {
		h.Reports = rs
		h.Scheduler = NewReportScheduler(rs, view)
		h.Scheduler.Now = h.now
	}
	h.Feed = NewFeed(view, h.now)
	return h
}

func (h *Handler) now() time.Time { return h.Now() }

// =============================================================================
// CASE HANDLERS
// =============================================================================

// ListCases returns cases from the live view. Without a window every case is
// listed, unreadable dates last; with one, only cases dated inside it.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("window") == "" {
		cases := h.View.Cases()
		writeJSON(w, http.StatusOK, CaseListResponse{AsOf: h.now(), Cases: toCaseDTOs(cases)})
		return
	}

	window, asOf, err := h.windowParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}
	cases := h.View.Filter(window, asOf)
	writeJSON(w, http.StatusOK, CaseListResponse{Window: window, AsOf: asOf, Cases: toCaseDTOs(cases)})
}

// CreateCase creates a new case with no payments.
func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	var req CreateCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	c, err := h.Service.CreateCase(r.Context(), req.toNewCase())
	if err != nil {
		writeLedgerError(w, "Failed to create case", err)
		return
	}

	zap.S().Infow("case created", "case_id", c.ID, "bill_number", c.BillNumber, "total", c.TotalAmount.String())
	writeJSON(w, http.StatusCreated, toCaseDTO(c))
}

// GetCase returns one case, read from the store.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.GetCase(r.Context(), caseID(r))
	if err != nil {
		writeLedgerError(w, "Failed to load case", err)
		return
	}
	writeJSON(w, http.StatusOK, toCaseDTO(c))
}

// UpdateCase edits identifiers, date and/or particulars. Payments are untouched.
func (h *Handler) UpdateCase(w http.ResponseWriter, r *http.Request) {
	var req UpdateCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	id := caseID(r)

	current, err := h.Service.GetCase(ctx, id)
	if err != nil {
		writeLedgerError(w, "Failed to load case", err)
		return
	}

	c, err := h.Service.UpdateCaseDetails(ctx, id, req.toCaseUpdate(current.Identifiers))
	if err != nil {
		writeLedgerError(w, "Failed to update case", err)
		return
	}

	zap.S().Infow("case updated", "case_id", c.ID, "total", c.TotalAmount.String(), "remaining", c.RemainingAmount.String())
	writeJSON(w, http.StatusOK, toCaseDTO(c))
}

// RecordPayment appends a payment to a case.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	c, err := h.Service.RecordPayment(r.Context(), caseID(r), ledger.NewPayment{
		Amount: req.Amount,
		Method: ledger.PaymentMethod(req.Method),
		Date:   req.Date,
	})
	if err != nil {
		writeLedgerError(w, "Failed to record payment", err)
		return
	}

	zap.S().Infow("payment recorded", "case_id", c.ID, "paid", c.PaidAmount.String(), "remaining", c.RemainingAmount.String())
	writeJSON(w, http.StatusCreated, toCaseDTO(c))
}

// RemovePayment removes one payment by its position in the case.
func (h *Handler) RemovePayment(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment index", err)
		return
	}

	c, err := h.Service.RemovePayment(r.Context(), caseID(r), index)
	if err != nil {
		writeLedgerError(w, "Failed to remove payment", err)
		return
	}

	zap.S().Infow("payment removed", "case_id", c.ID, "index", index, "remaining", c.RemainingAmount.String())
	writeJSON(w, http.StatusOK, toCaseDTO(c))
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// GetSummary returns stats and chart buckets for a window.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	window, asOf, err := h.windowParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}

	resp := toSummary(h.View.Report(window, asOf))
	if err := h.View.LastError(); err != nil {
		resp.Stale = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPaymentActivity returns payments received in a window, by method.
func (h *Handler) GetPaymentActivity(w http.ResponseWriter, r *http.Request) {
	window, asOf, err := h.windowParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}
	writeJSON(w, http.StatusOK, h.View.PaymentActivity(window, asOf))
}

// ListUnparsed returns cases whose date could not be read. They appear in no
// window, so this is the only place they surface in reports.
func (h *Handler) ListUnparsed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toCaseDTOs(h.View.Unparsed()))
}

// ListReportSnapshots returns saved snapshots, newest first.
func (h *Handler) ListReportSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.Reports == nil {
		writeError(w, http.StatusNotImplemented, "Report snapshots are not supported by this store", nil)
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	snaps, err := h.Reports.ListReports(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to list report snapshots", err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTOs(snaps))
}

// TakeReportSnapshot saves snapshots for the scheduler's windows right now.
func (h *Handler) TakeReportSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusNotImplemented, "Report snapshots are not supported by this store", nil)
		return
	}

	snaps, err := h.Scheduler.TakeSnapshots(r.Context(), ledger.SnapshotManual)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to save report snapshot", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSnapshotDTOs(snaps))
}

// =============================================================================
// MISC HANDLERS
// =============================================================================

// ListParticularTypes returns the registered charge types.
func (h *Handler) ListParticularTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ledger.ParticularTypes())
}

// ServeFeed upgrades to a websocket summary feed.
func (h *Handler) ServeFeed(w http.ResponseWriter, r *http.Request) {
	h.Feed.ServeHTTP(w, r)
}

// Health reports whether the view is receiving snapshots.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":     "ok",
		"cases":      len(h.View.Cases()),
		"updated_at": h.View.UpdatedAt(),
	}
	if err := h.View.LastError(); err != nil {
		resp["status"] = "degraded"
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

// windowParams reads ?window= (default all) and ?as_of= (default now). as_of
// accepts the same formats as case dates.
func (h *Handler) windowParams(r *http.Request) (ledger.Window, time.Time, error) {
	q := r.URL.Query()
	window, err := ledger.ParseWindow(q.Get("window"))
	if err != nil {
		return "", time.Time{}, err
	}

	asOf := h.now()
	if s := strings.TrimSpace(q.Get("as_of")); s != "" {
		t, ok := h.Service.Normalizer.Normalize(s)
		if !ok {
			return "", time.Time{}, &ledger.ValidationError{Field: "as_of", Reason: "unreadable date " + strconv.Quote(s)}
		}
		asOf = t
	}
	return window, asOf, nil
}

func caseID(r *http.Request) ledger.CaseID {
	return ledger.CaseID(chi.URLParam(r, "id"))
}

func toSnapshotDTOs(snaps []ledger.ReportSnapshot) []ReportSnapshotDTO {
	out := make([]ReportSnapshotDTO, len(snaps))
	for i, s := range snaps {
		out[i] = ReportSnapshotDTO{
			ID:      s.ID,
			TakenAt: s.TakenAt,
			Reason:  string(s.Reason),
			Report:  toSummary(s.Report),
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	if status >= http.StatusInternalServerError {
		zap.S().Errorw(message, "status", status, "error", err)
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps ledger errors to HTTP statuses.
func writeLedgerError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsPersistence(err):
		writeError(w, http.StatusBadGateway, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
