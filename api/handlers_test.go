/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Case creation, payments, updates and removal over HTTP
- Window queries and summaries read from the live view
- Error mapping (400 / 404 / 502)
- Websocket summary feed
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-ledger/ledger"
	"github.com/warp/billing-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2024, time.June, 20, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	store   *store.Memory
	handler *Handler
	router  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	mem := store.NewMemory()
	return newTestEnvWithStore(t, mem, mem)
}

// newTestEnvWithStore wires the handler around ds. The view follows mem,
// which ds must write through to.
func newTestEnvWithStore(t *testing.T, mem *store.Memory, ds ledger.DocumentStore) *testEnv {
	t.Helper()

	view := ledger.NewView(ledger.DefaultNormalizer(), ledger.DefaultReporter())
	require.NoError(t, view.Start(context.Background(), mem))
	t.Cleanup(view.Stop)

	h := NewHandler(ds, ledger.NewService(ds, ledger.DefaultNormalizer()), view)
	h.Now = func() time.Time { return testNow }

	return &testEnv{store: mem, handler: h, router: NewRouter(h, nil)}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func juneCaseRequest() map[string]any {
	return map[string]any{
		"bill_number":      "B-101",
		"case_number":      "OS 114/2024",
		"case_description": "Recovery suit",
		"date":             "2024-06-10",
		"particulars": []map[string]any{
			{"type": "Filing", "amount": 5000},
			{"type": "Xerox Charges", "amount": "500"},
		},
	}
}

func (e *testEnv) createJuneCase(t *testing.T) CaseDTO {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/cases", juneCaseRequest())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[CaseDTO](t, rec)
}

func assertAmount(t *testing.T, expected int64, got ledger.Money) {
	t.Helper()
	assert.Truef(t, ledger.NewMoney(expected).Equal(got), "expected %d, got %s", expected, got)
}

// =============================================================================
// CASE ENDPOINT TESTS
// =============================================================================

func TestCreateCase_ThenPayment_ThenSummary(t *testing.T) {
	// GIVEN: A case billed 5500 on 2024-06-10
	// WHEN: A 2000 Cash payment is posted
	// THEN: The case reads paid 2000 / remaining 3500 and the June summary
	//       reflects it

	env := newTestEnv(t)

	created := env.createJuneCase(t)
	assertAmount(t, 5500, created.TotalAmount)
	assertAmount(t, 5500, created.RemainingAmount)
	assert.Equal(t, "outstanding", created.Settlement)
	assert.Equal(t, "parsed", created.DateStatus)
	assert.Empty(t, created.Payments)

	rec := env.do(t, http.MethodPost, "/api/cases/"+created.ID+"/payments",
		map[string]any{"amount": 2000, "method": "Cash", "date": "12/06/2024"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	paid := decode[CaseDTO](t, rec)
	assertAmount(t, 2000, paid.PaidAmount)
	assertAmount(t, 3500, paid.RemainingAmount)
	require.Len(t, paid.Payments, 1)
	assert.Equal(t, "2024-06-12", paid.Payments[0].Date)

	rec = env.do(t, http.MethodGet, "/api/reports/summary?window=month&as_of=2024-06-20", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[SummaryResponse](t, rec)
	assert.Equal(t, ledger.WindowMonth, summary.Window)
	assert.Equal(t, 1, summary.Stats.TotalCases)
	assertAmount(t, 5500, summary.Stats.TotalBilled)
	assertAmount(t, 2000, summary.Stats.TotalPaymentsReceived)
	assertAmount(t, 3500, summary.Stats.TotalRemaining)
	require.Len(t, summary.Buckets, 1)
	assert.Equal(t, "10", summary.Buckets[0].Label)
	require.NotNil(t, summary.From)
	assert.Equal(t, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), summary.From.UTC())

	rec = env.do(t, http.MethodGet, "/api/reports/summary?window=year", nil)
	year := decode[SummaryResponse](t, rec)
	require.Len(t, year.Buckets, 1)
	assert.Equal(t, "Jun", year.Buckets[0].Label)
	assertAmount(t, 2000, year.Buckets[0].Paid)
}

func TestListCases_Windows(t *testing.T) {
	env := newTestEnv(t)
	env.createJuneCase(t)

	req := juneCaseRequest()
	req["bill_number"] = "B-102"
	req["date"] = "2024-01-15"
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/cases", req).Code)

	all := decode[CaseListResponse](t, env.do(t, http.MethodGet, "/api/cases", nil))
	require.Len(t, all.Cases, 2)
	assert.Equal(t, "B-101", all.Cases[0].BillNumber, "most recent first")

	month := decode[CaseListResponse](t, env.do(t, http.MethodGet, "/api/cases?window=month", nil))
	require.Len(t, month.Cases, 1)
	assert.Equal(t, "B-101", month.Cases[0].BillNumber)

	jan := decode[CaseListResponse](t, env.do(t, http.MethodGet, "/api/cases?window=month&as_of=15-01-2024", nil))
	require.Len(t, jan.Cases, 1)
	assert.Equal(t, "B-102", jan.Cases[0].BillNumber)
}

func TestCreateCase_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	noParticulars := juneCaseRequest()
	noParticulars["particulars"] = []any{}
	rec := env.do(t, http.MethodPost, "/api/cases", noParticulars)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Contains(t, resp.Details, "particulars")

	blankBill := juneCaseRequest()
	blankBill["bill_number"] = ""
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/cases", blankBill).Code)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/cases", "{not json").Code)

	recs, _ := env.store.List(context.Background())
	assert.Empty(t, recs, "rejected requests write nothing")
}

func TestRecordPayment_Errors(t *testing.T) {
	env := newTestEnv(t)
	created := env.createJuneCase(t)

	rec := env.do(t, http.MethodPost, "/api/cases/"+created.ID+"/payments",
		map[string]any{"amount": "0", "method": "Cash", "date": "2024-06-12"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/cases/unknown/payments",
		map[string]any{"amount": "100", "method": "Cash", "date": "2024-06-12"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCase_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/cases/nope", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateCase_PartialIdentifiersAndParticulars(t *testing.T) {
	// GIVEN: A paid case
	// WHEN: Only the bill number and the particulars are sent
	// THEN: The other identifiers are kept and payments are untouched

	env := newTestEnv(t)
	created := env.createJuneCase(t)
	env.do(t, http.MethodPost, "/api/cases/"+created.ID+"/payments",
		map[string]any{"amount": "1000", "method": "Online", "date": "2024-06-11"})

	rec := env.do(t, http.MethodPut, "/api/cases/"+created.ID, map[string]any{
		"bill_number": "B-101A",
		"particulars": []map[string]any{
			{"type": "Appearance", "amount": "2500", "appearance_date": "2024-06-18"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated := decode[CaseDTO](t, rec)
	assert.Equal(t, "B-101A", updated.BillNumber)
	assert.Equal(t, "OS 114/2024", updated.CaseNumber)
	assert.Equal(t, "2024-06-10", updated.Date)
	assertAmount(t, 2500, updated.TotalAmount)
	assertAmount(t, 1500, updated.RemainingAmount)
	require.Len(t, updated.Particulars, 1)
	assert.Equal(t, "2024-06-18", updated.Particulars[0].AppearanceDate)
	assert.Len(t, updated.Payments, 1)

	fetched := decode[CaseDTO](t, env.do(t, http.MethodGet, "/api/cases/"+created.ID, nil))
	assert.Equal(t, "B-101A", fetched.BillNumber)
}

func TestRemovePayment(t *testing.T) {
	env := newTestEnv(t)
	created := env.createJuneCase(t)
	env.do(t, http.MethodPost, "/api/cases/"+created.ID+"/payments",
		map[string]any{"amount": "6000", "method": "Cheque", "date": "2024-06-11"})

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodDelete, "/api/cases/"+created.ID+"/payments/x", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodDelete, "/api/cases/"+created.ID+"/payments/3", nil).Code)

	rec := env.do(t, http.MethodDelete, "/api/cases/"+created.ID+"/payments/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	c := decode[CaseDTO](t, rec)
	assert.Empty(t, c.Payments)
	assertAmount(t, 5500, c.RemainingAmount)
}

type failingWrites struct {
	*store.Memory
}

func (failingWrites) Update(context.Context, ledger.CaseID, ledger.Document) error {
	return errors.New("quota exceeded")
}

func TestRecordPayment_StoreFailureIs502(t *testing.T) {
	// GIVEN: A store that accepts creates but fails updates
	// THEN: The payment is reported as a gateway failure, not swallowed

	mem := store.NewMemory()
	env := newTestEnvWithStore(t, mem, failingWrites{mem})
	created := env.createJuneCase(t)

	rec := env.do(t, http.MethodPost, "/api/cases/"+created.ID+"/payments",
		map[string]any{"amount": "100", "method": "Cash", "date": "2024-06-12"})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "quota exceeded")
}

// =============================================================================
// REPORT ENDPOINT TESTS
// =============================================================================

func TestSummary_InvalidQuery(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/reports/summary?window=fortnight", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/reports/summary?as_of=someday", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/cases?window=decade", nil).Code)
}

func TestPaymentActivity(t *testing.T) {
	env := newTestEnv(t)
	created := env.createJuneCase(t)
	env.do(t, http.MethodPost, "/api/cases/"+created.ID+"/payments",
		map[string]any{"amount": "700", "method": "Online", "date": "2024-06-19"})

	rec := env.do(t, http.MethodGet, "/api/reports/payments?window=week", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	act := decode[ledger.PaymentActivity](t, rec)
	assert.Equal(t, 1, act.Count)
	assertAmount(t, 700, act.Total)
}

func TestReportSnapshots(t *testing.T) {
	env := newTestEnv(t)
	env.createJuneCase(t)

	rec := env.do(t, http.MethodPost, "/api/reports/snapshots", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	taken := decode[[]ReportSnapshotDTO](t, rec)
	require.Len(t, taken, len(DefaultSnapshotWindows))
	assert.Equal(t, "manual", taken[0].Reason)

	listed := decode[[]ReportSnapshotDTO](t, env.do(t, http.MethodGet, "/api/reports/snapshots?limit=2", nil))
	assert.Len(t, listed, 2)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/reports/snapshots?limit=-1", nil).Code)
}

func TestParticularTypesAndHealth(t *testing.T) {
	env := newTestEnv(t)

	kinds := decode[[]ledger.ParticularKind](t, env.do(t, http.MethodGet, "/api/particular-types", nil))
	require.NotEmpty(t, kinds)
	assert.Equal(t, ledger.ParticularOther, kinds[len(kinds)-1].Type)

	health := decode[map[string]any](t, env.do(t, http.MethodGet, "/api/health", nil))
	assert.Equal(t, "ok", health["status"])
}

// =============================================================================
// FEED TESTS
// =============================================================================

func TestFeed_PushesSummaryOnChange(t *testing.T) {
	// GIVEN: A websocket client watching the month window
	// WHEN: A case is created
	// THEN: The client receives a fresh summary counting it

	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/feed?window=month"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first FeedMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "summary", first.Event)
	assert.Equal(t, 0, first.Data.Stats.TotalCases)

	env.createJuneCase(t)

	var next FeedMessage
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, ledger.WindowMonth, next.Data.Window)
	assert.Equal(t, 1, next.Data.Stats.TotalCases)
	assertAmount(t, 5500, next.Data.Stats.TotalBilled)
	assert.Equal(t, 1, env.handler.Feed.Clients())
}

func TestFeed_RejectsUnknownWindow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/feed?window=eon", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
