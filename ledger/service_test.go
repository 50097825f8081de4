package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-ledger/ledger"
	"github.com/warp/billing-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T) (*ledger.Service, *store.Memory) {
	mem := store.NewMemory()
	return ledger.NewService(mem, ledger.DefaultNormalizer()), mem
}

func juneCase() ledger.NewCase {
	return ledger.NewCase{
		Identifiers: ledger.Identifiers{
			BillNumber:      "B-101",
			CaseNumber:      "OS 114/2024",
			CaseDescription: "Recovery suit",
		},
		Date: "2024-06-10",
		Particulars: []ledger.NewParticular{
			{Type: ledger.ParticularFiling, Amount: "5000"},
			{Type: ledger.ParticularXerox, Amount: "500"},
		},
	}
}

func cashPayment(amount, date string) ledger.NewPayment {
	return ledger.NewPayment{Amount: ledger.EditableAmount(amount), Method: ledger.MethodCash, Date: date}
}

// failingStore fails the configured operations and delegates the rest.
type failingStore struct {
	*store.Memory
	createErr error
	updateErr error
}

func (f *failingStore) Create(ctx context.Context, doc ledger.Document) (ledger.CaseID, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.Memory.Create(ctx, doc)
}

func (f *failingStore) Update(ctx context.Context, id ledger.CaseID, fields ledger.Document) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.Memory.Update(ctx, id, fields)
}

func requireValidation(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrValidation)
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Field, field)
}

// =============================================================================
// END-TO-END
// =============================================================================

func TestService_CreatePayFilter_EndToEnd(t *testing.T) {
	// GIVEN: A case with Filing 5000 + Xerox 500 on 2024-06-10
	// WHEN: Recording a 2000 Cash payment on 2024-06-12
	// THEN: paid 2000, remaining 3500; the June month report holds the case
	//       and the year report has a "Jun" bucket billed 5500, paid 2000

	svc, mem := newTestService(t)
	ctx := context.Background()

	view := ledger.NewView(ledger.DefaultNormalizer(), ledger.DefaultReporter())
	require.NoError(t, view.Start(ctx, mem))
	t.Cleanup(view.Stop)

	c, err := svc.CreateCase(ctx, juneCase())
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assertMoney(t, "5500", c.TotalAmount)
	assertMoney(t, "0", c.PaidAmount)
	assertMoney(t, "5500", c.RemainingAmount)
	assert.Empty(t, c.Payments)

	c, err = svc.RecordPayment(ctx, c.ID, cashPayment("2000", "2024-06-12"))
	require.NoError(t, err)
	assertMoney(t, "2000", c.PaidAmount)
	assertMoney(t, "3500", c.RemainingAmount)

	asOf := time.Date(2024, time.June, 20, 0, 0, 0, 0, time.UTC)
	inJune := view.Filter(ledger.WindowMonth, asOf)
	require.Len(t, inJune, 1)
	assert.Equal(t, c.ID, inJune[0].ID)
	assertMoney(t, "3500", inJune[0].RemainingAmount)

	month := view.Report(ledger.WindowMonth, asOf)
	assertMoney(t, "5500", month.Stats.TotalBilled)
	assertMoney(t, "2000", month.Stats.TotalPaymentsReceived)

	year := view.Report(ledger.WindowYear, asOf)
	require.Len(t, year.Buckets, 1)
	assert.Equal(t, "Jun", year.Buckets[0].Label)
	assertMoney(t, "5500", year.Buckets[0].Billed)
	assertMoney(t, "2000", year.Buckets[0].Paid)
}

func TestService_CreateCase_StoresFullDocument(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	in := juneCase()
	in.Date = "10/06/2024"
	c, err := svc.CreateCase(ctx, in)
	require.NoError(t, err)

	doc, err := mem.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-10", doc[ledger.FieldDate], "dates are stored canonically")
	assert.Equal(t, "B-101", doc[ledger.FieldBillNumber])
	assert.Len(t, doc[ledger.FieldParticulars], 2)
	assert.Empty(t, doc[ledger.FieldPayments])
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestService_CreateCase_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ledger.NewCase)
		field  string
	}{
		{"missing bill number", func(n *ledger.NewCase) { n.BillNumber = "" }, "bill_number"},
		{"blank bill number", func(n *ledger.NewCase) { n.BillNumber = "   " }, "bill_number"},
		{"blank case number", func(n *ledger.NewCase) { n.CaseNumber = "\t \n" }, "case_number"},
		{"missing description", func(n *ledger.NewCase) { n.CaseDescription = "" }, "case_description"},
		{"missing date", func(n *ledger.NewCase) { n.Date = "" }, "date"},
		{"unreadable date", func(n *ledger.NewCase) { n.Date = "31/02/2024" }, "date"},
		{"nil particulars", func(n *ledger.NewCase) { n.Particulars = nil }, "particulars"},
		{"empty particulars", func(n *ledger.NewCase) { n.Particulars = []ledger.NewParticular{} }, "particulars"},
		{"empty amount", func(n *ledger.NewCase) { n.Particulars[1].Amount = "" }, "particulars[1].amount"},
		{"text amount", func(n *ledger.NewCase) { n.Particulars[0].Amount = "five" }, "particulars[0].amount"},
		{"negative amount", func(n *ledger.NewCase) { n.Particulars[0].Amount = "-10" }, "particulars[0].amount"},
		{"unknown type", func(n *ledger.NewCase) { n.Particulars[0].Type = "Bribe" }, "particulars[0].type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN: A case input with one bad field
			// WHEN: Creating it
			// THEN: A ValidationError names the field and nothing is written

			svc, mem := newTestService(t)
			in := juneCase()
			tt.mutate(&in)

			_, err := svc.CreateCase(context.Background(), in)

			requireValidation(t, err, tt.field)
			recs, _ := mem.List(context.Background())
			assert.Empty(t, recs)
		})
	}
}

func TestService_CreateCase_ParticularDetails(t *testing.T) {
	// GIVEN: An appearance with a hearing date, a Filing with a stray date,
	//        and an Other charge with a custom label
	// THEN: Only the appearance keeps its date; only Other keeps its label

	svc, _ := newTestService(t)
	in := juneCase()
	in.Particulars = []ledger.NewParticular{
		{Type: ledger.ParticularAppearance, Amount: "2500", AppearanceDate: "11-06-2024"},
		{Type: ledger.ParticularFiling, Amount: "500", AppearanceDate: "11-06-2024", CustomType: "ignored"},
		{Type: ledger.ParticularOther, Amount: "300", CustomType: " Certified copies "},
	}

	c, err := svc.CreateCase(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "2024-06-11", c.Particulars[0].AppearanceDate.ISO())
	assert.False(t, c.Particulars[1].AppearanceDate.Valid())
	assert.Empty(t, c.Particulars[1].CustomType)
	assert.Equal(t, "Certified copies", c.Particulars[2].DisplayName())
	assertMoney(t, "3300", c.TotalAmount)
}

func TestService_RecordPayment_Validation(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	c, err := svc.CreateCase(ctx, juneCase())
	require.NoError(t, err)

	tests := []struct {
		name  string
		in    ledger.NewPayment
		field string
	}{
		{"zero amount", cashPayment("0", "2024-06-12"), "amount"},
		{"negative amount", cashPayment("-100", "2024-06-12"), "amount"},
		{"text amount", cashPayment("lots", "2024-06-12"), "amount"},
		{"missing date", cashPayment("100", ""), "date"},
		{"unreadable date", cashPayment("100", "next week"), "date"},
		{"missing method", ledger.NewPayment{Amount: "100", Date: "2024-06-12"}, "method"},
		{"unknown method", ledger.NewPayment{Amount: "100", Method: "Barter", Date: "2024-06-12"}, "method"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordPayment(ctx, c.ID, tt.in)
			requireValidation(t, err, tt.field)
		})
	}

	doc, err := mem.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, doc[ledger.FieldPayments], "rejected payments write nothing")
}

// =============================================================================
// NOT FOUND / PERSISTENCE TESTS
// =============================================================================

func TestService_UnknownCase(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordPayment(ctx, "nope", cashPayment("100", "2024-06-12"))
	assert.True(t, ledger.IsNotFound(err))
	var nf *ledger.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, ledger.CaseID("nope"), nf.CaseID)

	_, err = svc.UpdateCaseDetails(ctx, "nope", ledger.CaseUpdate{Date: ptr("2024-06-12")})
	assert.True(t, ledger.IsNotFound(err))

	_, err = svc.RemovePayment(ctx, "nope", 0)
	assert.True(t, ledger.IsNotFound(err))

	_, err = svc.GetCase(ctx, "nope")
	assert.True(t, ledger.IsNotFound(err))
}

func TestService_PersistenceFailuresSurface(t *testing.T) {
	// GIVEN: A store whose writes fail
	// WHEN: Creating a case or recording a payment
	// THEN: A PersistenceError wrapping the cause is returned, and the
	//       stored case is unchanged

	ctx := context.Background()
	boom := errors.New("connection reset")
	fs := &failingStore{Memory: store.NewMemory()}
	svc := ledger.NewService(fs, ledger.DefaultNormalizer())

	c, err := svc.CreateCase(ctx, juneCase())
	require.NoError(t, err)

	fs.updateErr = boom
	_, err = svc.RecordPayment(ctx, c.ID, cashPayment("100", "2024-06-12"))
	assert.True(t, ledger.IsPersistence(err))
	assert.ErrorIs(t, err, boom)
	assert.False(t, ledger.IsClientError(err))
	var perr *ledger.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "record payment", perr.Op)

	stored, err := svc.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Payments)

	fs.createErr = boom
	_, err = svc.CreateCase(ctx, juneCase())
	assert.True(t, ledger.IsPersistence(err))
}

// =============================================================================
// UPDATE / REMOVE TESTS
// =============================================================================

func TestService_UpdateCaseDetails_ReplacesParticularsKeepsPayments(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateCase(ctx, juneCase())
	require.NoError(t, err)
	_, err = svc.RecordPayment(ctx, c.ID, cashPayment("6000", "2024-06-12"))
	require.NoError(t, err)

	updated, err := svc.UpdateCaseDetails(ctx, c.ID, ledger.CaseUpdate{
		Date: ptr("01/07/2024"),
		Particulars: []ledger.NewParticular{
			{Type: ledger.ParticularDrafting, Amount: "8000"},
		},
	})
	require.NoError(t, err)

	assertMoney(t, "8000", updated.TotalAmount)
	assertMoney(t, "6000", updated.PaidAmount)
	assertMoney(t, "2000", updated.RemainingAmount)
	assert.True(t, updated.Totals().Reconciles())
	assert.Equal(t, "B-101", updated.BillNumber, "identifiers untouched")

	doc, err := mem.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-07-01", doc[ledger.FieldDate])

	reloaded, err := svc.GetCase(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Payments, 1)
	assertMoney(t, "2000", reloaded.RemainingAmount)
}

func TestService_UpdateCaseDetails_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c, err := svc.CreateCase(ctx, juneCase())
	require.NoError(t, err)

	_, err = svc.UpdateCaseDetails(ctx, c.ID, ledger.CaseUpdate{Particulars: []ledger.NewParticular{}})
	requireValidation(t, err, "particulars")

	_, err = svc.UpdateCaseDetails(ctx, c.ID, ledger.CaseUpdate{
		Identifiers: &ledger.Identifiers{BillNumber: "B-1", CaseNumber: "", CaseDescription: "x"},
	})
	requireValidation(t, err, "case_number")

	_, err = svc.UpdateCaseDetails(ctx, c.ID, ledger.CaseUpdate{
		Identifiers: &ledger.Identifiers{BillNumber: "  ", CaseNumber: "OS 1", CaseDescription: "x"},
	})
	requireValidation(t, err, "bill_number")

	_, err = svc.UpdateCaseDetails(ctx, c.ID, ledger.CaseUpdate{Date: ptr("garbage")})
	requireValidation(t, err, "date")
}

func TestService_RemovePayment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateCase(ctx, juneCase())
	require.NoError(t, err)
	_, err = svc.RecordPayment(ctx, c.ID, cashPayment("1000", "2024-06-11"))
	require.NoError(t, err)
	_, err = svc.RecordPayment(ctx, c.ID, cashPayment("3000", "2024-06-12"))
	require.NoError(t, err)

	_, err = svc.RemovePayment(ctx, c.ID, 2)
	requireValidation(t, err, "index")

	c, err = svc.RemovePayment(ctx, c.ID, 0)
	require.NoError(t, err)
	require.Len(t, c.Payments, 1)
	assertMoney(t, "3000", c.Payments[0].Amount)
	assertMoney(t, "2500", c.RemainingAmount)
}

func TestService_Overpayment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateCase(ctx, juneCase())
	require.NoError(t, err)
	c, err = svc.RecordPayment(ctx, c.ID, cashPayment("6,000", "2024-06-12"))
	require.NoError(t, err)

	assertMoney(t, "-500", c.RemainingAmount)
	assert.Equal(t, ledger.SettlementOverpaid, c.Settlement())
}

func ptr[T any](v T) *T { return &v }
