package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-ledger/ledger"
)

func march15() time.Time {
	return time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// NORMALIZE TESTS
// =============================================================================

func TestNormalize_AllFormatsYieldSameDay(t *testing.T) {
	// GIVEN: The same calendar day written three ways
	// WHEN: Normalizing each with the default (day-first) reader
	// THEN: All yield 15 March 2024

	n := ledger.DefaultNormalizer()

	for _, raw := range []string{"2024-03-15", "15-03-2024", "15/03/2024"} {
		got, ok := n.Normalize(raw)
		require.True(t, ok, "expected %q to parse", raw)
		assert.True(t, got.Equal(march15()), "%q parsed as %v", raw, got)
	}
}

func TestNormalize_Garbage_IsInvalidNotPanic(t *testing.T) {
	n := ledger.DefaultNormalizer()

	for _, raw := range []string{"not-a-date", "garbage", "sometime in March", "15-03", "15-03-2024-01", "1a-03-2024", ""} {
		_, ok := n.Normalize(raw)
		assert.False(t, ok, "expected %q to be rejected", raw)
	}
}

func TestNormalize_MonthFirstOrder(t *testing.T) {
	// GIVEN: A deployment configured for MM-DD-YYYY
	// WHEN: Normalizing "03-15-2024"
	// THEN: Month is read first

	n := ledger.Normalizer{Order: ledger.OrderMDY, Location: time.UTC}

	got, ok := n.Normalize("03-15-2024")
	require.True(t, ok)
	assert.True(t, got.Equal(march15()))

	// Day-first reading of the same string is an impossible month
	_, ok = ledger.DefaultNormalizer().Normalize("03-15-2024")
	assert.False(t, ok)
}

func TestNormalize_YearFirstIgnoresOrder(t *testing.T) {
	n := ledger.Normalizer{Order: ledger.OrderMDY, Location: time.UTC}

	got, ok := n.Normalize("2024/03/15")
	require.True(t, ok)
	assert.True(t, got.Equal(march15()))
}

func TestNormalize_RolledOverDateRejected(t *testing.T) {
	// GIVEN: 31 February, which time.Date would roll into March
	// THEN: It is treated as unreadable

	n := ledger.DefaultNormalizer()

	_, ok := n.Normalize("31-02-2024")
	assert.False(t, ok)

	_, ok = n.Normalize("29-02-2024")
	assert.True(t, ok, "2024 is a leap year")
}

func TestNormalize_Timestamps(t *testing.T) {
	n := ledger.DefaultNormalizer()

	got, ok := n.Normalize("2024-03-15T10:30:00Z")
	require.True(t, ok)
	assert.Equal(t, 10, got.Hour())
	assert.Equal(t, 15, got.Day())
}

func TestNormalize_Location(t *testing.T) {
	// GIVEN: A Kolkata deployment
	// WHEN: A UTC timestamp late on the 15th is normalized
	// THEN: It lands on the 16th local time

	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	n := ledger.Normalizer{Order: ledger.OrderDMY, Location: kolkata}

	got, ok := n.Normalize("2024-03-15T20:00:00Z")
	require.True(t, ok)
	assert.Equal(t, 16, got.Day())

	local, ok := n.Normalize("15-03-2024")
	require.True(t, ok)
	assert.Equal(t, kolkata, local.Location())
}

// =============================================================================
// TRI-STATE PARSE TESTS
// =============================================================================

func TestParse_TriState(t *testing.T) {
	n := ledger.DefaultNormalizer()

	missing := n.Parse("  ")
	assert.Equal(t, ledger.DateMissing, missing.Status)
	assert.False(t, missing.Valid())

	bad := n.Parse("garbage")
	assert.Equal(t, ledger.DateUnparsed, bad.Status)
	assert.Equal(t, "garbage", bad.ISO(), "invalid dates keep their raw text")
	assert.True(t, bad.SortKey().IsZero())

	good := n.Parse("15/03/2024")
	assert.Equal(t, ledger.DateParsed, good.Status)
	assert.Equal(t, "2024-03-15", good.ISO())
	assert.Equal(t, "parsed", good.Status.String())
}

func TestStartOfWeek(t *testing.T) {
	wednesday := time.Date(2024, time.June, 12, 15, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC), ledger.StartOfWeek(wednesday, time.Monday))
	assert.Equal(t, time.Date(2024, time.June, 9, 0, 0, 0, 0, time.UTC), ledger.StartOfWeek(wednesday, time.Sunday))

	monday := time.Date(2024, time.June, 10, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC), ledger.StartOfWeek(monday, time.Monday))
}
