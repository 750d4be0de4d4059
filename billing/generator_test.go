package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func serviceProfile(id string, amounts ...string) *billing.RateProfile {
	p := &billing.RateProfile{
		ID:         billing.ProfileID(id),
		Name:       "Standard Service Charge",
		TargetType: billing.TargetProperty,
		Active:     true,
	}
	for i, a := range amounts {
		p.Items = append(p.Items, billing.RateItem{
			ID:        "item-" + string(rune('a'+i)),
			Name:      "Service Item " + string(rune('A'+i)),
			Amount:    money(a),
			Frequency: billing.FreqMonthly,
			Mandatory: true,
		})
	}
	return p
}

func occupantMovedIn(d billing.Date) billing.OccupancyLink {
	return billing.OccupancyLink{
		ID:         "link-1",
		ResidentID: "res-1",
		PropertyID: "prop-abc12345",
		Role:       billing.RoleTenant,
		Active:     true,
		MoveInDate: d,
	}
}

func testProperty() billing.Property {
	return billing.Property{ID: "prop-abc12345", Label: "Block 4, House 12", Active: true, Occupied: true}
}

func fixedClock() func() time.Time {
	at := time.Date(2025, time.May, 2, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func collectResults(ctx context.Context, gen *billing.PeriodGenerator) []billing.PeriodResult {
	var out []billing.PeriodResult
	for {
		res, ok := gen.Next(ctx)
		if !ok {
			return out
		}
		out = append(out, res)
	}
}

// =============================================================================
// PRO-RATA TESTS
// =============================================================================

func TestGenerator_ProRata_MidMonthMoveIn(t *testing.T) {
	// GIVEN: move-in on the 15th of a 30-day month, full-month rate 3000
	// WHEN: generating the move-in month
	// THEN: activeDays=16, amountDue = round(3000 * 16/30, 2) = 1600.00

	ctx := context.Background()
	store := memory.New()
	profile := serviceProfile("prof-1", "3000")
	occ := occupantMovedIn(billing.NewDate(2025, time.April, 15))

	gen := billing.NewPeriodGenerator(store, testProperty(), occ, profile,
		billing.YearMonth{Year: 2025, Month: time.April},
		billing.GeneratorOptions{DueWindowDays: 30, Now: fixedClock()})

	results := collectResults(ctx, gen)
	require.Len(t, results, 1)
	res := results[0]

	require.Equal(t, billing.PeriodGenerated, res.Status)
	require.NotNil(t, res.Draft)
	assert.True(t, res.Draft.Header.AmountDue.Equal(money("1600.00")),
		"expected 1600.00, got %s", res.Draft.Header.AmountDue)

	require.Len(t, res.Draft.Lines, 1)
	assert.Equal(t, "Service Item A (Pro-rata: 16/30 days)", res.Draft.Lines[0].Description)
	assert.True(t, res.Draft.Lines[0].Amount.Equal(money("1600.00")))
}

func TestGenerator_FullMonth_FirstOfMonthMoveIn(t *testing.T) {
	// Move-in on the 1st bills the full month with no pro-rata annotation.

	ctx := context.Background()
	store := memory.New()
	profile := serviceProfile("prof-1", "3000")
	occ := occupantMovedIn(billing.NewDate(2025, time.April, 1))

	gen := billing.NewPeriodGenerator(store, testProperty(), occ, profile,
		billing.YearMonth{Year: 2025, Month: time.April},
		billing.GeneratorOptions{Now: fixedClock()})

	results := collectResults(ctx, gen)
	require.Len(t, results, 1)

	draft := results[0].Draft
	require.NotNil(t, draft)
	assert.True(t, draft.Header.AmountDue.Equal(money("3000")))
	assert.Equal(t, "Service Item A", draft.Lines[0].Description)
}

func TestGenerator_ProRataAppliesOnlyToFirstMonth(t *testing.T) {
	// GIVEN: move-in Feb 15, target April
	// THEN: 3 contiguous periods; only February is prorated

	ctx := context.Background()
	store := memory.New()
	profile := serviceProfile("prof-1", "2800")
	occ := occupantMovedIn(billing.NewDate(2025, time.February, 15))

	gen := billing.NewPeriodGenerator(store, testProperty(), occ, profile,
		billing.YearMonth{Year: 2025, Month: time.April},
		billing.GeneratorOptions{Now: fixedClock()})

	results := collectResults(ctx, gen)
	require.Len(t, results, 3)

	// Feb: 14 active days of 28.
	assert.True(t, results[0].Draft.Header.AmountDue.Equal(money("1400.00")),
		"february: got %s", results[0].Draft.Header.AmountDue)
	// March and April: full rate.
	assert.True(t, results[1].Draft.Header.AmountDue.Equal(money("2800")))
	assert.True(t, results[2].Draft.Header.AmountDue.Equal(money("2800")))

	// Contiguous, non-overlapping month-aligned periods.
	assert.Equal(t, "2025-02-01", results[0].Period.Start.String())
	assert.Equal(t, "2025-02-28", results[0].Period.End.String())
	assert.Equal(t, "2025-03-01", results[1].Period.Start.String())
	assert.Equal(t, "2025-04-30", results[2].Period.End.String())
}

func TestGenerator_LineItemsRoundedIndependently(t *testing.T) {
	// Known legacy behavior: line items are rounded independently of the
	// header, so a pro-rated month may carry a sub-cent discrepancy between
	// the header total and the line-item sum. Tolerated, not corrected.

	ctx := context.Background()
	store := memory.New()
	profile := serviceProfile("prof-1", "0.05", "0.05")
	occ := occupantMovedIn(billing.NewDate(2025, time.April, 15))

	gen := billing.NewPeriodGenerator(store, testProperty(), occ, profile,
		billing.YearMonth{Year: 2025, Month: time.April},
		billing.GeneratorOptions{Now: fixedClock()})

	results := collectResults(ctx, gen)
	require.Len(t, results, 1)
	draft := results[0].Draft
	require.NotNil(t, draft)

	// Header: round(0.10 * 16/30, 2) = 0.05
	assert.True(t, draft.Header.AmountDue.Equal(money("0.05")))

	// Lines: round(0.05 * 16/30, 2) = 0.03 each; sum 0.06 != 0.05.
	lineSum := decimal.Zero
	for _, l := range draft.Lines {
		lineSum = lineSum.Add(l.Amount)
	}
	assert.True(t, lineSum.Equal(money("0.06")),
		"independent rounding should yield 0.06, got %s", lineSum)
}

// =============================================================================
// IDEMPOTENCY TESTS
// =============================================================================

func TestGenerator_ExistingInvoiceEmitsAlreadyExists(t *testing.T) {
	// GIVEN: March already invoiced
	// WHEN: generating Feb..April
	// THEN: March is an idempotency hit, Feb and April are generated

	ctx := context.Background()
	store := memory.New()
	profile := serviceProfile("prof-1", "1000")
	occ := occupantMovedIn(billing.NewDate(2025, time.February, 1))
	prop := testProperty()

	// First pass: persist March only.
	gen := billing.NewPeriodGenerator(store, prop, occ, profile,
		billing.YearMonth{Year: 2025, Month: time.April},
		billing.GeneratorOptions{Now: fixedClock()})
	first := collectResults(ctx, gen)
	require.Len(t, first, 3)
	_, err := store.Persist(ctx, first[1].Draft)
	require.NoError(t, err)

	// Second pass: March must not be recomputed.
	gen = billing.NewPeriodGenerator(store, prop, occ, profile,
		billing.YearMonth{Year: 2025, Month: time.April},
		billing.GeneratorOptions{Now: fixedClock()})
	second := collectResults(ctx, gen)
	require.Len(t, second, 3)

	assert.Equal(t, billing.PeriodGenerated, second[0].Status)
	assert.Equal(t, billing.PeriodExists, second[1].Status)
	assert.Nil(t, second[1].Draft)
	assert.Equal(t, billing.PeriodGenerated, second[2].Status)
}

// =============================================================================
// MISCONFIGURATION TESTS
// =============================================================================

func TestGenerator_NoMonthlyItems_StopsWholeLoop(t *testing.T) {
	// A profile with only yearly items fails the property's whole loop,
	// not just the first month.

	ctx := context.Background()
	store := memory.New()
	profile := &billing.RateProfile{
		ID:         "prof-yearly",
		Name:       "Yearly Only",
		TargetType: billing.TargetProperty,
		Active:     true,
		Items: []billing.RateItem{
			{ID: "y1", Name: "Annual Dues", Amount: money("12000"), Frequency: billing.FreqYearly},
		},
	}
	occ := occupantMovedIn(billing.NewDate(2025, time.January, 1))

	gen := billing.NewPeriodGenerator(store, testProperty(), occ, profile,
		billing.YearMonth{Year: 2025, Month: time.April},
		billing.GeneratorOptions{Now: fixedClock()})

	results := collectResults(ctx, gen)
	require.Len(t, results, 1, "loop must stop after the misconfiguration")
	assert.Equal(t, billing.PeriodFailed, results[0].Status)
	assert.ErrorIs(t, results[0].Err, billing.ErrNoMonthlyItems)
}

// =============================================================================
// DRAFT CONTENT TESTS
// =============================================================================

func TestGenerator_DraftFields(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	profile := serviceProfile("prof-1", "1500", "250.50")
	occ := occupantMovedIn(billing.NewDate(2025, time.April, 1))

	gen := billing.NewPeriodGenerator(store, testProperty(), occ, profile,
		billing.YearMonth{Year: 2025, Month: time.April},
		billing.GeneratorOptions{DueWindowDays: 14, CreatedBy: "admin-7", Now: fixedClock()})

	results := collectResults(ctx, gen)
	require.Len(t, results, 1)
	h := results[0].Draft.Header

	assert.Equal(t, "INV-202504-PROP-ABC", h.Number)
	assert.Equal(t, billing.TypeServiceCharge, h.Type)
	assert.Equal(t, billing.StatusUnpaid, h.Status)
	assert.True(t, h.AmountPaid.IsZero())
	assert.Equal(t, "2025-04-15", h.DueDate.String(), "due date is periodStart + window")
	assert.Equal(t, "admin-7", h.CreatedBy)
	assert.True(t, h.AmountDue.Equal(money("1750.50")))
	assert.Len(t, results[0].Draft.Lines, 2)
}

func TestGenerator_SnapshotFreezesUnproratedRates(t *testing.T) {
	// The snapshot carries the full-month total and items even when the
	// first month is prorated; that is what makes history audit-proof.

	ctx := context.Background()
	store := memory.New()
	profile := serviceProfile("prof-1", "3000")
	occ := occupantMovedIn(billing.NewDate(2025, time.April, 15))

	gen := billing.NewPeriodGenerator(store, testProperty(), occ, profile,
		billing.YearMonth{Year: 2025, Month: time.April},
		billing.GeneratorOptions{Now: fixedClock()})

	results := collectResults(ctx, gen)
	require.Len(t, results, 1)
	snap := results[0].Draft.Header.Snapshot

	assert.Equal(t, billing.ProfileID("prof-1"), snap.ProfileID)
	assert.Equal(t, "Standard Service Charge", snap.ProfileName)
	assert.True(t, snap.TotalAmount.Equal(money("3000")), "snapshot total is un-prorated")
	require.Len(t, snap.Items, 1)
	assert.True(t, snap.Items[0].Amount.Equal(money("3000")))
	assert.Equal(t, fixedClock()(), snap.CapturedAt)
}

func TestInvoiceNumber_Deterministic(t *testing.T) {
	ym := billing.YearMonth{Year: 2025, Month: time.January}
	assert.Equal(t, "INV-202501-PROP-XYZ", billing.InvoiceNumber(ym, "prop-xyz-99"))
	assert.Equal(t, billing.InvoiceNumber(ym, "prop-xyz-99"), billing.InvoiceNumber(ym, "prop-xyz-99"))
	// Short IDs are used whole.
	assert.Equal(t, "INV-202501-P1", billing.InvoiceNumber(ym, "p1"))
}
