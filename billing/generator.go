/*
generator.go - The period generation loop (core algorithm)

PURPOSE:
  Walks calendar months from a billable occupant's move-in month through the
  target month and computes one PeriodResult per month:

    PeriodExists    - invoice already present (idempotency hit, silent)
    PeriodGenerated - a new InvoiceDraft ready to persist
    PeriodFailed    - this period could not be evaluated

PRO-RATA RULE:
  Applied only to the move-in month, and only when the move-in date is
  strictly after the 1st:

    activeDays = days(moveIn .. periodEnd) + 1
    fraction   = activeDays / totalDaysInMonth

  Every later month bills fraction = 1. There is no partial-month handling
  for move-out or any month after the first.

ROUNDING:
  Half-up to 2 decimal places, on the header total and on each line item
  independently. Line items are NOT forced to sum to the rounded header
  total; a sub-cent discrepancy on pro-rated months is tolerated for audit
  fidelity with historical invoices (see DESIGN.md).

TERMINATION:
  The loop is strictly bounded by the month range. A profile with zero
  monthly items fails the whole loop for the property (misconfiguration),
  not just one month.

SEE ALSO:
  - period.go: MonthRange iterator
  - batch.go: persistence of Generated results and summary accounting
*/
package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// PERIOD RESULTS
// =============================================================================

type PeriodStatus int

const (
	PeriodGenerated PeriodStatus = iota
	PeriodExists
	PeriodFailed
)

// PeriodResult is one month's outcome. Draft is set only for PeriodGenerated;
// Err only for PeriodFailed.
type PeriodResult struct {
	Period BillingPeriod
	Status PeriodStatus
	Draft  *InvoiceDraft
	Err    error
}

// =============================================================================
// GENERATOR
// =============================================================================

// GeneratorOptions carries per-run policy read once by the orchestrator.
type GeneratorOptions struct {
	DueWindowDays int
	CreatedBy     string
	Now           func() time.Time
}

// PeriodGenerator is a lazy, finite, non-restartable iterator over the
// billing months of one occupant. It consults the InvoiceStore for existence
// checks but never writes.
type PeriodGenerator struct {
	invoices InvoiceStore
	property Property
	occupant OccupancyLink
	profile  *RateProfile
	opts     GeneratorOptions

	months  *MonthRange
	moveIn  Date
	monthly []RateItem
	total   decimal.Decimal
	halted  bool
	started bool
}

// NewPeriodGenerator builds the iterator for one (occupant, profile) pair,
// covering the occupant's move-in month through the target month inclusive.
func NewPeriodGenerator(invoices InvoiceStore, prop Property, occ OccupancyLink, profile *RateProfile, target YearMonth, opts GeneratorOptions) *PeriodGenerator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DueWindowDays <= 0 {
		opts.DueWindowDays = DefaultDueWindowDays
	}
	return &PeriodGenerator{
		invoices: invoices,
		property: prop,
		occupant: occ,
		profile:  profile,
		opts:     opts,
		months:   NewMonthRange(YearMonthOf(occ.MoveInDate), target),
		moveIn:   occ.MoveInDate,
		monthly:  profile.MonthlyItems(),
		total:    profile.MonthlyTotal(),
	}
}

// Next yields the next month's result, or false when the range is exhausted
// or the loop has been halted by a profile misconfiguration.
func (g *PeriodGenerator) Next(ctx context.Context) (PeriodResult, bool) {
	if g.halted {
		return PeriodResult{}, false
	}

	ym, ok := g.months.Next()
	if !ok {
		return PeriodResult{}, false
	}
	period := PeriodFor(ym)

	// Zero monthly items is a misconfigured profile: stop the whole loop for
	// this property, not just this month.
	if !g.started {
		g.started = true
		if len(g.monthly) == 0 {
			g.halted = true
			return PeriodResult{
				Period: period,
				Status: PeriodFailed,
				Err:    &PeriodError{PropertyID: g.property.ID, Period: period, Err: ErrNoMonthlyItems},
			}, true
		}
	}

	exists, err := g.invoices.Exists(ctx, IdempotencyKey{
		ResidentID:    g.occupant.ResidentID,
		PropertyID:    g.property.ID,
		RateProfileID: g.profile.ID,
		PeriodStart:   period.Start,
		PeriodEnd:     period.End,
	})
	if err != nil {
		// One month's store failure does not stop later months.
		return PeriodResult{
			Period: period,
			Status: PeriodFailed,
			Err:    &PeriodError{PropertyID: g.property.ID, Period: period, Err: err},
		}, true
	}
	if exists {
		return PeriodResult{Period: period, Status: PeriodExists}, true
	}

	return PeriodResult{
		Period: period,
		Status: PeriodGenerated,
		Draft:  g.buildDraft(period),
	}, true
}

// buildDraft computes the invoice header, lines, and frozen snapshot for one
// period.
func (g *PeriodGenerator) buildDraft(period BillingPeriod) *InvoiceDraft {
	totalDays := period.TotalDays()
	activeDays := totalDays

	// Pro-rata applies only to the move-in month, and only for a mid-month
	// move-in.
	prorated := YearMonthOf(g.moveIn).Equal(YearMonthOf(period.Start)) && g.moveIn.After(period.Start)
	if prorated {
		activeDays = DaysBetween(g.moveIn, period.End) + 1
	}

	now := g.opts.Now()
	header := Invoice{
		ID:            InvoiceID(uuid.NewString()),
		ResidentID:    g.occupant.ResidentID,
		PropertyID:    g.property.ID,
		RateProfileID: g.profile.ID,
		Number:        InvoiceNumber(YearMonthOf(period.Start), g.property.ID),
		AmountDue:     prorate(g.total, activeDays, totalDays),
		AmountPaid:    decimal.Zero,
		Status:        StatusUnpaid,
		Type:          InvoiceTypeFor(g.profile),
		Snapshot:      NewRateSnapshot(g.profile, now),
		DueDate:       period.Start.AddDays(g.opts.DueWindowDays),
		PeriodStart:   period.Start,
		PeriodEnd:     period.End,
		CreatedBy:     g.opts.CreatedBy,
		CreatedAt:     now,
	}

	lines := make([]InvoiceLine, 0, len(g.monthly))
	for _, item := range g.monthly {
		desc := item.Name
		if prorated && activeDays < totalDays {
			desc = fmt.Sprintf("%s (Pro-rata: %d/%d days)", item.Name, activeDays, totalDays)
		}
		lines = append(lines, InvoiceLine{
			ID:          uuid.NewString(),
			InvoiceID:   header.ID,
			Description: desc,
			// Each line is rounded independently of the header total.
			Amount: prorate(item.Amount, activeDays, totalDays),
		})
	}

	return &InvoiceDraft{Header: header, Lines: lines}
}

// prorate computes round(amount × activeDays/totalDays, 2) half-up.
// Multiplying before dividing keeps exact day ratios exact (3000 × 16/30 is
// 1600.00, not 1599.99...).
func prorate(amount decimal.Decimal, activeDays, totalDays int) decimal.Decimal {
	if activeDays >= totalDays {
		return amount.Round(2)
	}
	return amount.
		Mul(decimal.NewFromInt(int64(activeDays))).
		Div(decimal.NewFromInt(int64(totalDays))).
		Round(2)
}

// =============================================================================
// INVOICE NUMBER
// =============================================================================

// InvoiceNumber is deterministic per (month, property) so operators can spot
// duplicates by eye. Uniqueness is enforced by the idempotency key, not by
// the number format.
func InvoiceNumber(ym YearMonth, propertyID PropertyID) string {
	short := string(propertyID)
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("INV-%04d%02d-%s", ym.Year, int(ym.Month), strings.ToUpper(short))
}
