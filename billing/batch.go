/*
batch.go - Batch orchestrator for monthly invoice generation

PURPOSE:
  Drives one generation run across all active properties and aggregates the
  summary. This is the only component that touches the settings accessor and
  the external collaborators (wallet auto-debit, run log, cache invalidation).

RUN SHAPE:
  1. Take the process-wide run lock (one batch at a time; a concurrent run
     would race the idempotency pre-check).
  2. Read settings once: vacant-billing flag, due-window days.
  3. Enumerate active properties. Failure here is fatal; nothing else is.
  4. Per property: resolve profile -> resolve occupant -> iterate periods ->
     persist generated drafts -> best-effort wallet debit.
  5. Record one run-log entry, invalidate billing caches, return summary.

FAILURE ISOLATION:
  A property's failure is recorded and the batch moves on. A period's
  failure is recorded and later months of the same property are still
  attempted. A wallet failure is logged and never surfaces on the summary.

BUDGET:
  The run carries a wall-clock budget; once exceeded it stops starting new
  properties and returns a partial summary rather than hanging.

SEE ALSO:
  - generator.go: per-property period loop
  - audit.go: RunRecord / RunLog
*/
package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SUMMARY
// =============================================================================

// SkipReason is a non-error eligibility miss, keyed by the property label so
// an operator can act on it.
type SkipReason struct {
	Property string `json:"property"`
	Reason   string `json:"reason"`
}

// BatchSummary is what the caller receives; surfacing it to operators is the
// caller's job.
type BatchSummary struct {
	Success     bool         `json:"success"`
	Partial     bool         `json:"partial"`
	Generated   int          `json:"generated"`
	Skipped     int          `json:"skipped"`
	SkipReasons []SkipReason `json:"skipReasons"`
	Errors      []string     `json:"errors"`
}

func (s *BatchSummary) skip(label, reason string) {
	s.Skipped++
	s.SkipReasons = append(s.SkipReasons, SkipReason{Property: label, Reason: reason})
}

func (s *BatchSummary) fail(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator runs monthly generation batches. Zero-value collaborators
// (Wallet, Runs, Cache) may be left nil and are then skipped.
type Orchestrator struct {
	Properties  PropertyRepo
	Occupancies OccupancyRepo
	Profiles    RateProfileRepo
	Invoices    InvoiceStore
	Settings    *Settings

	Wallet WalletLedger
	Runs   RunLog
	Cache  CacheInvalidator

	// Budget bounds the run's wall clock; zero means no bound.
	Budget time.Duration

	// CreatedBy is stamped on generated invoices ("system" by default).
	CreatedBy string

	// Now is injectable for tests.
	Now func() time.Time

	runMu sync.Mutex
}

// RunMonthlyGeneration generates invoices for every property up to the month
// containing asOf. Re-running with the same asOf is a no-op (idempotent).
//
// The returned error is non-nil only for run-level failures (lock held,
// property list unavailable); per-property problems live on the summary.
func (o *Orchestrator) RunMonthlyGeneration(ctx context.Context, asOf Date, trigger TriggerType) (*BatchSummary, error) {
	if !o.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer o.runMu.Unlock()

	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	startedAt := now()
	var deadline time.Time
	if o.Budget > 0 {
		deadline = startedAt.Add(o.Budget)
	}

	target := YearMonthOf(asOf)
	summary := &BatchSummary{Success: true}

	log.Printf("[Billing] Generating invoices up to %s (trigger=%s)", target, trigger)

	// Settings are read once per run, not per property.
	includeVacant := o.Settings.GetBool(ctx, SettingBillVacant, DefaultBillVacant)
	dueWindow := o.Settings.GetInt(ctx, SettingDueWindowDays, DefaultDueWindowDays)

	properties, err := o.Properties.ActiveProperties(ctx)
	if err != nil {
		// The one fatal case: nothing can be processed at all.
		summary.Success = false
		summary.fail("failed to fetch properties: %v", err)
		o.finishRun(ctx, summary, asOf, trigger, startedAt, now())
		return summary, fmt.Errorf("fetch properties: %w", err)
	}

	log.Printf("[Billing] Found %d active properties", len(properties))

	resolver := &RateResolver{Profiles: o.Profiles, Properties: o.Properties}
	opts := GeneratorOptions{DueWindowDays: dueWindow, CreatedBy: o.createdBy(), Now: now}

	for _, prop := range properties {
		if !deadline.IsZero() && now().After(deadline) {
			summary.Partial = true
			summary.fail("budget exceeded after %s; remaining properties not processed", o.Budget)
			log.Printf("[Billing] Budget exceeded, returning partial summary")
			break
		}
		o.processProperty(ctx, prop, resolver, includeVacant, target, opts, summary)
	}

	finishedAt := now()
	log.Printf("[Billing] Complete: generated=%d skipped=%d errors=%d in %s",
		summary.Generated, summary.Skipped, len(summary.Errors), finishedAt.Sub(startedAt))

	o.finishRun(ctx, summary, asOf, trigger, startedAt, finishedAt)
	return summary, nil
}

// processProperty handles one property end to end. Its failures land on the
// summary; they never propagate.
func (o *Orchestrator) processProperty(ctx context.Context, prop Property, resolver *RateResolver, includeVacant bool, target YearMonth, opts GeneratorOptions, summary *BatchSummary) {
	label := prop.Label
	if label == "" {
		label = string(prop.ID)
	}

	profile, err := resolver.ResolveEffectiveProfile(ctx, prop)
	if err != nil {
		summary.fail("%v", &PropertyError{PropertyID: prop.ID, Label: label, Err: err})
		return
	}
	if profile == nil {
		summary.skip(label, "no rate profile resolves")
		return
	}
	if profile.TargetType != TargetProperty {
		summary.skip(label, fmt.Sprintf("profile %q targets residents, not properties", profile.Name))
		return
	}
	if profile.OneTime {
		summary.skip(label, fmt.Sprintf("profile %q is one-time (levy path)", profile.Name))
		return
	}

	links, err := o.Occupancies.ActiveLinks(ctx, prop.ID)
	if err != nil {
		summary.fail("%v", &PropertyError{PropertyID: prop.ID, Label: label, Err: err})
		return
	}
	if len(links) == 0 && !includeVacant {
		summary.skip(label, "vacant and vacant billing disabled")
		return
	}

	occupant := ResolveBillableOccupant(links, includeVacant)
	if occupant == nil {
		summary.skip(label, "no billable occupant under current policy")
		return
	}

	gen := NewPeriodGenerator(o.Invoices, prop, *occupant, profile, target, opts)
	for {
		res, ok := gen.Next(ctx)
		if !ok {
			return
		}
		switch res.Status {
		case PeriodExists:
			// Idempotency hit: silently advance; not a skip, not an error.
		case PeriodFailed:
			summary.fail("%s: %v", label, res.Err)
		case PeriodGenerated:
			id, err := o.Invoices.Persist(ctx, res.Draft)
			if err != nil {
				if errors.Is(err, ErrDuplicateInvoice) {
					// Lost the insert race; the unique index did its job.
					continue
				}
				summary.fail("%s (%s): %v", label, res.Period.Start, err)
				continue
			}
			summary.Generated++
			o.autoDebit(ctx, res.Draft.Header.ResidentID, id, res.Draft.Header.Number)
		}
	}
}

// autoDebit is best-effort; a failing ledger never rolls back the invoice.
func (o *Orchestrator) autoDebit(ctx context.Context, residentID ResidentID, invoiceID InvoiceID, number string) {
	if o.Wallet == nil {
		return
	}
	res, err := o.Wallet.DebitForInvoice(ctx, residentID, invoiceID)
	if err != nil {
		log.Printf("[Billing] Wallet debit failed for %s: %v", number, err)
		return
	}
	if res.Success && res.AmountDebited.IsPositive() {
		log.Printf("[Billing] Auto-debited %s from wallet for %s", res.AmountDebited, number)
	}
}

// finishRun records the audit entry and drops billing caches. Both are
// best-effort.
func (o *Orchestrator) finishRun(ctx context.Context, summary *BatchSummary, asOf Date, trigger TriggerType, startedAt, finishedAt time.Time) {
	if o.Runs != nil {
		run := RunRecord{
			ID:          uuid.NewString(),
			Trigger:     trigger,
			AsOf:        asOf,
			StartedAt:   startedAt,
			FinishedAt:  finishedAt,
			DurationMS:  finishedAt.Sub(startedAt).Milliseconds(),
			Success:     summary.Success,
			Partial:     summary.Partial,
			Generated:   summary.Generated,
			Skipped:     summary.Skipped,
			SkipReasons: summary.SkipReasons,
			Errors:      summary.Errors,
		}
		if err := o.Runs.RecordRun(ctx, run); err != nil {
			log.Printf("[Billing] Failed to record run: %v", err)
		}
	}
	if o.Cache != nil {
		o.Cache.InvalidateBilling()
	}
}

func (o *Orchestrator) createdBy() string {
	if o.CreatedBy != "" {
		return o.CreatedBy
	}
	return "system"
}
