/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All engine error types in one place. The batch orchestrator sorts failures
  into a small taxonomy with these:

  Configuration errors:  ErrNoMonthlyItems (profile misconfigured)
  Idempotency:           ErrDuplicateInvoice (store-level unique guard)
  Concurrency:           ErrRunInProgress (one batch at a time)
  Fatal:                 property enumeration failure (wrapped, aborts batch)

  Eligibility non-matches (vacant property, no billable role) are NOT errors;
  they are skip reasons recorded on the summary.

USAGE:
  if errors.Is(err, billing.ErrDuplicateInvoice) {
      // lost the insert race to a concurrent writer; treat as AlreadyExists
  }
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoMonthlyItems means the effective profile has zero monthly items.
	// This aborts the remaining months for that property (misconfiguration,
	// not a transient condition).
	ErrNoMonthlyItems = errors.New("rate profile has no monthly items")

	// ErrDuplicateInvoice is returned by the store when an insert collides
	// with the (resident, property, profile, period) unique index. The
	// pre-insert existence check is only an optimization; this is the
	// authoritative guard.
	ErrDuplicateInvoice = errors.New("invoice already exists for period")

	// ErrRunInProgress is returned when a generation batch is already
	// running. Concurrent batches would race the idempotency pre-check.
	ErrRunInProgress = errors.New("generation run already in progress")

	// ErrProfileNotFound is returned when a referenced rate profile does
	// not exist or is inactive.
	ErrProfileNotFound = errors.New("rate profile not found")

	// ErrInvoiceNotFound is returned on lookups of unknown invoices.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrSettingNotFound is returned by the settings store for absent keys;
	// the accessor substitutes the engine default.
	ErrSettingNotFound = errors.New("setting not found")

	// ErrWalletNotFound is returned when a resident has no wallet account.
	ErrWalletNotFound = errors.New("wallet account not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PeriodError records a failure for a single billing period. One period's
// failure never prevents attempting subsequent months.
type PeriodError struct {
	PropertyID PropertyID
	Period     BillingPeriod
	Err        error
}

func (e *PeriodError) Error() string {
	return fmt.Sprintf("period %s for property %s: %v", e.Period, e.PropertyID, e.Err)
}

func (e *PeriodError) Unwrap() error { return e.Err }

// PropertyError records a failure that stopped processing of one property.
type PropertyError struct {
	PropertyID PropertyID
	Label      string
	Err        error
}

func (e *PropertyError) Error() string {
	return fmt.Sprintf("property %s: %v", e.Label, e.Err)
}

func (e *PropertyError) Unwrap() error { return e.Err }
