/*
store.go - Persistence interfaces for the billing engine

PURPOSE:
  Narrow, typed repository interfaces per entity. The engine depends only on
  these; it never sees a query builder or a generic client. Implementations:

  - store/sqlite: production store (all interfaces on one *Store)
  - store/memory: in-memory store for tests and dev mode

ATOMICITY CONTRACT:
  InvoiceStore.Persist writes the header and its line items atomically.
  A header with zero line items is an invalid state for billing, so either
  both land or neither is visible.

IDEMPOTENCY CONTRACT:
  Exists() is a pre-check optimization. The store must also enforce a unique
  constraint on (resident, property, profile, period_start, period_end) and
  surface violations as ErrDuplicateInvoice; that constraint is the
  authoritative race guard.
*/
package billing

import "context"

// =============================================================================
// REPOSITORIES - Read side
// =============================================================================

// PropertyRepo enumerates properties and resolves property types.
type PropertyRepo interface {
	// ActiveProperties returns all active properties. Failure here is the
	// one fatal error that aborts a batch.
	ActiveProperties(ctx context.Context) ([]Property, error)

	// PropertyTypeByID resolves a property type, or nil when unknown.
	PropertyTypeByID(ctx context.Context, id PropertyTypeID) (*PropertyType, error)
}

// OccupancyRepo reads occupancy links.
type OccupancyRepo interface {
	// ActiveLinks returns all active occupancy links for a property.
	ActiveLinks(ctx context.Context, propertyID PropertyID) ([]OccupancyLink, error)
}

// RateProfileRepo reads rate profiles with their items.
type RateProfileRepo interface {
	// ProfileByID returns the profile, or nil when it does not exist or is
	// inactive.
	ProfileByID(ctx context.Context, id ProfileID) (*RateProfile, error)
}

// =============================================================================
// INVOICE WRITER - Write side
// =============================================================================

// IdempotencyKey is the duplicate guard for invoice creation.
type IdempotencyKey struct {
	ResidentID    ResidentID
	PropertyID    PropertyID
	RateProfileID ProfileID
	PeriodStart   Date
	PeriodEnd     Date
}

// KeyFor derives the idempotency key from an invoice header.
func KeyFor(inv *Invoice) IdempotencyKey {
	return IdempotencyKey{
		ResidentID:    inv.ResidentID,
		PropertyID:    inv.PropertyID,
		RateProfileID: inv.RateProfileID,
		PeriodStart:   inv.PeriodStart,
		PeriodEnd:     inv.PeriodEnd,
	}
}

// InvoiceStore persists and queries invoices.
type InvoiceStore interface {
	// Exists reports whether an invoice matching the key is already present.
	Exists(ctx context.Context, key IdempotencyKey) (bool, error)

	// Persist writes header + lines atomically. Returns ErrDuplicateInvoice
	// if the unique constraint is violated.
	Persist(ctx context.Context, draft *InvoiceDraft) (InvoiceID, error)
}

// InvoiceFilter narrows invoice queries. Nil fields match everything.
type InvoiceFilter struct {
	ResidentID *ResidentID
	PropertyID *PropertyID
	Status     *InvoiceStatus
}

// InvoiceQuerier is the read side used by the API layer.
type InvoiceQuerier interface {
	Invoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
	InvoiceByID(ctx context.Context, id InvoiceID) (*Invoice, []InvoiceLine, error)
}
