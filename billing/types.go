/*
Package billing implements the recurring service-charge engine for a
multi-property estate.

PURPOSE:
  Given properties, occupancy links, and rate profiles, produce exactly one
  invoice per billable occupant per calendar month, from the occupant's
  move-in month through a target month, with pro-rata applied to the first
  month only and a frozen rate snapshot on every invoice.

KEY CONCEPTS IN THIS FILE (types.go):
  - Property / PropertyType: what gets billed
  - OccupancyLink: who lives there, in which role
  - RateProfile / RateItem: what gets charged
  - Invoice / InvoiceLine / RateSnapshot: what gets produced

DESIGN PRINCIPLES:
  1. Precision: all money is decimal.Decimal, never float
  2. Immutability: invoices are created once and never edited by this engine
     (payment fields are mutated only by the wallet ledger)
  3. Idempotency: (resident, property, profile, periodStart, periodEnd) is
     the duplicate guard, enforced by the store's unique index
  4. Auditability: every invoice carries a RateSnapshot frozen at generation

SEE ALSO:
  - occupancy.go: billable-occupant resolution
  - rates.go: effective-profile resolution
  - generator.go: the month loop, pro-rata, rounding
  - batch.go: the orchestrated run across all properties
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	PropertyID     string
	PropertyTypeID string
	ResidentID     string
	ProfileID      string
	InvoiceID      string
)

// =============================================================================
// PROPERTY
// =============================================================================

// Property is read-only to this engine; lifecycle is owned by property
// management.
type Property struct {
	ID       PropertyID
	Label    string // human-facing identifier, e.g. house number
	Occupied bool
	Active   bool

	// RateProfileID is a direct override; when set it always wins over the
	// property type's default profile.
	RateProfileID  *ProfileID
	PropertyTypeID *PropertyTypeID
}

type PropertyType struct {
	ID               PropertyTypeID
	Name             string
	DefaultProfileID *ProfileID
}

// =============================================================================
// OCCUPANCY
// =============================================================================

type OccupantRole string

const (
	RoleTenant                OccupantRole = "tenant"
	RoleResidentLandlord      OccupantRole = "resident_landlord"
	RoleNonResidentLandlord   OccupantRole = "non_resident_landlord"
	RoleDeveloper             OccupantRole = "developer"
	RoleCoResident            OccupantRole = "co_resident"
	RoleHouseholdMember       OccupantRole = "household_member"
	RoleDomesticStaff         OccupantRole = "domestic_staff"
	RoleCaretaker             OccupantRole = "caretaker"
	RoleContractor            OccupantRole = "contractor"
)

// OccupancyLink relates a resident to a property. At most one active tenant
// link per property is assumed (enforced upstream).
type OccupancyLink struct {
	ID         string
	ResidentID ResidentID
	PropertyID PropertyID
	Role       OccupantRole
	Active     bool
	MoveInDate Date
}

// =============================================================================
// RATE PROFILES
// =============================================================================

type Frequency string

const (
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
	FreqOneOff  Frequency = "one_off"
)

type TargetType string

const (
	TargetProperty TargetType = "property"
	TargetResident TargetType = "resident"
)

type RateItem struct {
	ID        string
	Name      string
	Amount    decimal.Decimal
	Frequency Frequency
	Mandatory bool
}

// RateProfile is a named bundle of billing line items. Only property-targeted,
// non-one-time profiles are processed by the monthly engine; others are
// skipped with a reason.
type RateProfile struct {
	ID         ProfileID
	Name       string
	TargetType TargetType
	OneTime    bool
	Active     bool
	Items      []RateItem
}

// MonthlyItems returns the items billed every month, in profile order.
func (p *RateProfile) MonthlyItems() []RateItem {
	var items []RateItem
	for _, it := range p.Items {
		if it.Frequency == FreqMonthly {
			items = append(items, it)
		}
	}
	return items
}

// MonthlyTotal is the un-prorated sum of all monthly items.
func (p *RateProfile) MonthlyTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range p.MonthlyItems() {
		total = total.Add(it.Amount)
	}
	return total
}

// =============================================================================
// INVOICES
// =============================================================================

type InvoiceStatus string

const (
	StatusUnpaid        InvoiceStatus = "unpaid"
	StatusPaid          InvoiceStatus = "paid"
	StatusPartiallyPaid InvoiceStatus = "partially_paid"
	StatusVoid          InvoiceStatus = "void"
	StatusOverdue       InvoiceStatus = "overdue"
)

type InvoiceType string

const (
	TypeServiceCharge InvoiceType = "SERVICE_CHARGE"
	TypeLevy          InvoiceType = "LEVY"
)

// InvoiceTypeFor derives the invoice type from the profile shape. The monthly
// engine only processes recurring profiles, so it always yields
// SERVICE_CHARGE in practice; the derivation rule is still part of the
// contract shared with the levy path.
func InvoiceTypeFor(p *RateProfile) InvoiceType {
	if p.OneTime {
		return TypeLevy
	}
	return TypeServiceCharge
}

// Invoice is the persisted header. Created once per (resident, property,
// profile, period); never mutated here after creation.
type Invoice struct {
	ID            InvoiceID
	ResidentID    ResidentID
	PropertyID    PropertyID
	RateProfileID ProfileID
	Number        string
	AmountDue     decimal.Decimal
	AmountPaid    decimal.Decimal
	Status        InvoiceStatus
	Type          InvoiceType
	Snapshot      RateSnapshot
	DueDate       Date
	PeriodStart   Date
	PeriodEnd     Date
	CreatedBy     string
	CreatedAt     time.Time
}

type InvoiceLine struct {
	ID          string
	InvoiceID   InvoiceID
	Description string
	Amount      decimal.Decimal
}

// InvoiceDraft is a computed, not-yet-persisted invoice with its lines.
// Header and lines must be written atomically.
type InvoiceDraft struct {
	Header Invoice
	Lines  []InvoiceLine
}

// =============================================================================
// RATE SNAPSHOT - Frozen audit copy of the profile at generation time
// =============================================================================

// RateSnapshot makes historical invoices immune to later rate edits. JSON tags
// match the column layout in the existing invoice table.
type RateSnapshot struct {
	ProfileID   ProfileID      `json:"billing_profile_id"`
	ProfileName string         `json:"billing_profile_name"`
	CapturedAt  time.Time      `json:"captured_at"`
	Items       []SnapshotItem `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type SnapshotItem struct {
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Frequency Frequency       `json:"frequency"`
	Mandatory bool            `json:"is_mandatory"`
}

// NewRateSnapshot freezes the profile's monthly items and un-prorated total.
func NewRateSnapshot(p *RateProfile, capturedAt time.Time) RateSnapshot {
	monthly := p.MonthlyItems()
	items := make([]SnapshotItem, 0, len(monthly))
	for _, it := range monthly {
		items = append(items, SnapshotItem{
			Name:      it.Name,
			Amount:    it.Amount,
			Frequency: it.Frequency,
			Mandatory: it.Mandatory,
		})
	}
	return RateSnapshot{
		ProfileID:   p.ID,
		ProfileName: p.Name,
		CapturedAt:  capturedAt,
		Items:       items,
		TotalAmount: p.MonthlyTotal(),
	}
}
