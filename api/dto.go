/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the billing API. These decouple the internal domain
  model from the external contract; decimal amounts are serialized as
  strings so clients never see binary-float money.

SEE ALSO:
  - handlers.go: uses these types
*/
package api

import (
	"time"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// GenerateRequest triggers a manual generation run. AsOf defaults to today.
type GenerateRequest struct {
	AsOf string `json:"asOf,omitempty"` // "2006-01-02"
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type InvoiceDTO struct {
	ID          string               `json:"id"`
	ResidentID  string               `json:"residentId"`
	PropertyID  string               `json:"propertyId"`
	Number      string               `json:"number"`
	AmountDue   string               `json:"amountDue"`
	AmountPaid  string               `json:"amountPaid"`
	Status      string               `json:"status"`
	InvoiceType string               `json:"invoiceType"`
	DueDate     string               `json:"dueDate"`
	PeriodStart string               `json:"periodStart"`
	PeriodEnd   string               `json:"periodEnd"`
	Snapshot    billing.RateSnapshot `json:"rateSnapshot"`
	CreatedAt   time.Time            `json:"createdAt"`
}

type InvoiceLineDTO struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

type InvoiceDetailDTO struct {
	InvoiceDTO
	Lines []InvoiceLineDTO `json:"lines"`
}

type RunDTO struct {
	ID          string               `json:"id"`
	Trigger     string               `json:"trigger"`
	AsOf        string               `json:"asOf"`
	StartedAt   time.Time            `json:"startedAt"`
	DurationMS  int64                `json:"durationMs"`
	Success     bool                 `json:"success"`
	Partial     bool                 `json:"partial"`
	Generated   int                  `json:"generated"`
	Skipped     int                  `json:"skipped"`
	SkipReasons []billing.SkipReason `json:"skipReasons"`
	Errors      []string             `json:"errors"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toInvoiceDTO(inv billing.Invoice) InvoiceDTO {
	return InvoiceDTO{
		ID:          string(inv.ID),
		ResidentID:  string(inv.ResidentID),
		PropertyID:  string(inv.PropertyID),
		Number:      inv.Number,
		AmountDue:   inv.AmountDue.StringFixed(2),
		AmountPaid:  inv.AmountPaid.StringFixed(2),
		Status:      string(inv.Status),
		InvoiceType: string(inv.Type),
		DueDate:     inv.DueDate.String(),
		PeriodStart: inv.PeriodStart.String(),
		PeriodEnd:   inv.PeriodEnd.String(),
		Snapshot:    inv.Snapshot,
		CreatedAt:   inv.CreatedAt,
	}
}

func toLineDTO(line billing.InvoiceLine) InvoiceLineDTO {
	return InvoiceLineDTO{
		ID:          line.ID,
		Description: line.Description,
		Amount:      line.Amount.StringFixed(2),
	}
}

func toRunDTO(run billing.RunRecord) RunDTO {
	return RunDTO{
		ID:          run.ID,
		Trigger:     string(run.Trigger),
		AsOf:        run.AsOf.String(),
		StartedAt:   run.StartedAt,
		DurationMS:  run.DurationMS,
		Success:     run.Success,
		Partial:     run.Partial,
		Generated:   run.Generated,
		Skipped:     run.Skipped,
		SkipReasons: run.SkipReasons,
		Errors:      run.Errors,
	}
}
