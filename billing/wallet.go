package billing

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// WALLET LEDGER - Best-effort auto-debit collaborator
// =============================================================================

// DebitResult reports the outcome of a wallet debit attempt.
type DebitResult struct {
	Success       bool
	AmountDebited decimal.Decimal
}

// WalletLedger applies a resident's wallet balance against an invoice's
// outstanding amount. From the generation batch's perspective this is
// fire-and-forget: a failed or partial debit is logged and never rolls back
// the invoice that preceded it.
//
// This is the one collaborator permitted to mutate invoice payment fields
// (amount_paid, status).
type WalletLedger interface {
	DebitForInvoice(ctx context.Context, residentID ResidentID, invoiceID InvoiceID) (DebitResult, error)
}

// NopWallet is used when no wallet service is wired (tests, dev mode).
type NopWallet struct{}

func (NopWallet) DebitForInvoice(context.Context, ResidentID, InvoiceID) (DebitResult, error) {
	return DebitResult{Success: true, AmountDebited: decimal.Zero}, nil
}
