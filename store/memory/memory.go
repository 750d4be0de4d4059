// Package memory provides in-memory implementations of the billing storage
// interfaces, for tests and dev mode.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// MEMORY STORE - Implements every persistence interface on one value
// =============================================================================

type storedInvoice struct {
	header billing.Invoice
	lines  []billing.InvoiceLine
}

type Store struct {
	mu         sync.RWMutex
	properties []billing.Property
	types      map[billing.PropertyTypeID]billing.PropertyType
	profiles   map[billing.ProfileID]billing.RateProfile
	links      map[billing.PropertyID][]billing.OccupancyLink
	invoices   map[billing.IdempotencyKey]*storedInvoice
	byID       map[billing.InvoiceID]billing.IdempotencyKey
	settings   map[string]string
	runs       []billing.RunRecord
}

func New() *Store {
	return &Store{
		types:    make(map[billing.PropertyTypeID]billing.PropertyType),
		profiles: make(map[billing.ProfileID]billing.RateProfile),
		links:    make(map[billing.PropertyID][]billing.OccupancyLink),
		invoices: make(map[billing.IdempotencyKey]*storedInvoice),
		byID:     make(map[billing.InvoiceID]billing.IdempotencyKey),
		settings: make(map[string]string),
	}
}

// -----------------------------------------------------------------------------
// Seeding
// -----------------------------------------------------------------------------

func (s *Store) AddProperty(p billing.Property) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.properties = append(s.properties, p)
}

func (s *Store) AddPropertyType(t billing.PropertyType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[t.ID] = t
}

func (s *Store) AddProfile(p billing.RateProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

func (s *Store) AddLink(l billing.OccupancyLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[l.PropertyID] = append(s.links[l.PropertyID], l)
}

func (s *Store) SetSetting(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
}

// -----------------------------------------------------------------------------
// billing.PropertyRepo
// -----------------------------------------------------------------------------

func (s *Store) ActiveProperties(_ context.Context) ([]billing.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []billing.Property
	for _, p := range s.properties {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) PropertyTypeByID(_ context.Context, id billing.PropertyTypeID) (*billing.PropertyType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.types[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// -----------------------------------------------------------------------------
// billing.OccupancyRepo
// -----------------------------------------------------------------------------

func (s *Store) ActiveLinks(_ context.Context, propertyID billing.PropertyID) ([]billing.OccupancyLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []billing.OccupancyLink
	for _, l := range s.links[propertyID] {
		if l.Active {
			out = append(out, l)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// billing.RateProfileRepo
// -----------------------------------------------------------------------------

func (s *Store) ProfileByID(_ context.Context, id billing.ProfileID) (*billing.RateProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// -----------------------------------------------------------------------------
// billing.InvoiceStore
// -----------------------------------------------------------------------------

func (s *Store) Exists(_ context.Context, key billing.IdempotencyKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.invoices[key]
	return ok, nil
}

func (s *Store) Persist(_ context.Context, draft *billing.InvoiceDraft) (billing.InvoiceID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := billing.KeyFor(&draft.Header)
	if _, ok := s.invoices[key]; ok {
		return "", billing.ErrDuplicateInvoice
	}

	// Header and lines land together or not at all.
	lines := make([]billing.InvoiceLine, len(draft.Lines))
	copy(lines, draft.Lines)
	s.invoices[key] = &storedInvoice{header: draft.Header, lines: lines}
	s.byID[draft.Header.ID] = key
	return draft.Header.ID, nil
}

// -----------------------------------------------------------------------------
// billing.InvoiceQuerier
// -----------------------------------------------------------------------------

func (s *Store) Invoices(_ context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []billing.Invoice
	for _, inv := range s.invoices {
		h := inv.header
		if filter.ResidentID != nil && h.ResidentID != *filter.ResidentID {
			continue
		}
		if filter.PropertyID != nil && h.PropertyID != *filter.PropertyID {
			continue
		}
		if filter.Status != nil && h.Status != *filter.Status {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PeriodStart.Before(out[j].PeriodStart)
	})
	return out, nil
}

func (s *Store) InvoiceByID(_ context.Context, id billing.InvoiceID) (*billing.Invoice, []billing.InvoiceLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byID[id]
	if !ok {
		return nil, nil, billing.ErrInvoiceNotFound
	}
	inv := s.invoices[key]
	header := inv.header
	lines := make([]billing.InvoiceLine, len(inv.lines))
	copy(lines, inv.lines)
	return &header, lines, nil
}

// -----------------------------------------------------------------------------
// billing.SettingsStore
// -----------------------------------------------------------------------------

func (s *Store) GetString(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[key]
	if !ok {
		return "", billing.ErrSettingNotFound
	}
	return v, nil
}

// -----------------------------------------------------------------------------
// billing.RunLog
// -----------------------------------------------------------------------------

func (s *Store) RecordRun(_ context.Context, run billing.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *Store) Runs(_ context.Context, limit int) ([]billing.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]billing.RunRecord, len(s.runs))
	copy(out, s.runs)
	// Newest first.
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// =============================================================================
// MEMORY WALLET - In-memory wallet ledger
// =============================================================================

// Wallet applies balances against invoices held in the same memory Store.
type Wallet struct {
	mu       sync.Mutex
	store    *Store
	balances map[billing.ResidentID]decimal.Decimal
}

func NewWallet(store *Store) *Wallet {
	return &Wallet{store: store, balances: make(map[billing.ResidentID]decimal.Decimal)}
}

func (w *Wallet) Credit(residentID billing.ResidentID, amount decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[residentID] = w.balances[residentID].Add(amount)
}

func (w *Wallet) Balance(residentID billing.ResidentID) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[residentID]
}

// DebitForInvoice pays down the invoice's outstanding amount from the
// resident's balance, up to whichever is smaller.
func (w *Wallet) DebitForInvoice(ctx context.Context, residentID billing.ResidentID, invoiceID billing.InvoiceID) (billing.DebitResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	balance := w.balances[residentID]
	if !balance.IsPositive() {
		return billing.DebitResult{Success: true, AmountDebited: decimal.Zero}, nil
	}

	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	key, ok := w.store.byID[invoiceID]
	if !ok {
		return billing.DebitResult{}, billing.ErrInvoiceNotFound
	}
	inv := w.store.invoices[key]

	outstanding := inv.header.AmountDue.Sub(inv.header.AmountPaid)
	if !outstanding.IsPositive() {
		return billing.DebitResult{Success: true, AmountDebited: decimal.Zero}, nil
	}

	debit := decimal.Min(balance, outstanding)
	inv.header.AmountPaid = inv.header.AmountPaid.Add(debit)
	if inv.header.AmountPaid.GreaterThanOrEqual(inv.header.AmountDue) {
		inv.header.Status = billing.StatusPaid
	} else {
		inv.header.Status = billing.StatusPartiallyPaid
	}
	w.balances[residentID] = balance.Sub(debit)

	return billing.DebitResult{Success: true, AmountDebited: debit}, nil
}
