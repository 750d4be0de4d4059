/*
Package sqlite provides the SQLite-backed implementation of the billing
storage interfaces.

PURPOSE:
  Implements every persistence interface the engine depends on (PropertyRepo,
  OccupancyRepo, RateProfileRepo, InvoiceStore, InvoiceQuerier, SettingsStore,
  RunLog) plus the wallet ledger. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

IDEMPOTENCY ENFORCEMENT:
  idx_invoices_period is a UNIQUE index on
  (resident_id, property_id, rate_profile_id, period_start, period_end).
  The engine's Exists() pre-check is an optimization; this index is the
  authoritative guard against double-billing a period, including under
  concurrent writers. Violations surface as billing.ErrDuplicateInvoice.

ATOMICITY:
  Persist() writes the invoice header and its line items inside one database
  transaction. A header without lines is never visible.

MONEY:
  Decimal amounts are stored as TEXT and parsed with shopspring/decimal.
  Floats never touch monetary columns.

WAL MODE:
  The database is opened with WAL for better read concurrency and crash
  recovery.

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil { log.Fatal(err) }
  defer store.Close()

SEE ALSO:
  - billing/store.go: interface definitions
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
)

const timeLayout = time.RFC3339Nano

// Store implements all billing storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS property_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		default_profile_id TEXT
	);

	CREATE TABLE IF NOT EXISTS properties (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		occupied INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		rate_profile_id TEXT,
		property_type_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_properties_active ON properties(active);

	CREATE TABLE IF NOT EXISTS occupancy_links (
		id TEXT PRIMARY KEY,
		resident_id TEXT NOT NULL,
		property_id TEXT NOT NULL,
		role TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		move_in_date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_links_property
		ON occupancy_links(property_id, active);

	CREATE TABLE IF NOT EXISTS rate_profiles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		target_type TEXT NOT NULL,
		one_time INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS rate_items (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		name TEXT NOT NULL,
		amount TEXT NOT NULL,
		frequency TEXT NOT NULL,
		mandatory INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_rate_items_profile
		ON rate_items(profile_id, position);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		resident_id TEXT NOT NULL,
		property_id TEXT NOT NULL,
		rate_profile_id TEXT NOT NULL,
		number TEXT NOT NULL,
		amount_due TEXT NOT NULL,
		amount_paid TEXT NOT NULL,
		status TEXT NOT NULL,
		invoice_type TEXT NOT NULL,
		snapshot_json TEXT NOT NULL,
		due_date TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: the idempotency key. The existence pre-check in the engine
	-- is only an optimization; this index is the race guard.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_period
		ON invoices(resident_id, property_id, rate_profile_id, period_start, period_end);

	CREATE INDEX IF NOT EXISTS idx_invoices_resident ON invoices(resident_id);
	CREATE INDEX IF NOT EXISTS idx_invoices_property ON invoices(property_id);
	CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status);

	CREATE TABLE IF NOT EXISTS invoice_items (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL,
		description TEXT NOT NULL,
		amount TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoice_items_invoice
		ON invoice_items(invoice_id);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS wallet_accounts (
		resident_id TEXT PRIMARY KEY,
		balance TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS wallet_transactions (
		id TEXT PRIMARY KEY,
		resident_id TEXT NOT NULL,
		invoice_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS generation_runs (
		id TEXT PRIMARY KEY,
		trigger_type TEXT NOT NULL,
		as_of TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		success INTEGER NOT NULL,
		partial INTEGER NOT NULL,
		generated INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		skip_reasons_json TEXT NOT NULL,
		errors_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON generation_runs(started_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// isUniqueViolation detects the sqlite unique-constraint error without
// importing driver internals.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// =============================================================================
// PROPERTY REPO
// =============================================================================

func (s *Store) ActiveProperties(ctx context.Context) ([]billing.Property, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, occupied, active, rate_profile_id, property_type_id
		FROM properties WHERE active = 1 ORDER BY label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.Property
	for rows.Next() {
		var p billing.Property
		var occupied, active int
		var profileID, typeID sql.NullString
		if err := rows.Scan(&p.ID, &p.Label, &occupied, &active, &profileID, &typeID); err != nil {
			return nil, err
		}
		p.Occupied = occupied == 1
		p.Active = active == 1
		if profileID.Valid {
			id := billing.ProfileID(profileID.String)
			p.RateProfileID = &id
		}
		if typeID.Valid {
			id := billing.PropertyTypeID(typeID.String)
			p.PropertyTypeID = &id
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) PropertyTypeByID(ctx context.Context, id billing.PropertyTypeID) (*billing.PropertyType, error) {
	var t billing.PropertyType
	var defaultProfile sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, default_profile_id FROM property_types WHERE id = ?`, string(id)).
		Scan(&t.ID, &t.Name, &defaultProfile)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if defaultProfile.Valid {
		pid := billing.ProfileID(defaultProfile.String)
		t.DefaultProfileID = &pid
	}
	return &t, nil
}

func (s *Store) SaveProperty(ctx context.Context, p billing.Property) error {
	var profileID, typeID any
	if p.RateProfileID != nil {
		profileID = string(*p.RateProfileID)
	}
	if p.PropertyTypeID != nil {
		typeID = string(*p.PropertyTypeID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO properties (id, label, occupied, active, rate_profile_id, property_type_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(p.ID), p.Label, boolInt(p.Occupied), boolInt(p.Active), profileID, typeID)
	return err
}

func (s *Store) SavePropertyType(ctx context.Context, t billing.PropertyType) error {
	var defaultProfile any
	if t.DefaultProfileID != nil {
		defaultProfile = string(*t.DefaultProfileID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO property_types (id, name, default_profile_id)
		VALUES (?, ?, ?)`,
		string(t.ID), t.Name, defaultProfile)
	return err
}

// =============================================================================
// OCCUPANCY REPO
// =============================================================================

func (s *Store) ActiveLinks(ctx context.Context, propertyID billing.PropertyID) ([]billing.OccupancyLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, resident_id, property_id, role, active, move_in_date
		FROM occupancy_links WHERE property_id = ? AND active = 1`, string(propertyID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.OccupancyLink
	for rows.Next() {
		var l billing.OccupancyLink
		var active int
		var moveIn string
		if err := rows.Scan(&l.ID, &l.ResidentID, &l.PropertyID, &l.Role, &active, &moveIn); err != nil {
			return nil, err
		}
		l.Active = active == 1
		l.MoveInDate, err = billing.ParseDate(moveIn)
		if err != nil {
			return nil, fmt.Errorf("link %s: %w", l.ID, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) SaveOccupancyLink(ctx context.Context, l billing.OccupancyLink) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO occupancy_links (id, resident_id, property_id, role, active, move_in_date)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, string(l.ResidentID), string(l.PropertyID), string(l.Role), boolInt(l.Active), l.MoveInDate.String())
	return err
}

// =============================================================================
// RATE PROFILE REPO
// =============================================================================

func (s *Store) ProfileByID(ctx context.Context, id billing.ProfileID) (*billing.RateProfile, error) {
	var p billing.RateProfile
	var oneTime, active int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, target_type, one_time, active FROM rate_profiles WHERE id = ?`, string(id)).
		Scan(&p.ID, &p.Name, &p.TargetType, &oneTime, &active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.OneTime = oneTime == 1
	p.Active = active == 1

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, amount, frequency, mandatory
		FROM rate_items WHERE profile_id = ? ORDER BY position`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it billing.RateItem
		var amount string
		var mandatory int
		if err := rows.Scan(&it.ID, &it.Name, &amount, &it.Frequency, &mandatory); err != nil {
			return nil, err
		}
		it.Mandatory = mandatory == 1
		it.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("rate item %s amount %q: %w", it.ID, amount, err)
		}
		p.Items = append(p.Items, it)
	}
	return &p, rows.Err()
}

// SaveRateProfile replaces the profile and all its items.
func (s *Store) SaveRateProfile(ctx context.Context, p billing.RateProfile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO rate_profiles (id, name, target_type, one_time, active)
		VALUES (?, ?, ?, ?, ?)`,
		string(p.ID), p.Name, string(p.TargetType), boolInt(p.OneTime), boolInt(p.Active))
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rate_items WHERE profile_id = ?`, string(p.ID)); err != nil {
		return err
	}
	for i, it := range p.Items {
		id := it.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rate_items (id, profile_id, name, amount, frequency, mandatory, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, string(p.ID), it.Name, it.Amount.String(), string(it.Frequency), boolInt(it.Mandatory), i)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// =============================================================================
// INVOICE STORE
// =============================================================================

func (s *Store) Exists(ctx context.Context, key billing.IdempotencyKey) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM invoices
		WHERE resident_id = ? AND property_id = ? AND rate_profile_id = ?
		  AND period_start = ? AND period_end = ?`,
		string(key.ResidentID), string(key.PropertyID), string(key.RateProfileID),
		key.PeriodStart.String(), key.PeriodEnd.String()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Persist writes the header and its lines in one transaction. The unique
// period index turns a concurrent double-insert into ErrDuplicateInvoice.
func (s *Store) Persist(ctx context.Context, draft *billing.InvoiceDraft) (billing.InvoiceID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	h := draft.Header
	snapshot, err := json.Marshal(h.Snapshot)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (
			id, resident_id, property_id, rate_profile_id, number,
			amount_due, amount_paid, status, invoice_type, snapshot_json,
			due_date, period_start, period_end, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(h.ID), string(h.ResidentID), string(h.PropertyID), string(h.RateProfileID), h.Number,
		h.AmountDue.String(), h.AmountPaid.String(), string(h.Status), string(h.Type), string(snapshot),
		h.DueDate.String(), h.PeriodStart.String(), h.PeriodEnd.String(), h.CreatedBy, h.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		if isUniqueViolation(err) {
			return "", billing.ErrDuplicateInvoice
		}
		return "", err
	}

	for _, line := range draft.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO invoice_items (id, invoice_id, description, amount)
			VALUES (?, ?, ?, ?)`,
			line.ID, string(line.InvoiceID), line.Description, line.Amount.String())
		if err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return h.ID, nil
}

// =============================================================================
// INVOICE QUERIER
// =============================================================================

const invoiceColumns = `
	id, resident_id, property_id, rate_profile_id, number,
	amount_due, amount_paid, status, invoice_type, snapshot_json,
	due_date, period_start, period_end, created_by, created_at`

func (s *Store) Invoices(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE 1=1`
	var args []any
	if filter.ResidentID != nil {
		query += ` AND resident_id = ?`
		args = append(args, string(*filter.ResidentID))
	}
	if filter.PropertyID != nil {
		query += ` AND property_id = ?`
		args = append(args, string(*filter.PropertyID))
	}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	query += ` ORDER BY period_start`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (s *Store) InvoiceByID(ctx context.Context, id billing.InvoiceID) (*billing.Invoice, []billing.InvoiceLine, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, string(id))
	inv, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		return nil, nil, billing.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, invoice_id, description, amount FROM invoice_items WHERE invoice_id = ?`, string(id))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var lines []billing.InvoiceLine
	for rows.Next() {
		var l billing.InvoiceLine
		var amount string
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.Description, &amount); err != nil {
			return nil, nil, err
		}
		l.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, nil, err
		}
		lines = append(lines, l)
	}
	return inv, lines, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(r rowScanner) (*billing.Invoice, error) {
	var inv billing.Invoice
	var amountDue, amountPaid, snapshot, dueDate, periodStart, periodEnd, createdAt string
	err := r.Scan(&inv.ID, &inv.ResidentID, &inv.PropertyID, &inv.RateProfileID, &inv.Number,
		&amountDue, &amountPaid, &inv.Status, &inv.Type, &snapshot,
		&dueDate, &periodStart, &periodEnd, &inv.CreatedBy, &createdAt)
	if err != nil {
		return nil, err
	}
	if inv.AmountDue, err = decimal.NewFromString(amountDue); err != nil {
		return nil, err
	}
	if inv.AmountPaid, err = decimal.NewFromString(amountPaid); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(snapshot), &inv.Snapshot); err != nil {
		return nil, fmt.Errorf("invoice %s snapshot: %w", inv.ID, err)
	}
	if inv.DueDate, err = billing.ParseDate(dueDate); err != nil {
		return nil, err
	}
	if inv.PeriodStart, err = billing.ParseDate(periodStart); err != nil {
		return nil, err
	}
	if inv.PeriodEnd, err = billing.ParseDate(periodEnd); err != nil {
		return nil, err
	}
	if inv.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, err
	}
	return &inv, nil
}

// =============================================================================
// SETTINGS STORE
// =============================================================================

func (s *Store) GetString(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", billing.ErrSettingNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value)
	return err
}

// =============================================================================
// RUN LOG
// =============================================================================

func (s *Store) RecordRun(ctx context.Context, run billing.RunRecord) error {
	skipReasons, err := json.Marshal(run.SkipReasons)
	if err != nil {
		return err
	}
	errs, err := json.Marshal(run.Errors)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO generation_runs (
			id, trigger_type, as_of, started_at, finished_at, duration_ms,
			success, partial, generated, skipped, skip_reasons_json, errors_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Trigger), run.AsOf.String(),
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout), run.DurationMS,
		boolInt(run.Success), boolInt(run.Partial), run.Generated, run.Skipped,
		string(skipReasons), string(errs))
	return err
}

func (s *Store) Runs(ctx context.Context, limit int) ([]billing.RunRecord, error) {
	query := `
		SELECT id, trigger_type, as_of, started_at, finished_at, duration_ms,
		       success, partial, generated, skipped, skip_reasons_json, errors_json
		FROM generation_runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.RunRecord
	for rows.Next() {
		var run billing.RunRecord
		var asOf, startedAt, finishedAt, skipReasons, errs string
		var success, partial int
		if err := rows.Scan(&run.ID, &run.Trigger, &asOf, &startedAt, &finishedAt, &run.DurationMS,
			&success, &partial, &run.Generated, &run.Skipped, &skipReasons, &errs); err != nil {
			return nil, err
		}
		run.Success = success == 1
		run.Partial = partial == 1
		if run.AsOf, err = billing.ParseDate(asOf); err != nil {
			return nil, err
		}
		if run.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, err
		}
		if run.FinishedAt, err = time.Parse(timeLayout, finishedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(skipReasons), &run.SkipReasons); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(errs), &run.Errors); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// =============================================================================
// WALLET LEDGER
// =============================================================================

// CreditWallet adds funds to a resident's wallet account.
func (s *Store) CreditWallet(ctx context.Context, residentID billing.ResidentID, amount decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	balance, err := walletBalance(ctx, tx, residentID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO wallet_accounts (resident_id, balance) VALUES (?, ?)`,
		string(residentID), balance.Add(amount).String())
	if err != nil {
		return err
	}
	return tx.Commit()
}

// DebitForInvoice pays the invoice's outstanding amount from the resident's
// wallet, up to the available balance, updating the invoice's payment fields
// and appending a wallet transaction. This is the only code path that
// mutates an invoice after creation.
func (s *Store) DebitForInvoice(ctx context.Context, residentID billing.ResidentID, invoiceID billing.InvoiceID) (billing.DebitResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return billing.DebitResult{}, err
	}
	defer tx.Rollback()

	balance, err := walletBalance(ctx, tx, residentID)
	if err != nil {
		return billing.DebitResult{}, err
	}
	if !balance.IsPositive() {
		return billing.DebitResult{Success: true, AmountDebited: decimal.Zero}, nil
	}

	var due, paid string
	err = tx.QueryRowContext(ctx,
		`SELECT amount_due, amount_paid FROM invoices WHERE id = ?`, string(invoiceID)).
		Scan(&due, &paid)
	if err == sql.ErrNoRows {
		return billing.DebitResult{}, billing.ErrInvoiceNotFound
	}
	if err != nil {
		return billing.DebitResult{}, err
	}
	amountDue, err := decimal.NewFromString(due)
	if err != nil {
		return billing.DebitResult{}, err
	}
	amountPaid, err := decimal.NewFromString(paid)
	if err != nil {
		return billing.DebitResult{}, err
	}

	outstanding := amountDue.Sub(amountPaid)
	if !outstanding.IsPositive() {
		return billing.DebitResult{Success: true, AmountDebited: decimal.Zero}, nil
	}

	debit := decimal.Min(balance, outstanding)
	newPaid := amountPaid.Add(debit)
	newStatus := billing.StatusPartiallyPaid
	if newPaid.GreaterThanOrEqual(amountDue) {
		newStatus = billing.StatusPaid
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE invoices SET amount_paid = ?, status = ? WHERE id = ?`,
		newPaid.String(), string(newStatus), string(invoiceID)); err != nil {
		return billing.DebitResult{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE wallet_accounts SET balance = ? WHERE resident_id = ?`,
		balance.Sub(debit).String(), string(residentID)); err != nil {
		return billing.DebitResult{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (id, resident_id, invoice_id, amount, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), string(residentID), string(invoiceID), debit.String(),
		time.Now().UTC().Format(timeLayout)); err != nil {
		return billing.DebitResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return billing.DebitResult{}, err
	}
	return billing.DebitResult{Success: true, AmountDebited: debit}, nil
}

func walletBalance(ctx context.Context, tx *sql.Tx, residentID billing.ResidentID) (decimal.Decimal, error) {
	var raw string
	err := tx.QueryRowContext(ctx,
		`SELECT balance FROM wallet_accounts WHERE resident_id = ?`, string(residentID)).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
