package billing

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
)

// =============================================================================
// SETTINGS ACCESSOR - Typed, defaulted configuration reads
// =============================================================================

// Engine setting keys. These live in the operator-editable settings store,
// not the deployment config file, because admins change them at runtime.
const (
	SettingBillVacant    = "bill_vacant_houses"
	SettingDueWindowDays = "invoice_due_window_days"
)

const (
	DefaultBillVacant    = false
	DefaultDueWindowDays = 30
)

// SettingsStore is the raw key-value read. Returns ErrSettingNotFound for
// absent keys.
type SettingsStore interface {
	GetString(ctx context.Context, key string) (string, error)
}

// Settings reads scalar configuration with engine-defined defaults. A missing
// key yields the default silently; a malformed or unreadable value yields the
// default with a log line, never an error. Settings can not take the batch
// down.
type Settings struct {
	Store SettingsStore
}

func (s *Settings) GetBool(ctx context.Context, key string, def bool) bool {
	raw, err := s.Store.GetString(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			log.Printf("[Settings] read %s: %v (using default %v)", key, err, def)
		}
		return def
	}
	switch strings.ToLower(strings.Trim(raw, `"`)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		log.Printf("[Settings] %s has non-boolean value %q (using default %v)", key, raw, def)
		return def
	}
}

func (s *Settings) GetInt(ctx context.Context, key string, def int) int {
	raw, err := s.Store.GetString(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			log.Printf("[Settings] read %s: %v (using default %d)", key, err, def)
		}
		return def
	}
	n, err := strconv.Atoi(strings.Trim(strings.TrimSpace(raw), `"`))
	if err != nil {
		log.Printf("[Settings] %s has non-integer value %q (using default %d)", key, raw, def)
		return def
	}
	return n
}
