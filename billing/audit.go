package billing

import (
	"context"
	"time"
)

// =============================================================================
// RUN LOG - One audit entry per generation batch
// =============================================================================

// TriggerType records which surface initiated a run.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
)

// RunRecord is the persisted audit entry for one batch run.
type RunRecord struct {
	ID          string
	Trigger     TriggerType
	AsOf        Date
	StartedAt   time.Time
	FinishedAt  time.Time
	DurationMS  int64
	Success     bool
	Partial     bool
	Generated   int
	Skipped     int
	SkipReasons []SkipReason
	Errors      []string
}

// RunLog stores run records. Append-only.
type RunLog interface {
	RecordRun(ctx context.Context, run RunRecord) error
	Runs(ctx context.Context, limit int) ([]RunRecord, error)
}

// =============================================================================
// CACHE INVALIDATION
// =============================================================================

// CacheInvalidator is notified once per completed run so billing views can
// drop stale data.
type CacheInvalidator interface {
	InvalidateBilling()
}

// NopCache is used when nothing caches billing views.
type NopCache struct{}

func (NopCache) InvalidateBilling() {}
