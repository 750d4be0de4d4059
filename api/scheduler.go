/*
scheduler.go - Scheduled monthly generation trigger

PURPOSE:
  Runs the generation batch on a cron schedule (day-of-month and hour from
  configuration). Uses the exact same orchestrator entry point as the manual
  endpoint; only the recorded trigger type differs.

IDEMPOTENCY:
  The batch itself is idempotent, so an extra firing (restart near the
  scheduled time, manual run on the same day) generates nothing new. A
  firing that overlaps an in-flight run is refused by the run lock and
  simply logged.

USAGE:
  sched := api.NewScheduler(engine, cfg.Scheduler)
  sched.Start()
  defer sched.Stop()
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/config"
)

// Scheduler fires the monthly generation batch.
type Scheduler struct {
	Engine *billing.Orchestrator

	// RunTimeout bounds one scheduled batch (distinct from request-level
	// timeouts; a batch can touch hundreds of properties).
	RunTimeout time.Duration

	enabled bool
	spec    string
	cron    *cron.Cron
}

// NewScheduler builds a scheduler from config. With DayOfMonth=1 and Hour=2
// the spec is "0 2 1 * *": 02:00 on the 1st of every month.
func NewScheduler(engine *billing.Orchestrator, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		Engine:     engine,
		RunTimeout: 1 * time.Hour,
		enabled:    cfg.Enabled,
		spec:       fmt.Sprintf("0 %d %d * *", cfg.Hour, cfg.DayOfMonth),
	}
}

// Start begins the cron loop.
func (s *Scheduler) Start() error {
	if !s.enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return nil
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.spec, s.runOnce); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", s.spec, err)
	}
	s.cron.Start()
	log.Printf("[Scheduler] Started with spec %q", s.spec)
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	log.Println("[Scheduler] Stopped")
}

// RunNow triggers an immediate batch (for admin/testing).
func (s *Scheduler) RunNow() { s.runOnce() }

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.RunTimeout)
	defer cancel()

	asOf := billing.DateOf(time.Now())
	log.Printf("[Scheduler] Running scheduled generation as of %s", asOf)

	summary, err := s.Engine.RunMonthlyGeneration(ctx, asOf, billing.TriggerScheduled)
	if errors.Is(err, billing.ErrRunInProgress) {
		log.Println("[Scheduler] Skipped: a run is already in progress")
		return
	}
	if err != nil {
		log.Printf("[Scheduler] Run failed: %v", err)
		return
	}
	log.Printf("[Scheduler] Completed: %d generated, %d skipped, %d errors",
		summary.Generated, summary.Skipped, len(summary.Errors))
}
