/*
scheduler.go - Automated renewal scheduler

PURPOSE:
  Periodically checks for scheduled renewals whose date has arrived and
  processes them automatically, so carrier-anniversary renewals run on time
  without an account manager clicking a button.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Picks up pending renewals with renewal_date <= today
  - Processing is idempotent: a renewal that already ran counts every
    enrollment as skipped, so double-pickup is harmless
  - Persists the report on the renewal record for audit and UI display

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRenewalScheduler(store)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ProcessRenewal endpoint (manual processing)
  - engine/renewal.go: RenewalProcessor
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coverline/benefits-engine/engine"
	"github.com/coverline/benefits-engine/store/sqlite"
)

// RenewalScheduler processes scheduled renewals when their date arrives.
type RenewalScheduler struct {
	Store         *sqlite.Store
	Processor     *engine.RenewalProcessor
	CheckInterval time.Duration
	Enabled       bool
	Log           logrus.FieldLogger

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRenewalScheduler creates a new scheduler.
func NewRenewalScheduler(store *sqlite.Store) *RenewalScheduler {
	return &RenewalScheduler{
		Store:         store,
		Processor:     engine.NewRenewalProcessor(store),
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Log:           logrus.WithField("module", "scheduler"),
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (rs *RenewalScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Log.Info("scheduler disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run(rs.ticker)

	rs.Log.WithField("interval", rs.CheckInterval).Info("scheduler started")
}

// Stop stops the scheduler. Safe to call more than once.
func (rs *RenewalScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	rs.ticker = nil
	close(rs.stop)
	rs.wg.Wait()
	rs.Log.Info("scheduler stopped")
}

func (rs *RenewalScheduler) run(ticker *time.Ticker) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.checkAndProcess()

	for {
		select {
		case <-ticker.C:
			rs.checkAndProcess()
		case <-rs.stop:
			return
		}
	}
}

func (rs *RenewalScheduler) checkAndProcess() {
	ctx := context.Background()
	today := engine.Today()

	due, err := rs.Store.DueRenewals(ctx, today)
	if err != nil {
		rs.Log.WithError(err).Error("failed to list due renewals")
		return
	}
	if len(due) == 0 {
		return
	}

	rs.Log.WithField("count", len(due)).Info("processing due renewals")

	for _, ren := range due {
		if err := rs.processOne(ctx, ren); err != nil {
			rs.Log.WithError(err).WithField("renewal", ren.ID).Error("renewal processing failed")
		}
	}
}

func (rs *RenewalScheduler) processOne(ctx context.Context, ren engine.Renewal) error {
	report, err := rs.Processor.Process(ctx, ren.Date, ren.PlanIDs)
	if err != nil {
		ren.Status = engine.RenewalFailed
		ren.Report = report
		if saveErr := rs.Store.SaveRenewal(ctx, ren); saveErr != nil {
			rs.Log.WithError(saveErr).WithField("renewal", ren.ID).Error("failed to record renewal failure")
		}
		return err
	}

	ren.Status = engine.RenewalProcessed
	ren.Report = report
	if err := rs.Store.SaveRenewal(ctx, ren); err != nil {
		return err
	}

	rs.Log.WithFields(logrus.Fields{
		"renewal":   ren.ID,
		"succeeded": report.Succeeded,
		"skipped":   report.Skipped,
		"failures":  len(report.Failures),
	}).Info("renewal processed")

	return nil
}

// RunNow triggers an immediate check (for testing/admin).
func (rs *RenewalScheduler) RunNow() {
	rs.checkAndProcess()
}
