// Package daemon keeps the stored daily timetable window current.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/username/timetable/internal/calendar"
	"github.com/username/timetable/internal/feed"
	"github.com/username/timetable/pkg/dateutil"
)

// Loader opens a sink that stores schema rows, such as *sqlite.Store.
type Loader interface {
	Sink(ctx context.Context, schema feed.Schema, runID uuid.UUID, batchSize int) (feed.Sink, error)
}

// Options configures a Daemon.
type Options struct {
	DailyHour   int // Hour to refresh (0-23, local time)
	DailyMinute int // Minute to refresh (0-59)
	WindowDays  int // Days loaded on each side of today
	BatchSize   int // Rows per store commit
}

// Daemon represents the daemon process
type Daemon struct {
	loader Loader
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex // Protect against concurrent runs
	refreshing  bool
	lastRunDate string // Track last successful run date to avoid duplicates
	lastSummary *feed.Summary
}

// New creates a daemon refreshing the daily window into loader once a day.
func New(loader Loader, opts Options, logger *zap.Logger) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		loader: loader,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start runs the schedule until Stop is called or SIGINT/SIGTERM arrives.
func (d *Daemon) Start() error {
	d.logger.Info("Daemon started",
		zap.Int("daily_hour", d.opts.DailyHour),
		zap.Int("daily_minute", d.opts.DailyMinute),
		zap.Int("window_days", d.opts.WindowDays))

	// Run immediately if the scheduled time already passed today
	now := d.now()
	if now.After(d.scheduledOn(now)) {
		d.logger.Info("Scheduled time already passed today, refreshing now",
			zap.Time("current_time", now))
		if _, err := d.refresh(); err != nil {
			d.logger.Error("Initial refresh failed", zap.Error(err))
		}
	}

	nextRun := d.calculateNextRun(d.now())
	d.logger.Info("Next refresh scheduled",
		zap.Time("next_run", nextRun),
		zap.Duration("wait_duration", nextRun.Sub(d.now())))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Check every minute if it's time to run
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			d.logger.Info("Daemon stopped")
			return nil

		case sig := <-sigChan:
			d.logger.Info("Received signal, shutting down",
				zap.String("signal", sig.String()))
			d.Stop()
			return nil

		case <-ticker.C:
			d.tick(d.now())
		}
	}
}

// Stop stops the daemon
func (d *Daemon) Stop() {
	d.cancel()
}

// RefreshNow reloads the window immediately, even if it already ran today.
func (d *Daemon) RefreshNow() (*feed.Summary, error) {
	d.logger.Info("Manual refresh triggered")
	d.mu.Lock()
	d.lastRunDate = ""
	d.mu.Unlock()
	return d.refresh()
}

// LastSummary returns the summary of the last successful refresh, if any.
func (d *Daemon) LastSummary() *feed.Summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSummary
}

func (d *Daemon) tick(now time.Time) {
	if !d.shouldRunAt(now) {
		return
	}
	d.logger.Info("Starting scheduled refresh", zap.Time("time", now))
	if _, err := d.refresh(); err != nil {
		d.logger.Error("Refresh failed", zap.Error(err))
		return
	}
	nextRun := d.calculateNextRun(now)
	d.logger.Info("Next refresh scheduled", zap.Time("next_run", nextRun))
}

func (d *Daemon) scheduledOn(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(),
		d.opts.DailyHour, d.opts.DailyMinute, 0, 0, now.Location())
}

// calculateNextRun calculates the next scheduled run time
func (d *Daemon) calculateNextRun(now time.Time) time.Time {
	today := d.scheduledOn(now)
	// If target time already passed today, schedule for tomorrow
	if !now.Before(today) {
		return today.AddDate(0, 0, 1)
	}
	return today
}

// shouldRunAt checks if the refresh should run at the given time
func (d *Daemon) shouldRunAt(now time.Time) bool {
	return now.Hour() == d.opts.DailyHour && now.Minute() == d.opts.DailyMinute
}

// refresh loads the window around today. At most one refresh runs at a time
// and a successful one is not repeated on the same day.
func (d *Daemon) refresh() (*feed.Summary, error) {
	d.mu.Lock()
	if d.refreshing {
		d.mu.Unlock()
		d.logger.Warn("Refresh already running, skipping concurrent execution")
		return nil, fmt.Errorf("refresh already in progress")
	}
	now := d.now()
	todayStr := now.Format(dateutil.DateLayout)
	if d.lastRunDate == todayStr {
		summary := d.lastSummary
		d.mu.Unlock()
		d.logger.Info("Already refreshed today, skipping",
			zap.String("last_run_date", todayStr))
		return summary, nil
	}
	d.refreshing = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.refreshing = false
		d.mu.Unlock()
	}()

	clock := calendar.FixedClock(calendar.DateFromTime(now))
	seq, err := calendar.OpenDailyWindow(nil, nil, clock, d.opts.WindowDays)
	if err != nil {
		return nil, fmt.Errorf("failed to open daily window: %w", err)
	}
	start, end := seq.Bounds()
	d.logger.Info("Refreshing daily window",
		zap.Stringer("start", start),
		zap.Stringer("end", end))

	runID := uuid.New()
	sink, err := d.loader.Sink(d.ctx, feed.DailySchema, runID, d.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open store sink: %w", err)
	}
	summary, err := feed.Run(d.ctx, runID, feed.DailySource(seq), sink, d.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh daily window: %w", err)
	}

	d.mu.Lock()
	d.lastRunDate = todayStr
	d.lastSummary = summary
	d.mu.Unlock()
	return summary, nil
}
