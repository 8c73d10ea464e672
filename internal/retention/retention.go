// Package retention schedules the periodic purge of soft-deleted
// messages past their retention period. Tombstones stay visible in
// history until the purge removes them for good.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"pawtalk/pkg/config"
	"pawtalk/pkg/logger"
	"pawtalk/pkg/store"
)

// Start launches the purge scheduler when retention is enabled. The
// returned cancel stops it.
func Start(ctx context.Context, cfg *config.Config, st *store.Store) (context.CancelFunc, error) {
	ret := cfg.Retention
	if !ret.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	cronExpr := ret.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", ret.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", ret.Cron)
	}

	period := ret.Period.Duration()
	if period <= 0 {
		return nil, fmt.Errorf("invalid retention period: %s", period)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "period", period.String())
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, period, ret.BatchSize, ret.DryRun, st)
	return cancel, nil
}

// runScheduler sleeps until the next cron tick and runs one purge pass.
func runScheduler(ctx context.Context, cronExpr string, period time.Duration, batch int, dryRun bool, st *store.Store) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}

		RunOnce(st, period, batch, dryRun)
	}
}

// RunOnce performs a single purge pass. Exposed for admin triggers and
// tests.
func RunOnce(st *store.Store, period time.Duration, batch int, dryRun bool) {
	cutoff := time.Now().Add(-period).UnixNano()
	n, err := st.PurgeTombstones(cutoff, batch, dryRun)
	if err != nil {
		logger.Error("retention_run_error", "error", err)
		return
	}
	logger.Info("retention_run_complete", "purged", n, "dry_run", dryRun)
}
