package syncjob

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dreamware/replset/internal/cluster"
	"github.com/dreamware/replset/internal/clockstore"
	"github.com/dreamware/replset/internal/config"
)

// Dispatcher runs sync jobs: it captures the source-side clock, POSTs the
// sync request to the target, then monitors the target's clock until it
// catches up or the monitoring window expires.
type Dispatcher struct {
	Store  clockstore.Store
	Client *http.Client
	Log    *slog.Logger

	// MaxExportClockRange is the widest clock gap one sync can close. A gap
	// still wider than this after a push means the walk needs another job.
	MaxExportClockRange int64

	// RetryDelay and MaxMonitoring default to the engine constants; tests
	// shrink them.
	RetryDelay    time.Duration
	MaxMonitoring time.Duration
}

// Run implements Runner.
func (d *Dispatcher) Run(ctx context.Context, job *Job) (bool, error) {
	log := d.logger().With("job_id", job.ID, "wallet", job.Wallet, "target", job.Target)

	sourceClock, err := d.Store.Clock(ctx, job.Wallet)
	if err != nil {
		return false, fmt.Errorf("read source clock: %w", err)
	}

	req := cluster.SyncRequest{
		Wallet:              []string{job.Wallet},
		CreatorNodeEndpoint: job.Source,
		SyncType:            job.Kind,
		Immediate:           job.Immediate,
	}
	if err := cluster.PostJSON(ctx, d.Client, job.Target+"/sync", req, nil); err != nil {
		return false, fmt.Errorf("issue sync request: %w", err)
	}

	log.Info("sync request issued", "source_clock", sourceClock, "kind", string(job.Kind))
	return d.monitor(ctx, job, sourceClock, log)
}

// monitor polls the target's clock for the wallet until it reaches the
// source-side clock captured before the push. It reports true when a
// successor job must continue the walk: either the remaining gap exceeds one
// export window, or the deadline expired before catch-up.
func (d *Dispatcher) monitor(ctx context.Context, job *Job, sourceClock int64, log *slog.Logger) (bool, error) {
	retry := d.RetryDelay
	if retry <= 0 {
		retry = config.SyncMonitoringRetryDelay
	}
	window := d.MaxMonitoring
	if window <= 0 {
		window = config.MaxSyncMonitoringDuration
	}
	deadline := time.Now().Add(window)

	url := job.Target + "/users/clock_status/" + job.Wallet
	for {
		var resp cluster.ClockStatusResponse
		if err := cluster.GetJSON(ctx, d.Client, url, &resp); err != nil {
			log.Warn("clock status poll failed", "err", err)
		} else {
			targetClock := resp.Data.ClockValue
			if targetClock+d.MaxExportClockRange < sourceClock {
				log.Info("target still beyond one export window",
					"target_clock", targetClock, "source_clock", sourceClock)
				return true, nil
			}
			if targetClock >= sourceClock {
				log.Info("target caught up", "target_clock", targetClock)
				return false, nil
			}
		}

		if !time.Now().Add(retry).Before(deadline) {
			log.Warn("sync monitoring expired before catch-up", "source_clock", sourceClock)
			return true, nil
		}
		select {
		case <-time.After(retry):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}
