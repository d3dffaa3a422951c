package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/expense-iam/internal/core/port"
	"github.com/arklim/expense-iam/internal/infra/telemetry"
)

const defaultPruneInterval = time.Hour

// RevocationJanitor periodically removes revocation records whose tokens have expired.
type RevocationJanitor struct {
	store    port.RevocationStore
	interval time.Duration
	metrics  *telemetry.AuthMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewRevocationJanitor constructs a janitor pruning store every interval.
func NewRevocationJanitor(store port.RevocationStore, interval time.Duration, logger *zap.Logger) *RevocationJanitor {
	if interval <= 0 {
		interval = defaultPruneInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RevocationJanitor{
		store:    store,
		interval: interval,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (j *RevocationJanitor) WithClock(clock func() time.Time) *RevocationJanitor {
	if clock != nil {
		j.now = clock
	}
	return j
}

// WithMetrics attaches authentication counters.
func (j *RevocationJanitor) WithMetrics(metrics *telemetry.AuthMetrics) *RevocationJanitor {
	j.metrics = metrics
	return j
}

// RunOnce prunes expired records and returns how many were removed.
func (j *RevocationJanitor) RunOnce(ctx context.Context) (int64, error) {
	removed, err := j.store.Prune(ctx, j.now())
	if err != nil {
		return 0, fmt.Errorf("prune revocations: %w", err)
	}
	j.metrics.RevocationsPruned(removed)
	return removed, nil
}

// Run prunes on every tick until ctx is cancelled. Failures are logged and retried on the next tick.
func (j *RevocationJanitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("revocation janitor started", zap.Duration("interval", j.interval))
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("revocation janitor stopped")
			return
		case <-ticker.C:
			removed, err := j.RunOnce(ctx)
			if err != nil {
				j.logger.Warn("revocation prune failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				j.logger.Debug("expired revocations pruned", zap.Int64("removed", removed))
			}
		}
	}
}
