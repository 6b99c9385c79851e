package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/partsledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/partsledger/internal/jobs"
	"github.com/odyssey-erp/partsledger/internal/shared"
)

// Reconciler is the slice of the inventory service the reconcile jobs need.
type Reconciler interface {
	ReconcilePair(ctx context.Context, tenantID int64, key inventory.BalanceKey) (*inventory.Drift, error)
	ReconcileAll(ctx context.Context, batch int) ([]inventory.Drift, error)
}

// ReconcileJob compares balances with their movement history.
type ReconcileJob struct {
	Service Reconciler
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReconcileJob initialises the reconcile handlers.
func NewReconcileJob(service Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Service: service, Logger: logger, Metrics: metrics}
}

// HandlePair processes TaskReconcilePair tasks.
func (j *ReconcileJob) HandlePair(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("reconcile pair: handler not configured")
	}
	var payload ReconcilePairPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.TenantID <= 0 || payload.LocationID <= 0 || payload.PartID <= 0 {
		return fmt.Errorf("reconcile pair: incomplete payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskReconcilePair)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	key := inventory.BalanceKey{LocationID: payload.LocationID, PartID: payload.PartID}
	logger := j.logger().With(
		slog.Int64("tenant_id", payload.TenantID),
		slog.String("pair", key.String()),
		slog.String("workflow", payload.Workflow),
	)
	drift, err := j.Service.ReconcilePair(ctx, payload.TenantID, key)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			logger.Info("reconcile pair skipped, no balance row")
			return nil
		}
		logger.Error("reconcile pair failed", slog.Any("error", err))
		return err
	}
	if drift != nil {
		j.Metrics.AddDrift(drift.TenantID, 1)
	}
	return nil
}

// HandleAll processes TaskReconcileAll tasks.
func (j *ReconcileJob) HandleAll(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("reconcile all: handler not configured")
	}
	var payload ReconcileAllPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	start := time.Now()
	tracker := j.Metrics.Track(TaskReconcileAll)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("batch", payload.Batch))
	logger.Info("starting reconciliation")
	drifts, err := j.Service.ReconcileAll(ctx, payload.Batch)
	perTenant := make(map[int64]int)
	for _, d := range drifts {
		perTenant[d.TenantID]++
	}
	for tenantID, count := range perTenant {
		j.Metrics.AddDrift(tenantID, count)
	}
	if err != nil {
		logger.Error("reconciliation failed", slog.Int("drifts", len(drifts)), slog.Any("error", err))
		return err
	}
	logger.Info("completed reconciliation",
		slog.Int("drifts", len(drifts)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
