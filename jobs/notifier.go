package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/partsledger/internal/inventory"
)

// reconcileDedupWindow collapses bursts of changes on one pair into a single task.
const reconcileDedupWindow = time.Minute

// HandleBalanceChanged enqueues a pair reconciliation after a committed change.
func (c *Client) HandleBalanceChanged(ctx context.Context, evt inventory.BalanceChangedEvent) error {
	task, err := NewReconcilePairTask(ReconcilePairPayload{
		TenantID:   evt.TenantID,
		LocationID: evt.LocationID,
		PartID:     evt.PartID,
		Workflow:   evt.Workflow,
		Reference:  evt.Reference,
	})
	if err != nil {
		return err
	}
	_, err = c.enqueuer.EnqueueContext(ctx, task, asynq.Unique(reconcileDedupWindow))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

var _ inventory.Notifier = (*Client)(nil)
