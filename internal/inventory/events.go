package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceChangedEvent is published after a workflow commits a balance change.
type BalanceChangedEvent struct {
	TenantID   int64
	LocationID int64
	PartID     int64
	Qty        decimal.Decimal
	Workflow   string
	Reference  string
	At         time.Time
}

// Notifier receives post-commit balance changes, e.g. to schedule a reconciliation.
// Failures are logged and never undo the committed workflow.
type Notifier interface {
	HandleBalanceChanged(ctx context.Context, evt BalanceChangedEvent) error
}

// Workflow names used in audit facts, metrics and events.
const (
	WorkflowAdjustment  = "adjustment"
	WorkflowTransfer    = "transfer"
	WorkflowTempStockIn = "temp_stock_in"
	WorkflowTempResolve = "temp_stock_resolve"
	WorkflowTempLink    = "temp_stock_link"
)
