package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReconcilePair re-checks one balance against its movements.
	TaskReconcilePair = "inventory:reconcile_pair"
	// TaskReconcileAll walks every balance, usually from the nightly cron.
	TaskReconcileAll = "inventory:reconcile_all"
)

// ReconcilePairPayload identifies the balance to check.
type ReconcilePairPayload struct {
	TenantID   int64  `json:"tenant_id"`
	LocationID int64  `json:"location_id"`
	PartID     int64  `json:"part_id"`
	Workflow   string `json:"workflow,omitempty"`
	Reference  string `json:"reference,omitempty"`
}

// ReconcileAllPayload carries scheduling metadata.
type ReconcileAllPayload struct {
	Batch        int       `json:"batch"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReconcilePairTask constructs an Asynq task for a single pair.
func NewReconcilePairTask(payload ReconcilePairPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcilePair, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewReconcileAllTask constructs an Asynq task for a full reconciliation.
func NewReconcileAllTask(batch int, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ReconcileAllPayload{Batch: batch, ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileAll, body, asynq.Queue(QueueDefault)), nil
}
