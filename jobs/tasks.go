// Package jobs hosts the asynq worker, scheduler and background tasks.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskLowStockScan flags products sitting below their reorder threshold.
	TaskLowStockScan = "stock:lowscan"
)

// IdempotencyCleanupPayload bounds the retention window for one run.
type IdempotencyCleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// LowStockScanPayload scopes a scan to one warehouse, zero meaning all.
type LowStockScanPayload struct {
	WarehouseID int64 `json:"warehouse_id"`
}

// NewLowStockScanTask constructs a low stock scan task.
func NewLowStockScanTask(warehouseID int64) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{WarehouseID: warehouseID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}
