package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

const defaultIdempotencyRetention = 24 * time.Hour

// NewIdempotencyCleanupHandler returns the handler purging expired keys.
func NewIdempotencyCleanupHandler(store *shared.IdempotencyStore, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		olderThan := payload.OlderThan
		if olderThan <= 0 {
			olderThan = defaultIdempotencyRetention
		}
		if err := store.Cleanup(ctx, olderThan); err != nil {
			return err
		}
		logger.InfoContext(ctx, "idempotency keys purged", "older_than", olderThan.String())
		return nil
	}
}
