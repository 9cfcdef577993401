package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/reelforge/api/internal/events"
)

const auditStreamKey = "audit:events"

// AuditWorker appends audit events to a Redis stream. The stream is the
// hand-off point to the external append-only audit log.
type AuditWorker struct {
	redis *redis.Client
}

func NewAuditWorker(redisClient *redis.Client) *AuditWorker {
	return &AuditWorker{redis: redisClient}
}

// ProcessTask handles one audit event delivery.
func (w *AuditWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var ev events.AuditEvent
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return fmt.Errorf("failed to unmarshal audit payload: %w", err)
	}

	values := map[string]interface{}{
		"event": ev.Event,
		"at":    ev.At.UnixMilli(),
	}
	if ev.ProjectID != "" {
		values["projectId"] = ev.ProjectID
	}
	if ev.TaskID != "" {
		values["taskId"] = ev.TaskID
	}
	if ev.WorkerID != "" {
		values["workerId"] = ev.WorkerID
	}
	if ev.Detail != "" {
		values["detail"] = ev.Detail
	}

	if err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: auditStreamKey,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}
