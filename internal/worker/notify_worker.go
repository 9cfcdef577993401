package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/reelforge/api/internal/events"
)

// NotifyWorker publishes worker notifications on a per-worker Redis pub/sub
// channel. Delivery is best effort; a worker with no open subscription just
// misses the message.
type NotifyWorker struct {
	redis *redis.Client
}

func NewNotifyWorker(redisClient *redis.Client) *NotifyWorker {
	return &NotifyWorker{redis: redisClient}
}

// ProcessTask handles one notification delivery.
func (w *NotifyWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var n events.Notification
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		return fmt.Errorf("failed to unmarshal notification payload: %w", err)
	}

	channel := fmt.Sprintf("notify:worker:%s", n.WorkerID)
	if err := w.redis.Publish(ctx, channel, t.Payload()).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
