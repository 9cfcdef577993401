package pipeline

import (
	"context"
	"time"

	"github.com/reelforge/api/internal/events"
)

// ReapExpired returns every task whose claim deadline has passed to the
// available pool and notifies the dispossessed claimant. Idempotent: a
// second run with no intervening claims reclaims nothing.
func (s *Service) ReapExpired(ctx context.Context, now time.Time) (int, error) {
	reclaimed, err := s.store.ReclaimExpired(ctx, now)
	if err != nil {
		return len(reclaimed), err
	}

	for _, task := range reclaimed {
		s.events.Audit(ctx, events.AuditEvent{
			Event:     "task.claim_expired",
			ProjectID: task.ProjectID,
			TaskID:    task.ID,
			WorkerID:  task.ClaimedBy,
			At:        now,
		})
		s.events.Notify(ctx, events.Notification{
			WorkerID: task.ClaimedBy,
			TaskID:   task.ID,
			Kind:     "claim_expired",
			Message:  "Your claim on \"" + task.Title + "\" expired and the task was released.",
			At:       now,
		})
	}
	return len(reclaimed), nil
}
