package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/reelforge/api/internal/events"
	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/review"
)

// Submit records a submission and runs it through automated review. The task
// advances to AI_REVIEW before the scorer is called so a slow or failed
// scorer never blocks other claim traffic; a flagged (or failed) review
// drops the task back to SUBMITTED where the claimant may resubmit.
func (s *Service) Submit(ctx context.Context, taskID, workerID, content string) (*model.TaskActionResponse, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.ClaimedBy != workerID {
		return nil, ErrNotClaimant
	}
	if task.Status != model.TaskStatusClaimed && task.Status != model.TaskStatusSubmitted {
		return nil, ErrWrongStatus
	}
	if s.cfg.MaxAttempts > 0 && task.Attempts >= s.cfg.MaxAttempts {
		return nil, ErrAttemptsExhausted
	}

	attempts, ok, err := s.store.BeginReview(ctx, taskID, workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start review: %w", err)
	}
	if !ok {
		return nil, ErrWrongStatus
	}

	now := time.Now()
	sub := &model.Submission{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		WorkerID:  workerID,
		Content:   content,
		Status:    model.TaskStatusAIReview,
		CreatedAt: now,
	}
	if err := s.store.InsertSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to record submission: %w", err)
	}

	s.events.Audit(ctx, events.AuditEvent{
		Event:     "task.submitted",
		ProjectID: task.ProjectID,
		TaskID:    taskID,
		WorkerID:  workerID,
		Detail:    fmt.Sprintf("attempt %d", attempts),
		At:        now,
	})

	// Synchronous external call, bounded by the client timeout. No lock is
	// held here; the task already sits in AI_REVIEW.
	result, err := s.scorer.Score(ctx, taskID, task.Spec, content)
	if err != nil {
		// A scorer outage must not wedge the task: treat it as flagged so
		// the claimant can resubmit.
		log.Printf("pipeline: automated review failed for task %s: %v", taskID, err)
		result = &review.Result{
			Score:    0,
			Verdict:  model.VerdictFlagged,
			Feedback: "Automated review unavailable, please resubmit.",
		}
	}

	next := model.TaskStatusSubmitted
	if result.Verdict == model.VerdictApproved {
		next = model.TaskStatusHumanReview
	}

	if _, err := s.store.SetReviewOutcome(ctx, taskID, next, result.Score); err != nil {
		return nil, fmt.Errorf("failed to record review outcome: %w", err)
	}
	if err := s.store.AttachReviewResult(ctx, sub.ID, result.Score, result.Feedback, next); err != nil {
		log.Printf("pipeline: failed to attach review result to submission %s: %v", sub.ID, err)
	}

	if result.Verdict == model.VerdictFlagged {
		s.events.Notify(ctx, events.Notification{
			WorkerID: workerID,
			TaskID:   taskID,
			Kind:     "submission_flagged",
			Message:  result.Feedback,
			At:       time.Now(),
		})
	}
	s.events.Audit(ctx, events.AuditEvent{
		Event:     "task.ai_reviewed",
		ProjectID: task.ProjectID,
		TaskID:    taskID,
		WorkerID:  workerID,
		Detail:    fmt.Sprintf("score %d, verdict %s", result.Score, result.Verdict),
		At:        time.Now(),
	})

	return &model.TaskActionResponse{
		TaskID:   taskID,
		Status:   next,
		Attempts: attempts,
		AIScore:  result.Score,
	}, nil
}

// Review applies the human verdict to a task in HUMAN_REVIEW. Both outcomes
// are terminal; a validated task becomes eligible to satisfy other tasks'
// dependency guards, and its phase is checked for completion.
func (s *Service) Review(ctx context.Context, taskID, reviewerID string, approve bool) (*model.TaskActionResponse, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != model.TaskStatusHumanReview {
		return nil, ErrWrongStatus
	}

	verdict := model.TaskStatusRejected
	if approve {
		verdict = model.TaskStatusValidated
	}

	ok, err := s.store.FinalizeTask(ctx, taskID, verdict)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize task: %w", err)
	}
	if !ok {
		return nil, ErrWrongStatus
	}

	now := time.Now()
	s.events.Audit(ctx, events.AuditEvent{
		Event:     "task." + string(verdict),
		ProjectID: task.ProjectID,
		TaskID:    taskID,
		WorkerID:  reviewerID,
		At:        now,
	})
	s.events.Notify(ctx, events.Notification{
		WorkerID: task.ClaimedBy,
		TaskID:   taskID,
		Kind:     "task_" + string(verdict),
		Message:  fmt.Sprintf("Your work on %q was %s.", task.Title, verdict),
		At:       now,
	})

	if verdict == model.TaskStatusValidated {
		if _, err := s.AdvancePhases(ctx, task.ProjectID); err != nil {
			log.Printf("pipeline: phase advance after task %s failed: %v", taskID, err)
		}
	}

	return &model.TaskActionResponse{TaskID: taskID, Status: verdict}, nil
}
