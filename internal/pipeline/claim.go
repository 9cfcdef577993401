package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/reelforge/api/internal/events"
	"github.com/reelforge/api/internal/model"
)

// Claim grants the worker exclusive, time-boxed ownership of an available
// task. Guards are checked in order; the final status check and write are a
// single conditional update, so exactly one of N concurrent claimants wins.
func (s *Service) Claim(ctx context.Context, taskID, workerID string) (*model.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != model.TaskStatusAvailable {
		return nil, ErrTaskNotAvailable
	}

	unmet, err := s.store.CountUnvalidatedDeps(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to check dependencies: %w", err)
	}
	if unmet > 0 {
		return nil, ErrDependenciesUnmet
	}

	phase, err := s.store.GetPhase(ctx, task.PhaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load phase: %w", err)
	}
	if phase.Status == model.PhaseStatusLocked {
		return nil, ErrPhaseLocked
	}

	active, err := s.store.CountActiveByWorker(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count active tasks: %w", err)
	}
	if active >= s.cfg.WorkerTaskCap {
		return nil, ErrWorkerAtCapacity
	}

	now := time.Now()
	deadline := now.Add(s.cfg.ClaimTTL)
	ok, err := s.store.ClaimTask(ctx, taskID, workerID, now, deadline)
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	if !ok {
		// Another claimant won the race between our read and the update.
		return nil, ErrTaskNotAvailable
	}

	s.events.Audit(ctx, events.AuditEvent{
		Event:     "task.claimed",
		ProjectID: task.ProjectID,
		TaskID:    taskID,
		WorkerID:  workerID,
		At:        now,
	})

	task.Status = model.TaskStatusClaimed
	task.ClaimedBy = workerID
	task.ClaimedAt = &now
	task.Deadline = &deadline
	return task, nil
}

// Abandon voluntarily releases a claim. Permitted only while the task is
// still CLAIMED and only by the claimant.
func (s *Service) Abandon(ctx context.Context, taskID, workerID string) error {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != model.TaskStatusClaimed {
		return ErrWrongStatus
	}
	if task.ClaimedBy != workerID {
		return ErrNotClaimant
	}

	ok, err := s.store.ReleaseTask(ctx, taskID, workerID)
	if err != nil {
		return fmt.Errorf("failed to release task: %w", err)
	}
	if !ok {
		return ErrWrongStatus
	}

	s.events.Audit(ctx, events.AuditEvent{
		Event:     "task.abandoned",
		ProjectID: task.ProjectID,
		TaskID:    taskID,
		WorkerID:  workerID,
		At:        time.Now(),
	})
	return nil
}
