package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/reelforge/api/internal/events"
	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/store"
)

// AdvancePhases completes every ACTIVE phase of the project whose tasks are
// all validated, activates the next locked sibling, and recomputes project
// progress. Returns the number of phases completed. A phase with zero tasks
// never auto-completes.
func (s *Service) AdvancePhases(ctx context.Context, projectID string) (int, error) {
	phases, err := s.store.ListPhases(ctx, projectID)
	if err != nil {
		return 0, err
	}

	advanced := 0
	for _, ph := range phases {
		if ph.Status != model.PhaseStatusActive {
			continue
		}
		n, err := s.advancePhase(ctx, ph)
		if err != nil {
			return advanced, err
		}
		advanced += n
	}

	if advanced > 0 {
		if err := s.recomputeProgress(ctx, projectID); err != nil {
			return advanced, err
		}
	}
	return advanced, nil
}

// SweepPhases runs the progression check across every active phase of every
// project. Safe to run concurrently with claim and submit traffic: it only
// completes phases whose tasks are all terminal.
func (s *Service) SweepPhases(ctx context.Context) (int, error) {
	phases, err := s.store.ListActivePhases(ctx)
	if err != nil {
		return 0, err
	}

	advanced := 0
	touched := make(map[string]bool)
	for _, ph := range phases {
		n, err := s.advancePhase(ctx, ph)
		if err != nil {
			return advanced, err
		}
		if n > 0 {
			advanced += n
			touched[ph.ProjectID] = true
		}
	}

	for projectID := range touched {
		if err := s.recomputeProgress(ctx, projectID); err != nil {
			return advanced, err
		}
	}
	return advanced, nil
}

func (s *Service) advancePhase(ctx context.Context, ph model.Phase) (int, error) {
	total, validated, err := s.store.PhaseTaskCounts(ctx, ph.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to count phase tasks: %w", err)
	}
	if total == 0 || validated < total {
		return 0, nil
	}

	now := time.Now()
	ok, err := s.store.CompletePhase(ctx, ph.ID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to complete phase: %w", err)
	}
	if !ok {
		// A concurrent sweep got here first.
		return 0, nil
	}

	s.events.Audit(ctx, events.AuditEvent{
		Event:     "phase.completed",
		ProjectID: ph.ProjectID,
		Detail:    ph.Name,
		At:        now,
	})

	next, err := s.store.NextLockedPhase(ctx, ph.ProjectID, ph.Order)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 1, nil // final phase
		}
		return 1, fmt.Errorf("failed to find next phase: %w", err)
	}

	end := now.Add(time.Duration(next.DurationWeeks) * 7 * 24 * time.Hour)
	if _, err := s.store.ActivatePhase(ctx, next.ID, now, end); err != nil {
		return 1, fmt.Errorf("failed to activate phase: %w", err)
	}

	s.events.Audit(ctx, events.AuditEvent{
		Event:     "phase.activated",
		ProjectID: ph.ProjectID,
		Detail:    next.Name,
		At:        now,
	})
	return 1, nil
}

func (s *Service) recomputeProgress(ctx context.Context, projectID string) error {
	completed, total, err := s.store.PhaseCounts(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to count phases: %w", err)
	}
	if total == 0 {
		return nil
	}
	progress := int(math.Round(100 * float64(completed) / float64(total)))
	return s.store.SetProjectProgress(ctx, projectID, progress)
}
