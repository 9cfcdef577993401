package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reelforge/api/internal/decompose"
	"github.com/reelforge/api/internal/events"
	"github.com/reelforge/api/internal/model"
)

// CreateProject decomposes the intake request and seeds the store: phases
// from the timeline (first one active, the rest locked) and one available
// task per template, with template dependency keys resolved to task ids.
func (s *Service) CreateProject(ctx context.Context, req *model.ProjectCreateRequest) (*model.ProjectCreateResponse, error) {
	tokens, allocations := decompose.FilmToTokens(req.Budget, req.Category)
	templates := decompose.FilmToTasks(req.Category)
	timeline := decompose.Timeline(req.Category)
	risks := decompose.RiskAssessment(req.Budget, req.Category)

	if err := decompose.ValidateDependencies(templates); err != nil {
		return nil, fmt.Errorf("invalid decomposition: %w", err)
	}

	now := time.Now()
	project := &model.Project{
		ID:        uuid.New().String(),
		Title:     req.Title,
		Type:      req.Type,
		Category:  req.Category,
		Budget:    req.Budget,
		CreatedAt: now,
	}

	phaseByOrder := make(map[int]string, len(timeline))
	for _, pt := range timeline {
		ph := model.Phase{
			ID:            uuid.New().String(),
			ProjectID:     project.ID,
			Name:          pt.Name,
			Order:         pt.Order,
			Status:        model.PhaseStatusLocked,
			DurationWeeks: pt.DurationWeeks,
		}
		if pt.Order == 1 {
			ph.Status = model.PhaseStatusActive
			start := now
			end := now.Add(time.Duration(pt.DurationWeeks) * 7 * 24 * time.Hour)
			ph.StartedAt = &start
			ph.EndsAt = &end
		}
		phaseByOrder[pt.Order] = ph.ID
		project.Phases = append(project.Phases, ph)
	}

	idByKey := make(map[string]string, len(templates))
	for _, tpl := range templates {
		idByKey[tpl.Key] = uuid.New().String()
	}

	tasks := make([]model.Task, 0, len(templates))
	for _, tpl := range templates {
		phaseID, ok := phaseByOrder[tpl.Phase]
		if !ok {
			return nil, fmt.Errorf("task template %q references unknown phase %d", tpl.Key, tpl.Phase)
		}
		task := model.Task{
			ID:         idByKey[tpl.Key],
			PhaseID:    phaseID,
			ProjectID:  project.ID,
			Title:      tpl.Title,
			Type:       tpl.Type,
			Difficulty: tpl.Difficulty,
			Price:      tpl.Price,
			Spec:       tpl.Spec,
			Status:     model.TaskStatusAvailable,
			CreatedAt:  now,
		}
		for _, dep := range tpl.DependsOn {
			task.DependsOn = append(task.DependsOn, idByKey[dep])
		}
		tasks = append(tasks, task)
	}

	if err := s.store.SeedProject(ctx, project, tasks); err != nil {
		return nil, fmt.Errorf("failed to seed project: %w", err)
	}

	s.events.Audit(ctx, events.AuditEvent{
		Event:     "project.created",
		ProjectID: project.ID,
		Detail:    fmt.Sprintf("%d phases, %d tasks", len(project.Phases), len(tasks)),
		At:        now,
	})

	return &model.ProjectCreateResponse{
		Project:     *project,
		Tokens:      tokens,
		Budget:      allocations,
		Risks:       risks,
		TaskCount:   len(tasks),
		PhaseCount:  len(project.Phases),
		GeneratedAt: now,
	}, nil
}

// GetProject returns a project with its phases.
func (s *Service) GetProject(ctx context.Context, id string) (*model.Project, error) {
	return s.store.GetProject(ctx, id)
}

// ListTasks returns all tasks of a project.
func (s *Service) ListTasks(ctx context.Context, projectID string) ([]model.Task, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.store.ListTasksByProject(ctx, projectID)
}

// GetTask returns one task with its dependency set.
func (s *Service) GetTask(ctx context.Context, id string) (*model.Task, error) {
	return s.store.GetTask(ctx, id)
}
