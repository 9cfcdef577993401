package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/reelforge/api/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func seedSingleTask(t *testing.T, st *Store) *model.Task {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	project := &model.Project{
		ID: uuid.New().String(), Title: "p", Type: model.ProjectTypeFilm,
		Category: model.CategoryDrama, Budget: 1000, CreatedAt: now,
	}
	phase := model.Phase{
		ID: uuid.New().String(), ProjectID: project.ID, Name: "Development",
		Order: 1, Status: model.PhaseStatusActive, DurationWeeks: 2, StartedAt: &now,
	}
	project.Phases = []model.Phase{phase}
	task := model.Task{
		ID: uuid.New().String(), PhaseID: phase.ID, ProjectID: project.ID,
		Title: "Write script", Type: model.TaskTypeScript,
		Difficulty: model.DifficultyHard, Price: 100, Spec: "s",
		Status: model.TaskStatusAvailable, CreatedAt: now,
	}
	if err := st.SeedProject(ctx, project, []model.Task{task}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return &task
}

func TestClaimTask_Conditional(t *testing.T) {
	st := openTestStore(t)
	task := seedSingleTask(t, st)
	ctx := context.Background()
	now := time.Now()
	deadline := now.Add(48 * time.Hour)

	ok, err := st.ClaimTask(ctx, task.ID, "worker-1", now, deadline)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}

	// The row is no longer AVAILABLE, so the second claim must not apply.
	ok, err = st.ClaimTask(ctx, task.ID, "worker-2", now, deadline)
	if err != nil {
		t.Fatalf("second claim errored: %v", err)
	}
	if ok {
		t.Fatal("second claim applied over an existing claim")
	}

	got, err := st.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ClaimedBy != "worker-1" {
		t.Errorf("claim owner overwritten: %s", got.ClaimedBy)
	}
}

func TestReleaseTask_OnlyClaimant(t *testing.T) {
	st := openTestStore(t)
	task := seedSingleTask(t, st)
	ctx := context.Background()
	now := time.Now()

	if ok, err := st.ClaimTask(ctx, task.ID, "worker-1", now, now.Add(time.Hour)); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	ok, err := st.ReleaseTask(ctx, task.ID, "worker-2")
	if err != nil {
		t.Fatalf("release errored: %v", err)
	}
	if ok {
		t.Fatal("release applied for non-claimant")
	}

	ok, err = st.ReleaseTask(ctx, task.ID, "worker-1")
	if err != nil || !ok {
		t.Fatalf("claimant release: ok=%v err=%v", ok, err)
	}

	got, err := st.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != model.TaskStatusAvailable || got.ClaimedBy != "" || got.Deadline != nil {
		t.Errorf("release did not reset claim fields: %+v", got)
	}
}

func TestBeginReview_CountsAttempts(t *testing.T) {
	st := openTestStore(t)
	task := seedSingleTask(t, st)
	ctx := context.Background()
	now := time.Now()

	if ok, err := st.ClaimTask(ctx, task.ID, "worker-1", now, now.Add(time.Hour)); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	attempts, ok, err := st.BeginReview(ctx, task.ID, "worker-1")
	if err != nil || !ok {
		t.Fatalf("begin review: ok=%v err=%v", ok, err)
	}
	if attempts != 1 {
		t.Errorf("expected stored attempt count 1, got %d", attempts)
	}
	got, err := st.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != model.TaskStatusAIReview || got.Attempts != 1 {
		t.Errorf("unexpected state after review start: %+v", got)
	}

	// A task already in AI_REVIEW cannot re-enter it.
	if _, ok, err := st.BeginReview(ctx, task.ID, "worker-1"); err != nil {
		t.Fatalf("begin review errored: %v", err)
	} else if ok {
		t.Error("review re-entered from AI_REVIEW")
	}
}

func TestReclaimExpired(t *testing.T) {
	st := openTestStore(t)
	task := seedSingleTask(t, st)
	ctx := context.Background()
	now := time.Now()

	if ok, err := st.ClaimTask(ctx, task.ID, "worker-1", now, now.Add(time.Hour)); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	reclaimed, err := st.ReclaimExpired(ctx, now.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("reclaim failed: %v", err)
	}
	if len(reclaimed) != 0 {
		t.Fatalf("reclaimed %d unexpired tasks", len(reclaimed))
	}

	reclaimed, err = st.ReclaimExpired(ctx, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("reclaim failed: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0].ID != task.ID {
		t.Fatalf("unexpected reclaim set: %+v", reclaimed)
	}
	if reclaimed[0].ClaimedBy != "worker-1" {
		t.Errorf("expected reclaimed task to carry the prior claimant for notification")
	}

	got, err := st.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != model.TaskStatusAvailable || got.ClaimedBy != "" {
		t.Errorf("task not reset after reclaim: %+v", got)
	}
}

func TestGetTask_NotFound(t *testing.T) {
	st := openTestStore(t)
	if _, err := st.GetTask(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
