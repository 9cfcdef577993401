package pipeline_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/reelforge/api/internal/config"
	"github.com/reelforge/api/internal/events"
	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/pipeline"
	"github.com/reelforge/api/internal/review"
	"github.com/reelforge/api/internal/store"
)

type stubScorer struct {
	result *review.Result
	err    error
}

func (s stubScorer) Score(ctx context.Context, taskID, spec, content string) (*review.Result, error) {
	return s.result, s.err
}

func approvingScorer(score int) stubScorer {
	return stubScorer{result: &review.Result{Score: score, Verdict: model.VerdictApproved}}
}

func flaggingScorer() stubScorer {
	return stubScorer{result: &review.Result{Score: 30, Verdict: model.VerdictFlagged, Feedback: "needs work"}}
}

func newService(t *testing.T, scorer review.Scorer, cfg config.PipelineConfig) (*pipeline.Service, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return pipeline.NewService(st, scorer, events.NoopPublisher{}, cfg), st
}

func createProject(t *testing.T, svc *pipeline.Service, category model.Category) *model.ProjectCreateResponse {
	t.Helper()

	resp, err := svc.CreateProject(context.Background(), &model.ProjectCreateRequest{
		Title:    "Test Production",
		Type:     model.ProjectTypeFilm,
		Category: category,
		Budget:   100000,
	})
	if err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	return resp
}

func taskByType(t *testing.T, svc *pipeline.Service, projectID string, typ model.TaskType) *model.Task {
	t.Helper()

	tasks, err := svc.ListTasks(context.Background(), projectID)
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	for _, task := range tasks {
		if task.Type == typ {
			out := task
			return &out
		}
	}
	t.Fatalf("no task of type %s in project %s", typ, projectID)
	return nil
}

// validateTask drives a task through claim, submit and human approval.
func validateTask(t *testing.T, svc *pipeline.Service, taskID, workerID string) {
	t.Helper()
	ctx := context.Background()

	if _, err := svc.Claim(ctx, taskID, workerID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if _, err := svc.Submit(ctx, taskID, workerID, "a thorough deliverable meeting the specification"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := svc.Review(ctx, taskID, "admin-1", true); err != nil {
		t.Fatalf("review failed: %v", err)
	}
}

func TestProjectSeed(t *testing.T) {
	svc, _ := newService(t, approvingScorer(90), config.PipelineConfig{})
	resp := createProject(t, svc, model.CategoryDrama)

	if resp.TaskCount == 0 || resp.PhaseCount == 0 {
		t.Fatalf("expected tasks and phases, got %d/%d", resp.TaskCount, resp.PhaseCount)
	}
	if len(resp.Risks) == 0 {
		t.Error("expected risk assessment")
	}

	project, err := svc.GetProject(context.Background(), resp.Project.ID)
	if err != nil {
		t.Fatalf("failed to load project: %v", err)
	}
	for i, ph := range project.Phases {
		want := model.PhaseStatusLocked
		if i == 0 {
			want = model.PhaseStatusActive
		}
		if ph.Status != want {
			t.Errorf("phase %d: status %s, want %s", ph.Order, ph.Status, want)
		}
	}
}

func TestClaim_Race(t *testing.T) {
	svc, _ := newService(t, approvingScorer(90), config.PipelineConfig{})
	resp := createProject(t, svc, model.CategoryDrama)
	script := taskByType(t, svc, resp.Project.ID, model.TaskTypeScript)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Claim(context.Background(), script.ID, uuid.New().String())
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, pipeline.ErrTaskNotAvailable) {
			t.Errorf("unexpected claim error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning claim, got %d", wins)
	}

	task, err := svc.GetTask(context.Background(), script.ID)
	if err != nil {
		t.Fatalf("failed to reload task: %v", err)
	}
	if task.Status != model.TaskStatusClaimed || task.ClaimedBy == "" || task.Deadline == nil {
		t.Errorf("task not properly claimed: %+v", task)
	}
}

func TestClaim_DependencyGuard(t *testing.T) {
	svc, _ := newService(t, approvingScorer(90), config.PipelineConfig{})
	resp := createProject(t, svc, model.CategoryDrama)
	ctx := context.Background()

	storyboard := taskByType(t, svc, resp.Project.ID, model.TaskTypeStoryboard)
	if _, err := svc.Claim(ctx, storyboard.ID, "worker-1"); !errors.Is(err, pipeline.ErrDependenciesUnmet) {
		t.Fatalf("expected ErrDependenciesUnmet, got %v", err)
	}

	// Validate the script; its phase completes and the storyboard's phase
	// activates, so the storyboard becomes claimable.
	script := taskByType(t, svc, resp.Project.ID, model.TaskTypeScript)
	validateTask(t, svc, script.ID, "worker-2")

	if _, err := svc.Claim(ctx, storyboard.ID, "worker-1"); err != nil {
		t.Fatalf("expected claim to succeed after dependency validated, got %v", err)
	}
}

func TestClaim_PhaseLockedGuard(t *testing.T) {
	svc, st := newService(t, approvingScorer(90), config.PipelineConfig{})
	ctx := context.Background()

	// A dependency-free task in a locked phase only arises in hand-built
	// data, so seed it directly.
	now := time.Now()
	project := &model.Project{
		ID: uuid.New().String(), Title: "t", Type: model.ProjectTypeFilm,
		Category: model.CategoryDrama, Budget: 1000, CreatedAt: now,
	}
	locked := model.Phase{
		ID: uuid.New().String(), ProjectID: project.ID, Name: "Later",
		Order: 1, Status: model.PhaseStatusLocked, DurationWeeks: 1,
	}
	project.Phases = []model.Phase{locked}
	task := model.Task{
		ID: uuid.New().String(), PhaseID: locked.ID, ProjectID: project.ID,
		Title: "t", Type: model.TaskTypeFinalQC, Difficulty: model.DifficultyEasy,
		Price: 10, Spec: "s", Status: model.TaskStatusAvailable, CreatedAt: now,
	}
	if err := st.SeedProject(ctx, project, []model.Task{task}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if _, err := svc.Claim(ctx, task.ID, "worker-1"); !errors.Is(err, pipeline.ErrPhaseLocked) {
		t.Fatalf("expected ErrPhaseLocked, got %v", err)
	}
}

func TestClaim_WorkerCapacityGuard(t *testing.T) {
	svc, _ := newService(t, approvingScorer(90), config.PipelineConfig{WorkerTaskCap: 1})
	resp := createProject(t, svc, model.CategoryDocumentary)
	ctx := context.Background()

	// Documentary phase 1 has two dependency-free tasks.
	research := taskByType(t, svc, resp.Project.ID, model.TaskTypeResearch)
	script := taskByType(t, svc, resp.Project.ID, model.TaskTypeScript)

	if _, err := svc.Claim(ctx, research.ID, "worker-1"); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if _, err := svc.Claim(ctx, script.ID, "worker-1"); !errors.Is(err, pipeline.ErrWorkerAtCapacity) {
		t.Fatalf("expected ErrWorkerAtCapacity, got %v", err)
	}
	// Another worker is unaffected.
	if _, err := svc.Claim(ctx, script.ID, "worker-2"); err != nil {
		t.Fatalf("claim by second worker failed: %v", err)
	}
}

func TestClaim_NotFound(t *testing.T) {
	svc, _ := newService(t, approvingScorer(90), config.PipelineConfig{})
	if _, err := svc.Claim(context.Background(), "missing", "worker-1"); !errors.Is(err, pipeline.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAbandon(t *testing.T) {
	svc, _ := newService(t, approvingScorer(90), config.PipelineConfig{})
	resp := createProject(t, svc, model.CategoryDrama)
	script := taskByType(t, svc, resp.Project.ID, model.TaskTypeScript)
	ctx := context.Background()

	if err := svc.Abandon(ctx, script.ID, "worker-1"); !errors.Is(err, pipeline.ErrWrongStatus) {
		t.Fatalf("expected ErrWrongStatus for unclaimed task, got %v", err)
	}

	if _, err := svc.Claim(ctx, script.ID, "worker-1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := svc.Abandon(ctx, script.ID, "worker-2"); !errors.Is(err, pipeline.ErrNotClaimant) {
		t.Fatalf("expected ErrNotClaimant, got %v", err)
	}
	if err := svc.Abandon(ctx, script.ID, "worker-1"); err != nil {
		t.Fatalf("abandon failed: %v", err)
	}

	task, err := svc.GetTask(ctx, script.ID)
	if err != nil {
		t.Fatalf("failed to reload task: %v", err)
	}
	if task.Status != model.TaskStatusAvailable || task.ClaimedBy != "" || task.Deadline != nil {
		t.Errorf("abandon did not reset claim fields: %+v", task)
	}
}

func TestSubmit_ApprovedAdvancesToHumanReview(t *testing.T) {
	svc, st := newService(t, approvingScorer(88), config.PipelineConfig{})
	resp := createProject(t, svc, model.CategoryDrama)
	script := taskByType(t, svc, resp.Project.ID, model.TaskTypeScript)
	ctx := context.Background()

	if _, err := svc.Claim(ctx, script.ID, "worker-1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	result, err := svc.Submit(ctx, script.ID, "worker-1", "full script draft")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.Status != model.TaskStatusHumanReview {
		t.Errorf("expected HUMAN_REVIEW, got %s", result.Status)
	}
	if result.Attempts != 1 || result.AIScore != 88 {
		t.Errorf("unexpected result: %+v", result)
	}

	task, err := svc.GetTask(ctx, script.ID)
	if err != nil {
		t.Fatalf("failed to reload task: %v", err)
	}
	if task.AIConfidence != 88 {
		t.Errorf("expected AI confidence 88, got %d", task.AIConfidence)
	}

	subs, err := st.ListSubmissions(ctx, script.ID)
	if err != nil {
		t.Fatalf("failed to list submissions: %v", err)
	}
	if len(subs) != 1 || subs[0].AIScore != 88 || subs[0].Status != model.TaskStatusHumanReview {
		t.Errorf("unexpected submissions: %+v", subs)
	}
}

func TestSubmit_FlaggedReturnsToSubmitted(t *testing.T) {
	svc, _ := newService(t, flaggingScorer(), config.PipelineConfig{})
	resp := createProject(t, svc, model.CategoryDrama)
	script := taskByType(t, svc, resp.Project.ID, model.TaskTypeScript)
	ctx := context.Background()

	if _, err := svc.Claim(ctx, script.ID, "worker-1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	result, err := svc.Submit(ctx, script.ID, "worker-1", "first attempt")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.Status != model.TaskStatusSubmitted {
		t.Errorf("expected SUBMITTED after flag, got %s", result.Status)
	}

	// The claim is retained; a resubmission re-enters review and counts a
	// second attempt.
	result, err = svc.Submit(ctx, script.ID, "worker-1", "second attempt")
	if err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	if result.Attempts != 2 {
		t.Errorf("expected attempt 2, got %d", result.Attempts)
	}
}

func TestSubmit_MaxAttempts(t *testing.T) {
	svc, _ := newService(t, flaggingScorer(), config.PipelineConfig{MaxAttempts: 1})
	resp := createProject(t, svc, model.CategoryDrama)
	script := taskByType(t, svc, resp.Project.ID, model.TaskTypeScript)
	ctx := context.Background()

	if _, err := svc.Claim(ctx, script.ID, "worker-1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if _, err := svc.Submit(ctx, script.ID, "worker-1", "first attempt"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := svc.Submit(ctx, script.ID, "worker-1", "second attempt"); !errors.Is(err, pipeline.ErrAttemptsExhausted) {
		t.Fatalf("expected ErrAttemptsExhausted, got %v", err)
	}
}

func TestSubmit_Guards(t *testing.T) {
	svc, _ := newService(t, approvingScorer(90), config.PipelineConfig{})
	resp := createProject(t, svc, model.CategoryDrama)
	script := taskByType(t, svc, resp.Project.ID, model.TaskTypeScript)
	ctx := context.Background()

	if _, err := svc.Claim(ctx, script.ID, "worker-1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if _, err := svc.Submit(ctx, script.ID, "worker-2", "content"); !errors.Is(err, pipeline.ErrNotClaimant) {
		t.Fatalf("expected ErrNotClaimant, got %v", err)
	}
	if _, err := svc.Submit(ctx, script.ID, "worker-1", "content"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	// Now in HUMAN_REVIEW; a further submit is not permitted.
	if _, err := svc.Submit(ctx, script.ID, "worker-1", "content"); !errors.Is(err, pipeline.ErrWrongStatus) {
		t.Fatalf("expected ErrWrongStatus, got %v", err)
	}
}

func TestSubmit_ScorerFailureFlagsInsteadOfWedging(t *testing.T) {
	svc, _ := newService(t, stubScorer{err: errors.New("scorer down")}, config.PipelineConfig{})
	resp := createProject(t, svc, model.CategoryDrama)
	script := taskByType(t, svc, resp.Project.ID, model.TaskTypeScript)
	ctx := context.Background()

	if _, err := svc.Claim(ctx, script.ID, "worker-1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	result, err := svc.Submit(ctx, script.ID, "worker-1", "content")
	if err != nil {
		t.Fatalf("submit should swallow scorer failure, got %v", err)
	}
	if result.Status != model.TaskStatusSubmitted {
		t.Errorf("expected SUBMITTED after scorer failure, got %s", result.Status)
	}
}

func TestReview_ValidatedAdvancesPhaseAndProgress(t *testing.T) {
	svc, _ := newService(t, approvingScorer(90), config.PipelineConfig{})
	resp := createProject(t, svc, model.CategoryDrama)
	script := taskByType(t, svc, resp.Project.ID, model.TaskTypeScript)
	ctx := context.Background()

	validateTask(t, svc, script.ID, "worker-1")

	project, err := svc.GetProject(ctx, resp.Project.ID)
	if err != nil {
		t.Fatalf("failed to load project: %v", err)
	}

	if project.Phases[0].Status != model.PhaseStatusCompleted {
		t.Errorf("expected first phase COMPLETED, got %s", project.Phases[0].Status)
	}
	if project.Phases[0].CompletedAt == nil {
		t.Error("expected completion timestamp on first phase")
	}
	if project.Phases[1].Status != model.PhaseStatusActive {
		t.Errorf("expected second phase ACTIVE, got %s", project.Phases[1].Status)
	}
	if project.Phases[1].StartedAt == nil || project.Phases[1].EndsAt == nil {
		t.Error("expected start and end timestamps on activated phase")
	}

	want := 100 / len(project.Phases)
	if project.Progress != want {
		t.Errorf("expected progress %d, got %d", want, project.Progress)
	}
}

func TestReview_PhaseWaitsForAllTasks(t *testing.T) {
	svc, _ := newService(t, approvingScorer(90), config.PipelineConfig{})
	resp := createProject(t, svc, model.CategoryDocumentary)
	ctx := context.Background()

	// Documentary phase 1 holds both research and script; validating only
	// one must not complete the phase.
	script := taskByType(t, svc, resp.Project.ID, model.TaskTypeScript)
	validateTask(t, svc, script.ID, "worker-1")

	project, err := svc.GetProject(ctx, resp.Project.ID)
	if err != nil {
		t.Fatalf("failed to load project: %v", err)
	}
	if project.Phases[0].Status != model.PhaseStatusActive {
		t.Fatalf("phase completed with unvalidated tasks remaining")
	}

	research := taskByType(t, svc, resp.Project.ID, model.TaskTypeResearch)
	validateTask(t, svc, research.ID, "worker-2")

	project, err = svc.GetProject(ctx, resp.Project.ID)
	if err != nil {
		t.Fatalf("failed to load project: %v", err)
	}
	if project.Phases[0].Status != model.PhaseStatusCompleted {
		t.Errorf("expected phase COMPLETED once all tasks validated, got %s", project.Phases[0].Status)
	}
}

func TestReview_RejectedIsTerminal(t *testing.T) {
	svc, _ := newService(t, approvingScorer(90), config.PipelineConfig{})
	resp := createProject(t, svc, model.CategoryDrama)
	script := taskByType(t, svc, resp.Project.ID, model.TaskTypeScript)
	ctx := context.Background()

	if _, err := svc.Claim(ctx, script.ID, "worker-1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if _, err := svc.Submit(ctx, script.ID, "worker-1", "content"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	result, err := svc.Review(ctx, script.ID, "admin-1", false)
	if err != nil {
		t.Fatalf("review failed: %v", err)
	}
	if result.Status != model.TaskStatusRejected {
		t.Errorf("expected REJECTED, got %s", result.Status)
	}

	if _, err := svc.Review(ctx, script.ID, "admin-1", true); !errors.Is(err, pipeline.ErrWrongStatus) {
		t.Fatalf("expected ErrWrongStatus on terminal task, got %v", err)
	}
}

func TestReaper_ReclaimsAndIsIdempotent(t *testing.T) {
	svc, _ := newService(t, approvingScorer(90), config.PipelineConfig{ClaimTTL: 48 * time.Hour})
	resp := createProject(t, svc, model.CategoryDrama)
	script := taskByType(t, svc, resp.Project.ID, model.TaskTypeScript)
	ctx := context.Background()

	if _, err := svc.Claim(ctx, script.ID, "worker-1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	// Not yet expired
	n, err := svc.ReapExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("reap failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("reaped %d tasks before expiry", n)
	}

	after := time.Now().Add(49 * time.Hour)
	n, err = svc.ReapExpired(ctx, after)
	if err != nil {
		t.Fatalf("reap failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reclaimed task, got %d", n)
	}

	task, err := svc.GetTask(ctx, script.ID)
	if err != nil {
		t.Fatalf("failed to reload task: %v", err)
	}
	if task.Status != model.TaskStatusAvailable || task.ClaimedBy != "" {
		t.Errorf("task not reset: %+v", task)
	}

	n, err = svc.ReapExpired(ctx, after)
	if err != nil {
		t.Fatalf("second reap failed: %v", err)
	}
	if n != 0 {
		t.Errorf("second reap reclaimed %d tasks, want 0", n)
	}
}

func TestSweepPhases_EmptyPhaseNeverCompletes(t *testing.T) {
	svc, st := newService(t, approvingScorer(90), config.PipelineConfig{})
	ctx := context.Background()

	now := time.Now()
	project := &model.Project{
		ID: uuid.New().String(), Title: "t", Type: model.ProjectTypeTrailer,
		Category: model.CategoryComedy, Budget: 1000, CreatedAt: now,
	}
	empty := model.Phase{
		ID: uuid.New().String(), ProjectID: project.ID, Name: "Empty",
		Order: 1, Status: model.PhaseStatusActive, DurationWeeks: 1,
		StartedAt: &now,
	}
	project.Phases = []model.Phase{empty}
	if err := st.SeedProject(ctx, project, nil); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	n, err := svc.SweepPhases(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("sweep completed %d empty phases", n)
	}

	phases, err := st.ListPhases(ctx, project.ID)
	if err != nil {
		t.Fatalf("failed to list phases: %v", err)
	}
	if phases[0].Status != model.PhaseStatusActive {
		t.Errorf("empty phase auto-completed: %s", phases[0].Status)
	}
}
