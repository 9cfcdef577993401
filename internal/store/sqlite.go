// Package store is the durable system of record for projects, phases, tasks
// and submissions. Every guarded state transition is a single conditional
// UPDATE so that concurrent callers race on the database, not in Go.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/reelforge/api/internal/model"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS projects (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  type TEXT NOT NULL,
  category TEXT NOT NULL,
  budget REAL NOT NULL,
  progress INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS phases (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL REFERENCES projects(id),
  name TEXT NOT NULL,
  ord INTEGER NOT NULL,
  status TEXT NOT NULL,
  duration_weeks INTEGER NOT NULL,
  started_at INTEGER,
  ends_at INTEGER,
  completed_at INTEGER
);
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  phase_id TEXT NOT NULL REFERENCES phases(id),
  project_id TEXT NOT NULL REFERENCES projects(id),
  title TEXT NOT NULL,
  type TEXT NOT NULL,
  difficulty TEXT NOT NULL,
  price REAL NOT NULL,
  spec TEXT NOT NULL,
  status TEXT NOT NULL,
  claimed_by TEXT NOT NULL DEFAULT '',
  claimed_at INTEGER,
  deadline INTEGER,
  attempts INTEGER NOT NULL DEFAULT 0,
  ai_confidence INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS task_deps (
  task_id TEXT NOT NULL REFERENCES tasks(id),
  depends_on TEXT NOT NULL REFERENCES tasks(id),
  PRIMARY KEY (task_id, depends_on)
);
CREATE TABLE IF NOT EXISTS submissions (
  id TEXT PRIMARY KEY,
  task_id TEXT NOT NULL REFERENCES tasks(id),
  worker_id TEXT NOT NULL,
  content TEXT NOT NULL,
  ai_score INTEGER NOT NULL DEFAULT 0,
  ai_feedback TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_phase ON tasks(phase_id);
CREATE INDEX IF NOT EXISTS idx_tasks_claimed_by ON tasks(claimed_by);
CREATE INDEX IF NOT EXISTS idx_phases_project ON phases(project_id);
CREATE INDEX IF NOT EXISTS idx_submissions_task ON submissions(task_id);
`

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; serialize through a single connection and
	// let concurrent callers queue instead of hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func msPtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func ptrTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

// SeedProject persists a project together with its phases, tasks and task
// dependency links in one transaction.
func (s *Store) SeedProject(ctx context.Context, p *model.Project, tasks []model.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO projects (id, title, type, category, budget, progress, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, string(p.Type), string(p.Category), p.Budget, p.Progress, p.CreatedAt.UnixMilli(),
	); err != nil {
		return err
	}

	for _, ph := range p.Phases {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO phases (id, project_id, name, ord, status, duration_weeks, started_at, ends_at, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ph.ID, ph.ProjectID, ph.Name, ph.Order, string(ph.Status), ph.DurationWeeks,
			msPtr(ph.StartedAt), msPtr(ph.EndsAt), msPtr(ph.CompletedAt),
		); err != nil {
			return err
		}
	}

	for _, t := range tasks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tasks (id, phase_id, project_id, title, type, difficulty, price, spec, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.PhaseID, t.ProjectID, t.Title, string(t.Type), string(t.Difficulty),
			t.Price, t.Spec, string(t.Status), t.CreatedAt.UnixMilli(),
		); err != nil {
			return err
		}
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO task_deps (task_id, depends_on) VALUES (?, ?)`, t.ID, dep,
			); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func (s *Store) GetProject(ctx context.Context, id string) (*model.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, type, category, budget, progress, created_at FROM projects WHERE id = ?`, id)

	var p model.Project
	var typ, cat string
	var createdMs int64
	if err := row.Scan(&p.ID, &p.Title, &typ, &cat, &p.Budget, &p.Progress, &createdMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Type = model.ProjectType(typ)
	p.Category = model.Category(cat)
	p.CreatedAt = time.UnixMilli(createdMs)

	phases, err := s.ListPhases(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Phases = phases
	return &p, nil
}

func (s *Store) ListPhases(ctx context.Context, projectID string) ([]model.Phase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, name, ord, status, duration_weeks, started_at, ends_at, completed_at
		 FROM phases WHERE project_id = ? ORDER BY ord`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPhases(rows)
}

func (s *Store) GetPhase(ctx context.Context, id string) (*model.Phase, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, name, ord, status, duration_weeks, started_at, ends_at, completed_at
		 FROM phases WHERE id = ?`, id)

	var ph model.Phase
	var status string
	var started, ends, completed sql.NullInt64
	if err := row.Scan(&ph.ID, &ph.ProjectID, &ph.Name, &ph.Order, &status,
		&ph.DurationWeeks, &started, &ends, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	ph.Status = model.PhaseStatus(status)
	ph.StartedAt = ptrTime(started)
	ph.EndsAt = ptrTime(ends)
	ph.CompletedAt = ptrTime(completed)
	return &ph, nil
}

// ListActivePhases returns every ACTIVE phase across all projects, for the
// progression sweep.
func (s *Store) ListActivePhases(ctx context.Context) ([]model.Phase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, name, ord, status, duration_weeks, started_at, ends_at, completed_at
		 FROM phases WHERE status = ? ORDER BY project_id, ord`, string(model.PhaseStatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPhases(rows)
}

func scanPhases(rows *sql.Rows) ([]model.Phase, error) {
	var phases []model.Phase
	for rows.Next() {
		var ph model.Phase
		var status string
		var started, ends, completed sql.NullInt64
		if err := rows.Scan(&ph.ID, &ph.ProjectID, &ph.Name, &ph.Order, &status,
			&ph.DurationWeeks, &started, &ends, &completed); err != nil {
			return nil, err
		}
		ph.Status = model.PhaseStatus(status)
		ph.StartedAt = ptrTime(started)
		ph.EndsAt = ptrTime(ends)
		ph.CompletedAt = ptrTime(completed)
		phases = append(phases, ph)
	}
	return phases, rows.Err()
}

const taskColumns = `id, phase_id, project_id, title, type, difficulty, price, spec, status,
	claimed_by, claimed_at, deadline, attempts, ai_confidence, created_at`

func scanTask(row interface{ Scan(...interface{}) error }) (*model.Task, error) {
	var t model.Task
	var typ, diff, status string
	var claimedAt, deadline sql.NullInt64
	var createdMs int64
	if err := row.Scan(&t.ID, &t.PhaseID, &t.ProjectID, &t.Title, &typ, &diff, &t.Price,
		&t.Spec, &status, &t.ClaimedBy, &claimedAt, &deadline, &t.Attempts,
		&t.AIConfidence, &createdMs); err != nil {
		return nil, err
	}
	t.Type = model.TaskType(typ)
	t.Difficulty = model.Difficulty(diff)
	t.Status = model.TaskStatus(status)
	t.ClaimedAt = ptrTime(claimedAt)
	t.Deadline = ptrTime(deadline)
	t.CreatedAt = time.UnixMilli(createdMs)
	return &t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	deps, err := s.taskDeps(ctx, id)
	if err != nil {
		return nil, err
	}
	t.DependsOn = deps
	return t, nil
}

func (s *Store) taskDeps(ctx context.Context, taskID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT depends_on FROM task_deps WHERE task_id = ? ORDER BY depends_on`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deps []string
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

func (s *Store) ListTasksByProject(ctx context.Context, projectID string) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE project_id = ? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// CountUnvalidatedDeps returns how many of a task's dependencies have not
// reached VALIDATED.
func (s *Store) CountUnvalidatedDeps(ctx context.Context, taskID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task_deps d JOIN tasks t ON t.id = d.depends_on
		 WHERE d.task_id = ? AND t.status != ?`,
		taskID, string(model.TaskStatusValidated)).Scan(&n)
	return n, err
}

// CountActiveByWorker counts the worker's tasks in claim-holding states.
func (s *Store) CountActiveByWorker(ctx context.Context, workerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE claimed_by = ? AND status IN (?, ?, ?, ?)`,
		workerID,
		string(model.TaskStatusClaimed), string(model.TaskStatusSubmitted),
		string(model.TaskStatusAIReview), string(model.TaskStatusHumanReview)).Scan(&n)
	return n, err
}

// ClaimTask atomically moves an AVAILABLE task to CLAIMED for the worker.
// Exactly one of N concurrent callers wins; the rest see false.
func (s *Store) ClaimTask(ctx context.Context, taskID, workerID string, now, deadline time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, claimed_by = ?, claimed_at = ?, deadline = ?
		 WHERE id = ? AND status = ?`,
		string(model.TaskStatusClaimed), workerID, now.UnixMilli(), deadline.UnixMilli(),
		taskID, string(model.TaskStatusAvailable))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ReleaseTask returns a CLAIMED task to AVAILABLE. Only the claimant may
// release; submission and later states are not releasable.
func (s *Store) ReleaseTask(ctx context.Context, taskID, workerID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, claimed_by = '', claimed_at = NULL, deadline = NULL
		 WHERE id = ? AND status = ? AND claimed_by = ?`,
		string(model.TaskStatusAvailable), taskID, string(model.TaskStatusClaimed), workerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// BeginReview moves a claimant's task from CLAIMED or SUBMITTED into
// AI_REVIEW and increments the attempt counter. Returns the stored attempt
// count after the increment.
func (s *Store) BeginReview(ctx context.Context, taskID, workerID string) (int, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, attempts = attempts + 1
		 WHERE id = ? AND claimed_by = ? AND status IN (?, ?)`,
		string(model.TaskStatusAIReview), taskID, workerID,
		string(model.TaskStatusClaimed), string(model.TaskStatusSubmitted))
	if err != nil {
		return 0, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n != 1 {
		return 0, false, nil
	}
	var attempts int
	if err := s.db.QueryRowContext(ctx,
		`SELECT attempts FROM tasks WHERE id = ?`, taskID).Scan(&attempts); err != nil {
		return 0, true, err
	}
	return attempts, true, nil
}

// SetReviewOutcome resolves AI_REVIEW: approved work advances to HUMAN_REVIEW
// with the confidence score recorded, flagged work drops back to SUBMITTED.
func (s *Store) SetReviewOutcome(ctx context.Context, taskID string, to model.TaskStatus, confidence int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, ai_confidence = ? WHERE id = ? AND status = ?`,
		string(to), confidence, taskID, string(model.TaskStatusAIReview))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// FinalizeTask resolves HUMAN_REVIEW into one of the terminal states.
func (s *Store) FinalizeTask(ctx context.Context, taskID string, to model.TaskStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ? WHERE id = ? AND status = ?`,
		string(to), taskID, string(model.TaskStatusHumanReview))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ReclaimExpired resets every CLAIMED task whose deadline has passed back to
// AVAILABLE and returns the reclaimed tasks. Each reset is its own
// conditional update, so a claim racing the sweep is never clobbered.
func (s *Store) ReclaimExpired(ctx context.Context, now time.Time) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = ? AND deadline IS NOT NULL AND deadline < ?`,
		string(model.TaskStatusClaimed), now.UnixMilli())
	if err != nil {
		return nil, err
	}
	var candidates []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, *t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var reclaimed []model.Task
	for _, t := range candidates {
		res, err := s.db.ExecContext(ctx,
			`UPDATE tasks SET status = ?, claimed_by = '', claimed_at = NULL, deadline = NULL
			 WHERE id = ? AND status = ? AND deadline < ?`,
			string(model.TaskStatusAvailable), t.ID, string(model.TaskStatusClaimed), now.UnixMilli())
		if err != nil {
			return reclaimed, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			reclaimed = append(reclaimed, t)
		}
	}
	return reclaimed, nil
}

// PhaseTaskCounts returns the total and validated task counts for a phase.
func (s *Store) PhaseTaskCounts(ctx context.Context, phaseID string) (total, validated int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		 FROM tasks WHERE phase_id = ?`,
		string(model.TaskStatusValidated), phaseID).Scan(&total, &validated)
	return total, validated, err
}

// CompletePhase marks an ACTIVE phase COMPLETED.
func (s *Store) CompletePhase(ctx context.Context, phaseID string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE phases SET status = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(model.PhaseStatusCompleted), now.UnixMilli(), phaseID, string(model.PhaseStatusActive))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// NextLockedPhase finds the lowest-order LOCKED phase after the given order.
func (s *Store) NextLockedPhase(ctx context.Context, projectID string, afterOrder int) (*model.Phase, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, name, ord, status, duration_weeks, started_at, ends_at, completed_at
		 FROM phases WHERE project_id = ? AND status = ? AND ord > ? ORDER BY ord LIMIT 1`,
		projectID, string(model.PhaseStatusLocked), afterOrder)

	var ph model.Phase
	var status string
	var started, ends, completed sql.NullInt64
	if err := row.Scan(&ph.ID, &ph.ProjectID, &ph.Name, &ph.Order, &status,
		&ph.DurationWeeks, &started, &ends, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	ph.Status = model.PhaseStatus(status)
	ph.StartedAt = ptrTime(started)
	ph.EndsAt = ptrTime(ends)
	ph.CompletedAt = ptrTime(completed)
	return &ph, nil
}

// ActivatePhase moves a LOCKED phase to ACTIVE with its projected window.
func (s *Store) ActivatePhase(ctx context.Context, phaseID string, start, end time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE phases SET status = ?, started_at = ?, ends_at = ? WHERE id = ? AND status = ?`,
		string(model.PhaseStatusActive), start.UnixMilli(), end.UnixMilli(),
		phaseID, string(model.PhaseStatusLocked))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// PhaseCounts returns completed and total phase counts for a project.
func (s *Store) PhaseCounts(ctx context.Context, projectID string) (completed, total int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0), COUNT(*)
		 FROM phases WHERE project_id = ?`,
		string(model.PhaseStatusCompleted), projectID).Scan(&completed, &total)
	return completed, total, err
}

func (s *Store) SetProjectProgress(ctx context.Context, projectID string, progress int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE projects SET progress = ? WHERE id = ?`, progress, projectID)
	return err
}

func (s *Store) InsertSubmission(ctx context.Context, sub *model.Submission) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, task_id, worker_id, content, ai_score, ai_feedback, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.TaskID, sub.WorkerID, sub.Content, sub.AIScore, sub.AIFeedback,
		string(sub.Status), sub.CreatedAt.UnixMilli())
	return err
}

// AttachReviewResult records the automated reviewer's output on a submission.
// Submissions are otherwise immutable.
func (s *Store) AttachReviewResult(ctx context.Context, submissionID string, score int, feedback string, status model.TaskStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET ai_score = ?, ai_feedback = ?, status = ? WHERE id = ?`,
		score, feedback, string(status), submissionID)
	return err
}

func (s *Store) ListSubmissions(ctx context.Context, taskID string) ([]model.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, worker_id, content, ai_score, ai_feedback, status, created_at
		 FROM submissions WHERE task_id = ? ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		var sub model.Submission
		var status string
		var createdMs int64
		if err := rows.Scan(&sub.ID, &sub.TaskID, &sub.WorkerID, &sub.Content,
			&sub.AIScore, &sub.AIFeedback, &status, &createdMs); err != nil {
			return nil, err
		}
		sub.Status = model.TaskStatus(status)
		sub.CreatedAt = time.UnixMilli(createdMs)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
