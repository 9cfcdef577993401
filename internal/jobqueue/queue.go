// Package jobqueue is the in-memory queue for background transcode jobs.
// It is process-local bookkeeping, guarded by a single mutex, and is lost on
// restart; the durable task store never depends on it.
package jobqueue

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reelforge/api/internal/model"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrNoValidProfile = errors.New("no recognized transcode profile requested")
	ErrNotCancellable = errors.New("job is not cancellable")
	ErrJobFinished    = errors.New("job already in a terminal state")
)

// NotCancellableError surfaces the job's current status to the caller.
type NotCancellableError struct {
	Status model.JobStatus
}

func (e *NotCancellableError) Error() string {
	return fmt.Sprintf("job is not cancellable in status %s", e.Status)
}

func (e *NotCancellableError) Is(target error) bool { return target == ErrNotCancellable }

// FinishedJobError reports an update that would move a job out of a terminal
// state, carrying the status the job finished with.
type FinishedJobError struct {
	Status model.JobStatus
}

func (e *FinishedJobError) Error() string {
	return fmt.Sprintf("job already finished with status %s", e.Status)
}

func (e *FinishedJobError) Is(target error) bool { return target == ErrJobFinished }

// Queue holds transcode jobs keyed by id.
type Queue struct {
	mu        sync.Mutex
	jobs      map[string]*model.TranscodeJob
	retention time.Duration
}

func New(retention time.Duration) *Queue {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &Queue{
		jobs:      make(map[string]*model.TranscodeJob),
		retention: retention,
	}
}

// Enqueue creates a PENDING job. Unrecognized profiles are dropped; the
// request is rejected if none remain.
func (q *Queue) Enqueue(req *model.TranscodeStartRequest) (*model.TranscodeJob, error) {
	var profiles []model.TranscodeProfile
	for _, p := range req.Profiles {
		for _, valid := range model.ValidProfiles {
			if p == valid {
				profiles = append(profiles, p)
				break
			}
		}
	}
	if len(profiles) == 0 {
		return nil, ErrNoValidProfile
	}

	job := &model.TranscodeJob{
		ID:         uuid.New().String(),
		ResourceID: req.ResourceID,
		Title:      req.Title,
		InputURL:   req.InputURL,
		Profiles:   profiles,
		Status:     model.JobStatusPending,
		CreatedAt:  time.Now(),
	}

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.mu.Unlock()

	out := *job
	return &out, nil
}

// Get returns a copy of the job.
func (q *Queue) Get(id string) (*model.TranscodeJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	out := *job
	return &out, nil
}

// Update applies a partial status update. The first transition into
// PROCESSING stamps StartedAt; the first transition into a terminal state
// stamps CompletedAt; COMPLETED forces progress to 100. Terminal states are
// final: a status change away from one is refused, so a cancellation racing
// the runner's completion write is never overwritten.
func (q *Queue) Update(id string, upd model.JobUpdate) (*model.TranscodeJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if upd.Status != nil && job.Status.IsTerminal() && *upd.Status != job.Status {
		return nil, &FinishedJobError{Status: job.Status}
	}

	now := time.Now()
	if upd.Status != nil {
		job.Status = *upd.Status
		if *upd.Status == model.JobStatusProcessing && job.StartedAt == nil {
			job.StartedAt = &now
		}
		if upd.Status.IsTerminal() && job.CompletedAt == nil {
			job.CompletedAt = &now
		}
		if *upd.Status == model.JobStatusCompleted {
			job.Progress = 100
		}
	}
	if upd.Progress != nil {
		job.Progress = *upd.Progress
	}
	if upd.Error != nil {
		job.Error = upd.Error
	}
	if upd.Output != nil {
		job.OutputURL = *upd.Output
	}

	out := *job
	return &out, nil
}

// Cancel marks a PENDING or PROCESSING job CANCELLED. Cancellation is
// cooperative: in-flight external work must observe the status itself.
func (q *Queue) Cancel(id string) (*model.TranscodeJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.Status != model.JobStatusPending && job.Status != model.JobStatusProcessing {
		return nil, &NotCancellableError{Status: job.Status}
	}

	now := time.Now()
	job.Status = model.JobStatusCancelled
	if job.CompletedAt == nil {
		job.CompletedAt = &now
	}

	out := *job
	return &out, nil
}

// List returns jobs newest-first, optionally filtered by status.
func (q *Queue) List(filter *model.JobStatus) []model.TranscodeJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := make([]model.TranscodeJob, 0, len(q.jobs))
	for _, job := range q.jobs {
		if filter != nil && job.Status != *filter {
			continue
		}
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// Stats returns per-status counts.
func (q *Queue) Stats() model.JobStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var stats model.JobStats
	for _, job := range q.jobs {
		stats.Total++
		switch job.Status {
		case model.JobStatusPending:
			stats.Pending++
		case model.JobStatusProcessing:
			stats.Processing++
		case model.JobStatusCompleted:
			stats.Completed++
		case model.JobStatusFailed:
			stats.Failed++
		case model.JobStatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// Purge drops terminal jobs whose completion is older than the retention
// window. Returns the number removed.
func (q *Queue) Purge(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for id, job := range q.jobs {
		if !job.Status.IsTerminal() || job.CompletedAt == nil {
			continue
		}
		if now.Sub(*job.CompletedAt) > q.retention {
			delete(q.jobs, id)
			removed++
		}
	}
	return removed
}
