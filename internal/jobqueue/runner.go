package jobqueue

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/reelforge/api/internal/model"
)

// ProgressSink receives job progress updates for live subscribers. The
// websocket hub implements it.
type ProgressSink interface {
	BroadcastProgress(jobID string, progress int, status model.JobStatus, step string)
	BroadcastComplete(jobID, outputURL string)
	BroadcastError(jobID, code, message string)
}

// Runner executes queued transcode jobs in-process, one goroutine per job.
// Real encoding is delegated to an external service in production; the
// runner tracks bookkeeping and progress either way.
type Runner struct {
	queue     *Queue
	sink      ProgressSink
	stepDelay time.Duration
}

func NewRunner(queue *Queue, sink ProgressSink, stepDelay time.Duration) *Runner {
	if stepDelay <= 0 {
		stepDelay = 2 * time.Second
	}
	return &Runner{queue: queue, sink: sink, stepDelay: stepDelay}
}

// Start launches processing for a queued job.
func (r *Runner) Start(jobID string) {
	go r.process(jobID)
}

func (r *Runner) process(jobID string) {
	job, err := r.queue.Get(jobID)
	if err != nil {
		log.Printf("jobqueue: job %s vanished before processing: %v", jobID, err)
		return
	}

	processing := model.JobStatusProcessing
	if _, err := r.queue.Update(jobID, model.JobUpdate{Status: &processing}); err != nil {
		if !errors.Is(err, ErrJobFinished) {
			log.Printf("jobqueue: failed to start job %s: %v", jobID, err)
		}
		return
	}

	total := len(job.Profiles)
	for i, profile := range job.Profiles {
		// Cooperative cancellation: a cancelled job keeps its status, we
		// just stop working on it.
		current, err := r.queue.Get(jobID)
		if err != nil || current.Status == model.JobStatusCancelled {
			return
		}

		step := fmt.Sprintf("Transcoding %s...", profile)
		progress := (i * 100) / total
		if _, err := r.queue.Update(jobID, model.JobUpdate{Progress: &progress}); err != nil {
			if errors.Is(err, ErrJobNotFound) {
				return
			}
			log.Printf("jobqueue: failed to update job %s: %v", jobID, err)
		}
		if r.sink != nil {
			r.sink.BroadcastProgress(jobID, progress, model.JobStatusProcessing, step)
		}

		time.Sleep(r.stepDelay)
	}

	current, err := r.queue.Get(jobID)
	if err != nil || current.Status == model.JobStatusCancelled {
		return
	}

	completed := model.JobStatusCompleted
	output := fmt.Sprintf("https://cdn.reelforge.io/transcodes/%s/%s", job.ResourceID, jobID)
	if _, err := r.queue.Update(jobID, model.JobUpdate{Status: &completed, Output: &output}); err != nil {
		// A cancel that landed after our last status check wins.
		if !errors.Is(err, ErrJobFinished) {
			log.Printf("jobqueue: failed to complete job %s: %v", jobID, err)
		}
		return
	}
	if r.sink != nil {
		r.sink.BroadcastComplete(jobID, output)
	}
}
