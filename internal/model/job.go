package model

import "time"

// TranscodeJob is an entry in the in-memory background job queue. The queue
// is process-local bookkeeping only, not a system of record; entries are lost
// on restart.
type TranscodeJob struct {
	ID          string             `json:"id"`
	ResourceID  string             `json:"resourceId"`
	Title       string             `json:"title,omitempty"`
	InputURL    string             `json:"inputUrl"`
	OutputURL   string             `json:"outputUrl,omitempty"`
	Profiles    []TranscodeProfile `json:"profiles"`
	Status      JobStatus          `json:"status"`
	Progress    int                `json:"progress"`
	Error       *string            `json:"error,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	StartedAt   *time.Time         `json:"startedAt,omitempty"`
	CompletedAt *time.Time         `json:"completedAt,omitempty"`
}

// TranscodeStartRequest enqueues a transcode job.
type TranscodeStartRequest struct {
	ResourceID string             `json:"resourceId" validate:"required"`
	Title      string             `json:"title" validate:"omitempty,max=200"`
	InputURL   string             `json:"inputUrl" validate:"required,url"`
	Profiles   []TranscodeProfile `json:"profiles" validate:"required,min=1"`
}

// JobUpdate is a partial status update applied to a queued job.
type JobUpdate struct {
	Status   *JobStatus
	Progress *int
	Error    *string
	Output   *string
}

// JobStats is the per-status job count snapshot.
type JobStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}
