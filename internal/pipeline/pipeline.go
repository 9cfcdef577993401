// Package pipeline drives tasks through the claim and review lifecycle:
// available → claimed → submitted/ai_review → human_review → validated or
// rejected, with phase progression and claim expiry on top.
package pipeline

import (
	"errors"
	"time"

	"github.com/reelforge/api/internal/config"
	"github.com/reelforge/api/internal/events"
	"github.com/reelforge/api/internal/review"
	"github.com/reelforge/api/internal/store"
)

// Guard rejections. Each names the first guard that failed; none of them
// implies any state mutation happened.
var (
	ErrNotFound          = store.ErrNotFound
	ErrTaskNotAvailable  = errors.New("task not available")
	ErrDependenciesUnmet = errors.New("task dependencies not validated")
	ErrPhaseLocked       = errors.New("phase is locked")
	ErrWorkerAtCapacity  = errors.New("worker concurrency cap reached")
	ErrNotClaimant       = errors.New("caller is not the claimant")
	ErrWrongStatus       = errors.New("task status does not permit this transition")
	ErrAttemptsExhausted = errors.New("resubmission attempts exhausted")
)

// Service owns the task lifecycle against the durable store.
type Service struct {
	store  *store.Store
	scorer review.Scorer
	events events.Publisher
	cfg    config.PipelineConfig
}

func NewService(st *store.Store, scorer review.Scorer, pub events.Publisher, cfg config.PipelineConfig) *Service {
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 48 * time.Hour
	}
	if cfg.WorkerTaskCap <= 0 {
		cfg.WorkerTaskCap = 3
	}
	return &Service{store: st, scorer: scorer, events: pub, cfg: cfg}
}
