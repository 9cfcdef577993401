package handler

import (
	"crypto/subtle"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/reelforge/api/internal/jobqueue"
	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/pipeline"
	"github.com/reelforge/api/pkg/response"
)

// minSweepSecretLen disables the endpoint entirely when the configured
// secret is too short to be safe.
const minSweepSecretLen = 32

// SweepHandler exposes the maintenance sweep to an external scheduler.
type SweepHandler struct {
	pipeline *pipeline.Service
	queue    *jobqueue.Queue
	secret   string
}

func NewSweepHandler(svc *pipeline.Service, queue *jobqueue.Queue, secret string) *SweepHandler {
	return &SweepHandler{
		pipeline: svc,
		queue:    queue,
		secret:   secret,
	}
}

// Run handles POST /internal/sweep. Missing or short secret configuration
// means the feature is off, not open; the comparison is constant time.
func (h *SweepHandler) Run(c *fiber.Ctx) error {
	if len(h.secret) < minSweepSecretLen {
		return response.NotFound(c, "Not found")
	}

	provided := c.Get("X-Sweep-Secret")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
		return response.Unauthorized(c, "Invalid sweep secret")
	}

	now := time.Now()
	reclaimed, err := h.pipeline.ReapExpired(c.Context(), now)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	advanced, err := h.pipeline.SweepPhases(c.Context())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	purged := h.queue.Purge(now)

	return response.OK(c, model.SweepResponse{
		TasksReclaimed: reclaimed,
		PhasesAdvanced: advanced,
		JobsPurged:     purged,
	})
}
