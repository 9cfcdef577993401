// Package events delivers the best-effort side effects attached to pipeline
// transitions: audit trail entries and worker notifications. Delivery is
// decoupled from the state change — events are appended to asynq queues and
// drained by workers with their own retry policy. An enqueue failure is
// logged and swallowed; it never blocks or rolls back a transition.
package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

// Asynq task types
const (
	TypeAudit  = "events:audit"
	TypeNotify = "events:notify"
)

// AuditEvent is one append-only audit trail entry.
type AuditEvent struct {
	Event     string    `json:"event"` // e.g. "task.claimed", "phase.completed"
	ProjectID string    `json:"projectId,omitempty"`
	TaskID    string    `json:"taskId,omitempty"`
	WorkerID  string    `json:"workerId,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Notification is a message for one worker.
type Notification struct {
	WorkerID string    `json:"workerId"`
	TaskID   string    `json:"taskId,omitempty"`
	Kind     string    `json:"kind"` // e.g. "claim_expired", "task_validated"
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// Publisher emits pipeline side effects. Implementations must be safe to
// call from request handlers and must never return delivery errors.
type Publisher interface {
	Audit(ctx context.Context, ev AuditEvent)
	Notify(ctx context.Context, n Notification)
}

// AsynqPublisher enqueues events for the delivery workers.
type AsynqPublisher struct {
	client *asynq.Client
}

func NewAsynqPublisher(client *asynq.Client) *AsynqPublisher {
	return &AsynqPublisher{client: client}
}

func (p *AsynqPublisher) Audit(ctx context.Context, ev AuditEvent) {
	p.enqueue(ctx, TypeAudit, "audit", ev)
}

func (p *AsynqPublisher) Notify(ctx context.Context, n Notification) {
	p.enqueue(ctx, TypeNotify, "notify", n)
}

func (p *AsynqPublisher) enqueue(ctx context.Context, taskType, queue string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("events: failed to marshal %s payload: %v", taskType, err)
		return
	}
	_, err = p.client.EnqueueContext(ctx, asynq.NewTask(taskType, data),
		asynq.Queue(queue),
		asynq.MaxRetry(5),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		log.Printf("events: failed to enqueue %s: %v", taskType, err)
	}
}

// NoopPublisher drops all events. Used in tests and when Redis is absent.
type NoopPublisher struct{}

func (NoopPublisher) Audit(ctx context.Context, ev AuditEvent)   {}
func (NoopPublisher) Notify(ctx context.Context, n Notification) {}
