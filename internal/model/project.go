package model

import "time"

// Project is a film or trailer decomposed into phases of paid micro-tasks.
type Project struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Type      ProjectType `json:"type"`
	Category  Category    `json:"category"`
	Budget    float64     `json:"budget"`
	Progress  int         `json:"progress"` // 0-100, derived from completed phases
	CreatedAt time.Time   `json:"createdAt"`
	Phases    []Phase     `json:"phases,omitempty"`
}

// Phase is an ordered production stage. Phases activate strictly in order;
// at most one phase per project is active at a time.
type Phase struct {
	ID            string      `json:"id"`
	ProjectID     string      `json:"projectId"`
	Name          string      `json:"name"`
	Order         int         `json:"order"`
	Status        PhaseStatus `json:"status"`
	DurationWeeks int         `json:"durationWeeks"`
	StartedAt     *time.Time  `json:"startedAt,omitempty"`
	EndsAt        *time.Time  `json:"endsAt,omitempty"`
	CompletedAt   *time.Time  `json:"completedAt,omitempty"`
}

// Task is an atomic unit of paid work. DependsOn lists task ids that must be
// validated before this task becomes claimable.
type Task struct {
	ID           string     `json:"id"`
	PhaseID      string     `json:"phaseId"`
	ProjectID    string     `json:"projectId"`
	Title        string     `json:"title"`
	Type         TaskType   `json:"type"`
	Difficulty   Difficulty `json:"difficulty"`
	Price        float64    `json:"price"`
	Spec         string     `json:"spec"`
	Status       TaskStatus `json:"status"`
	ClaimedBy    string     `json:"claimedBy,omitempty"`
	ClaimedAt    *time.Time `json:"claimedAt,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	Attempts     int        `json:"attempts"`
	AIConfidence int        `json:"aiConfidence"`
	DependsOn    []string   `json:"dependsOn,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Submission is one worker attempt at a task. A task accumulates one
// submission per attempt; submissions are never deleted.
type Submission struct {
	ID         string     `json:"id"`
	TaskID     string     `json:"taskId"`
	WorkerID   string     `json:"workerId"`
	Content    string     `json:"content"`
	AIScore    int        `json:"aiScore"`
	AIFeedback string     `json:"aiFeedback,omitempty"`
	Status     TaskStatus `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
}
