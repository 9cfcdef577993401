package model

import "time"

// ProjectCreateRequest is the intake request for a new project.
type ProjectCreateRequest struct {
	Title    string      `json:"title" validate:"required,min=1,max=200"`
	Type     ProjectType `json:"type" validate:"required,oneof=film trailer"`
	Category Category    `json:"category" validate:"required,oneof=action drama comedy scifi horror documentary animation thriller"`
	Budget   float64     `json:"budget" validate:"required,gt=0"`
}

// ProjectCreateResponse returns the seeded project plus the decomposition
// artifacts that are not persisted (tokens, allocations, risks).
type ProjectCreateResponse struct {
	Project     Project            `json:"project"`
	Tokens      TokenBreakdown     `json:"tokens"`
	Budget      []BudgetAllocation `json:"budget"`
	Risks       []Risk             `json:"risks"`
	TaskCount   int                `json:"taskCount"`
	PhaseCount  int                `json:"phaseCount"`
	GeneratedAt time.Time          `json:"generatedAt"`
}

// SubmitRequest carries a worker's submission for a claimed task.
type SubmitRequest struct {
	Content string `json:"content" validate:"required,min=1"`
}

// ReviewRequest carries the human reviewer's verdict.
type ReviewRequest struct {
	Approve bool `json:"approve"`
}

// TaskActionResponse reports the task state after a pipeline operation.
type TaskActionResponse struct {
	TaskID   string     `json:"taskId"`
	Status   TaskStatus `json:"status"`
	Deadline *time.Time `json:"deadline,omitempty"`
	Attempts int        `json:"attempts,omitempty"`
	AIScore  int        `json:"aiScore,omitempty"`
}

// SweepResponse reports what a maintenance sweep changed.
type SweepResponse struct {
	TasksReclaimed int `json:"tasksReclaimed"`
	PhasesAdvanced int `json:"phasesAdvanced"`
	JobsPurged     int `json:"jobsPurged"`
}
