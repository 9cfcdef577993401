package model

// TokenBreakdown is the cost-unit pricing for a project budget.
type TokenBreakdown struct {
	TokenPrice  float64 `json:"tokenPrice"`
	TotalTokens int     `json:"totalTokens"`
}

// BudgetAllocation is a named cost-center share of the total budget.
type BudgetAllocation struct {
	Name    string  `json:"name"`
	Percent float64 `json:"percent"`
	Amount  float64 `json:"amount"`
}

// TaskTemplate is an atomic task produced by decomposition, before it is
// persisted. Key is unique within a decomposition and DependsOn refers to
// other template keys.
type TaskTemplate struct {
	Key        string     `json:"key"`
	Title      string     `json:"title"`
	Type       TaskType   `json:"type"`
	Phase      int        `json:"phase"` // 1-based phase order
	Difficulty Difficulty `json:"difficulty"`
	Price      float64    `json:"price"`
	Spec       string     `json:"spec"`
	DependsOn  []string   `json:"dependsOn,omitempty"`
}

// PhaseTemplate is a production phase produced by decomposition.
type PhaseTemplate struct {
	Name          string `json:"name"`
	Order         int    `json:"order"`
	StartWeek     int    `json:"startWeek"`
	DurationWeeks int    `json:"durationWeeks"`
}

// Risk is one entry of a project risk assessment.
type Risk struct {
	Category    string    `json:"category"`
	Level       RiskLevel `json:"level"`
	Description string    `json:"description"`
	Mitigation  string    `json:"mitigation"`
}
