package broadcast

// PlanStatusEvent reports a plan state change.
type PlanStatusEvent struct {
	PlanID  string `json:"plan_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Event   string `json:"event"`
	Version int    `json:"version"`
}

// StepStatusEvent reports a step starting or finishing.
type StepStatusEvent struct {
	PlanID string `json:"plan_id"`
	StepID string `json:"step_id"`
	Title  string `json:"title"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// PlanProgressEvent carries the plan's fraction done after a step completes.
type PlanProgressEvent struct {
	PlanID         string  `json:"plan_id"`
	CompletedSteps int     `json:"completed_steps"`
	TotalSteps     int     `json:"total_steps"`
	Fraction       float64 `json:"fraction"`
}
