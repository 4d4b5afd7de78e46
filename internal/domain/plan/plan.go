// Package plan defines the Plan domain entity: a request's decomposition into
// dependent, typed steps plus its lifecycle state.
package plan

import "time"

// State represents the lifecycle state of a plan.
type State string

const (
	StateCreated       State = "created"
	StateAnalyzing     State = "analyzing"
	StateInProgress    State = "in_progress"
	StatePaused        State = "paused"
	StateResumed       State = "resumed"
	StateRequiresInput State = "requires_input"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
	StateCancelled     State = "cancelled"
)

// IsTerminal returns true if no transition leaves the state.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// IsFinished returns true for states eligible for retention cleanup.
func (s State) IsFinished() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// StepStatus represents the lifecycle state of an individual step.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
	StepStatusSkipped    StepStatus = "skipped"
)

// IsTerminal returns true if the step is in a final state.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	}
	return false
}

// Satisfied reports whether a dependency in this status unblocks its dependents.
// A skipped step (no executor available) does not block downstream work.
func (s StepStatus) Satisfied() bool {
	return s == StepStatusCompleted || s == StepStatusSkipped
}

// Capability names the kind of executor a step requires.
type Capability string

const (
	CapabilityScanner         Capability = "scanner"
	CapabilityCodeAnalyzer    Capability = "code-analyzer"
	CapabilityBugDetector     Capability = "bug-detector"
	CapabilityReviewer        Capability = "reviewer"
	CapabilityReportGenerator Capability = "report-generator"
)

// TaskType classifies the originating request.
type TaskType string

const (
	TaskCodeReview TaskType = "code_review"
	TaskBugSearch  TaskType = "bug_search"
	TaskAnalysis   TaskType = "analysis"
	TaskGeneral    TaskType = "general"
)

// Complexity is a coarse effort estimate for a classified request.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Analysis is the classification result for a request.
type Analysis struct {
	TaskType             TaskType     `json:"task_type"`
	RequiredCapabilities []Capability `json:"required_capabilities"`
	Complexity           Complexity   `json:"complexity"`
	EstimatedSteps       int          `json:"estimated_steps"`
	Confidence           float64      `json:"confidence"`
	Reasoning            string       `json:"reasoning,omitempty"`
	RequiresInput        bool         `json:"requires_input"`
}

// Attempt records one invocation of a step by the retry executor.
type Attempt struct {
	Number    int           `json:"number"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Step represents one unit of work requiring a named capability.
type Step struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	Description       string         `json:"description,omitempty"`
	Capability        Capability     `json:"capability"`
	Input             map[string]any `json:"input,omitempty"`
	DependsOn         []string       `json:"depends_on,omitempty"`
	Status            StepStatus     `json:"status"`
	Output            map[string]any `json:"output,omitempty"`
	Error             string         `json:"error,omitempty"`
	EstimatedDuration time.Duration  `json:"estimated_duration,omitempty"`
	Retry             *RetryPolicy   `json:"retry,omitempty"`
	Loop              *LoopConfig    `json:"loop,omitempty"`
	Attempts          []Attempt      `json:"attempts,omitempty"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
}

// Transition is one accepted lifecycle change, recorded in the plan history.
type Transition struct {
	From  State     `json:"from"`
	To    State     `json:"to"`
	Event EventKind `json:"event"`
	Note  string    `json:"note,omitempty"`
	At    time.Time `json:"at"`
}

// Plan is the decomposition of a request into dependent steps. Plans are
// mutated copy-on-write: every lifecycle transition clones the plan and bumps
// Version, so readers never observe a half-applied change.
type Plan struct {
	ID          string            `json:"id"`
	Request     string            `json:"request"`
	Analysis    *Analysis         `json:"analysis,omitempty"`
	Steps       []Step            `json:"steps"`
	State       State             `json:"state"`
	Version     int               `json:"version"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	History     []Transition      `json:"history,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Step returns the step with the given ID, or nil.
func (p *Plan) Step(id string) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	cp := *p
	cp.Steps = make([]Step, len(p.Steps))
	for i := range p.Steps {
		cp.Steps[i] = cloneStep(&p.Steps[i])
	}
	cp.History = append([]Transition(nil), p.History...)
	cp.Metadata = cloneStringMap(p.Metadata)
	if p.Analysis != nil {
		a := *p.Analysis
		a.RequiredCapabilities = append([]Capability(nil), p.Analysis.RequiredCapabilities...)
		cp.Analysis = &a
	}
	cp.StartedAt = cloneTime(p.StartedAt)
	cp.CompletedAt = cloneTime(p.CompletedAt)
	return &cp
}

func cloneStep(s *Step) Step {
	cp := *s
	cp.Input = cloneAnyMap(s.Input)
	cp.Output = cloneAnyMap(s.Output)
	cp.DependsOn = append([]string(nil), s.DependsOn...)
	cp.Attempts = append([]Attempt(nil), s.Attempts...)
	cp.StartedAt = cloneTime(s.StartedAt)
	cp.CompletedAt = cloneTime(s.CompletedAt)
	if s.Retry != nil {
		r := *s.Retry
		cp.Retry = &r
	}
	if s.Loop != nil {
		l := *s.Loop
		l.Collection = append([]any(nil), s.Loop.Collection...)
		cp.Loop = &l
	}
	return cp
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
