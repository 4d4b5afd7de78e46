package plan

import "time"

// Progress is a per-plan completion snapshot.
type Progress struct {
	PlanID            string        `json:"plan_id"`
	TotalSteps        int           `json:"total_steps"`
	CompletedSteps    int           `json:"completed_steps"`
	FailedSteps       int           `json:"failed_steps"`
	SkippedSteps      int           `json:"skipped_steps"`
	CurrentStep       string        `json:"current_step,omitempty"`
	CurrentFraction   float64       `json:"current_fraction"`
	StartedAt         *time.Time    `json:"started_at,omitempty"`
	UpdatedAt         time.Time     `json:"updated_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
	ActualDuration    time.Duration `json:"actual_duration,omitempty"`
	Success           bool          `json:"success"`
}

// Fraction returns overall completion in [0, 1], counting the in-flight step
// at its fractional progress.
func (p Progress) Fraction() float64 {
	if p.TotalSteps == 0 {
		return 0
	}
	done := float64(p.CompletedSteps+p.SkippedSteps) + p.CurrentFraction
	f := done / float64(p.TotalSteps)
	if f > 1 {
		return 1
	}
	return f
}

// ComputeProgress derives a Progress snapshot from the plan's current steps.
// The remaining-work estimate is the sum of estimated durations of unfinished steps.
func ComputeProgress(p *Plan) Progress {
	pr := Progress{
		PlanID:      p.ID,
		TotalSteps:  len(p.Steps),
		StartedAt:   cloneTime(p.StartedAt),
		CompletedAt: cloneTime(p.CompletedAt),
		UpdatedAt:   p.UpdatedAt,
		Success:     p.State == StateCompleted,
	}

	var remaining time.Duration
	for i := range p.Steps {
		s := &p.Steps[i]
		switch s.Status {
		case StepStatusCompleted:
			pr.CompletedSteps++
		case StepStatusFailed:
			pr.FailedSteps++
		case StepStatusSkipped:
			pr.SkippedSteps++
		case StepStatusInProgress:
			pr.CurrentStep = s.ID
			pr.CurrentFraction = 0.5
			remaining += s.EstimatedDuration
		default:
			remaining += s.EstimatedDuration
		}
	}
	pr.EstimatedDuration = remaining

	if p.StartedAt != nil {
		end := time.Now()
		if p.CompletedAt != nil {
			end = *p.CompletedAt
		}
		pr.ActualDuration = end.Sub(*p.StartedAt)
	}
	return pr
}
