package service

import (
	"context"
	"strings"

	"github.com/Aristman/ride-core/internal/domain/plan"
	"github.com/Aristman/ride-core/internal/port/classify"
)

// KeywordClassifier classifies requests with keyword heuristics. It stands in
// where no LLM-backed classifier is configured and doubles as the breaker
// fallback path's upstream.
type KeywordClassifier struct{}

var _ classify.Classifier = (*KeywordClassifier)(nil)

type taskRule struct {
	taskType     plan.TaskType
	keywords     []string
	capabilities []plan.Capability
	complexity   plan.Complexity
}

var taskRules = []taskRule{
	{
		taskType: plan.TaskCodeReview,
		keywords: []string{"review", "code review", "pull request", "merge request"},
		capabilities: []plan.Capability{
			plan.CapabilityScanner,
			plan.CapabilityCodeAnalyzer,
			plan.CapabilityReviewer,
			plan.CapabilityReportGenerator,
		},
		complexity: plan.ComplexityHigh,
	},
	{
		taskType: plan.TaskBugSearch,
		keywords: []string{"bug", "error", "crash", "fix", "broken", "fails"},
		capabilities: []plan.Capability{
			plan.CapabilityScanner,
			plan.CapabilityBugDetector,
			plan.CapabilityReportGenerator,
		},
		complexity: plan.ComplexityMedium,
	},
	{
		taskType: plan.TaskAnalysis,
		keywords: []string{"analyze", "analysis", "quality", "structure", "metrics"},
		capabilities: []plan.Capability{
			plan.CapabilityScanner,
			plan.CapabilityCodeAnalyzer,
			plan.CapabilityReportGenerator,
		},
		complexity: plan.ComplexityMedium,
	},
}

func (KeywordClassifier) Analyze(_ context.Context, request string) (*plan.Analysis, error) {
	lower := strings.ToLower(request)

	for _, rule := range taskRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return &plan.Analysis{
					TaskType:             rule.taskType,
					RequiredCapabilities: rule.capabilities,
					Complexity:           rule.complexity,
					EstimatedSteps:       len(rule.capabilities),
					Confidence:           0.7,
					Reasoning:            "matched keyword " + kw,
				}, nil
			}
		}
	}

	a := &plan.Analysis{
		TaskType: plan.TaskGeneral,
		RequiredCapabilities: []plan.Capability{
			plan.CapabilityScanner,
			plan.CapabilityReportGenerator,
		},
		Complexity:     plan.ComplexityLow,
		EstimatedSteps: 2,
		Confidence:     0.5,
		Reasoning:      "no task keywords matched, defaulting to scan and report",
	}
	// Too short to act on: ask the user to elaborate before executing.
	if len(strings.Fields(request)) < 3 {
		a.RequiresInput = true
		a.Confidence = 0.2
		a.Reasoning = "request too vague to classify"
	}
	return a, nil
}
