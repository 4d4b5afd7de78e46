package service

import (
	"context"
	"log/slog"

	"github.com/Aristman/ride-core/internal/domain/plan"
	"github.com/Aristman/ride-core/internal/port/classify"
	"github.com/Aristman/ride-core/internal/resilience"
)

// ClassifierService wraps the external request classifier with a circuit
// breaker. Classification never fails the caller: any error degrades to a
// conservative default Analysis.
type ClassifierService struct {
	inner   classify.Classifier
	breaker *resilience.Breaker
}

// NewClassifierService creates a ClassifierService. Both arguments may be nil;
// a nil classifier always yields the fallback Analysis.
func NewClassifierService(inner classify.Classifier, breaker *resilience.Breaker) *ClassifierService {
	return &ClassifierService{inner: inner, breaker: breaker}
}

// Analyze classifies the request, falling back to FallbackAnalysis when the
// classifier is unavailable, tripped, or returns an error.
func (s *ClassifierService) Analyze(ctx context.Context, request string) *plan.Analysis {
	if s.inner == nil {
		return FallbackAnalysis()
	}

	var result *plan.Analysis
	call := func() error {
		a, err := s.inner.Analyze(ctx, request)
		if err != nil {
			return err
		}
		result = a
		return nil
	}

	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(call)
	} else {
		err = call()
	}

	if err != nil || result == nil {
		slog.Warn("request classification failed, using fallback analysis", "error", err)
		return FallbackAnalysis()
	}
	return result
}

// FallbackAnalysis is the conservative default used when classification
// fails: a general scan-and-report plan with low confidence.
func FallbackAnalysis() *plan.Analysis {
	return &plan.Analysis{
		TaskType: plan.TaskGeneral,
		RequiredCapabilities: []plan.Capability{
			plan.CapabilityScanner,
			plan.CapabilityReportGenerator,
		},
		Complexity:     plan.ComplexityLow,
		EstimatedSteps: 2,
		Confidence:     0.3,
		Reasoning:      "classifier unavailable, defaulting to scan and report",
	}
}
