package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	rcotel "github.com/Aristman/ride-core/internal/adapter/otel"
	"github.com/Aristman/ride-core/internal/config"
	"github.com/Aristman/ride-core/internal/domain"
	"github.com/Aristman/ride-core/internal/domain/plan"
	"github.com/Aristman/ride-core/internal/port/bus"
	"github.com/Aristman/ride-core/internal/port/executor"
	"github.com/Aristman/ride-core/internal/port/storage"
)

// Invoker dispatches a single step to whatever executes it: an in-process
// registry or a remote agent behind the message bus.
type Invoker interface {
	Invoke(ctx context.Context, p *plan.Plan, step *plan.Step, input map[string]any) (*executor.Result, error)
}

// DirectInvoker runs steps against in-process executors.
type DirectInvoker struct {
	Registry executor.Registry
}

func (d *DirectInvoker) Invoke(ctx context.Context, _ *plan.Plan, step *plan.Step, input map[string]any) (*executor.Result, error) {
	ex, ok := d.Registry.Lookup(step.Capability)
	if !ok {
		return nil, fmt.Errorf("%w: capability %q", ErrNoExecutor, step.Capability)
	}
	return ex.Execute(ctx, step, input)
}

// BusInvoker dispatches steps as typed requests over the message bus and
// waits for the correlated response.
type BusInvoker struct {
	Bus     bus.Bus
	Timeout time.Duration
	Sender  string
}

func (b *BusInvoker) Invoke(ctx context.Context, p *plan.Plan, step *plan.Step, input map[string]any) (*executor.Result, error) {
	req := &bus.Request{
		ID:     uuid.NewString(),
		Sender: b.Sender,
		Type:   bus.MsgExecuteStep,
		Payload: &bus.KeyValuePayload{Values: map[string]any{
			"step_id":    step.ID,
			"capability": string(step.Capability),
			"title":      step.Title,
			"input":      input,
		}},
		Metadata: map[string]string{
			"plan_id": p.ID,
			"step_id": step.ID,
		},
		At: time.Now().UTC(),
	}

	resp, err := b.Bus.Request(ctx, req, b.Timeout)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		res := &executor.Result{Success: false}
		if resp.Error != nil {
			res.Error = resp.Error.Message
		}
		return res, nil
	}

	res := &executor.Result{Success: true}
	switch payload := resp.Payload.(type) {
	case *bus.KeyValuePayload:
		res.Output = payload.Values
	case *bus.TextPayload:
		res.Summary = payload.Text
	}
	return res, nil
}

// Metrics receives orchestration telemetry. Implemented by the otel adapter.
type Metrics interface {
	PlanStarted(ctx context.Context)
	PlanFinished(ctx context.Context, state plan.State, d time.Duration)
	StepFinished(ctx context.Context, capability plan.Capability, success bool, d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) PlanStarted(context.Context)                                        {}
func (nopMetrics) PlanFinished(context.Context, plan.State, time.Duration)            {}
func (nopMetrics) StepFinished(context.Context, plan.Capability, bool, time.Duration) {}

// OrchestratorService drives a plan from request to final state: classify,
// build, persist, then execute the dependency graph batch by batch.
type OrchestratorService struct {
	store      storage.Store
	lifecycle  *LifecycleService
	tracker    *ProgressTracker
	classifier *ClassifierService
	invoker    Invoker
	cfg        config.Orchestrator
	metrics    Metrics
	log        *slog.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func NewOrchestratorService(
	store storage.Store,
	lifecycle *LifecycleService,
	tracker *ProgressTracker,
	classifier *ClassifierService,
	invoker Invoker,
	cfg config.Orchestrator,
	metrics Metrics,
	log *slog.Logger,
) *OrchestratorService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &OrchestratorService{
		store:      store,
		lifecycle:  lifecycle,
		tracker:    tracker,
		classifier: classifier,
		invoker:    invoker,
		cfg:        cfg,
		metrics:    metrics,
		log:        log,
		active:     make(map[string]context.CancelFunc),
	}
}

var stepDurations = map[plan.Capability]time.Duration{
	plan.CapabilityScanner:         30 * time.Second,
	plan.CapabilityCodeAnalyzer:    2 * time.Minute,
	plan.CapabilityBugDetector:     3 * time.Minute,
	plan.CapabilityReviewer:        2 * time.Minute,
	plan.CapabilityReportGenerator: time.Minute,
}

// Prepare classifies the request and persists a validated plan, advancing it
// through Created and Analyzing. The returned plan is either InProgress and
// ready to execute, or RequiresInput when clarification is needed.
func (s *OrchestratorService) Prepare(ctx context.Context, request string) (*plan.Plan, error) {
	analysis := s.classifier.Analyze(ctx, request)

	p := buildPlan(request, analysis)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}
	s.log.Info("plan created", "plan_id", p.ID, "steps", len(p.Steps), "task_type", analysis.TaskType)

	p, err := s.lifecycle.Transition(ctx, p.ID, plan.Event{Kind: plan.EventStart})
	if err != nil {
		return nil, err
	}
	p, err = s.lifecycle.Transition(ctx, p.ID, plan.Event{Kind: plan.EventStart, Analysis: analysis})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Run prepares and executes a plan synchronously. When the plan requires
// clarification it is returned as-is in RequiresInput.
func (s *OrchestratorService) Run(ctx context.Context, request string) (*plan.Plan, error) {
	p, err := s.Prepare(ctx, request)
	if err != nil {
		return nil, err
	}
	if p.State != plan.StateInProgress {
		return p, nil
	}
	if err := s.Execute(ctx, p.ID); err != nil {
		return s.store.Load(ctx, p.ID)
	}
	return s.store.Load(ctx, p.ID)
}

// Start prepares a plan and executes it in the background. Execution outlives
// the request context; Cancel stops it.
func (s *OrchestratorService) Start(ctx context.Context, request string) (*plan.Plan, error) {
	p, err := s.Prepare(ctx, request)
	if err != nil {
		return nil, err
	}
	if p.State == plan.StateInProgress {
		s.startExecution(ctx, p.ID)
	}
	return p, nil
}

// ProvideInput feeds a user answer into a plan waiting for clarification and
// resumes execution when the plan moves back to InProgress.
func (s *OrchestratorService) ProvideInput(ctx context.Context, planID, input string) (*plan.Plan, error) {
	p, err := s.lifecycle.Transition(ctx, planID, plan.Event{Kind: plan.EventUserInput, Input: input})
	if err != nil {
		return nil, err
	}
	if p.State == plan.StateInProgress {
		s.startExecution(ctx, planID)
	}
	return p, nil
}

// Pause suspends an in-progress plan. Running steps finish their current
// attempt; later batches do not start.
func (s *OrchestratorService) Pause(ctx context.Context, planID string) (*plan.Plan, error) {
	return s.lifecycle.Transition(ctx, planID, plan.Event{Kind: plan.EventPause})
}

// Resume returns a paused plan to execution.
func (s *OrchestratorService) Resume(ctx context.Context, planID string) (*plan.Plan, error) {
	p, err := s.lifecycle.Transition(ctx, planID, plan.Event{Kind: plan.EventResume})
	if err != nil {
		return nil, err
	}
	if p.State == plan.StateResumed {
		p, err = s.lifecycle.Transition(ctx, planID, plan.Event{Kind: plan.EventResume})
		if err != nil {
			return nil, err
		}
	}
	if p.State == plan.StateInProgress {
		s.startExecution(ctx, planID)
	}
	return p, nil
}

// Cancel moves a plan to Cancelled and stops its background execution.
func (s *OrchestratorService) Cancel(ctx context.Context, planID string) (*plan.Plan, error) {
	p, err := s.lifecycle.Transition(ctx, planID, plan.Event{Kind: plan.EventCancel})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	cancel := s.active[planID]
	delete(s.active, planID)
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return p, nil
}

func (s *OrchestratorService) startExecution(ctx context.Context, planID string) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.mu.Lock()
	if prev, ok := s.active[planID]; ok {
		prev()
	}
	s.active[planID] = cancel
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.active, planID)
			s.mu.Unlock()
			cancel()
		}()
		if err := s.Execute(runCtx, planID); err != nil {
			s.log.Warn("plan execution finished with error", "plan_id", planID, "error", err)
		}
	}()
}

// Execute runs all pending steps of an InProgress plan in dependency order.
// Steps within a batch run concurrently, bounded by MaxParallel. The first
// step failure stops execution and fails the plan. A cancelled context stops
// execution without forcing a state change.
func (s *OrchestratorService) Execute(ctx context.Context, planID string) error {
	p, err := s.store.Load(ctx, planID)
	if err != nil {
		return err
	}
	if p.State != plan.StateInProgress {
		return fmt.Errorf("%w: plan %s is %s, not %s", domain.ErrValidation, planID, p.State, plan.StateInProgress)
	}

	graph, err := plan.BuildGraph(p.Steps)
	if err != nil {
		return err
	}
	batches, err := graph.Batches()
	if err != nil {
		return err
	}

	taskType := ""
	if p.Analysis != nil {
		taskType = string(p.Analysis.TaskType)
	}
	ctx, span := rcotel.StartPlanSpan(ctx, planID, taskType)
	defer span.End()

	s.metrics.PlanStarted(ctx)
	started := time.Now()
	run := &planRun{plan: p}

	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if stop, err := s.checkSuspended(ctx, planID); stop {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		limit := s.cfg.MaxParallel
		if limit < 1 {
			limit = 1
		}
		g.SetLimit(limit)

		for _, stepID := range batch {
			step := run.plan.Step(stepID)
			if step == nil || step.Status.IsTerminal() {
				continue
			}
			g.Go(func() error {
				return s.runStep(gctx, run, step)
			})
		}

		if err := g.Wait(); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if _, terr := s.lifecycle.Transition(ctx, planID, plan.Event{
				Kind:    plan.EventStepFailed,
				Message: err.Error(),
			}); terr != nil {
				s.log.Error("failed to mark plan failed", "plan_id", planID, "error", terr)
			}
			s.metrics.PlanFinished(ctx, plan.StateFailed, time.Since(started))
			return err
		}
	}

	run.mu.Lock()
	summary := aggregateOutput(run.plan)
	run.mu.Unlock()

	final, err := s.lifecycle.Transition(ctx, planID, plan.Event{Kind: plan.EventComplete, Message: summary})
	if err != nil {
		return err
	}
	s.metrics.PlanFinished(ctx, final.State, time.Since(started))
	s.log.Info("plan completed", "plan_id", planID, "duration", time.Since(started))
	return nil
}

// checkSuspended reports whether execution should stop because the plan was
// paused or cancelled between batches.
func (s *OrchestratorService) checkSuspended(ctx context.Context, planID string) (bool, error) {
	p, err := s.store.Load(ctx, planID)
	if err != nil {
		return true, err
	}
	switch p.State {
	case plan.StateInProgress:
		return false, nil
	case plan.StatePaused, plan.StateResumed:
		s.log.Info("plan execution paused", "plan_id", planID)
		return true, nil
	default:
		return true, fmt.Errorf("%w: plan %s left execution in state %s", domain.ErrValidation, planID, p.State)
	}
}

// planRun holds the in-memory plan mutated by concurrently running steps.
type planRun struct {
	mu   sync.Mutex
	plan *plan.Plan
}

func (s *OrchestratorService) runStep(ctx context.Context, run *planRun, step *plan.Step) error {
	ctx, span := rcotel.StartStepSpan(ctx, run.plan.ID, step.ID, string(step.Capability))
	defer span.End()

	now := time.Now().UTC()
	run.mu.Lock()
	step.Status = plan.StepStatusInProgress
	step.StartedAt = &now
	input := enrichInput(run.plan, step)
	run.mu.Unlock()

	if err := s.savePlan(ctx, run); err != nil {
		return err
	}
	run.mu.Lock()
	s.tracker.StepStarted(ctx, run.plan, step)
	run.mu.Unlock()
	s.log.Info("step started", "plan_id", run.plan.ID, "step_id", step.ID, "capability", step.Capability)

	output, runErr := s.invokeStep(ctx, run.plan, step, input)

	done := time.Now().UTC()
	run.mu.Lock()
	step.CompletedAt = &done
	switch {
	case errors.Is(runErr, ErrNoExecutor):
		step.Status = plan.StepStatusSkipped
		step.Error = runErr.Error()
		s.log.Warn("no executor for capability, skipping step",
			"plan_id", run.plan.ID, "step_id", step.ID, "capability", step.Capability)
		runErr = nil
	case runErr != nil:
		step.Status = plan.StepStatusFailed
		step.Error = runErr.Error()
	default:
		step.Status = plan.StepStatusCompleted
		step.Output = output
	}
	run.mu.Unlock()

	if err := s.savePlan(ctx, run); err != nil {
		return err
	}
	run.mu.Lock()
	s.tracker.StepFinished(ctx, run.plan, step)
	run.mu.Unlock()
	s.metrics.StepFinished(ctx, step.Capability, step.Status == plan.StepStatusCompleted, done.Sub(now))
	return runErr
}

func (s *OrchestratorService) invokeStep(ctx context.Context, p *plan.Plan, step *plan.Step, input map[string]any) (map[string]any, error) {
	if step.Loop != nil {
		lr, err := RunLoop(ctx, *step.Loop, input, func(ctx context.Context, iterCtx map[string]any) (any, error) {
			out, err := s.invokeOnce(ctx, p, step, iterCtx)
			if err != nil {
				return nil, err
			}
			return out, nil
		})
		if err != nil {
			return nil, err
		}
		output := map[string]any{
			"iterations":         lr.Iterations,
			"results":            lr.Results,
			"termination_reason": string(lr.Reason),
		}
		if !lr.Success {
			return output, fmt.Errorf("loop terminated without success: %s", lr.Reason)
		}
		return output, nil
	}

	return ExecuteWithRetry(ctx, step, func(ctx context.Context) (map[string]any, error) {
		return s.invokeOnce(ctx, p, step, input)
	})
}

func (s *OrchestratorService) invokeOnce(ctx context.Context, p *plan.Plan, step *plan.Step, input map[string]any) (map[string]any, error) {
	stepCtx := ctx
	if s.cfg.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, s.cfg.StepTimeout)
		defer cancel()
	}

	res, err := s.invoker.Invoke(stepCtx, p, step, input)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "executor reported failure"
		}
		return nil, errors.New(msg)
	}

	output := res.Output
	if output == nil {
		output = make(map[string]any)
	}
	if res.Summary != "" {
		if _, ok := output["summary"]; !ok {
			output["summary"] = res.Summary
		}
	}
	return output, nil
}

// savePlan persists the run's step mutations against the latest stored
// version. Lifecycle transitions bump the version concurrently, so the
// stored plan is reloaded and conflicts retried.
func (s *OrchestratorService) savePlan(ctx context.Context, run *planRun) error {
	for attempt := 0; attempt < 5; attempt++ {
		stored, err := s.store.Load(ctx, run.plan.ID)
		if err != nil {
			return err
		}

		run.mu.Lock()
		merged := stored.Clone()
		for i := range run.plan.Steps {
			src := &run.plan.Steps[i]
			if dst := merged.Step(src.ID); dst != nil {
				dst.Status = src.Status
				dst.Output = src.Output
				dst.Error = src.Error
				dst.Attempts = src.Attempts
				dst.StartedAt = src.StartedAt
				dst.CompletedAt = src.CompletedAt
			}
		}
		merged.UpdatedAt = time.Now().UTC()
		run.mu.Unlock()

		err = s.store.Update(ctx, merged)
		if err == nil {
			run.mu.Lock()
			run.plan.Version = merged.Version
			run.plan.State = merged.State
			run.mu.Unlock()
			return nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("%w: persisting steps for plan %s", domain.ErrConflict, run.plan.ID)
}

// enrichInput merges outputs of completed dependencies into the step input
// without overwriting explicitly provided keys.
func enrichInput(p *plan.Plan, step *plan.Step) map[string]any {
	input := make(map[string]any, len(step.Input))
	for k, v := range step.Input {
		input[k] = v
	}
	for _, depID := range step.DependsOn {
		dep := p.Step(depID)
		if dep == nil || dep.Status != plan.StepStatusCompleted {
			continue
		}
		for k, v := range dep.Output {
			if _, exists := input[k]; !exists {
				input[k] = v
			}
		}
	}
	return input
}

// buildPlan lays out one step per required capability. The scanner runs
// first, the report generator last, and everything else in between depends
// only on the scan.
func buildPlan(request string, analysis *plan.Analysis) *plan.Plan {
	now := time.Now().UTC()
	p := &plan.Plan{
		ID:        uuid.NewString(),
		Request:   request,
		Analysis:  analysis,
		State:     plan.StateCreated,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var hasScanner bool
	var middle []string
	for _, c := range analysis.RequiredCapabilities {
		if c == plan.CapabilityScanner {
			hasScanner = true
		} else if c != plan.CapabilityReportGenerator {
			middle = append(middle, string(c))
		}
	}

	for _, c := range analysis.RequiredCapabilities {
		retry := plan.DefaultRetryPolicy()
		step := plan.Step{
			ID:                string(c),
			Title:             stepTitle(c),
			Capability:        c,
			Status:            plan.StepStatusPending,
			Input:             map[string]any{"request": request},
			EstimatedDuration: stepDurations[c],
			Retry:             &retry,
		}
		switch {
		case c == plan.CapabilityScanner:
		case c == plan.CapabilityReportGenerator:
			if hasScanner {
				step.DependsOn = append(step.DependsOn, string(plan.CapabilityScanner))
			}
			step.DependsOn = append(step.DependsOn, middle...)
		default:
			if hasScanner {
				step.DependsOn = []string{string(plan.CapabilityScanner)}
			}
		}
		p.Steps = append(p.Steps, step)
	}
	return p
}

func stepTitle(c plan.Capability) string {
	switch c {
	case plan.CapabilityScanner:
		return "Scan project structure"
	case plan.CapabilityCodeAnalyzer:
		return "Analyze code quality"
	case plan.CapabilityBugDetector:
		return "Detect potential bugs"
	case plan.CapabilityReviewer:
		return "Review changes"
	case plan.CapabilityReportGenerator:
		return "Generate final report"
	default:
		return string(c)
	}
}

// aggregateOutput produces the plan completion summary: the report
// generator's summary when present, otherwise a line per completed step.
func aggregateOutput(p *plan.Plan) string {
	if report := p.Step(string(plan.CapabilityReportGenerator)); report != nil {
		if s, ok := report.Output["summary"].(string); ok && s != "" {
			return s
		}
	}

	var summary string
	for i := range p.Steps {
		step := &p.Steps[i]
		line := fmt.Sprintf("%s: %s", step.Title, step.Status)
		if s, ok := step.Output["summary"].(string); ok && s != "" {
			line = fmt.Sprintf("%s (%s)", line, s)
		}
		if summary != "" {
			summary += "\n"
		}
		summary += line
	}
	return summary
}
