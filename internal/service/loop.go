package service

import (
	"context"
	"fmt"

	"github.com/Aristman/ride-core/internal/domain/plan"
)

// TerminationReason explains why a loop run ended.
type TerminationReason string

const (
	ReasonMaxIterations  TerminationReason = "max-iterations-reached"
	ReasonConditionFalse TerminationReason = "condition-false"
	ReasonBreakMet       TerminationReason = "break-condition-met"
	ReasonSuccess        TerminationReason = "success-achieved"
	ReasonCollectionDone TerminationReason = "collection-exhausted"
)

// defaultMaxIterations bounds loops whose config leaves the limit unset.
const defaultMaxIterations = 10

// LoopResult is the outcome of a supervised loop run.
type LoopResult struct {
	Iterations int               `json:"iterations"`
	Results    []any             `json:"results"`
	Reason     TerminationReason `json:"reason"`
	Success    bool              `json:"success"`
}

// LoopInvoke performs one loop iteration against the iteration context.
type LoopInvoke func(ctx context.Context, iterCtx map[string]any) (any, error)

// RunLoop drives a step invocation through its loop config. Iterations run
// sequentially; base is copied into each iteration's context along with the
// iteration counter and, for ForEach, the current element.
func RunLoop(ctx context.Context, cfg plan.LoopConfig, base map[string]any, invoke LoopInvoke) (*LoopResult, error) {
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	iterVar := cfg.IteratorVar
	if iterVar == "" {
		iterVar = "item"
	}

	switch cfg.Kind {
	case plan.LoopWhile:
		return runWhile(ctx, cfg, base, maxIter, invoke)
	case plan.LoopForEach:
		return runForEach(ctx, cfg, base, iterVar, invoke)
	case plan.LoopRepeat:
		return runRepeat(ctx, base, maxIter, invoke)
	case plan.LoopUntilSuccess:
		return runUntilSuccess(ctx, cfg, base, maxIter, invoke)
	}
	return nil, fmt.Errorf("unknown loop kind %q", cfg.Kind)
}

// runWhile re-invokes while the continue-predicate holds. A nil predicate
// never holds, so the loop performs zero iterations.
func runWhile(ctx context.Context, cfg plan.LoopConfig, base map[string]any, maxIter int, invoke LoopInvoke) (*LoopResult, error) {
	res := &LoopResult{}
	var last any

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if res.Iterations >= maxIter {
			res.Reason = ReasonMaxIterations
			break
		}
		if cfg.ContinueIf == nil || !cfg.ContinueIf(iterContext(base, res.Iterations), last) {
			res.Reason = ReasonConditionFalse
			break
		}

		out, err := invoke(ctx, iterContext(base, res.Iterations))
		if err != nil {
			return nil, err
		}
		last = out
		res.Results = append(res.Results, out)
		res.Iterations++

		if cfg.BreakIf != nil && cfg.BreakIf(iterContext(base, res.Iterations), last) {
			res.Reason = ReasonBreakMet
			break
		}
	}

	res.Success = res.Reason != ReasonMaxIterations
	return res, nil
}

// runForEach invokes once per element and always exhausts the collection;
// per-iteration failures are recorded as results, not raised.
func runForEach(ctx context.Context, cfg plan.LoopConfig, base map[string]any, iterVar string, invoke LoopInvoke) (*LoopResult, error) {
	res := &LoopResult{}

	for i, elem := range cfg.Collection {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iterCtx := iterContext(base, i)
		iterCtx[iterVar] = elem
		iterCtx["index"] = i

		out, err := invoke(ctx, iterCtx)
		if err != nil {
			res.Results = append(res.Results, err)
		} else {
			res.Results = append(res.Results, out)
		}
		res.Iterations++
	}

	res.Reason = ReasonCollectionDone
	res.Success = true
	return res, nil
}

// runRepeat invokes exactly maxIter times unconditionally.
func runRepeat(ctx context.Context, base map[string]any, maxIter int, invoke LoopInvoke) (*LoopResult, error) {
	res := &LoopResult{}

	for i := 0; i < maxIter; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := invoke(ctx, iterContext(base, i))
		if err != nil {
			res.Results = append(res.Results, err)
		} else {
			res.Results = append(res.Results, out)
		}
		res.Iterations++
	}

	res.Reason = ReasonMaxIterations
	res.Success = true
	return res, nil
}

// runUntilSuccess invokes until the break-predicate signals success (or, with
// no predicate, until an invocation returns no error), up to maxIter.
// Per-iteration errors are captured and do not abort the loop.
func runUntilSuccess(ctx context.Context, cfg plan.LoopConfig, base map[string]any, maxIter int, invoke LoopInvoke) (*LoopResult, error) {
	res := &LoopResult{}

	for i := 0; i < maxIter; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := invoke(ctx, iterContext(base, i))
		res.Iterations++
		if err != nil {
			res.Results = append(res.Results, err)
			continue
		}
		res.Results = append(res.Results, out)

		if cfg.BreakIf != nil {
			if cfg.BreakIf(iterContext(base, res.Iterations), out) {
				res.Reason = ReasonSuccess
				res.Success = true
				return res, nil
			}
			continue
		}
		res.Reason = ReasonSuccess
		res.Success = true
		return res, nil
	}

	res.Reason = ReasonMaxIterations
	return res, nil
}

// iterContext copies the base context and stamps the iteration counter.
func iterContext(base map[string]any, iteration int) map[string]any {
	m := make(map[string]any, len(base)+2)
	for k, v := range base {
		m[k] = v
	}
	m["iteration"] = iteration
	return m
}
