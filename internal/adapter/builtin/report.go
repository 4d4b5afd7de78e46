package builtin

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Aristman/ride-core/internal/domain/plan"
	"github.com/Aristman/ride-core/internal/port/executor"
)

// ReportGenerator folds the outputs of preceding steps into a plain-text
// report. Dependency outputs arrive merged into the step input.
type ReportGenerator struct{}

var _ executor.StepExecutor = (*ReportGenerator)(nil)

func (g *ReportGenerator) Capability() plan.Capability {
	return plan.CapabilityReportGenerator
}

func (g *ReportGenerator) Execute(_ context.Context, _ *plan.Step, input map[string]any) (*executor.Result, error) {
	var b strings.Builder
	b.WriteString("Execution Report\n")
	b.WriteString("================\n")

	if req, ok := input["request"].(string); ok && req != "" {
		fmt.Fprintf(&b, "Request: %s\n", req)
	}
	if count, ok := input["file_count"]; ok {
		fmt.Fprintf(&b, "Files scanned: %v\n", count)
	}

	keys := make([]string, 0, len(input))
	for k := range input {
		switch k {
		case "request", "files", "file_count", "by_ext", "root":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		b.WriteString("\nFindings:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, input[k])
		}
	}

	report := b.String()
	return &executor.Result{
		Success: true,
		Output: map[string]any{
			"report": report,
		},
		Summary: fmt.Sprintf("report generated (%d findings)", len(keys)),
	}, nil
}
