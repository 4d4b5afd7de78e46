package builtin_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Aristman/ride-core/internal/adapter/builtin"
	"github.com/Aristman/ride-core/internal/domain/plan"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestScanner(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.go"))
	writeFile(t, filepath.Join(root, "pkg", "util.go"))
	writeFile(t, filepath.Join(root, "README.md"))
	writeFile(t, filepath.Join(root, ".git", "HEAD"))
	writeFile(t, filepath.Join(root, "node_modules", "x", "index.js"))

	s := &builtin.Scanner{Root: root}
	if s.Capability() != plan.CapabilityScanner {
		t.Fatalf("unexpected capability: %s", s.Capability())
	}
	res, err := s.Execute(context.Background(), nil, map[string]any{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success")
	}
	if got := res.Output["file_count"]; got != 3 {
		t.Fatalf("expected 3 files (.git and node_modules skipped), got %v", got)
	}
	byExt, ok := res.Output["by_ext"].(map[string]int)
	if !ok || byExt["go"] != 2 || byExt["md"] != 1 {
		t.Fatalf("unexpected extension counts: %v", res.Output["by_ext"])
	}
	if !strings.Contains(res.Summary, "scanned 3 files") {
		t.Fatalf("unexpected summary: %q", res.Summary)
	}
}

func TestScannerPathInput(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"))

	s := &builtin.Scanner{Root: "/nonexistent"}
	res, err := s.Execute(context.Background(), nil, map[string]any{"path": root})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Output["root"] != root {
		t.Fatalf("input path should win over configured root: %v", res.Output["root"])
	}
}

func TestScannerMissingRoot(t *testing.T) {
	s := &builtin.Scanner{Root: filepath.Join(t.TempDir(), "nope")}
	if _, err := s.Execute(context.Background(), nil, map[string]any{}); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestReportGenerator(t *testing.T) {
	g := &builtin.ReportGenerator{}
	if g.Capability() != plan.CapabilityReportGenerator {
		t.Fatalf("unexpected capability: %s", g.Capability())
	}

	res, err := g.Execute(context.Background(), nil, map[string]any{
		"request":    "analyze the project",
		"file_count": 12,
		"files":      []string{"a.go"},
		"issues":     "3 warnings",
		"score":      7,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	report, ok := res.Output["report"].(string)
	if !ok {
		t.Fatalf("expected report string, got %T", res.Output["report"])
	}
	if !strings.Contains(report, "Request: analyze the project") {
		t.Fatalf("request line missing:\n%s", report)
	}
	if !strings.Contains(report, "Files scanned: 12") {
		t.Fatalf("file count line missing:\n%s", report)
	}
	// Findings are sorted and exclude scan bookkeeping keys.
	issuesIdx := strings.Index(report, "- issues: 3 warnings")
	scoreIdx := strings.Index(report, "- score: 7")
	if issuesIdx == -1 || scoreIdx == -1 || issuesIdx > scoreIdx {
		t.Fatalf("findings wrong or unsorted:\n%s", report)
	}
	if strings.Contains(report, "- files:") {
		t.Fatalf("raw file list should not appear as a finding:\n%s", report)
	}
	if res.Summary != "report generated (2 findings)" {
		t.Fatalf("unexpected summary: %q", res.Summary)
	}
}

func TestReportGeneratorEmptyInput(t *testing.T) {
	g := &builtin.ReportGenerator{}
	res, err := g.Execute(context.Background(), nil, map[string]any{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	report := res.Output["report"].(string)
	if !strings.HasPrefix(report, "Execution Report") {
		t.Fatalf("unexpected report:\n%s", report)
	}
	if strings.Contains(report, "Findings:") {
		t.Fatal("empty input should produce no findings section")
	}
}
