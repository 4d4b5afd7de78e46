// Package builtin provides the step executors that ship with the server:
// a project scanner and a report generator. Other capabilities are expected
// to be served by remote agents over the bus.
package builtin

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/Aristman/ride-core/internal/domain/plan"
	"github.com/Aristman/ride-core/internal/port/executor"
)

const maxScannedFiles = 2000

var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".idea":        true,
	"dist":         true,
	"build":        true,
}

// Scanner walks a project tree and reports its files.
type Scanner struct {
	Root string // fallback when the step input carries no path
}

var _ executor.StepExecutor = (*Scanner)(nil)

func (s *Scanner) Capability() plan.Capability {
	return plan.CapabilityScanner
}

func (s *Scanner) Execute(ctx context.Context, _ *plan.Step, input map[string]any) (*executor.Result, error) {
	root := s.Root
	if p, ok := input["path"].(string); ok && p != "" {
		root = p
	}
	if root == "" {
		root = "."
	}

	var files []string
	byExt := make(map[string]int)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if len(files) >= maxScannedFiles {
			return filepath.SkipAll
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			rel = path
		}
		files = append(files, rel)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
			byExt[ext]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	return &executor.Result{
		Success: true,
		Output: map[string]any{
			"root":       root,
			"files":      files,
			"file_count": len(files),
			"by_ext":     byExt,
		},
		Summary: fmt.Sprintf("scanned %d files under %s", len(files), root),
	}, nil
}
