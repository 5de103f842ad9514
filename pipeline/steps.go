// ABOUTME: Initialization step and the shared tool invocation helper used by
// ABOUTME: every step that talks to a creative or renderer tool.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chalkmotion/chalkmotion/mcptool"
)

// invokeTool calls a tool and flattens the result envelope into (text, error).
// Transport failures and tool-level failures surface identically to callers;
// both carry the tool name for diagnostics.
func invokeTool(ctx context.Context, inv mcptool.Invoker, name string, args map[string]any) (string, error) {
	res, err := inv.Invoke(ctx, name, args)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	if res.IsError {
		return "", fmt.Errorf("%s: %s", name, res.Text)
	}
	return res.Text, nil
}

// initStep stamps the start time and creates the per-run working and output
// directories.
type initStep struct {
	baseDir   string
	outputDir string
}

func (s *initStep) Name() string { return StepInitialization }

func (s *initStep) Execute(ctx context.Context, st *State) error {
	st.StartedAt = time.Now()

	st.WorkDir = filepath.Join(s.baseDir, st.RunID)
	if err := os.MkdirAll(st.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	st.OutputDir = s.outputDir
	if st.OutputDir == "" {
		st.OutputDir = st.WorkDir
	}
	if err := os.MkdirAll(st.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}
