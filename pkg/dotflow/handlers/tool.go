package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/randalmurphal/dotflow/pkg/dotflow"
)

// ToolHandler runs a shell command for the stage. The command comes
// from the tool_command attribute and executes via sh -c; stdout and
// stderr land in the stage directory as stdout.txt and stderr.txt.
//
// Attributes:
//   - tool_command: shell command to run (required)
//   - tool_timeout: seconds before the command is killed (default 60)
//   - tool_cwd: working directory (default: inherited)
//
// Exit 0 is success; anything else fails the stage with the exit code
// and trailing stderr in the failure reason. Timeouts report exit 137.
type ToolHandler struct{}

// Execute implements dotflow.Handler.
func (ToolHandler) Execute(ctx context.Context, node *dotflow.Node, _ *dotflow.Context, _ *dotflow.Graph, logsRoot string) (*dotflow.Outcome, error) {
	command := node.StrAttr("tool_command")
	if command == "" {
		return dotflow.Fail(fmt.Sprintf("tool node %q has no tool_command attribute", node.ID)), nil
	}

	timeoutSec := node.IntAttr("tool_timeout", 60)
	stageDir := filepath.Join(logsRoot, node.ID)
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return nil, fmt.Errorf("tool: create stage dir: %w", err)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
	if cwd := node.StrAttr("tool_cwd"); cwd != "" {
		cmd.Dir = cwd
	}

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()
	stdout := stdoutBuf.String()
	stderr := stderrBuf.String()

	_ = os.WriteFile(filepath.Join(stageDir, "stdout.txt"), []byte(stdout), 0o644)
	_ = os.WriteFile(filepath.Join(stageDir, "stderr.txt"), []byte(stderr), 0o644)

	if runErr != nil {
		// A killed process still surfaces as *exec.ExitError, so the
		// deadline check must come first or timeouts report exit -1.
		exitCode := -1
		if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
			exitCode = 137
			stderr = fmt.Sprintf("process timed out after %ds", timeoutSec)
		} else if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}

		return dotflow.Fail(fmt.Sprintf("tool %q failed (exit %d): %s", node.ID, exitCode, truncate(stderr, 200))).
			WithContextUpdate("last_stage", node.ID).
			WithContextUpdate("tool.stderr", truncate(stderr, 200)).
			WithContextUpdate("tool.exit_code", strconv.Itoa(exitCode)), nil
	}

	return dotflow.Success().
		WithNotes(fmt.Sprintf("tool %q completed (exit 0)", node.ID)).
		WithContextUpdate("last_stage", node.ID).
		WithContextUpdate("tool.stdout", truncate(stdout, 200)).
		WithContextUpdate("tool.exit_code", "0"), nil
}

// truncate trims s to max bytes, appending an ellipsis when cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
