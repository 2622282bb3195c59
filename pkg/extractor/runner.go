package extractor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes external commands. Strategies go through this interface so
// their selection and fallback logic is testable without ffmpeg or yt-dlp
// installed.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner is the os/exec-backed Runner used outside of tests.
type ExecRunner struct{}

// Run executes the command and waits for it. On failure the combined output
// tail is included in the error, which is where ffmpeg puts its diagnostics.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, tail(string(out), 500))
	}
	return nil
}

func tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}

// Tool pairs an external binary with the Runner that executes it.
type Tool struct {
	// Binary is the executable name or path (e.g. "ffmpeg").
	Binary string
	// Runner executes the command. ExecRunner is used when nil.
	Runner Runner
}

// run executes the tool under the strategy's own time budget. The deadline
// derives from the caller's context, so canceling the pipeline still stops
// the command immediately.
func (t Tool) run(ctx context.Context, timeout time.Duration, args []string) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	r := t.Runner
	if r == nil {
		r = ExecRunner{}
	}
	return r.Run(ctx, t.Binary, args...)
}
