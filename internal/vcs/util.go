package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ===================
// Command Execution Utilities
// ===================

// DefaultTimeout bounds every engine invocation. A hung subprocess
// surfaces as a failed operation instead of hanging the caller.
const DefaultTimeout = 30 * time.Second

// MaxOutputBytes bounds captured stdout and stderr per invocation.
const MaxOutputBytes = 10 << 20 // 10 MiB

// Result is the structured outcome of one engine invocation.
type Result struct {
	Code   int
	Stdout string
	Stderr string
}

// boundedBuffer is a bytes.Buffer that stops accepting writes past a limit.
type boundedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil // swallow the rest, do not kill the command
	}
	if len(p) > remaining {
		b.truncated = true
		_, _ = b.buf.Write(p[:remaining])
		return len(p), nil
	}
	return b.buf.Write(p)
}

// ExecContext runs an engine command in workDir with a timeout and bounded
// output capture, returning the structured outcome.
//
// Example:
//
//	res, err := vcs.ExecContext(ctx, vcs.DefaultTimeout, dir, "git", "status", "--porcelain")
func ExecContext(ctx context.Context, timeout time.Duration, workDir string, name string, args ...string) (Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workDir

	stdout := &boundedBuffer{limit: MaxOutputBytes}
	stderr := &boundedBuffer{limit: MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.buf.String(),
		Stderr: stderr.buf.String(),
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return res, fmt.Errorf("%w: %s %s", ErrTimeout, name, strings.Join(args, " "))
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.Code = exitErr.ExitCode()
			msg := strings.TrimSpace(res.Stderr)
			if msg == "" {
				msg = strings.TrimSpace(res.Stdout)
			}
			return res, fmt.Errorf("%w: %s %s: %s", ErrCommandFailed, name, args0(args), msg)
		}
		if errors.Is(err, exec.ErrNotFound) {
			return res, fmt.Errorf("%w: %s", ErrEngineNotAvailable, name)
		}
		return res, fmt.Errorf("run %s: %w", name, err)
	}

	if stdout.truncated || stderr.truncated {
		return res, fmt.Errorf("%w: %s %s", ErrOutputTruncated, name, args0(args))
	}
	return res, nil
}

// args0 returns the leading subcommand for error messages, avoiding
// dumping full argument lists (which may embed note payloads).
func args0(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// ParseLines splits command output into non-empty trimmed lines.
func ParseLines(output string) []string {
	if output == "" {
		return nil
	}
	raw := strings.Split(output, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
