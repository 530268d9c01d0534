// Package localexec implements the local execution sandbox (spec §4.4):
// classify, spawn a shell with a scrubbed environment and fixed cwd,
// collect bounded output, and map exit/OS errors onto the error
// taxonomy. Concurrency is per-call — there is no queue, rate limit, or
// global lock (spec §4.4/§5).
package localexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/constellationfs/constellationfs/internal/audit"
	"github.com/constellationfs/constellationfs/internal/cflog"
	"github.com/constellationfs/constellationfs/internal/envbuild"
	"github.com/constellationfs/constellationfs/internal/policy"
)

// Encoding selects how a successful command's stdout is returned.
type Encoding int

const (
	Text Encoding = iota
	Bytes
)

// Options configures a single Run call.
type Options struct {
	Shell            string // "bash" or "sh"
	CustomEnv        map[string]string
	MaxOutputLength  int // 0 = unlimited; spec §4.4
	PreventDangerous bool
	OnDangerous      func(command string) // invoked instead of raising, per spec §4.4/§7
	// KillGrace is how long Run waits after sending a graceful
	// termination signal before force-killing the child's process group
	// on context cancellation (spec §5). Zero uses a sane default.
	KillGrace time.Duration
	// UserID labels log/audit records for this call; empty is fine, it
	// just means an unlabeled record.
	UserID string
	// Audit, if non-nil, receives a row for every rejection and
	// absorbed-dangerous-command invocation (spec §A.1).
	Audit *audit.Log
}

// Result is the outcome of a successful Run.
type Result struct {
	Text      string // populated when the caller asked for Encoding Text
	Bytes     []byte // populated when the caller asked for Encoding Bytes
	Truncated bool
}

// ExecError mirrors the EXEC_FAILED/EXEC_ERROR split from spec §4.4/§7:
// Kind distinguishes a nonzero exit (ExecFailed) from a spawn/OS failure
// (ExecError).
type ExecError struct {
	Kind     string // "EXEC_FAILED" or "EXEC_ERROR"
	Message  string
	Command  string
	ExitCode int
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// DangerousError signals that Classify rejected the command: it was
// empty, escaping, or dangerous with no OnDangerous hook to absorb it.
type DangerousError struct {
	Category string // "dangerous", "escaping" or "empty"
	Reason   string
	Command  string
}

func (e *DangerousError) Error() string {
	return e.Reason
}

const defaultKillGrace = 3 * time.Second

// Run classifies, then (if safe, or dangerous while PreventDangerous is
// off) spawns command via the configured shell with cwd=workspacePath
// and a scrubbed environment, collects bounded stdout/stderr, and
// returns a Result per the requested Encoding. A dangerous command
// absorbed by OnDangerous is never spawned; Run returns an empty Result.
func Run(ctx context.Context, workspacePath, command string, encoding Encoding, opts Options) (Result, error) {
	class := policy.Classify(command)

	switch class.Category {
	case policy.Empty:
		return Result{}, &DangerousError{Category: "empty", Reason: class.Reason, Command: command}
	case policy.Dangerous:
		if opts.PreventDangerous {
			if opts.OnDangerous != nil {
				opts.OnDangerous(command)
				logDangerous(opts, command, class.Reason)
				return Result{}, nil
			}
			logRejection(opts, "dangerous", command, class.Reason)
			return Result{}, &DangerousError{Category: "dangerous", Reason: class.Reason, Command: command}
		}
	case policy.Escaping:
		logRejection(opts, "escaping", command, class.Reason)
		return Result{}, &DangerousError{Category: "escaping", Reason: class.Reason, Command: command}
	}

	shell := opts.Shell
	if shell == "" {
		shell = "sh"
	}

	envResult, err := envbuild.Build(workspacePath, shell, opts.CustomEnv)
	if err != nil {
		return Result{}, logExecErr(opts, &ExecError{Kind: "EXEC_ERROR", Message: err.Error(), Command: command})
	}
	for _, w := range envResult.Warnings {
		cflog.Warn(w, "userId", opts.UserID)
	}

	cmd := exec.Command(shell, "-c", command)
	cmd.Dir = workspacePath
	cmd.Env = envResult.Env
	configureProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, logExecErr(opts, &ExecError{Kind: "EXEC_ERROR", Message: err.Error(), Command: command})
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, logExecErr(opts, &ExecError{Kind: "EXEC_ERROR", Message: err.Error(), Command: command})
	}

	if err := cmd.Start(); err != nil {
		return Result{}, logExecErr(opts, &ExecError{Kind: "EXEC_ERROR", Message: err.Error(), Command: command})
	}

	// Drain both pipes concurrently so a full pipe buffer on one stream
	// never deadlocks the child (spec §5: "must still drain both pipes
	// to completion to avoid deadlocking the child").
	drainDone := make(chan struct{}, 2)
	go func() { io.Copy(&stdout, stdoutPipe); drainDone <- struct{}{} }()
	go func() { io.Copy(&stderr, stderrPipe); drainDone <- struct{}{} }()
	<-drainDone
	<-drainDone

	waitErr := waitWithCancellation(ctx, cmd, grace(opts.KillGrace))

	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = strings.TrimSpace(stdout.String())
			}
			msg, _ = TruncateOutput(msg, opts.MaxOutputLength)
			return Result{}, logExecErr(opts, &ExecError{
				Kind:     "EXEC_FAILED",
				Message:  fmt.Sprintf("exit code %d: %s", exitErr.ExitCode(), msg),
				Command:  command,
				ExitCode: exitErr.ExitCode(),
			})
		}
		return Result{}, logExecErr(opts, &ExecError{Kind: "EXEC_ERROR", Message: waitErr.Error(), Command: command})
	}

	switch encoding {
	case Bytes:
		return Result{Bytes: stdout.Bytes()}, nil
	default:
		text := strings.TrimRight(stdout.String(), " \t\r\n")
		text, truncated := TruncateOutput(text, opts.MaxOutputLength)
		return Result{Text: text, Truncated: truncated}, nil
	}
}

// TruncateOutput shortens text longer than maxLen to its first
// maxLen-50 bytes (at least 0) and appends the standard truncation
// suffix (spec §4.4/§8 scenario 5). The suffix itself is longer than 50
// characters, so the returned text can exceed maxLen. maxLen <= 0 means
// unlimited. Shared by the successful-text path and the EXEC_FAILED
// error-message path so a huge stderr summary is bounded the same way.
func TruncateOutput(text string, maxLen int) (string, bool) {
	if maxLen <= 0 || len(text) <= maxLen {
		return text, false
	}
	total := len(text)
	keep := maxLen - 50
	if keep < 0 {
		keep = 0
	}
	if keep > len(text) {
		keep = len(text)
	}
	text = text[:keep] + fmt.Sprintf("\n\n... [Output truncated. Full output was %d characters, showing first %d]", total, keep)
	return text, true
}

func grace(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultKillGrace
	}
	return d
}

// logRejection logs and audits a C1 classification rejection (spec §A.1).
func logRejection(opts Options, kind, command, reason string) {
	cflog.Rejection(opts.UserID, kind, command, reason)
	if opts.Audit != nil {
		if err := opts.Audit.RecordRejection(opts.UserID, kind, command, reason); err != nil {
			cflog.Error("audit record rejection failed", "err", err)
		}
	}
}

// logDangerous logs and audits a dangerous command absorbed by
// OnDangerous instead of raising.
func logDangerous(opts Options, command, reason string) {
	cflog.Dangerous(opts.UserID, command, reason)
	if opts.Audit != nil {
		if err := opts.Audit.RecordDangerousInvocation(opts.UserID, command, reason); err != nil {
			cflog.Error("audit record dangerous invocation failed", "err", err)
		}
	}
}

// logExecErr logs an executor/backend failure at Error level and
// returns err unchanged, so call sites can wrap it inline in a return
// statement.
func logExecErr(opts Options, err *ExecError) *ExecError {
	cflog.Error("command execution failed", "userId", opts.UserID, "kind", err.Kind, "command", err.Command, "message", err.Message)
	return err
}
