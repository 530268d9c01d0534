package localexec

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunEchoText(t *testing.T) {
	ws := t.TempDir()
	res, err := Run(context.Background(), ws, "echo hello", Text, Options{Shell: "sh"})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Text != "hello" {
		t.Errorf("Text = %q, want %q", res.Text, "hello")
	}
}

func TestRunEchoBytes(t *testing.T) {
	ws := t.TempDir()
	res, err := Run(context.Background(), ws, "printf foo", Bytes, Options{Shell: "sh"})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if string(res.Bytes) != "foo" {
		t.Errorf("Bytes = %q, want %q", res.Bytes, "foo")
	}
}

func TestRunDangerousRejectedNoSpawn(t *testing.T) {
	ws := t.TempDir()
	marker := filepath.Join(ws, "marker.txt")
	_, err := Run(context.Background(), ws, "rm -rf / && touch "+marker, Text, Options{Shell: "sh", PreventDangerous: true})
	if err == nil {
		t.Fatal("expected error for dangerous command")
	}
	var dErr *DangerousError
	if !asDangerous(err, &dErr) {
		t.Fatalf("err = %v, want *DangerousError", err)
	}
	if _, statErr := os.Stat(marker); !os.IsNotExist(statErr) {
		t.Fatal("dangerous command was spawned despite rejection")
	}
}

func TestRunOnDangerousCallbackInvokedOnce(t *testing.T) {
	ws := t.TempDir()
	calls := 0
	var seen string
	_, err := Run(context.Background(), ws, "sudo rm -rf /", Text, Options{
		Shell:            "sh",
		PreventDangerous: true,
		OnDangerous: func(cmd string) {
			calls++
			seen = cmd
		},
	})
	if err != nil {
		t.Fatalf("Run with OnDangerous hook returned error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("OnDangerous called %d times, want 1", calls)
	}
	if seen != "sudo rm -rf /" {
		t.Errorf("OnDangerous saw %q", seen)
	}
}

func TestRunEmptyCommand(t *testing.T) {
	ws := t.TempDir()
	_, err := Run(context.Background(), ws, "   ", Text, Options{Shell: "sh"})
	if err == nil {
		t.Fatal("expected error for empty command")
	}
	var dErr *DangerousError
	if !asDangerous(err, &dErr) || dErr.Category != "empty" {
		t.Fatalf("err = %v, want empty DangerousError", err)
	}
}

func TestRunNonzeroExit(t *testing.T) {
	ws := t.TempDir()
	_, err := Run(context.Background(), ws, "echo boom 1>&2; exit 3", Text, Options{Shell: "sh"})
	if err == nil {
		t.Fatal("expected error for nonzero exit")
	}
	execErr, ok := err.(*ExecError)
	if !ok {
		t.Fatalf("err = %v (%T), want *ExecError", err, err)
	}
	if execErr.Kind != "EXEC_FAILED" {
		t.Errorf("Kind = %q, want EXEC_FAILED", execErr.Kind)
	}
	if execErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", execErr.ExitCode)
	}
	if !strings.Contains(execErr.Message, "boom") {
		t.Errorf("Message = %q, want it to contain stderr", execErr.Message)
	}
}

func TestRunTruncation(t *testing.T) {
	ws := t.TempDir()
	res, err := Run(context.Background(), ws, "yes x | head -c 10000", Text, Options{Shell: "sh", MaxOutputLength: 50})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if !res.Truncated {
		t.Fatal("expected Truncated = true")
	}
	if !strings.Contains(res.Text, "[Output truncated. Full output was") {
		t.Errorf("Text missing truncation marker: %q", res.Text)
	}
}

func TestRunWorkspaceEnvAndCwd(t *testing.T) {
	ws := t.TempDir()
	res, err := Run(context.Background(), ws, "pwd", Text, Options{Shell: "sh"})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	resolved, err := filepath.EvalSymlinks(ws)
	if err != nil {
		resolved = ws
	}
	if res.Text != ws && res.Text != resolved {
		t.Errorf("pwd = %q, want workspace %q", res.Text, ws)
	}
}

func asDangerous(err error, target **DangerousError) bool {
	d, ok := err.(*DangerousError)
	if !ok {
		return false
	}
	*target = d
	return true
}
