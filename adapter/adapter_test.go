package adapter

import (
	"context"
	"os"
	"strings"
	"testing"

	constellationfs "github.com/constellationfs/constellationfs"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(orig) })

	fs, err := constellationfs.New(constellationfs.BackendConfig{
		Kind: constellationfs.BackendLocal,
		Local: &constellationfs.LocalConfig{
			UserID:           "adapter-user",
			Shell:            constellationfs.ShellSh,
			PreventDangerous: true,
		},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { fs.Destroy() })

	ws, err := fs.GetWorkspace(context.Background(), "default", nil)
	if err != nil {
		t.Fatalf("GetWorkspace error: %v", err)
	}
	return New(ws)
}

func TestRunTerminalCommandSuccess(t *testing.T) {
	a := newTestAdapter(t)
	res := a.RunTerminalCommand(context.Background(), "echo hello", "")
	if res.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %+v", res)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}
}

func TestRunTerminalCommandDangerousNeverThrows(t *testing.T) {
	a := newTestAdapter(t)
	res := a.RunTerminalCommand(context.Background(), "rm -rf /", "")
	if res.ExitCode == 0 {
		t.Fatalf("expected nonzero exit for a rejected command, got %+v", res)
	}
	if res.Stderr == "" {
		t.Fatal("expected stderr to carry the rejection reason")
	}
}

func TestRunTerminalCommandCwdIsNotSpliced(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	if err := a.ws.Mkdir(ctx, "sub"); err != nil {
		t.Fatalf("Mkdir error: %v", err)
	}
	if err := a.ws.Write(ctx, "sub/marker.txt", "here"); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	res := a.RunTerminalCommand(ctx, "cat marker.txt", "sub")
	if res.ExitCode != 0 {
		t.Fatalf("expected command to run inside sub, got %+v", res)
	}
	if strings.TrimSpace(res.Stdout) != "here" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}

	escaping := a.RunTerminalCommand(ctx, "pwd", "../../../etc")
	if escaping.ExitCode == 0 {
		t.Fatalf("expected an escaping cwd to be rejected, got %+v", escaping)
	}
}

func TestReadFilesSentinels(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	if err := a.ws.Write(ctx, "present.txt", "content here"); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if err := a.ws.Write(ctx, ".gitignore", "ignored.txt\n"); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if err := a.ws.Write(ctx, "ignored.txt", "should not be read"); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	out := a.ReadFiles(ctx, []string{"present.txt", "missing.txt", "ignored.txt", "../escape.txt"})

	if out["present.txt"] != "content here" {
		t.Errorf("present.txt = %q", out["present.txt"])
	}
	if out["missing.txt"] != tagDoesNotExist {
		t.Errorf("missing.txt = %q", out["missing.txt"])
	}
	if out["ignored.txt"] != tagIgnored {
		t.Errorf("ignored.txt = %q", out["ignored.txt"])
	}
	if out["../escape.txt"] != tagOutside {
		t.Errorf("../escape.txt = %q", out["../escape.txt"])
	}
}

func TestWriteFileOverwrite(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	res := a.WriteFile(ctx, "out.txt", "hello world", "file")
	if res.ErrorMessage != "" {
		t.Fatalf("unexpected error: %s", res.ErrorMessage)
	}
	got, err := a.ws.Read(ctx, "out.txt")
	if err != nil || got != "hello world" {
		t.Fatalf("Read = %q, %v", got, err)
	}
}

func TestWriteFilePatch(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	if err := a.ws.Write(ctx, "patched.txt", "line one\nline two\nline three\n"); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	patch := "" +
		"--- a/patched.txt\n" +
		"+++ b/patched.txt\n" +
		"@@ -1,3 +1,3 @@\n" +
		" line one\n" +
		"-line two\n" +
		"+line TWO\n" +
		" line three\n"

	res := a.WriteFile(ctx, "patched.txt", patch, "patch")
	if res.ErrorMessage != "" {
		t.Fatalf("unexpected error: %s", res.ErrorMessage)
	}
	got, err := a.ws.Read(ctx, "patched.txt")
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if !strings.Contains(got, "line TWO") {
		t.Fatalf("patch did not apply, content = %q", got)
	}
}

func TestStrReplaceRejectsInvalidPatch(t *testing.T) {
	a := newTestAdapter(t)
	res := a.StrReplace(context.Background(), "anything.txt", "not a diff at all")
	if res.ErrorMessage == "" {
		t.Fatal("expected an error message for a malformed diff")
	}
}

func TestCodeSearch(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()
	if err := a.ws.Write(ctx, "a.go", "package main\nfunc Needle() {}\n"); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	res := a.CodeSearch(ctx, "Needle", 10, nil, "")
	if res.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %+v", res)
	}
	if !strings.Contains(res.Stdout, "Needle") {
		t.Fatalf("expected match in stdout, got %q", res.Stdout)
	}
}

func TestHandleUnsupportedTool(t *testing.T) {
	a := newTestAdapter(t)
	if _, err := a.Handle(context.Background(), "delete_everything", nil); err == nil {
		t.Fatal("expected an error for an unsupported tool name")
	}
}
