package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/constellationfs/constellationfs/internal/localexec"
	"github.com/constellationfs/constellationfs/internal/wsroot"
)

func testResolver(t *testing.T) *wsroot.Resolver {
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
	return wsroot.New()
}

func TestLocalBackendWorkspaceLifecycle(t *testing.T) {
	root := testResolver(t)
	b, err := NewLocal(root, "alice", "sh", false)
	if err != nil {
		t.Fatalf("NewLocal error: %v", err)
	}
	ctx := context.Background()

	names, err := b.ListWorkspaceNames(ctx)
	if err != nil || len(names) != 0 {
		t.Fatalf("expected no workspaces initially, got %v, %v", names, err)
	}

	path, err := b.EnsureWorkspaceDir(ctx, "default")
	if err != nil {
		t.Fatalf("EnsureWorkspaceDir error: %v", err)
	}
	if info, statErr := os.Stat(path); statErr != nil || !info.IsDir() {
		t.Fatalf("workspace dir not created: %v", statErr)
	}

	names, err = b.ListWorkspaceNames(ctx)
	if err != nil || len(names) != 1 || names[0] != "default" {
		t.Fatalf("ListWorkspaceNames = %v, %v, want [default]", names, err)
	}
}

func TestLocalBackendFileOps(t *testing.T) {
	root := testResolver(t)
	b, err := NewLocal(root, "bob", "sh", false)
	if err != nil {
		t.Fatalf("NewLocal error: %v", err)
	}
	ctx := context.Background()
	ws, err := b.EnsureWorkspaceDir(ctx, "default")
	if err != nil {
		t.Fatal(err)
	}

	target := filepath.Join(ws, "a.txt")
	if err := b.WriteFile(ctx, target, []byte("hello")); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	data, err := b.ReadFile(ctx, target)
	if err != nil || string(data) != "hello" {
		t.Fatalf("ReadFile = %q, %v, want hello", data, err)
	}

	exists, err := b.Exists(ctx, target)
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v, want true", exists, err)
	}

	entries, err := b.List(ctx, ws)
	if err != nil || len(entries) != 1 || entries[0].Name != "a.txt" {
		t.Fatalf("List = %+v, %v", entries, err)
	}

	if err := b.Delete(ctx, target); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	exists, err = b.Exists(ctx, target)
	if err != nil || exists {
		t.Fatalf("Exists after delete = %v, %v, want false", exists, err)
	}
}

func TestLocalBackendExec(t *testing.T) {
	root := testResolver(t)
	b, err := NewLocal(root, "carol", "sh", false)
	if err != nil {
		t.Fatalf("NewLocal error: %v", err)
	}
	ctx := context.Background()
	ws, err := b.EnsureWorkspaceDir(ctx, "default")
	if err != nil {
		t.Fatal(err)
	}
	res, err := b.Exec(ctx, ws, "echo hi", localexec.Text, localexec.Options{})
	if err != nil {
		t.Fatalf("Exec error: %v", err)
	}
	if res.Text != "hi" {
		t.Errorf("Exec text = %q, want hi", res.Text)
	}
}

func TestNewLocalValidateUtilsPresent(t *testing.T) {
	root := testResolver(t)
	_, err := NewLocal(root, "dave", "sh", true)
	if err != nil {
		t.Skipf("environment is missing coreutils, cannot exercise the happy path here: %v", err)
	}
}
