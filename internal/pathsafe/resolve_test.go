package pathsafe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveAbsoluteRejected(t *testing.T) {
	ws := t.TempDir()
	_, err := Resolve(ws, "/etc/passwd")
	if !errors.Is(err, ErrAbsolutePath) {
		t.Fatalf("Resolve(/etc/passwd) err = %v, want ErrAbsolutePath", err)
	}
}

func TestResolveParentTraversalRejected(t *testing.T) {
	ws := t.TempDir()
	tests := []string{"../../etc/passwd", "a/../../b", "..\\evil", "a/..", ".."}
	for _, rel := range tests {
		_, err := Resolve(ws, rel)
		if !errors.Is(err, ErrPathEscape) {
			t.Errorf("Resolve(%q) err = %v, want ErrPathEscape", rel, err)
		}
	}
}

func TestResolveOK(t *testing.T) {
	ws := t.TempDir()
	got, err := Resolve(ws, "a/b/c.txt")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	want := filepath.Join(ws, "a/b/c.txt")
	if got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestResolveNonExistentTrailingSegmentTolerated(t *testing.T) {
	ws := t.TempDir()
	got, err := Resolve(ws, "new/nested/file.txt")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if filepath.Dir(filepath.Dir(got)) != filepath.Join(ws, "new") {
		t.Errorf("unexpected resolved path: %q", got)
	}
}

func TestResolveSymlinkEscape(t *testing.T) {
	ws := t.TempDir()
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(ws, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlink unsupported: %v", err)
	}

	_, err := Resolve(ws, "escape/secret.txt")
	if !errors.Is(err, ErrSymlinkEscape) {
		t.Fatalf("Resolve through escaping symlink = %v, want ErrSymlinkEscape", err)
	}
}

func TestResolveSymlinkWithinWorkspaceAllowed(t *testing.T) {
	ws := t.TempDir()
	if err := os.Mkdir(filepath.Join(ws, "real"), 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(ws, "alias")
	if err := os.Symlink(filepath.Join(ws, "real"), link); err != nil {
		t.Skipf("symlink unsupported: %v", err)
	}

	got, err := Resolve(ws, "alias/file.txt")
	if err != nil {
		t.Fatalf("Resolve through in-workspace symlink: %v", err)
	}
	if filepath.Base(got) != "file.txt" {
		t.Errorf("unexpected resolved path: %q", got)
	}
}
