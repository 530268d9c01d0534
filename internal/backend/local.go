package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/constellationfs/constellationfs/internal/cflog"
	"github.com/constellationfs/constellationfs/internal/localexec"
	"github.com/constellationfs/constellationfs/internal/wsroot"
)

// ErrMissingUtilities is returned by NewLocal when ValidateUtils is set
// and one of the required coreutils is absent from PATH.
var ErrMissingUtilities = errors.New("required shell utilities are missing")

// requiredUtils is the probe list from spec §4.6.
var requiredUtils = []string{"ls", "find", "grep", "cat", "wc", "head", "tail", "sort"}

// LocalBackend spawns commands and performs file I/O directly on the
// host filesystem, confined to workspaceRoot/userId/* by its callers.
type LocalBackend struct {
	userID string
	shell  string
	root   *wsroot.Resolver

	mu        sync.Mutex
	connected bool
}

// NewLocal detects the shell (probing for bash when shell is "" or
// "auto", else using the requested shell) and, if validateUtils is set,
// confirms the coreutils probe list is present in PATH.
func NewLocal(root *wsroot.Resolver, userID, shell string, validateUtils bool) (*LocalBackend, error) {
	resolved := shell
	if resolved == "" || resolved == "auto" {
		if _, err := exec.LookPath("bash"); err == nil {
			resolved = "bash"
		} else {
			resolved = "sh"
		}
	}

	if validateUtils {
		var missing []string
		for _, util := range requiredUtils {
			if _, err := exec.LookPath(util); err != nil {
				missing = append(missing, util)
			}
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: %v", ErrMissingUtilities, missing)
		}
	}

	b := &LocalBackend{
		userID:    userID,
		shell:     resolved,
		root:      root,
		connected: true,
	}
	cflog.BackendLifecycle(userID, "local", "connect")
	return b, nil
}

func (b *LocalBackend) Kind() Kind     { return KindLocal }
func (b *LocalBackend) UserID() string { return b.userID }

func (b *LocalBackend) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *LocalBackend) Shell() string { return b.shell }

func (b *LocalBackend) EnsureWorkspaceDir(ctx context.Context, name string) (string, error) {
	path := b.root.WorkspacePath(b.userID, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

func (b *LocalBackend) ListWorkspaceNames(ctx context.Context) ([]string, error) {
	userRoot := b.root.UserRoot(b.userID)
	entries, err := os.ReadDir(userRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (b *LocalBackend) Exec(ctx context.Context, workspacePath, command string, encoding localexec.Encoding, opts localexec.Options) (localexec.Result, error) {
	if opts.Shell == "" || opts.Shell == "auto" {
		opts.Shell = b.shell
	}
	return localexec.Run(ctx, workspacePath, command, encoding, opts)
}

func (b *LocalBackend) ReadFile(ctx context.Context, absPath string) ([]byte, error) {
	return os.ReadFile(absPath)
}

func (b *LocalBackend) WriteFile(ctx context.Context, absPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(absPath, data, 0o644)
}

func (b *LocalBackend) Mkdir(ctx context.Context, absPath string) error {
	return os.MkdirAll(absPath, 0o755)
}

func (b *LocalBackend) Touch(ctx context.Context, absPath string) error {
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(absPath); err == nil {
		now := time.Now()
		return os.Chtimes(absPath, now, now)
	}
	f, err := os.OpenFile(absPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func (b *LocalBackend) List(ctx context.Context, absPath string) ([]FileEntry, error) {
	entries, err := os.ReadDir(absPath)
	if err != nil {
		return nil, err
	}
	out := make([]FileEntry, 0, len(entries))
	for _, e := range entries {
		info, err := os.Lstat(filepath.Join(absPath, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, FileEntry{
			Name:       e.Name(),
			IsDir:      info.IsDir(),
			IsSymlink:  info.Mode()&os.ModeSymlink != 0,
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}
	return out, nil
}

func (b *LocalBackend) Exists(ctx context.Context, absPath string) (bool, error) {
	_, err := os.Lstat(absPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (b *LocalBackend) Delete(ctx context.Context, absPath string) error {
	return os.RemoveAll(absPath)
}

func (b *LocalBackend) Destroy() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	cflog.BackendLifecycle(b.userID, "local", "destroy")
	return nil
}
