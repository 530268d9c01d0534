// Package backend implements the C6 backend abstraction: a local-process
// backend and a remote (SSH) backend behind one interface, each owning
// workspace directory allocation and the raw I/O that the public
// Workspace type (root package) delegates to after applying C1/C2
// safety checks.
package backend

import (
	"context"
	"time"

	"github.com/constellationfs/constellationfs/internal/localexec"
)

// Kind discriminates which concrete backend a Backend value is.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// FileEntry is one entry returned by List.
type FileEntry struct {
	Name       string
	IsDir      bool
	IsSymlink  bool
	Size       int64
	ModifiedAt time.Time
}

// Backend is the shape both the local and remote backends satisfy. All
// path arguments are already-resolved, confinement-checked absolute
// paths (or, for a remote backend, absolute paths on the remote host) —
// callers apply C2 before reaching here.
type Backend interface {
	Kind() Kind
	UserID() string
	Connected() bool

	// EnsureWorkspaceDir materializes (mkdir -p semantics) and returns
	// the absolute workspace path for name.
	EnsureWorkspaceDir(ctx context.Context, name string) (string, error)
	// ListWorkspaceNames enumerates immediate subdirectories of the
	// user's root. Empty, not an error, if the user root doesn't exist.
	ListWorkspaceNames(ctx context.Context) ([]string, error)

	Exec(ctx context.Context, workspacePath, command string, encoding localexec.Encoding, opts localexec.Options) (localexec.Result, error)

	ReadFile(ctx context.Context, absPath string) ([]byte, error)
	WriteFile(ctx context.Context, absPath string, data []byte) error
	Mkdir(ctx context.Context, absPath string) error
	Touch(ctx context.Context, absPath string) error
	List(ctx context.Context, absPath string) ([]FileEntry, error)
	Exists(ctx context.Context, absPath string) (bool, error)
	Delete(ctx context.Context, absPath string) error

	Destroy() error
}
