package constellationfs

import (
	"context"
	"fmt"

	"github.com/constellationfs/constellationfs/internal/audit"
	"github.com/constellationfs/constellationfs/internal/backend"
	"github.com/constellationfs/constellationfs/internal/cflog"
	"github.com/constellationfs/constellationfs/internal/localexec"
	"github.com/constellationfs/constellationfs/internal/pathsafe"
)

// Workspace is the confined directory handle (spec §4.5): every
// operation it exposes resolves its path argument through C2 before
// touching the backend, and its shell-executing operation routes
// through C1 first. A Workspace's fields are immutable after
// construction and safe to share across concurrent callers.
type Workspace struct {
	be            backend.Backend
	userID        string
	workspaceName string
	workspacePath string
	customEnv     map[string]string

	shell            string
	preventDangerous bool
	maxOutputLength  int
	onDangerous      func(command string)
	auditLog         *audit.Log
}

func newWorkspace(be backend.Backend, userID, name, path string, customEnv map[string]string, shell string, preventDangerous bool, maxOutputLength int, onDangerous func(string), auditLog *audit.Log) *Workspace {
	return &Workspace{
		be:               be,
		userID:           userID,
		workspaceName:    name,
		workspacePath:    path,
		customEnv:        customEnv,
		shell:            shell,
		preventDangerous: preventDangerous,
		maxOutputLength:  maxOutputLength,
		onDangerous:      onDangerous,
		auditLog:         auditLog,
	}
}

// Path returns the workspace's absolute path (local filesystem or
// remote-host path, depending on backend kind).
func (w *Workspace) Path() string { return w.workspacePath }

// UserID returns the owning user id.
func (w *Workspace) UserID() string { return w.userID }

// Name returns the workspace name.
func (w *Workspace) Name() string { return w.workspaceName }

func (w *Workspace) resolve(relPath string) (string, error) {
	if relPath == "" {
		return "", errEmptyPathSentinel
	}
	if w.be.Kind() == backend.KindLocal {
		return pathsafe.Resolve(w.workspacePath, relPath)
	}
	return pathsafe.ResolveLexical(w.workspacePath, relPath)
}

// errEmptyPathSentinel distinguishes an empty relPath from a path that
// lexically escapes the workspace; wrapPathErr maps it to EmptyPath
// rather than PathEscapeAttempt.
var errEmptyPathSentinel = fmt.Errorf("path cannot be empty")

func (w *Workspace) wrapPathErr(relPath string, err error) error {
	switch err {
	case errEmptyPathSentinel:
		return newErrCmd(ErrEmptyPath, "Path cannot be empty", relPath)
	case pathsafe.ErrAbsolutePath:
		w.logPathRejection("absolute_path", relPath, "Absolute paths are not allowed")
		return newErrCmd(ErrAbsolutePathRejected, "Absolute paths are not allowed", relPath)
	case pathsafe.ErrPathEscape, pathsafe.ErrSymlinkEscape:
		w.logPathRejection("path_escape", relPath, "Path escapes workspace")
		return newErrCmd(ErrPathEscapeAttempt, "Path escapes workspace", relPath)
	default:
		w.logPathRejection("path_escape", relPath, err.Error())
		return newErrCmd(ErrPathEscapeAttempt, err.Error(), relPath)
	}
}

// logPathRejection logs and audits a C2 path-policy rejection (spec
// §A.1). ErrEmptyPath is a caller mistake, not a safety rejection, so it
// is never routed here.
func (w *Workspace) logPathRejection(kind, relPath, reason string) {
	cflog.Rejection(w.userID, kind, relPath, reason)
	if w.auditLog != nil {
		if err := w.auditLog.RecordRejection(w.userID, kind, relPath, reason); err != nil {
			cflog.Error("audit record rejection failed", "err", err)
		}
	}
}

// Exec runs command through C1 classification and the configured
// backend, returning decoded text output (spec §4.4, encoding=text).
func (w *Workspace) Exec(ctx context.Context, command string) (string, error) {
	res, err := w.be.Exec(ctx, w.workspacePath, command, localexec.Text, w.execOptions())
	if err != nil {
		return "", w.wrapExecErr(command, err)
	}
	return res.Text, nil
}

// ExecIn runs command with relCwd (resolved and confined via C2) as the
// process working directory, instead of the workspace root. relCwd is
// never spliced into the command string — it is passed to the backend
// as a literal directory, the same way Exec passes the workspace root.
func (w *Workspace) ExecIn(ctx context.Context, relCwd, command string) (string, error) {
	dir := w.workspacePath
	if relCwd != "" {
		abs, err := w.resolve(relCwd)
		if err != nil {
			return "", w.wrapPathErr(relCwd, err)
		}
		dir = abs
	}
	res, err := w.be.Exec(ctx, dir, command, localexec.Text, w.execOptions())
	if err != nil {
		return "", w.wrapExecErr(command, err)
	}
	return res.Text, nil
}

// ExecBytes is Exec with encoding=bytes.
func (w *Workspace) ExecBytes(ctx context.Context, command string) ([]byte, error) {
	res, err := w.be.Exec(ctx, w.workspacePath, command, localexec.Bytes, w.execOptions())
	if err != nil {
		return nil, w.wrapExecErr(command, err)
	}
	return res.Bytes, nil
}

func (w *Workspace) execOptions() localexec.Options {
	return localexec.Options{
		Shell:            w.shell,
		CustomEnv:        w.customEnv,
		MaxOutputLength:  w.maxOutputLength,
		PreventDangerous: w.preventDangerous,
		OnDangerous:      w.onDangerous,
		UserID:           w.userID,
		Audit:            w.auditLog,
	}
}

func (w *Workspace) wrapExecErr(command string, err error) error {
	if dErr, ok := err.(*localexec.DangerousError); ok {
		if dErr.Category == "empty" {
			return newErrCmd(ErrEmptyCommand, dErr.Reason, command)
		}
		return newErrCmd(ErrDangerousOperation, dErr.Reason, command)
	}
	if eErr, ok := err.(*localexec.ExecError); ok {
		return newErrCmd(ErrorKind(eErr.Kind), eErr.Message, command)
	}
	return newErrCmd(ErrExecError, err.Error(), command)
}

// Read returns a file's contents decoded as UTF-8.
func (w *Workspace) Read(ctx context.Context, relPath string) (string, error) {
	data, err := w.ReadBytes(ctx, relPath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadBytes returns a file's raw contents.
func (w *Workspace) ReadBytes(ctx context.Context, relPath string) ([]byte, error) {
	abs, err := w.resolve(relPath)
	if err != nil {
		return nil, w.wrapPathErr(relPath, err)
	}
	data, err := w.be.ReadFile(ctx, abs)
	if err != nil {
		return nil, newErrCmd(ErrReadFailed, err.Error(), relPath)
	}
	return data, nil
}

// Write overwrites (or creates) a file with content.
func (w *Workspace) Write(ctx context.Context, relPath, content string) error {
	return w.WriteBytes(ctx, relPath, []byte(content))
}

// WriteBytes overwrites (or creates) a file with raw data.
func (w *Workspace) WriteBytes(ctx context.Context, relPath string, data []byte) error {
	abs, err := w.resolve(relPath)
	if err != nil {
		return w.wrapPathErr(relPath, err)
	}
	if err := w.be.WriteFile(ctx, abs, data); err != nil {
		return newErrCmd(ErrWriteFailed, err.Error(), relPath)
	}
	return nil
}

// Mkdir creates relPath and any missing parents.
func (w *Workspace) Mkdir(ctx context.Context, relPath string) error {
	abs, err := w.resolve(relPath)
	if err != nil {
		return w.wrapPathErr(relPath, err)
	}
	if err := w.be.Mkdir(ctx, abs); err != nil {
		return newErrCmd(ErrWriteFailed, err.Error(), relPath)
	}
	return nil
}

// Touch creates relPath if absent, or updates its modification time.
func (w *Workspace) Touch(ctx context.Context, relPath string) error {
	abs, err := w.resolve(relPath)
	if err != nil {
		return w.wrapPathErr(relPath, err)
	}
	if err := w.be.Touch(ctx, abs); err != nil {
		return newErrCmd(ErrWriteFailed, err.Error(), relPath)
	}
	return nil
}

// List enumerates the immediate entries of relPath.
func (w *Workspace) List(ctx context.Context, relPath string) ([]FileInfo, error) {
	abs, err := w.resolve(relPath)
	if err != nil {
		return nil, w.wrapPathErr(relPath, err)
	}
	entries, err := w.be.List(ctx, abs)
	if err != nil {
		return nil, newErrCmd(ErrReadFailed, err.Error(), relPath)
	}
	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		kind := KindFile
		switch {
		case e.IsSymlink:
			kind = KindSymlink
		case e.IsDir:
			kind = KindDirectory
		}
		out = append(out, FileInfo{Name: e.Name, Kind: kind, Size: e.Size, ModifiedAt: e.ModifiedAt})
	}
	return out, nil
}

// Exists reports whether relPath exists.
func (w *Workspace) Exists(ctx context.Context, relPath string) (bool, error) {
	abs, err := w.resolve(relPath)
	if err != nil {
		return false, w.wrapPathErr(relPath, err)
	}
	exists, err := w.be.Exists(ctx, abs)
	if err != nil {
		return false, newErrCmd(ErrReadFailed, err.Error(), relPath)
	}
	return exists, nil
}

// Delete removes relPath (recursively, if it is a directory).
func (w *Workspace) Delete(ctx context.Context, relPath string) error {
	abs, err := w.resolve(relPath)
	if err != nil {
		return w.wrapPathErr(relPath, err)
	}
	if err := w.be.Delete(ctx, abs); err != nil {
		return newErrCmd(ErrWriteFailed, err.Error(), relPath)
	}
	return nil
}

func (w *Workspace) String() string {
	return fmt.Sprintf("Workspace{userId:%s, name:%s, path:%s}", w.userID, w.workspaceName, w.workspacePath)
}
