// Package pathsafe resolves a workspace-relative path against a workspace
// root, rejecting anything that would lexically or (via symlinks)
// physically escape it.
package pathsafe

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Failure categories, matching spec §4.2.
var (
	ErrAbsolutePath = errors.New("absolute paths are not allowed")
	ErrPathEscape   = errors.New("path escapes workspace")
	ErrSymlinkEscape = errors.New("symlink escapes workspace")
)

// Resolve validates relative against workspacePath and returns the
// confined absolute path, or one of the sentinel errors above, returned
// unwrapped so callers can compare with == or errors.Is. It also walks the parent
// chain on the local filesystem to catch a symlink escape, so it is
// only correct when workspacePath names a directory on this machine.
func Resolve(workspacePath, relative string) (string, error) {
	joined, err := ResolveLexical(workspacePath, relative)
	if err != nil {
		return "", err
	}
	if err := checkSymlinkEscape(workspacePath, joined); err != nil {
		return "", err
	}
	return joined, nil
}

// ResolveLexical performs the same lexical confinement check as
// Resolve but never touches the filesystem. Use this for a workspace
// whose path lives on a remote host, where a local os.Lstat walk would
// check the wrong filesystem entirely.
func ResolveLexical(workspacePath, relative string) (string, error) {
	if relative == "" {
		return "", ErrPathEscape
	}
	if filepath.IsAbs(relative) || strings.HasPrefix(relative, "/") {
		return "", ErrAbsolutePath
	}
	if hasParentTraversal(relative) {
		return "", ErrPathEscape
	}

	joined := filepath.Join(workspacePath, relative)
	rel, err := filepath.Rel(workspacePath, joined)
	if err != nil {
		return "", ErrPathEscape
	}
	if rel == ".." || strings.HasPrefix(rel, "../") || filepath.IsAbs(rel) {
		return "", ErrPathEscape
	}

	return joined, nil
}

// hasParentTraversal rejects any ".." path segment, in either separator
// convention, before lexical normalization can hide it.
func hasParentTraversal(relative string) bool {
	if strings.Contains(relative, "../") || strings.Contains(relative, "..\\") {
		return true
	}
	segments := strings.Split(filepath.ToSlash(relative), "/")
	for _, seg := range segments {
		if seg == ".." {
			return true
		}
	}
	return false
}

// checkSymlinkEscape walks the parent chain of target from workspacePath
// downward. For every existing segment that is itself a symlink, its
// resolved target must stay within workspacePath. Non-existent trailing
// segments (the path being created) are tolerated.
func checkSymlinkEscape(workspacePath, target string) error {
	rel, err := filepath.Rel(workspacePath, target)
	if err != nil {
		return ErrPathEscape
	}
	if rel == "." {
		return nil
	}

	segments := strings.Split(filepath.ToSlash(rel), "/")
	current := workspacePath
	for _, seg := range segments {
		current = filepath.Join(current, seg)
		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				// Tolerate the remainder being created.
				return nil
			}
			// Some other stat error (permissions, etc) — let the caller's
			// actual I/O operation surface it; this is just path safety.
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(current)
			if err != nil {
				return ErrSymlinkEscape
			}
			resolvedRel, err := filepath.Rel(workspacePath, resolved)
			if err != nil || resolvedRel == ".." || strings.HasPrefix(resolvedRel, "../") || filepath.IsAbs(resolvedRel) {
				return ErrSymlinkEscape
			}
		}
	}
	return nil
}
