// Package adapter implements the SDK Adapter Contract (spec §4.9): a
// fixed set of named tool handlers — run_terminal_command, read_files,
// write_file, str_replace, code_search — each with a declared
// input/output shape and none of which ever returns a Go error for a
// domain failure. Failures are captured into the handler's own result
// struct, the same convention the teacher's internal/tools runners use
// (catch the error, stuff it into Result.Error, never propagate).
package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sourcegraph/go-diff/diff"

	constellationfs "github.com/constellationfs/constellationfs"
)

// maxReadableFileSize is the largest single file read_files will return
// in full; larger files are reported via the FILE_TOO_LARGE sentinel.
const maxReadableFileSize = 1 << 20 // 1 MiB

// Sentinel tags for read_files entries (spec §6).
const (
	tagDoesNotExist = "[FILE_DOES_NOT_EXIST]"
	tagIgnored      = "[FILE_IGNORED_BY_GITIGNORE_OR_CODEBUFF_IGNORE]"
	tagOutside      = "[FILE_OUTSIDE_PROJECT]"
	tagReadError    = "[FILE_READ_ERROR]"
)

// Adapter binds the named tool handlers to a single workspace.
type Adapter struct {
	ws *constellationfs.Workspace
}

// New returns an Adapter over ws.
func New(ws *constellationfs.Workspace) *Adapter {
	return &Adapter{ws: ws}
}

// RunTerminalCommandResult is run_terminal_command's output shape.
type RunTerminalCommandResult struct {
	Command     string `json:"command"`
	StartingCwd string `json:"startingCwd,omitempty"`
	Message     string `json:"message"`
	Stdout      string `json:"stdout"`
	Stderr      string `json:"stderr"`
	ExitCode    int    `json:"exitCode"`
}

// RunTerminalCommand executes command in the workspace, optionally
// rebinding the working directory to cwd first.
//
// cwd is never spliced into the command string as `cd "$cwd" && ...` —
// per the spec's own recommended fix, it is resolved and confined via
// the path policy and handed to the executor as the literal process
// working directory, so a cwd value can never smuggle a second command
// past the command classifier.
func (a *Adapter) RunTerminalCommand(ctx context.Context, command, cwd string) RunTerminalCommandResult {
	out, err := a.ws.ExecIn(ctx, cwd, command)
	res := RunTerminalCommandResult{Command: command, StartingCwd: cwd, Stdout: out}
	if err != nil {
		res.ExitCode = 1
		res.Stderr = err.Error()
		res.Message = err.Error()
		return res
	}
	res.Message = "Command completed successfully"
	return res
}

// ReadFiles reads each of filePaths and returns a map from path to
// either its UTF-8 content or a sentinel tag (spec §6).
func (a *Adapter) ReadFiles(ctx context.Context, filePaths []string) map[string]string {
	out := make(map[string]string, len(filePaths))
	ignore := a.loadIgnoreMatcher(ctx)
	for _, p := range filePaths {
		out[p] = a.readOneFile(ctx, p, ignore)
	}
	return out
}

func (a *Adapter) readOneFile(ctx context.Context, relPath string, ignore *ignoreMatcher) string {
	if ignore.matches(relPath) {
		return tagIgnored
	}

	exists, err := a.ws.Exists(ctx, relPath)
	if err != nil {
		return tagOutside
	}
	if !exists {
		return tagDoesNotExist
	}

	data, err := a.ws.ReadBytes(ctx, relPath)
	if err != nil {
		return tagReadError
	}
	if len(data) > maxReadableFileSize {
		return fmt.Sprintf("[FILE_TOO_LARGE] [%.2fMB]", float64(len(data))/(1<<20))
	}
	return string(data)
}

// WriteFileResult is write_file's and str_replace's shared output shape.
type WriteFileResult struct {
	File         string `json:"file"`
	Message      string `json:"message,omitempty"`
	UnifiedDiff  string `json:"unifiedDiff,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// WriteFile writes content to path. typ selects the write mode:
// "file" overwrites (or creates) the file outright; "patch" applies
// content as a unified diff via the patch utility.
func (a *Adapter) WriteFile(ctx context.Context, path, content, typ string) WriteFileResult {
	if typ == "patch" {
		return a.applyPatch(ctx, path, content)
	}
	return a.overwriteFile(ctx, path, content)
}

// StrReplace applies content as a unified diff against path. Unlike
// WriteFile, it has no "file" mode — its content is always a patch.
func (a *Adapter) StrReplace(ctx context.Context, path, content string) WriteFileResult {
	return a.applyPatch(ctx, path, content)
}

func (a *Adapter) overwriteFile(ctx context.Context, relPath, content string) WriteFileResult {
	var before string
	if existing, err := a.ws.Read(ctx, relPath); err == nil {
		before = existing
	}

	if err := a.ws.Write(ctx, relPath, content); err != nil {
		return WriteFileResult{File: relPath, ErrorMessage: err.Error()}
	}

	return WriteFileResult{
		File:        relPath,
		Message:     fmt.Sprintf("Wrote %d bytes to %s", len(content), relPath),
		UnifiedDiff: unifiedDiffString(relPath, before, content),
	}
}

func (a *Adapter) applyPatch(ctx context.Context, relPath, patchContent string) WriteFileResult {
	if _, err := diff.ParseFileDiff([]byte(normalizeDiffHeader(relPath, patchContent))); err != nil {
		return WriteFileResult{File: relPath, ErrorMessage: fmt.Sprintf("invalid unified diff: %v", err)}
	}

	sum := sha256.Sum256([]byte(relPath + patchContent))
	patchName := fmt.Sprintf(".cfs-patch-%s.diff", hex.EncodeToString(sum[:6]))
	if err := a.ws.Write(ctx, patchName, patchContent); err != nil {
		return WriteFileResult{File: relPath, ErrorMessage: fmt.Sprintf("staging patch: %v", err)}
	}
	defer a.ws.Delete(ctx, patchName)

	cmd := fmt.Sprintf("patch -p1 < %s", shellQuote(patchName))
	out, err := a.ws.Exec(ctx, cmd)
	if err != nil {
		return WriteFileResult{File: relPath, ErrorMessage: fmt.Sprintf("%v: %s", err, out)}
	}

	return WriteFileResult{
		File:        relPath,
		Message:     strings.TrimSpace(out),
		UnifiedDiff: patchContent,
	}
}

// normalizeDiffHeader ensures the diff has a/ b/ file headers so
// ParseFileDiff can validate it even when the caller supplied a bare
// hunk without --- / +++ lines.
func normalizeDiffHeader(relPath, content string) string {
	if strings.HasPrefix(content, "--- ") || strings.HasPrefix(content, "diff ") {
		return content
	}
	return fmt.Sprintf("--- a/%s\n+++ b/%s\n%s", relPath, relPath, content)
}

func unifiedDiffString(relPath, before, after string) string {
	d := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: path.Join("a", relPath),
		ToFile:   path.Join("b", relPath),
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(d)
	if err != nil {
		return ""
	}
	return text
}

// CodeSearchResult is code_search's output shape.
type CodeSearchResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
	Message  string `json:"message"`
}

// CodeSearch runs `grep -rn [flags] pattern .` rooted at cwd (or the
// workspace root) and truncates stdout to maxResults lines.
func (a *Adapter) CodeSearch(ctx context.Context, pattern string, maxResults int, flags []string, cwd string) CodeSearchResult {
	args := append([]string{"-rn"}, flags...)
	args = append(args, shellQuote(pattern), ".")
	cmd := "grep " + strings.Join(args, " ")

	out, err := a.ws.ExecIn(ctx, cwd, cmd)
	res := CodeSearchResult{Stdout: truncateLines(out, maxResults)}
	if err != nil {
		res.ExitCode = 1
		res.Stderr = err.Error()
		res.Message = err.Error()
		return res
	}
	res.Message = "Search completed"
	return res
}

func truncateLines(s string, maxResults int) string {
	if maxResults <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= maxResults {
		return s
	}
	return strings.Join(lines[:maxResults], "\n")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ignoreMatcher applies a minimal .gitignore/.codebuffignore line
// matcher: blank lines and "#" comments are skipped, every other line
// is matched against a path's full form and its basename via
// filepath.Match. This is not a full gitignore-semantics
// implementation (no negation, no directory-only "/" suffix handling,
// no nested .gitignore precedence) — see DESIGN.md for why no
// third-party gitignore matcher from the example pack was available.
type ignoreMatcher struct {
	patterns []string
}

func (a *Adapter) loadIgnoreMatcher(ctx context.Context) *ignoreMatcher {
	m := &ignoreMatcher{}
	for _, name := range []string{".gitignore", ".codebuffignore"} {
		content, err := a.ws.Read(ctx, name)
		if err != nil {
			continue
		}
		for _, line := range strings.Split(content, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			m.patterns = append(m.patterns, strings.TrimSuffix(line, "/"))
		}
	}
	return m
}

func (m *ignoreMatcher) matches(relPath string) bool {
	base := filepath.Base(relPath)
	for _, pat := range m.patterns {
		if ok, _ := filepath.Match(pat, relPath); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if strings.HasPrefix(relPath, pat+"/") {
			return true
		}
	}
	return false
}

// Handle dispatches by tool name, matching the five named handlers to
// their declared shapes. It never returns an error for a domain
// failure — an unsupported tool name is the only case reported via the
// error return, mirroring internal/tools.MultiRunner's
// "unsupported tool" convention.
func (a *Adapter) Handle(ctx context.Context, tool string, params map[string]any) (any, error) {
	switch tool {
	case "run_terminal_command":
		command, _ := params["command"].(string)
		cwd, _ := params["cwd"].(string)
		return a.RunTerminalCommand(ctx, command, cwd), nil
	case "read_files":
		paths := toStringSlice(params["filePaths"])
		return a.ReadFiles(ctx, paths), nil
	case "write_file":
		p, _ := params["path"].(string)
		content, _ := params["content"].(string)
		typ, _ := params["type"].(string)
		return a.WriteFile(ctx, p, content, typ), nil
	case "str_replace":
		p, _ := params["path"].(string)
		content, _ := params["content"].(string)
		return a.StrReplace(ctx, p, content), nil
	case "code_search":
		pattern, _ := params["pattern"].(string)
		cwd, _ := params["cwd"].(string)
		maxResults := toInt(params["maxResults"])
		flags := toStringSlice(params["flags"])
		return a.CodeSearch(ctx, pattern, maxResults, flags, cwd), nil
	default:
		return nil, fmt.Errorf("unsupported tool: %s", tool)
	}
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		if s, ok := v.([]string); ok {
			return s
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}
