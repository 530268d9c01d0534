// Package envbuild constructs the scrubbed environment handed to every
// child process the local executor spawns. The scrubbed variables are
// never added in the first place, rather than added then stripped — the
// builder starts from an empty map (spec.md §9, "re-architecture
// guidance").
package envbuild

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// clearedVars must never reach a child process, regardless of caller
// input (spec §3 invariant 4).
var clearedVars = map[string]bool{
	"LD_PRELOAD":           true,
	"LD_LIBRARY_PATH":      true,
	"DYLD_INSERT_LIBRARIES": true,
	"DYLD_LIBRARY_PATH":    true,
	"IFS":                  true,
	"BASH_ENV":             true,
	"ENV":                  true,
}

// overridableWithWarning can be overridden by customEnv, but doing so is
// logged as a warning by the caller (Build returns the warnings so the
// caller can decide how to surface them).
var overridableWithWarning = map[string]bool{
	"PATH":   true,
	"HOME":   true,
	"PWD":    true,
	"TMPDIR": true,
	"TMP":    true,
	"SHELL":  true,
	"USER":   true,
}

// defaultPathDirs is the small fixed list of common binary directories
// used for the base PATH.
var defaultPathDirs = []string{"/usr/local/bin", "/usr/bin", "/bin", "/usr/sbin", "/sbin"}

// Result is the outcome of Build: the final env slice (KEY=VALUE pairs)
// plus any warnings about dropped or overridden keys, for the caller to
// log.
type Result struct {
	Env      []string
	Warnings []string
}

// Build produces a minimal, scrubbed environment for a child process
// rooted at workspacePath, merging customEnv last under the filtering
// rules in spec §4.3.
func Build(workspacePath, shell string, customEnv map[string]string) (Result, error) {
	base := map[string]string{
		"PATH":    strings.Join(defaultPathDirs, ":"),
		"USER":    os.Getenv("USER"),
		"SHELL":   shell,
		"PWD":     workspacePath,
		"HOME":    workspacePath,
		"TMPDIR":  filepath.Join(workspacePath, ".tmp"),
		"LANG":    "C",
		"LC_ALL":  "C",
	}

	var warnings []string
	for key, value := range customEnv {
		upper := strings.ToUpper(key)
		if clearedVars[upper] {
			warnings = append(warnings, fmt.Sprintf("customEnv key %q was dropped (preload/link-path/shell-init variable)", key))
			continue
		}
		if strings.IndexByte(value, 0) >= 0 {
			return Result{}, fmt.Errorf("customEnv value for %q contains a NUL byte", key)
		}
		if overridableWithWarning[upper] {
			warnings = append(warnings, fmt.Sprintf("customEnv overrides base variable %q", key))
		}
		base[key] = value
	}

	env := make([]string, 0, len(base))
	for k, v := range base {
		env = append(env, k+"="+v)
	}
	return Result{Env: env, Warnings: warnings}, nil
}
