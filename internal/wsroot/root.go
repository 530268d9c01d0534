// Package wsroot resolves the process-wide workspace root directory
// (spec §8), loading the optional `.constellationfs.json` file once on
// first access.
package wsroot

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/constellationfs/constellationfs/internal/cflog"
)

// fileConfig mirrors the recognized keys of .constellationfs.json.
// Unknown keys are ignored by json.Unmarshal.
type fileConfig struct {
	WorkspaceRoot string `json:"workspaceRoot"`
}

// Resolver caches the resolved workspace root for the lifetime of the
// process, matching the teacher's load-once Manager shape.
type Resolver struct {
	root     string
	warnings []string
	loaded   bool
}

// New builds a Resolver that reads "<cwd>/.constellationfs.json"
// lazily on first call to Root.
func New() *Resolver {
	return &Resolver{}
}

// Root returns the effective workspace root, loading and caching the
// config file on the first call. Load failures fall back to the default
// with a warning rather than propagating (spec §8: "load failures fall
// back to defaults with a warning"). Each warning is logged through
// cflog when the file is loaded.
func (r *Resolver) Root() string {
	if !r.loaded {
		r.load()
		for _, w := range r.warnings {
			cflog.Warn(w)
		}
	}
	return r.root
}

// Warnings returns any warnings accumulated while loading the config
// file (the same ones Root logs through cflog).
func (r *Resolver) Warnings() []string {
	r.Root()
	return r.warnings
}

func (r *Resolver) load() {
	r.loaded = true
	r.root = defaultRoot()

	cwd, err := os.Getwd()
	if err != nil {
		r.warnings = append(r.warnings, "could not determine working directory: "+err.Error())
		return
	}

	path := filepath.Join(cwd, ".constellationfs.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.warnings = append(r.warnings, "failed to read "+path+": "+err.Error())
		}
		return
	}

	var cfg fileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		r.warnings = append(r.warnings, "failed to parse "+path+": "+err.Error())
		return
	}

	if cfg.WorkspaceRoot != "" {
		r.root = cfg.WorkspaceRoot
	}
}

func defaultRoot() string {
	base := os.TempDir()
	return filepath.Join(base, "constellation-fs", "users")
}

// UserRoot returns workspaceRoot/userId.
func (r *Resolver) UserRoot(userID string) string {
	return filepath.Join(r.Root(), userID)
}

// WorkspacePath returns workspaceRoot/userId/workspaceName.
func (r *Resolver) WorkspacePath(userID, workspaceName string) string {
	return filepath.Join(r.UserRoot(userID), workspaceName)
}
