package constellationfs

import "time"

// EntryKind is the type of a directory entry as reported by FileInfo.
type EntryKind string

const (
	KindFile      EntryKind = "file"
	KindDirectory EntryKind = "directory"
	KindSymlink   EntryKind = "symlink"
)

// FileInfo describes a single entry returned by Workspace.List.
type FileInfo struct {
	Name       string
	Kind       EntryKind
	Size       int64
	ModifiedAt time.Time
}
