package audit

import (
	"path/filepath"
	"testing"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndQueryRejections(t *testing.T) {
	l := openTestLog(t)

	if err := l.RecordRejection("alice", "dangerous", "rm -rf /", "Destructive removal is not allowed"); err != nil {
		t.Fatalf("RecordRejection error: %v", err)
	}
	if err := l.RecordRejection("alice", "path_escape", "../etc/passwd", "Path escapes workspace"); err != nil {
		t.Fatalf("RecordRejection error: %v", err)
	}
	if err := l.RecordRejection("bob", "dangerous", "sudo rm -rf /", "Privilege escalation commands are not allowed"); err != nil {
		t.Fatalf("RecordRejection error: %v", err)
	}

	rows, err := l.RecentRejections("alice", 10)
	if err != nil {
		t.Fatalf("RecentRejections error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows for alice, got %d", len(rows))
	}
	if rows[0].Target != "../etc/passwd" {
		t.Errorf("expected newest-first ordering, got %+v", rows[0])
	}
}

func TestRecordDangerousInvocation(t *testing.T) {
	l := openTestLog(t)
	if err := l.RecordDangerousInvocation("alice", "sudo apt update", "dangerous command absorbed by hook"); err != nil {
		t.Fatalf("RecordDangerousInvocation error: %v", err)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	l1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open error: %v", err)
	}
	l1.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open error: %v", err)
	}
	defer l2.Close()

	if err := l2.RecordRejection("alice", "dangerous", "x", "y"); err != nil {
		t.Fatalf("RecordRejection after reopen error: %v", err)
	}
}
