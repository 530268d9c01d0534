// Package audit persists an append-only record of safety-engine
// rejections and absorbed dangerous-command invocations to sqlite,
// directly following the teacher's internal/store.Store Open/migrate
// pattern (WAL mode, schema_migrations table, idempotent re-apply).
package audit

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Log is the audit sink. The zero value is not usable; use Open.
type Log struct {
	db *sql.DB
}

// Open opens (creating if necessary) a sqlite database at dsn and
// applies any pending migrations.
func Open(dsn string) (*Log, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	l := &Log{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return l, nil
}

func (l *Log) Close() error { return l.db.Close() }

func (l *Log) migrate() error {
	if _, err := l.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		if err := l.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}

		tx, err := l.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}

// RecordRejection appends a C1/C2 rejection: kind is "dangerous",
// "escaping", "absolute_path", or "path_escape"; target is the rejected
// command or path.
func (l *Log) RecordRejection(userID, kind, target, reason string) error {
	_, err := l.db.Exec(
		"INSERT INTO rejections (user_id, kind, target, reason) VALUES (?, ?, ?, ?)",
		userID, kind, target, reason,
	)
	return err
}

// RecordDangerousInvocation appends an onDangerousOperation hook
// invocation.
func (l *Log) RecordDangerousInvocation(userID, command, reason string) error {
	_, err := l.db.Exec(
		"INSERT INTO dangerous_invocations (user_id, command, reason) VALUES (?, ?, ?)",
		userID, command, reason,
	)
	return err
}

// Rejection is one row of RecentRejections.
type Rejection struct {
	UserID string
	Kind   string
	Target string
	Reason string
}

// RecentRejections returns the most recent n rejections for userID,
// newest first.
func (l *Log) RecentRejections(userID string, n int) ([]Rejection, error) {
	rows, err := l.db.Query(
		"SELECT user_id, kind, target, reason FROM rejections WHERE user_id = ? ORDER BY id DESC LIMIT ?",
		userID, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rejection
	for rows.Next() {
		var r Rejection
		if err := rows.Scan(&r.UserID, &r.Kind, &r.Target, &r.Reason); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
