// Package cflog is the process-wide logger, mirroring the teacher's
// internal/logger package: a package-level *slog.Logger, a text handler
// over stdout (+ optional file), and short level-named wrappers.
package cflog

import (
	"io"
	"log/slog"
	"os"
)

var Log *slog.Logger

func init() {
	// A usable default before Init is called, matching the teacher's
	// pattern of a package-level Log that callers can use immediately.
	Log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// Init replaces the package logger with one at the requested level,
// writing to stdout and (if logFile is non-empty) also appending to
// logFile.
func Init(level, logFile string) error {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var writers []io.Writer
	writers = append(writers, os.Stdout)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format("15:04:05"))
			}
			return a
		},
	})

	Log = slog.New(handler)
	slog.SetDefault(Log)
	return nil
}

func Debug(msg string, args ...any) { Log.Debug(msg, args...) }
func Info(msg string, args ...any)  { Log.Info(msg, args...) }
func Warn(msg string, args ...any)  { Log.Warn(msg, args...) }
func Error(msg string, args ...any) { Log.Error(msg, args...) }

// Rejection logs a safety-engine rejection (C1/C2 verdicts). It never
// logs env var values — only the command/path and the stable reason —
// per spec §3's confidentiality expectation for scrubbed variables.
func Rejection(userID, kind, target, reason string) {
	Log.Warn("safety rejection", "userId", userID, "kind", kind, "target", target, "reason", reason)
}

// Dangerous logs that a dangerous command was absorbed by an
// onDangerousOperation hook instead of raising.
func Dangerous(userID, command, reason string) {
	Log.Warn("dangerous command absorbed by hook", "userId", userID, "command", command, "reason", reason)
}

// BackendLifecycle logs a backend connect/destroy/disconnect
// transition at Debug level — these are routine, not warnings.
func BackendLifecycle(userID, kind, event string) {
	Log.Debug("backend lifecycle", "userId", userID, "kind", kind, "event", event)
}
