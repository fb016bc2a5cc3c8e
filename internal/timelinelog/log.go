// Package timelinelog provides the small level-gated logger the timeline's
// collaborators use. The core (ledger, policylog, checkengine, mutation)
// never logs above debug, per spec §7 — "never logs at a level above debug
// except to record denials and governance changes," and those go through
// checkengine.AuditFunc, not this logger.
package timelinelog

import (
	"log"
	"os"
)

// Level controls which calls actually reach the underlying logger.
type Level int

const (
	LevelWarn Level = iota
	LevelDebug
)

func ParseLevel(s string) Level {
	if s == "debug" {
		return LevelDebug
	}
	return LevelWarn
}

// Logger wraps the standard library logger with Debugf/Warnf helpers gated
// by Level, mirroring the teacher's logger.Printf call sites.
type Logger struct {
	level Level
	out   *log.Logger
}

// New builds a Logger writing to stderr with the given level.
func New(level Level) *Logger {
	return &Logger{level: level, out: log.New(os.Stderr, "", log.LstdFlags)}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.level >= LevelDebug {
		l.out.Printf("DEBUG "+format, args...)
	}
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.out.Printf("WARN "+format, args...)
}
