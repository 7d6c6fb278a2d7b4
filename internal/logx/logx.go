// Package logx is a thin wrapper over the teacher's stderr-printf logging
// idiom (this corpus never reaches for zerolog/zap/slog), extended with a
// request-scoped prefix for tenant/request id.
package logx

import (
	"fmt"
	"os"
	"time"
)

// Logger prefixes every line with a scope, the way the teacher prefixes
// reindex progress lines (e.g. "[reindex] ...").
type Logger struct {
	scope string
}

func New(scope string) *Logger {
	return &Logger{scope: scope}
}

// With returns a child logger scoped to an additional tenant/request id.
func (l *Logger) With(field string) *Logger {
	if l.scope == "" {
		return &Logger{scope: field}
	}
	return &Logger{scope: l.scope + " " + field}
}

func (l *Logger) Infof(format string, args ...any) {
	l.write("INFO", format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.write("WARN", format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.write("ERROR", format, args...)
}

func (l *Logger) write(level, format string, args ...any) {
	ts := time.Now().UTC().Format(time.RFC3339)
	msg := fmt.Sprintf(format, args...)
	if l.scope != "" {
		fmt.Fprintf(os.Stderr, "%s [%s] [%s] %s\n", ts, level, l.scope, msg)
		return
	}
	fmt.Fprintf(os.Stderr, "%s [%s] %s\n", ts, level, msg)
}
