// Package logger is a small leveled logger shared by the pantry components.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

type Level int

const (
	LevelOff Level = iota
	LevelNormal
	LevelVerbose
)

// ParseLevel maps "off", "normal"/"info" and "verbose"/"debug" to a Level.
// Anything else is LevelNormal.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none", "quiet":
		return LevelOff
	case "verbose", "debug":
		return LevelVerbose
	default:
		return LevelNormal
	}
}

type Logger struct {
	mu    sync.RWMutex
	level Level
	out   map[string]*log.Logger
}

// New writes to out, or os.Stderr when out is nil.
func New(level Level, out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}
	flags := log.Ldate | log.Ltime
	return &Logger{
		level: level,
		out: map[string]*log.Logger{
			"debug": log.New(out, "[DBG] ", flags),
			"info":  log.New(out, "[INF] ", flags),
			"warn":  log.New(out, "[WRN] ", flags),
			"error": log.New(out, "[ERR] ", flags),
		},
	}
}

// Nop discards everything.
func Nop() *Logger {
	return New(LevelOff, io.Discard)
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) Level() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *Logger) Debug(format string, args ...any) { l.emit(LevelVerbose, "debug", format, args) }
func (l *Logger) Info(format string, args ...any)  { l.emit(LevelNormal, "info", format, args) }
func (l *Logger) Warn(format string, args ...any)  { l.emit(LevelNormal, "warn", format, args) }
func (l *Logger) Error(format string, args ...any) { l.emit(LevelNormal, "error", format, args) }

func (l *Logger) emit(min Level, name, format string, args []any) {
	if l == nil {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.level < min {
		return
	}
	_ = l.out[name].Output(3, fmt.Sprintf(format, args...))
}
