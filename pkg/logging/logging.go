// Package logging is the SDK's leveled log sink. The embedding
// application can swap in its own slog.Handler; by default everything
// at info and above goes to stderr.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Logger wraps slog with the verbosity toggles the SDK exposes to
// embedding applications.
type Logger struct {
	mu      sync.RWMutex
	log     *slog.Logger
	debug   bool
	verbose bool
}

// New returns a logger writing to stderr at info level.
func New() *Logger {
	return &Logger{
		log: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})),
	}
}

// SetHandler replaces the output handler. Used by embedding apps that
// route SDK logs into their own logging system.
func (l *Logger) SetHandler(h slog.Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log = slog.New(h)
}

// SetDebug toggles debug-level output.
func (l *Logger) SetDebug(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug = enabled
}

// SetVerbose toggles verbose output (per-event logging).
func (l *Logger) SetVerbose(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = enabled
}

func (l *Logger) logger() *slog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.log
}

// Debugf logs only when debug output is enabled.
func (l *Logger) Debugf(format string, args ...any) {
	l.mu.RLock()
	enabled := l.debug
	l.mu.RUnlock()
	if !enabled {
		return
	}
	l.logger().Debug(fmt.Sprintf(format, args...))
}

// Verbosef logs only when verbose output is enabled. The pipeline uses
// it to echo every event added to the queue.
func (l *Logger) Verbosef(format string, args ...any) {
	l.mu.RLock()
	enabled := l.verbose
	l.mu.RUnlock()
	if !enabled {
		return
	}
	l.logger().Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.logger().Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warningf(format string, args ...any) {
	l.logger().Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.logger().Error(fmt.Sprintf(format, args...))
}
