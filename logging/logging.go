// Package logging is the zap-backed structured logging used across topogo. Loggers write
// tab separated console lines through appenders; key/value pairs are rendered as JSON.
package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// NewLogger returns a logger that writes Info+ entries to stdout.
func NewLogger(name string) Logger {
	return &impl{name: name, level: NewAtomicLevelAt(INFO), out: newAppenderSet(NewStdoutAppender())}
}

// NewBlankLogger returns a Debug+ logger with no outputs; add them with AddAppender.
func NewBlankLogger(name string) Logger {
	return &impl{name: name, level: NewAtomicLevelAt(DEBUG), out: newAppenderSet()}
}

// NewTestLogger returns a Debug+ logger that writes to the test's log.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is like NewTestLogger but also records entries for assertions.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	observerCore, observedLogs := observer.New(zap.LevelEnablerFunc(zapcore.DebugLevel.Enabled))
	logger := &impl{
		level: NewAtomicLevelAt(DEBUG),
		out:   newAppenderSet(NewTestAppender(tb), observerCore),
	}
	return logger, observedLogs
}
