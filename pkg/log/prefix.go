// Package log adds per-job prefixes to a shared logs.Log
package log

import (
	"github.com/cyclopcam/logs"
)

// PrefixLogger writes to the underlying log, but all messages are prefixed with a string
// of your choice (typically the video being evaluated).
// Closing a PrefixLogger does not close the parent log, which is shared by many workers.
type PrefixLogger struct {
	Log    logs.Log
	Prefix string
}

// Create a new PrefixLogger. The prefix is written as "[prefix] ".
func NewPrefixLogger(log logs.Log, prefix string) *PrefixLogger {
	return NewPrefixLoggerNoSpace(log, "["+prefix+"] ")
}

// Create a new PrefixLogger, and use 'prefix' verbatim
func NewPrefixLoggerNoSpace(log logs.Log, prefix string) *PrefixLogger {
	return &PrefixLogger{
		Log:    log,
		Prefix: prefix,
	}
}

// Extend returns a logger with 'prefix' appended to our own prefix
func (l *PrefixLogger) Extend(prefix string) *PrefixLogger {
	return NewPrefixLoggerNoSpace(l.Log, l.Prefix+"["+prefix+"] ")
}

func (l *PrefixLogger) Close() {
}

func (l *PrefixLogger) Debugf(format string, a ...any) {
	l.Log.Debugf(l.Prefix+format, a...)
}

func (l *PrefixLogger) Infof(format string, a ...any) {
	l.Log.Infof(l.Prefix+format, a...)
}

func (l *PrefixLogger) Warnf(format string, a ...any) {
	l.Log.Warnf(l.Prefix+format, a...)
}

func (l *PrefixLogger) Errorf(format string, a ...any) {
	l.Log.Errorf(l.Prefix+format, a...)
}

func (l *PrefixLogger) Criticalf(format string, a ...any) {
	l.Log.Criticalf(l.Prefix+format, a...)
}
