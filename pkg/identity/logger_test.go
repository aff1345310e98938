package identity

import (
	"fmt"
	"sync"
)

type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func (l *recordingLogger) Debug(msg string, args ...any)     { l.add(msg+" %v", args) }
func (l *recordingLogger) Debugf(format string, args ...any) { l.add(format, args...) }
func (l *recordingLogger) Info(msg string, args ...any)      { l.add(msg+" %v", args) }
func (l *recordingLogger) Infof(format string, args ...any)  { l.add(format, args...) }
func (l *recordingLogger) Warn(msg string, args ...any)      { l.add(msg+" %v", args) }
func (l *recordingLogger) Warnf(format string, args ...any)  { l.add(format, args...) }
func (l *recordingLogger) Error(msg string, args ...any)     { l.add(msg+" %v", args) }
func (l *recordingLogger) Errorf(format string, args ...any) { l.add(format, args...) }
