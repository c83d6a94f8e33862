package logger

import (
	"fmt"
	"strings"
	"sync"
)

type TestLogEntry struct {
	Severity  string
	Message   string
	Arguments []interface{}
	Metadata  map[string]interface{}
}

// Formatted returns the message with its arguments applied.
func (e TestLogEntry) Formatted() string {
	return fmt.Sprintf(e.Message, e.Arguments...)
}

type testLogStore struct {
	mu   sync.Mutex
	logs []TestLogEntry
}

// TestLogger records every entry in memory. Loggers derived with With or
// WithPrefix share the parent's record, and it is safe for concurrent use.
type TestLogger struct {
	metadata map[string]interface{}
	prefix   string
	store    *testLogStore
}

var _ Logger = (*TestLogger)(nil)

// NewTestLogger returns a new Logger instance useful for testing
func NewTestLogger() *TestLogger {
	return &TestLogger{store: &testLogStore{}}
}

func (c *TestLogger) With(metadata map[string]interface{}) Logger {
	return &TestLogger{metadata: copyMetadata(c.metadata, metadata), prefix: c.prefix, store: c.store}
}

func (c *TestLogger) WithPrefix(prefix string) Logger {
	p := prefix
	if c.prefix != "" {
		p = c.prefix + " " + prefix
	}
	return &TestLogger{metadata: c.metadata, prefix: p, store: c.store}
}

func (c *TestLogger) IsLevelEnabled(LogLevel) bool { return true }

func (c *TestLogger) Log(level string, msg string, args ...interface{}) {
	if c.prefix != "" {
		msg = c.prefix + " " + msg
	}
	c.store.mu.Lock()
	c.store.logs = append(c.store.logs, TestLogEntry{level, msg, args, c.metadata})
	c.store.mu.Unlock()
}

func (c *TestLogger) Trace(msg string, args ...interface{}) { c.Log("TRACE", msg, args...) }
func (c *TestLogger) Debug(msg string, args ...interface{}) { c.Log("DEBUG", msg, args...) }
func (c *TestLogger) Info(msg string, args ...interface{})  { c.Log("INFO", msg, args...) }
func (c *TestLogger) Warn(msg string, args ...interface{})  { c.Log("WARN", msg, args...) }
func (c *TestLogger) Error(msg string, args ...interface{}) { c.Log("ERROR", msg, args...) }

// Logs returns a copy of everything logged so far.
func (c *TestLogger) Logs() []TestLogEntry {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return append([]TestLogEntry(nil), c.store.logs...)
}

// Contains reports whether an entry of the given severity has a formatted
// message containing substr.
func (c *TestLogger) Contains(severity, substr string) bool {
	for _, e := range c.Logs() {
		if e.Severity == severity && strings.Contains(e.Formatted(), substr) {
			return true
		}
	}
	return false
}
