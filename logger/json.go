package logger

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// JSONLogEntry is one line written by the JSON logger.
type JSONLogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Message   string                 `json:"message"`
	Severity  string                 `json:"severity"`
	Component string                 `json:"component,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type jsonLogger struct {
	metadata  map[string]interface{}
	component string
	level     LogLevel
	sink      Sink
	mu        *sync.Mutex
	now       func() time.Time
}

var _ Logger = (*jsonLogger)(nil)

func (j *jsonLogger) clone() *jsonLogger {
	c := *j
	c.metadata = copyMetadata(j.metadata, nil)
	return &c
}

// WithPrefix appends prefix to the entry component.
func (j *jsonLogger) WithPrefix(prefix string) Logger {
	c := j.clone()
	prefix = strings.Trim(prefix, "[]")
	if c.component == "" {
		c.component = prefix
	} else if !strings.Contains(c.component, prefix) {
		c.component += " " + prefix
	}
	return c
}

func (j *jsonLogger) With(metadata map[string]interface{}) Logger {
	c := j.clone()
	c.metadata = copyMetadata(j.metadata, metadata)
	if comp, ok := c.metadata["component"].(string); ok {
		c.component = comp
		delete(c.metadata, "component")
	}
	return c
}

func (j *jsonLogger) IsLevelEnabled(level LogLevel) bool {
	return level >= j.level && level < LevelNone
}

func (j *jsonLogger) log(level LogLevel, msg string, args ...interface{}) {
	if !j.IsLevelEnabled(level) {
		return
	}
	entry := JSONLogEntry{
		Timestamp: j.now().UTC(),
		Message:   ansiColorStripper.ReplaceAllString(fmt.Sprintf(msg, args...), ""),
		Severity:  level.String(),
		Component: j.component,
	}
	if len(j.metadata) > 0 {
		entry.Metadata = j.metadata
	}
	buf, err := json.Marshal(entry)
	if err != nil {
		buf, _ = json.Marshal(JSONLogEntry{Timestamp: entry.Timestamp, Message: entry.Message, Severity: entry.Severity, Component: entry.Component})
	}
	j.mu.Lock()
	_, _ = j.sink.Write(append(buf, '\n'))
	j.mu.Unlock()
}

func (j *jsonLogger) Trace(msg string, args ...interface{}) { j.log(LevelTrace, msg, args...) }
func (j *jsonLogger) Debug(msg string, args ...interface{}) { j.log(LevelDebug, msg, args...) }
func (j *jsonLogger) Info(msg string, args ...interface{})  { j.log(LevelInfo, msg, args...) }
func (j *jsonLogger) Warn(msg string, args ...interface{})  { j.log(LevelWarn, msg, args...) }
func (j *jsonLogger) Error(msg string, args ...interface{}) { j.log(LevelError, msg, args...) }

// NewJSONLogger returns a Logger writing one JSON object per line to sink.
func NewJSONLogger(sink Sink, level LogLevel) Logger {
	return &jsonLogger{level: level, sink: sink, mu: &sync.Mutex{}, now: time.Now}
}
