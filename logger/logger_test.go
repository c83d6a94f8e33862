package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelTrace, ParseLevel("trace", LevelInfo))
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG", LevelInfo))
	assert.Equal(t, LevelWarn, ParseLevel(" warning ", LevelInfo))
	assert.Equal(t, LevelNone, ParseLevel("off", LevelInfo))
	assert.Equal(t, LevelError, ParseLevel("bogus", LevelError))
}

func TestGetLevelFromEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	assert.Equal(t, LevelError, GetLevelFromEnv())
	t.Setenv(EnvLogLevel, "")
	assert.Equal(t, LevelInfo, GetLevelFromEnv())
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, LevelInfo).(*jsonLogger)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l.now = func() time.Time { return ts }

	l.Debug("hidden")
	l.WithPrefix("[cache]").With(map[string]interface{}{"tier": "hot"}).Warn("evicted %d entries", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry JSONLogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "evicted 3 entries", entry.Message)
	assert.Equal(t, "WARN", entry.Severity)
	assert.Equal(t, "cache", entry.Component)
	assert.Equal(t, "hot", entry.Metadata["tier"])
	assert.True(t, ts.Equal(entry.Timestamp))
}

func TestConsoleLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := &consoleLogger{level: LevelWarn, out: &buf, mu: &sync.Mutex{}}
	l.Info("quiet")
	l.WithPrefix("[cache]").Error("store failed: %s", "boom")
	out := buf.String()
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, "store failed: boom")
	assert.Contains(t, out, "[cache]")
	assert.True(t, l.IsLevelEnabled(LevelError))
	assert.False(t, l.IsLevelEnabled(LevelDebug))
}

func TestTestLoggerSharesRecords(t *testing.T) {
	l := NewTestLogger()
	child := l.WithPrefix("[cache]").With(map[string]interface{}{"id": "x"})
	l.Info("root %d", 1)
	child.Error("child %s", "two")

	logs := l.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, "INFO", logs[0].Severity)
	assert.Equal(t, "root 1", logs[0].Formatted())
	assert.Equal(t, "[cache] child two", logs[1].Formatted())
	assert.Equal(t, "x", logs[1].Metadata["id"])
	assert.True(t, l.Contains("ERROR", "child two"))
	assert.False(t, l.Contains("WARN", "child two"))
}

func TestTestLoggerConcurrent(t *testing.T) {
	l := NewTestLogger()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Debug("tick")
		}()
	}
	wg.Wait()
	assert.Len(t, l.Logs(), 20)
}

func TestToZap(t *testing.T) {
	l := NewTestLogger()
	z := ToZap(l)
	z.With(zap.String("tier", "warm")).Warn("slow store", zap.Int("ms", 42))

	logs := l.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, "WARN", logs[0].Severity)
	assert.Equal(t, "slow store", logs[0].Formatted())
	assert.Equal(t, "warm", logs[0].Metadata["tier"])
	assert.EqualValues(t, 42, logs[0].Metadata["ms"])
}

func TestFromZap(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	l := FromZap(zap.New(core)).WithPrefix("cache").With(map[string]interface{}{"tier": "cold"})
	l.Debug("dropped")
	l.Info("filled %s", "key1")

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "filled key1", entries[0].Message)
	assert.Equal(t, "cache", entries[0].LoggerName)
	assert.Equal(t, "cold", entries[0].ContextMap()["tier"])
	assert.True(t, l.IsLevelEnabled(LevelWarn))
	assert.False(t, l.IsLevelEnabled(LevelDebug))
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.With(nil).WithPrefix("x").Error("nothing")
	assert.False(t, l.IsLevelEnabled(LevelError))
}
