package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	vars := MapLookup(map[string]string{
		"HOST":  "cache.internal",
		"PORT":  "6380",
		"EMPTY": "",
	})
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no references", "plain value", "plain value"},
		{"simple", "${HOST}", "cache.internal"},
		{"embedded", "redis://${HOST}:${PORT}/0", "redis://cache.internal:6380/0"},
		{"env prefix", "${env:HOST}", "cache.internal"},
		{"default used", "${MISSING:-fallback}", "fallback"},
		{"default for empty", "${EMPTY:-fallback}", "fallback"},
		{"default ignored", "${PORT:-6379}", "6380"},
		{"missing preserved", "${MISSING}", "${MISSING}"},
		{"empty name preserved", "${}", "${}"},
		{"unclosed", "a ${HOST", "a ${HOST"},
		{"dollar without brace", "$HOST ${HOST}", "$HOST cache.internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Expand(tt.input, vars))
		})
	}
}

func TestChain(t *testing.T) {
	l := Chain(
		MapLookup(map[string]string{"A": "first"}),
		nil,
		MapLookup(map[string]string{"A": "second", "B": "second"}),
	)
	v, ok := l("A")
	assert.True(t, ok)
	assert.Equal(t, "first", v)
	v, _ = l("B")
	assert.Equal(t, "second", v)
	_, ok = l("C")
	assert.False(t, ok)
}

func TestParseEnvFile(t *testing.T) {
	t.Setenv("TIERCACHE_TEST_HOST", "from-os")
	dir := t.TempDir()
	fn := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(fn, []byte(`
# redis connection
REDIS_HOST=${TIERCACHE_TEST_HOST}
export REDIS_PORT="6379"
REDIS_URL='redis://${REDIS_HOST}:${REDIS_PORT}/0'
EMPTY=
`), 0644))

	env, err := ParseEnvFile(fn)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"REDIS_HOST": "from-os",
		"REDIS_PORT": "6379",
		"REDIS_URL":  "redis://from-os:6379/0",
		"EMPTY":      "",
	}, env)

	missing, err := ParseEnvFile(filepath.Join(dir, "nope.env"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}
