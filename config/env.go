package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

// Lookup resolves a variable name, reporting whether it is set.
type Lookup func(name string) (string, bool)

// Chain returns a Lookup that tries each lookup in order.
func Chain(lookups ...Lookup) Lookup {
	return func(name string) (string, bool) {
		for _, l := range lookups {
			if l == nil {
				continue
			}
			if v, ok := l(name); ok {
				return v, true
			}
		}
		return "", false
	}
}

// MapLookup looks names up in m.
func MapLookup(m map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}

func dequote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// ParseEnvFile reads KEY=value lines from filename. A missing file yields an
// empty map. Values may reference earlier keys or the process environment
// with ${NAME} and ${NAME:-default}.
func ParseEnvFile(filename string) (map[string]string, error) {
	buf, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read env file %s", filename)
	}
	return ParseEnvBuffer(buf), nil
}

// ParseEnvBuffer parses the contents of an env file. Blank lines and lines
// starting with # are skipped.
func ParseEnvBuffer(buf []byte) map[string]string {
	out := make(map[string]string)
	lookup := Chain(MapLookup(out), os.LookupEnv)
	for _, line := range strings.Split(string(buf), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, val, _ := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = Expand(dequote(strings.TrimSpace(val)), lookup)
	}
	return out
}

// closingBrace returns the index of the brace closing a reference that
// starts at start, or -1.
func closingBrace(input string, start int) int {
	for i := start; i < len(input); i++ {
		switch input[i] {
		case '}':
			return i
		case '{':
			return -1
		}
	}
	return -1
}

// Expand replaces ${NAME} and ${NAME:-default} references using lookup. The
// name may carry an "env:" prefix. A reference to an unset or empty variable
// without a default is left as written, as is malformed input.
func Expand(input string, lookup Lookup) string {
	if !strings.Contains(input, "${") {
		return input
	}
	var (
		out  strings.Builder
		last int
	)
	for i := 0; i+1 < len(input); i++ {
		if input[i] != '$' || input[i+1] != '{' {
			continue
		}
		end := closingBrace(input, i+2)
		if end == -1 {
			break
		}
		out.WriteString(input[last:i])
		ref := input[i : end+1]
		name, def, hasDefault := strings.Cut(input[i+2:end], ":-")
		name = strings.TrimPrefix(name, "env:")
		val, _ := lookup(name)
		switch {
		case name == "":
			out.WriteString(ref)
		case val != "":
			out.WriteString(val)
		case hasDefault:
			out.WriteString(def)
		default:
			out.WriteString(ref)
		}
		i = end
		last = end + 1
	}
	out.WriteString(input[last:])
	return out.String()
}
