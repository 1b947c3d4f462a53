package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesJSONLines(t *testing.T) {
	var term, js bytes.Buffer
	l := New(&term, &js, DEBUG)

	l.LogSlot("claim", 42, "reserved by u1")
	l.Warn("quota", "shrinking")

	lines := strings.Split(strings.TrimSpace(js.String()), "\n")
	require.Len(t, lines, 2)

	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "SLOT", entry.Category)
	assert.Contains(t, entry.Message, "slot=42")

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "WARN", entry.Level)
	assert.Equal(t, "QUOTA", entry.Category)

	assert.Contains(t, term.String(), "reserved by u1")
}

func TestLogger_LevelFilter(t *testing.T) {
	var js bytes.Buffer
	l := New(nil, &js, WARN)

	l.Debug("x", "hidden")
	l.Info("x", "hidden")
	l.Error("x", "shown")

	assert.Equal(t, 1, strings.Count(js.String(), "\n"))
	assert.Contains(t, js.String(), "shown")
}

func TestLogger_FatalExits(t *testing.T) {
	var code int
	l := New(nil, nil, DEBUG)
	l.exit = func(c int) { code = c }

	l.Fatal("boot", "cannot start")
	assert.Equal(t, 1, code)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("verbose"))
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() { l.Info("x", "y"); l.Close() })
}
