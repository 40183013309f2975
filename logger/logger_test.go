package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}

	return entries
}

func TestNewZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologLogger(zerolog.New(&buf), "sensorstream", zerolog.InfoLevel)

	l.Debug("dropped")
	l.Info("connection established", Field{Key: "remote_addr", Value: "10.0.0.2:5000"})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "sensorstream", entries[0]["service"])
	assert.Equal(t, "connection established", entries[0]["message"])
	assert.Equal(t, "10.0.0.2:5000", entries[0]["remote_addr"])
	assert.Contains(t, entries[0], "time")
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologLogger(zerolog.New(&buf), "sensorstream", zerolog.DebugLevel)

	child := l.With(Field{Key: "session_id", Value: 7})
	child.Warn("idle timeout")
	l.Error("accept failed")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.EqualValues(t, 7, entries[0]["session_id"])
	assert.NotContains(t, entries[1], "session_id")
	assert.NoError(t, child.Close())
}

func TestParseLevel(t *testing.T) {
	t.Run("empty defaults to info", func(t *testing.T) {
		level, err := ParseLevel("")
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, level)
	})

	t.Run("case insensitive", func(t *testing.T) {
		level, err := ParseLevel(" DEBUG ")
		require.NoError(t, err)
		assert.Equal(t, zerolog.DebugLevel, level)
	})

	t.Run("unknown level", func(t *testing.T) {
		_, err := ParseLevel("loud")
		assert.Error(t, err)
	})
}

func TestNewFileLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	l, err := NewFileLogger("sensorstream", dir, zerolog.InfoLevel)
	require.NoError(t, err)

	l.Info("listening started")
	require.NoError(t, l.Close())
	assert.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(dir, "sensorstream.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "listening started")
}

func TestNewNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.Info("ignored", Field{Key: "k", Value: "v"})
	assert.NotNil(t, l.With(Field{Key: "k", Value: 1}))
	assert.NoError(t, l.Close())
}
