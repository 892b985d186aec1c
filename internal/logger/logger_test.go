package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := Component(New(Options{Level: "debug", Output: &buf}), "session")

	l.Debug().Str("guild", "g1").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "session", entry["component"])
	assert.Equal(t, "g1", entry["guild"])
	assert.Equal(t, "hello", entry["message"])
}

func TestNewLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Output: &buf})

	l.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	l.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewBadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "loud", Output: &buf})

	l.Debug().Msg("dropped")
	l.Info().Msg("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}
