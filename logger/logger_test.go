package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborloop/sync-go/logger"
)

func captureLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	return entry
}

func TestNewDefaultsToInfoOnBadLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithOutput("not-a-level", false, &buf)

	log.Debug().Msg("should be suppressed")
	assert.Empty(t, buf.String())

	log.Info().Msg("visible")
	entry := captureLine(t, &buf)
	assert.Equal(t, "visible", entry["message"])
}

func TestStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithOutput("debug", false, &buf)

	log.Info().
		Str("entity", "project").
		Int("count", 3).
		Bool("stale", true).
		Dur("elapsed", 250*time.Millisecond).
		Msg("fetched")

	entry := captureLine(t, &buf)
	assert.Equal(t, "project", entry["entity"])
	assert.Equal(t, float64(3), entry["count"])
	assert.Equal(t, true, entry["stale"])
	assert.Equal(t, "fetched", entry["message"])
}

func TestErrField(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithOutput("debug", false, &buf)

	log.Error().Err(errors.New("boom")).Msg("fetch failed")

	entry := captureLine(t, &buf)
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "error", entry["level"])
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithOutput("debug", false, &buf)

	scoped := log.WithFields(map[string]any{"workspace": "ws1"})
	scoped.Info().Msg("scoped")

	entry := captureLine(t, &buf)
	assert.Equal(t, "ws1", entry["workspace"])
}
