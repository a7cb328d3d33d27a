package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewAdapterWithWriter("info", "json", &buf)

	log.Error("poll failed", errors.New("boom"), "repository", "acme/api", "attempt", 2)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "poll failed", entry["message"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "acme/api", entry["repository"])
	assert.EqualValues(t, 2, entry["attempt"])
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := NewAdapterWithWriter("warn", "json", &buf)

	log.Debug("hidden")
	log.Info("hidden too")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestWithAddsPersistentFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewAdapterWithWriter("debug", "json", &buf).With("component", "poller")

	log.Debug("tick")
	assert.Contains(t, buf.String(), `"component":"poller"`)
}

func TestNopDiscards(t *testing.T) {
	log := NewNop()
	log.Info("nothing", "k", "v")
	log.Error("nothing", errors.New("x"))
}
