package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"admission-gateway/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONWithServiceField(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LogConfig{Level: "info", Service: "edge"}, &buf)
	require.NoError(t, err)

	logger.Debug().Msg("hidden")
	logger.Info().Str("client", "9.9.9.9").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "edge", entry["service"])
	assert.Equal(t, "9.9.9.9", entry["client"])
	assert.Contains(t, entry, "time")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LogConfig{Level: "DEBUG", Format: "console"}, &buf)
	require.NoError(t, err)

	logger.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "service=")
	assert.Contains(t, buf.String(), "gateway")
}

func TestNew_RejectsBadInput(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"}, nil)
	assert.Error(t, err)

	_, err = New(config.LogConfig{Format: "xml"}, nil)
	assert.Error(t, err)
}
