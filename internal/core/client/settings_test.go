package client

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, 1024, s.EventQueueSize)
	assert.Equal(t, 4*time.Second, s.Circuit.ResendTimeout)
	assert.Equal(t, 3, s.Circuit.MaxResends)
}

func TestLoadSettingsPartialOverride(t *testing.T) {
	doc := `
log_level: debug
circuit:
  resend_timeout: 250ms
  max_resends: 5
`
	s, err := LoadSettings(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, 250*time.Millisecond, s.Circuit.ResendTimeout)
	assert.Equal(t, 5, s.Circuit.MaxResends)

	// Everything the document does not name keeps its default.
	assert.Equal(t, 1024, s.EventQueueSize)
	assert.Equal(t, 15*time.Second, s.Circuit.HandshakeTimeout)
	assert.Equal(t, 3.0, s.Circuit.BackoffFactor)
	assert.Equal(t, 1200, s.Circuit.MaxPacketSize)
}

func TestLoadSettingsBadDuration(t *testing.T) {
	doc := `
circuit:
  resend_timeout: soon
`
	_, err := LoadSettings(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resend_timeout")
}

func TestLoadSettingsFileMissing(t *testing.T) {
	_, err := LoadSettingsFile("/nonexistent/settings.yaml")
	require.Error(t, err)
}
