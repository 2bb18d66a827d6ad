package viewer

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsync/gridsync/internal/core/client"
	"github.com/gridsync/gridsync/internal/core/observability/log"
)

func validConfig() Config {
	return Config{
		SimulatorAddr: "sim.example:13000",
		AgentID:       uuid.New(),
		SessionID:     uuid.New(),
		CircuitCode:   99,
		Logger:        log.Nop(),
	}
}

func TestNewValidation(t *testing.T) {
	cfg := validConfig()
	cfg.SimulatorAddr = ""
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrNoSimulator)

	cfg = validConfig()
	cfg.AgentID = uuid.Nil
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrNoCredentials)

	s, err := New(validConfig())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	assert.False(t, s.Connected())
}

func TestSendBeforeConnect(t *testing.T) {
	s, err := New(validConfig())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.ErrorIs(t, s.Say("hello"), client.ErrNotConnected)
	assert.ErrorIs(t, s.RequestWearables(), client.ErrNotConnected)
	_, err = s.Stats()
	assert.ErrorIs(t, err, client.ErrNotConnected)
}

func TestCloseIdempotent(t *testing.T) {
	s, err := New(validConfig())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Connect(context.Background()), ErrSessionClosed)
}
