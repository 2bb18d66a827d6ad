// Package viewer provides a high-level session API over the grid UDP
// core: one avatar, one or more simulator circuits, typed callbacks for
// the common inbound messages.
package viewer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/gridsync/gridsync/internal/core/circuit"
	"github.com/gridsync/gridsync/internal/core/client"
	"github.com/gridsync/gridsync/internal/core/observability/log"
	"github.com/gridsync/gridsync/internal/core/packets"
	"github.com/gridsync/gridsync/internal/core/wire"
)

// Config carries everything a session needs: the login-derived
// credentials, the simulator address and optional settings.
type Config struct {
	SimulatorAddr string
	AgentID       uuid.UUID
	SessionID     uuid.UUID
	CircuitCode   uint32

	// SettingsPath points to an optional YAML settings file. Settings,
	// when non-nil, wins over the path.
	SettingsPath string
	Settings     *client.Settings

	// Logger overrides the default logger built from the settings level.
	Logger log.Log
}

// Session is one avatar's presence on the grid.
type Session struct {
	manager *client.Manager
	creds   circuit.Credentials
	addr    string
	logger  log.Log

	current atomic.Pointer[circuit.Circuit]
	closed  atomic.Bool
}

// New builds a session from config. The session owns its manager; Close
// releases everything.
func New(cfg Config) (*Session, error) {
	if cfg.SimulatorAddr == "" {
		return nil, ErrNoSimulator
	}
	if cfg.AgentID == uuid.Nil || cfg.SessionID == uuid.Nil {
		return nil, ErrNoCredentials
	}

	settings := client.DefaultSettings()
	switch {
	case cfg.Settings != nil:
		settings = *cfg.Settings
	case cfg.SettingsPath != "":
		var err error
		if settings, err = client.LoadSettingsFile(cfg.SettingsPath); err != nil {
			return nil, err
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.ParseLevel(settings.LogLevel))
	}

	creds := circuit.Credentials{
		AgentID:     cfg.AgentID,
		SessionID:   cfg.SessionID,
		CircuitCode: cfg.CircuitCode,
	}
	return &Session{
		manager: client.NewManager(settings, creds, logger),
		creds:   creds,
		addr:    cfg.SimulatorAddr,
		logger:  logger.With(log.String("component", "viewer")),
	}, nil
}

// Connect opens the circuit to the configured simulator and blocks until
// its handshake completes.
func (s *Session) Connect(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	c, err := s.manager.Connect(ctx, s.addr)
	if err != nil {
		return err
	}
	s.current.Store(c)
	return nil
}

// Close logs out and releases the session. Idempotent.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.manager.Disconnect(s.addr); err != nil && !errors.Is(err, client.ErrNotConnected) {
		s.logger.Warn("logout failed", log.Error(err))
	}
	return s.manager.Close()
}

// Events is the raw session event stream, for callers who want more than
// the typed callbacks.
func (s *Session) Events() <-chan circuit.Event { return s.manager.Events() }

// Connected reports whether the simulator handshake has completed.
func (s *Session) Connected() bool {
	c := s.current.Load()
	return c != nil && c.Connected()
}

// Stats returns the transport counters of the active circuit.
func (s *Session) Stats() (circuit.Stats, error) {
	c := s.current.Load()
	if c == nil {
		return circuit.Stats{}, client.ErrNotConnected
	}
	return c.Stats(), nil
}

func (s *Session) send(p packets.Packet, reliable bool) error {
	c := s.current.Load()
	if c == nil {
		return client.ErrNotConnected
	}
	return c.Send(p, reliable)
}

// Say speaks on the public chat channel at normal volume.
func (s *Session) Say(message string) error {
	return s.Chat(0, packets.ChatTypeNormal, message)
}

// Chat speaks on an arbitrary channel with the given chat type.
func (s *Session) Chat(channel int32, chatType byte, message string) error {
	return s.send(&packets.ChatFromViewer{
		Message:  message,
		Channel:  channel,
		ChatType: chatType,
	}, true)
}

// InstantMessage sends a direct message to another agent.
func (s *Session) InstantMessage(to uuid.UUID, message string) error {
	return s.send(&packets.ImprovedInstantMessage{
		FromAgentID: s.creds.AgentID,
		IMSessionID: s.creds.SessionID,
		Message:     message,
		Timestamp:   uint32(time.Now().Unix()),
		ToAgentID:   to,
	}, true)
}

// RequestWearables asks the simulator for the avatar's current outfit.
func (s *Session) RequestWearables() error {
	return s.send(&packets.AgentWearablesRequest{
		AgentID:   s.creds.AgentID,
		SessionID: s.creds.SessionID,
	}, true)
}

// UpdateAgent streams one movement and camera sample. The credential
// fields are filled in; everything else is the caller's.
func (s *Session) UpdateAgent(u packets.AgentUpdate) error {
	u.AgentID = s.creds.AgentID
	u.SessionID = s.creds.SessionID
	return s.send(&u, false)
}

// OnChat registers a callback for local chat. The returned func cancels
// the registration.
func (s *Session) OnChat(fn func(*packets.ChatFromSimulator)) func() {
	return s.manager.Subscribe(wire.Low, packets.LowChatFromSimulator,
		func(_ *circuit.Circuit, p packets.Packet) {
			fn(p.(*packets.ChatFromSimulator))
		})
}

// OnInstantMessage registers a callback for incoming direct messages.
func (s *Session) OnInstantMessage(fn func(*packets.ImprovedInstantMessage)) func() {
	return s.manager.Subscribe(wire.Low, packets.LowImprovedInstantMessage,
		func(_ *circuit.Circuit, p packets.Packet) {
			fn(p.(*packets.ImprovedInstantMessage))
		})
}

// OnObjectUpdate registers a callback for full object updates.
func (s *Session) OnObjectUpdate(fn func(*packets.ObjectUpdate)) func() {
	return s.manager.Subscribe(wire.High, packets.HighObjectUpdate,
		func(_ *circuit.Circuit, p packets.Packet) {
			fn(p.(*packets.ObjectUpdate))
		})
}

// OnTerseUpdate registers a callback for compressed motion updates.
func (s *Session) OnTerseUpdate(fn func(*packets.ImprovedTerseObjectUpdate)) func() {
	return s.manager.Subscribe(wire.High, packets.HighImprovedTerseObjectUpdate,
		func(_ *circuit.Circuit, p packets.Packet) {
			fn(p.(*packets.ImprovedTerseObjectUpdate))
		})
}

// OnWearables registers a callback for outfit updates, usually answering
// RequestWearables.
func (s *Session) OnWearables(fn func(*packets.AgentWearablesUpdate)) func() {
	return s.manager.Subscribe(wire.Medium, packets.MediumAgentWearablesUpdate,
		func(_ *circuit.Circuit, p packets.Packet) {
			fn(p.(*packets.AgentWearablesUpdate))
		})
}

// OnKillObject registers a callback for object removal notices.
func (s *Session) OnKillObject(fn func(*packets.KillObject)) func() {
	return s.manager.Subscribe(wire.Low, packets.LowKillObject,
		func(_ *circuit.Circuit, p packets.Packet) {
			fn(p.(*packets.KillObject))
		})
}
