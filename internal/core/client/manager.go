// Package client ties circuits into a session: it owns the connection
// registry, fans inbound packets out to subscribers and exposes a bounded
// event queue to the application.
package client

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gridsync/gridsync/internal/core/circuit"
	"github.com/gridsync/gridsync/internal/core/observability/log"
	"github.com/gridsync/gridsync/internal/core/packets"
	"github.com/gridsync/gridsync/internal/core/wire"
)

// Handler receives one decoded inbound packet. Handlers run on the
// circuit's receive goroutine and must not block.
type Handler func(c *circuit.Circuit, p packets.Packet)

type subscription struct {
	id      string
	handler Handler
}

// Manager owns every circuit of a session. Packets are dispatched twice:
// to handlers registered by tier and type code, and onto the event queue,
// which drops its oldest entry when full rather than stalling a circuit.
type Manager struct {
	settings Settings
	creds    circuit.Credentials
	log      log.Log

	mu       sync.RWMutex
	circuits map[string]*circuit.Circuit
	// subs: tier -> type code -> subscription id -> subscription
	subs map[wire.Tier]map[byte]map[string]*subscription

	events  chan circuit.Event
	closed  atomic.Bool
	dropped atomic.Uint64
}

func NewManager(settings Settings, creds circuit.Credentials, logger log.Log) *Manager {
	if settings.EventQueueSize <= 0 {
		settings.EventQueueSize = DefaultSettings().EventQueueSize
	}
	return &Manager{
		settings: settings,
		creds:    creds,
		log:      logger.With(log.String("component", "client")),
		circuits: make(map[string]*circuit.Circuit),
		subs:     make(map[wire.Tier]map[byte]map[string]*subscription),
		events:   make(chan circuit.Event, settings.EventQueueSize),
	}
}

// Events is the session event queue: decoded packets, delivery failures
// and disconnects from every circuit.
func (m *Manager) Events() <-chan circuit.Event { return m.events }

// Dropped reports how many events were discarded because the queue was
// full.
func (m *Manager) Dropped() uint64 { return m.dropped.Load() }

// Connect opens a circuit to a simulator and blocks until its handshake
// completes. One circuit per simulator address.
func (m *Manager) Connect(ctx context.Context, remote string) (*circuit.Circuit, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}

	m.mu.Lock()
	if _, exists := m.circuits[remote]; exists {
		m.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	c := circuit.New(remote, m.creds, m.settings.Circuit, m.log, m.dispatch)
	m.circuits[remote] = c
	m.mu.Unlock()

	if err := c.Open(ctx); err != nil {
		m.forget(remote)
		return nil, err
	}
	m.log.Info("simulator connected", log.String("remote", remote))
	return c, nil
}

// Disconnect sends a logout notice on the circuit and closes it.
func (m *Manager) Disconnect(remote string) error {
	m.mu.RLock()
	c, ok := m.circuits[remote]
	m.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}

	if c.Connected() {
		logout := &packets.LogoutRequest{AgentID: m.creds.AgentID, SessionID: m.creds.SessionID}
		if err := c.Send(logout, true); err != nil {
			m.log.Debug("logout send failed", log.String("remote", remote), log.Error(err))
		}
	}
	err := c.Close()
	m.forget(remote)
	return err
}

// Circuit returns the circuit for a simulator address, if any.
func (m *Manager) Circuit(remote string) (*circuit.Circuit, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.circuits[remote]
	return c, ok
}

// Circuits returns a snapshot of all live circuits.
func (m *Manager) Circuits() []*circuit.Circuit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*circuit.Circuit, 0, len(m.circuits))
	for _, c := range m.circuits {
		out = append(out, c)
	}
	return out
}

// Close disconnects every circuit and shuts the manager down. Idempotent.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.mu.Lock()
	circuits := make([]*circuit.Circuit, 0, len(m.circuits))
	for _, c := range m.circuits {
		circuits = append(circuits, c)
	}
	m.circuits = make(map[string]*circuit.Circuit)
	m.mu.Unlock()

	for _, c := range circuits {
		_ = c.Close()
	}
	m.log.Info("client closed", log.Int("circuits", len(circuits)))
	return nil
}

// Subscribe registers a handler for one inbound packet type. The returned
// cancel func removes the registration; calling it twice is harmless.
func (m *Manager) Subscribe(tier wire.Tier, code byte, handler Handler) func() {
	id := uuid.NewString()
	s := &subscription{id: id, handler: handler}

	m.mu.Lock()
	if m.subs[tier] == nil {
		m.subs[tier] = make(map[byte]map[string]*subscription)
	}
	if m.subs[tier][code] == nil {
		m.subs[tier][code] = make(map[string]*subscription)
	}
	m.subs[tier][code][id] = s
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		if byCode, ok := m.subs[tier]; ok {
			if byID, ok := byCode[code]; ok {
				delete(byID, id)
			}
		}
		m.mu.Unlock()
	}
}

// dispatch is the sink every circuit reports into. Matching handlers run
// synchronously; the event then goes onto the queue, displacing the
// oldest entry if the application has fallen behind.
func (m *Manager) dispatch(e circuit.Event) {
	if e.Kind == circuit.EventPacket && e.Packet != nil {
		var handlers []*subscription
		m.mu.RLock()
		if byCode := m.subs[e.Packet.Tier()]; byCode != nil {
			if byID := byCode[e.Packet.Type()]; byID != nil {
				handlers = make([]*subscription, 0, len(byID))
				for _, s := range byID {
					handlers = append(handlers, s)
				}
			}
		}
		m.mu.RUnlock()
		for _, s := range handlers {
			s.handler(e.Circuit, e.Packet)
		}
	}

	if e.Kind == circuit.EventDisconnected && e.Circuit != nil {
		m.forget(e.Circuit.Remote())
	}

	for {
		select {
		case m.events <- e:
			return
		default:
		}
		select {
		case <-m.events:
			m.dropped.Add(1)
			m.log.Debug("event queue full, dropping oldest")
		default:
		}
	}
}

func (m *Manager) forget(remote string) {
	m.mu.Lock()
	delete(m.circuits, remote)
	m.mu.Unlock()
}
