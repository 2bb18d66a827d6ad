package client

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsync/gridsync/internal/core/circuit"
	"github.com/gridsync/gridsync/internal/core/observability/log"
	"github.com/gridsync/gridsync/internal/core/packets"
	"github.com/gridsync/gridsync/internal/core/wire"
)

type stubAddr string

func (a stubAddr) Network() string { return "udp" }
func (a stubAddr) String() string  { return string(a) }

type stubTimeout struct{}

func (stubTimeout) Error() string   { return "i/o timeout" }
func (stubTimeout) Timeout() bool   { return true }
func (stubTimeout) Temporary() bool { return true }

// stubConn plays a minimal simulator: it answers the opening message with
// a region handshake and acks every reliable frame.
type stubConn struct {
	mu       sync.Mutex
	inbound  chan []byte
	deadline time.Time
	closed   chan struct{}
	once     sync.Once
	peerSeq  atomic.Uint32
}

func newStubConn() *stubConn {
	return &stubConn{
		inbound: make(chan []byte, 256),
		closed:  make(chan struct{}),
	}
}

func (s *stubConn) deliver(frame []byte) {
	select {
	case s.inbound <- frame:
	case <-s.closed:
	}
}

func (s *stubConn) deliverPacket(t *testing.T, p packets.Packet, flags byte) {
	t.Helper()
	frame, err := packets.Encode(p, wire.Header{Flags: flags, Sequence: s.peerSeq.Add(1)})
	require.NoError(t, err)
	s.deliver(frame)
}

func (s *stubConn) Read(b []byte) (int, error) {
	s.mu.Lock()
	deadline := s.deadline
	s.mu.Unlock()

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		d := time.Until(deadline)
		if d <= 0 {
			return 0, stubTimeout{}
		}
		tm := time.NewTimer(d)
		defer tm.Stop()
		timeout = tm.C
	}
	select {
	case frame := <-s.inbound:
		return copy(b, frame), nil
	case <-s.closed:
		return 0, net.ErrClosed
	case <-timeout:
		return 0, stubTimeout{}
	}
}

func (s *stubConn) Write(b []byte) (int, error) {
	h, err := wire.ParseHeader(b)
	if err != nil {
		return 0, err
	}
	frame := b
	if h.Zerocoded() {
		if frame, err = wire.ZeroDecode(b); err != nil {
			return 0, err
		}
	}
	tier, code, _, err := wire.ParseTag(frame[wire.HeaderSize:])
	if err != nil {
		return 0, err
	}

	if tier == wire.Low && code == packets.LowUseCircuitCode && !h.Resent() {
		hs, err := packets.Encode(&packets.RegionHandshake{SimName: "Stub"},
			wire.Header{Sequence: s.peerSeq.Add(1)})
		if err != nil {
			return 0, err
		}
		s.deliver(hs)
	}
	if h.Reliable() {
		ack, err := packets.Encode(&packets.PacketAck{Sequences: []uint32{h.Sequence}},
			wire.Header{Sequence: s.peerSeq.Add(1)})
		if err != nil {
			return 0, err
		}
		s.deliver(ack)
	}
	return len(b), nil
}

func (s *stubConn) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *stubConn) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	s.deadline = t
	s.mu.Unlock()
	return nil
}

func (s *stubConn) LocalAddr() net.Addr  { return stubAddr("client") }
func (s *stubConn) RemoteAddr() net.Addr { return stubAddr("sim") }

func testSettings(conns map[string]*stubConn) Settings {
	s := DefaultSettings()
	s.Circuit.HandshakeTimeout = 500 * time.Millisecond
	s.Circuit.ResendTimeout = 50 * time.Millisecond
	s.Circuit.ResendInterval = 10 * time.Millisecond
	s.Circuit.BackoffFactor = 1.0
	s.Circuit.AckBatchDelay = 10 * time.Millisecond
	s.Circuit.Dial = func(remote string) (circuit.PacketConn, error) {
		conn, ok := conns[remote]
		if !ok {
			return nil, ErrNotConnected
		}
		return conn, nil
	}
	return s
}

func newTestManager(conns map[string]*stubConn) *Manager {
	creds := circuit.Credentials{
		AgentID:     uuid.New(),
		SessionID:   uuid.New(),
		CircuitCode: 7,
	}
	return NewManager(testSettings(conns), creds, log.Nop())
}

func TestConnectAndDispatch(t *testing.T) {
	conn := newStubConn()
	m := newTestManager(map[string]*stubConn{"sim-a:13000": conn})
	defer func() { _ = m.Close() }()

	var got atomic.Value
	m.Subscribe(wire.Low, packets.LowChatFromSimulator, func(_ *circuit.Circuit, p packets.Packet) {
		got.Store(p)
	})

	c, err := m.Connect(context.Background(), "sim-a:13000")
	require.NoError(t, err)
	require.True(t, c.Connected())

	conn.deliverPacket(t, &packets.ChatFromSimulator{FromName: "sim", Message: "welcome"}, 0)

	require.Eventually(t, func() bool {
		p, _ := got.Load().(*packets.ChatFromSimulator)
		return p != nil && p.Message == "welcome"
	}, time.Second, 5*time.Millisecond)

	// The same packet is also visible on the event queue.
	require.Eventually(t, func() bool {
		for {
			select {
			case e := <-m.Events():
				if p, ok := e.Packet.(*packets.ChatFromSimulator); ok && p.Message == "welcome" {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 5*time.Millisecond)
}

func TestConnectDuplicate(t *testing.T) {
	conn := newStubConn()
	m := newTestManager(map[string]*stubConn{"sim-a:13000": conn})
	defer func() { _ = m.Close() }()

	_, err := m.Connect(context.Background(), "sim-a:13000")
	require.NoError(t, err)

	_, err = m.Connect(context.Background(), "sim-a:13000")
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestDisconnect(t *testing.T) {
	conn := newStubConn()
	m := newTestManager(map[string]*stubConn{"sim-a:13000": conn})
	defer func() { _ = m.Close() }()

	_, err := m.Connect(context.Background(), "sim-a:13000")
	require.NoError(t, err)

	require.NoError(t, m.Disconnect("sim-a:13000"))
	_, ok := m.Circuit("sim-a:13000")
	assert.False(t, ok)
	assert.ErrorIs(t, m.Disconnect("sim-a:13000"), ErrNotConnected)

	// The address is free for a fresh circuit again.
	conns := map[string]*stubConn{"sim-a:13000": newStubConn()}
	m2 := newTestManager(conns)
	defer func() { _ = m2.Close() }()
	_, err = m2.Connect(context.Background(), "sim-a:13000")
	require.NoError(t, err)
}

func TestSubscribeCancel(t *testing.T) {
	conn := newStubConn()
	m := newTestManager(map[string]*stubConn{"sim-a:13000": conn})
	defer func() { _ = m.Close() }()

	var calls atomic.Int32
	cancel := m.Subscribe(wire.Low, packets.LowChatFromSimulator, func(*circuit.Circuit, packets.Packet) {
		calls.Add(1)
	})

	_, err := m.Connect(context.Background(), "sim-a:13000")
	require.NoError(t, err)

	conn.deliverPacket(t, &packets.ChatFromSimulator{Message: "one"}, 0)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	cancel() // second cancel is harmless
	conn.deliverPacket(t, &packets.ChatFromSimulator{Message: "two"}, 0)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEventQueueDropsOldest(t *testing.T) {
	conn := newStubConn()
	settings := testSettings(map[string]*stubConn{"sim-a:13000": conn})
	settings.EventQueueSize = 2
	m := NewManager(settings, circuit.Credentials{CircuitCode: 7}, log.Nop())
	defer func() { _ = m.Close() }()

	_, err := m.Connect(context.Background(), "sim-a:13000")
	require.NoError(t, err)

	// Handshake fills one slot; five more packets overflow the queue.
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		conn.deliverPacket(t, &packets.ChatFromSimulator{Message: msg}, 0)
	}

	require.Eventually(t, func() bool {
		return m.Dropped() >= 4
	}, time.Second, 5*time.Millisecond)

	// The newest event survived.
	var messages []string
drain:
	for {
		select {
		case e := <-m.Events():
			if p, ok := e.Packet.(*packets.ChatFromSimulator); ok {
				messages = append(messages, p.Message)
			}
		default:
			break drain
		}
	}
	require.NotEmpty(t, messages)
	assert.Equal(t, "e", messages[len(messages)-1])
	assert.LessOrEqual(t, len(messages), 2)
}

func TestManagerClosed(t *testing.T) {
	m := newTestManager(map[string]*stubConn{})
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.Connect(context.Background(), "sim-a:13000")
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestDisconnectedCircuitForgotten(t *testing.T) {
	conn := newStubConn()
	m := newTestManager(map[string]*stubConn{"sim-a:13000": conn})
	defer func() { _ = m.Close() }()

	c, err := m.Connect(context.Background(), "sim-a:13000")
	require.NoError(t, err)

	// Transport death must unregister the circuit.
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		_, ok := m.Circuit("sim-a:13000")
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, circuit.StateDisconnected, c.State())
}
