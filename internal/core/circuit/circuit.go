// Package circuit implements one logical connection to a simulator: a UDP
// endpoint, the handshake state machine and the reliable-delivery engine.
package circuit

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/gridsync/gridsync/internal/core/observability/log"
	"github.com/gridsync/gridsync/internal/core/packets"
	"github.com/gridsync/gridsync/internal/core/wire"
	"github.com/gridsync/gridsync/pkg/generic"
)

// encodeBufs recycles encode scratch across all circuits. The zero-run
// pass copies into a fresh slice either way, so the scratch never escapes
// Send.
var encodeBufs = generic.NewHotPool(func() []byte { return make([]byte, 0, 256) }, 8)

// PacketConn is the connected datagram socket a circuit runs on.
// *net.UDPConn satisfies it; tests substitute an in-memory fake.
type PacketConn interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
	SetReadDeadline(t time.Time) error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Config carries the circuit timing and sizing knobs.
type Config struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ResendTimeout    time.Duration `yaml:"resend_timeout"`
	ResendInterval   time.Duration `yaml:"resend_interval"`
	BackoffFactor    float64       `yaml:"backoff_factor"`
	MaxResends       int           `yaml:"max_resends"`
	AckBatchDelay    time.Duration `yaml:"ack_batch_delay"`
	AckBatchMax      int           `yaml:"ack_batch_max"`
	MaxPacketSize    int           `yaml:"max_packet_size"`

	// Dial opens the datagram socket. Left nil, UDP is used.
	Dial func(remote string) (PacketConn, error) `yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 15 * time.Second,
		ResendTimeout:    4 * time.Second,
		ResendInterval:   500 * time.Millisecond,
		BackoffFactor:    3.0,
		MaxResends:       3,
		AckBatchDelay:    50 * time.Millisecond,
		AckBatchMax:      10,
		MaxPacketSize:    1200,
	}
}

func dialUDP(remote string) (PacketConn, error) {
	addr, err := net.ResolveUDPAddr("udp", remote)
	if err != nil {
		return nil, errors.Wrap(err, "resolving simulator address")
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, errors.Wrap(err, "dialing simulator")
	}
	return conn, nil
}

// Credentials are the login-derived scalars embedded into the opening
// handshake message.
type Credentials struct {
	AgentID     uuid.UUID
	SessionID   uuid.UUID
	CircuitCode uint32
}

// State is the handshake state machine position.
type State int32

const (
	StateDisconnected State = iota
	StateEndpointOpen
	StateAwaitingHandshake
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateEndpointOpen:
		return "endpoint_open"
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// EventKind classifies circuit events delivered to the sink.
type EventKind uint8

const (
	// EventPacket carries a decoded inbound packet.
	EventPacket EventKind = iota
	// EventDeliveryFailed reports a reliable message that exhausted its
	// resend budget. The circuit stays connected.
	EventDeliveryFailed
	// EventDisconnected reports circuit teardown, expected or not.
	EventDisconnected
)

// Event is one occurrence on a circuit. The sink must not block for long;
// the manager buffers with drop-oldest semantics.
type Event struct {
	Circuit  *Circuit
	Kind     EventKind
	Packet   packets.Packet
	Sequence uint32
	Err      error
}

// Stats is a snapshot of circuit counters.
type Stats struct {
	PacketsSent      uint64
	PacketsReceived  uint64
	Resends          uint64
	AcksSent         uint64
	AcksReceived     uint64
	DeliveryFailures uint64
	DecodeDrops      uint64
}

type pendingAck struct {
	frame     []byte
	firstSent time.Time
	resends   int
}

// Circuit is one client to simulator connection. All mutable transport
// state (sequence counter, pending table, ack queue) is guarded by mu and
// only ever touched by the circuit's own loops and Send.
type Circuit struct {
	remote string
	creds  Credentials
	cfg    Config
	log    log.Log
	sink   func(Event)

	conn   PacketConn
	state  atomic.Int32
	closed atomic.Bool

	group  *errgroup.Group
	cancel context.CancelFunc

	mu       sync.Mutex
	sequence uint32
	pending  map[uint32]*pendingAck
	ackQueue []uint32

	ackFull   chan struct{}
	handshake chan *packets.RegionHandshake

	packetsSent      atomic.Uint64
	packetsReceived  atomic.Uint64
	resends          atomic.Uint64
	acksSent         atomic.Uint64
	acksReceived     atomic.Uint64
	deliveryFailures atomic.Uint64
	decodeDrops      atomic.Uint64
}

// New creates a circuit for the given simulator address. The sink receives
// every decoded packet and every failure event; it must be non-nil.
func New(remote string, creds Credentials, cfg Config, logger log.Log, sink func(Event)) *Circuit {
	if cfg.Dial == nil {
		cfg.Dial = dialUDP
	}
	return &Circuit{
		remote:    remote,
		creds:     creds,
		cfg:       cfg,
		log:       logger.With(log.String("component", "circuit"), log.String("remote", remote)),
		sink:      sink,
		pending:   make(map[uint32]*pendingAck),
		ackFull:   make(chan struct{}, 1),
		handshake: make(chan *packets.RegionHandshake, 1),
	}
}

// Remote returns the simulator address the circuit is bound to.
func (c *Circuit) Remote() string { return c.remote }

// State returns the current handshake state.
func (c *Circuit) State() State { return State(c.state.Load()) }

func (c *Circuit) setState(s State) { c.state.Store(int32(s)) }

// Connected reports whether the handshake has completed.
func (c *Circuit) Connected() bool { return c.State() == StateConnected }

// Stats returns a snapshot of the circuit counters.
func (c *Circuit) Stats() Stats {
	return Stats{
		PacketsSent:      c.packetsSent.Load(),
		PacketsReceived:  c.packetsReceived.Load(),
		Resends:          c.resends.Load(),
		AcksSent:         c.acksSent.Load(),
		AcksReceived:     c.acksReceived.Load(),
		DeliveryFailures: c.deliveryFailures.Load(),
		DecodeDrops:      c.decodeDrops.Load(),
	}
}

// Open binds the endpoint, sends the opening reliable message and blocks
// until the region handshake arrives or the timeout elapses. On timeout or
// context cancellation the circuit is torn down and no loops survive.
func (c *Circuit) Open(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateEndpointOpen)) {
		return ErrAlreadyOpen
	}

	conn, err := c.cfg.Dial(c.remote)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}
	c.conn = conn

	loopCtx, cancel := context.WithCancel(context.Background())
	group, loopCtx := errgroup.WithContext(loopCtx)
	c.group, c.cancel = group, cancel
	group.Go(func() error { return c.receiveLoop(loopCtx) })
	group.Go(func() error { return c.resendLoop(loopCtx) })
	group.Go(func() error { return c.ackLoop(loopCtx) })

	c.setState(StateAwaitingHandshake)
	open := &packets.UseCircuitCode{
		CircuitCode: c.creds.CircuitCode,
		SessionID:   c.creds.SessionID,
		AgentID:     c.creds.AgentID,
	}
	if err = c.Send(open, true); err != nil {
		c.teardown(err)
		_ = group.Wait()
		return err
	}
	c.log.Info("circuit opening", log.Uint32("circuit_code", c.creds.CircuitCode))

	timer := time.NewTimer(c.cfg.HandshakeTimeout)
	defer timer.Stop()
	select {
	case hs := <-c.handshake:
		c.setState(StateConnected)
		c.completeHandshake()
		c.log.Info("circuit connected", log.String("sim", hs.SimName))
		return nil
	case <-timer.C:
		c.teardown(ErrHandshakeTimeout)
		_ = group.Wait()
		return ErrHandshakeTimeout
	case <-ctx.Done():
		c.teardown(ctx.Err())
		_ = group.Wait()
		return ctx.Err()
	}
}

// completeHandshake runs the fixed post-handshake send sequence. These are
// fire-and-forget; failures are logged, not fatal.
func (c *Circuit) completeHandshake() {
	reply := &packets.RegionHandshakeReply{
		AgentID:   c.creds.AgentID,
		SessionID: c.creds.SessionID,
	}
	movement := &packets.CompleteAgentMovement{
		AgentID:     c.creds.AgentID,
		SessionID:   c.creds.SessionID,
		CircuitCode: c.creds.CircuitCode,
	}
	throttle := &packets.AgentThrottle{
		AgentID:     c.creds.AgentID,
		SessionID:   c.creds.SessionID,
		CircuitCode: c.creds.CircuitCode,
	}
	throttle.SetRates(defaultThrottleRates)

	for _, p := range []packets.Packet{reply, movement, throttle, &packets.EconomyDataRequest{}} {
		if err := c.Send(p, p.Reliable()); err != nil {
			c.log.Warn("post-handshake send failed", log.Any("packet", p), log.Error(err))
		}
	}
}

// defaultThrottleRates is the initial bandwidth split in bytes per second:
// resend, land, wind, cloud, task, texture, asset.
var defaultThrottleRates = [7]float32{
	18000, 10500, 2500, 2500, 30500, 30500, 15500,
}

// Send encodes, sequences and transmits p. Reliable sends are tracked for
// retransmission until acknowledged. Zero-run compression is applied when
// it shrinks the frame.
func (c *Circuit) Send(p packets.Packet, reliable bool) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.State() == StateDisconnected {
		return ErrClosed
	}

	var flags byte
	if reliable {
		flags |= wire.FlagReliable
	}

	c.mu.Lock()
	seq := c.nextSequenceLocked()
	buf := encodeBufs.Get()
	raw, err := packets.AppendFrame(buf[:0], p, wire.Header{Flags: flags, Sequence: seq})
	if err != nil {
		encodeBufs.Put(buf)
		c.mu.Unlock()
		return errors.Wrap(err, "encoding packet")
	}
	frame := wire.ZeroEncodeFrame(raw)
	encodeBufs.Put(raw[:0])
	if len(frame) > c.cfg.MaxPacketSize {
		c.mu.Unlock()
		return errors.Wrapf(ErrPacketTooLarge, "%d bytes", len(frame))
	}
	if reliable {
		c.pending[seq] = &pendingAck{frame: frame, firstSent: time.Now()}
	}
	c.mu.Unlock()

	if _, err = c.conn.Write(frame); err != nil {
		return errors.Wrap(err, "sending packet")
	}
	c.packetsSent.Add(1)
	return nil
}

// nextSequenceLocked assigns the next outbound sequence number, wrapping
// inside 24 bits. Sequence zero is never used.
func (c *Circuit) nextSequenceLocked() uint32 {
	c.sequence++
	if c.sequence > wire.MaxSequence {
		c.sequence = 1
	}
	return c.sequence
}

// Close tears the circuit down: a best-effort close notice, loop
// cancellation, socket close. Idempotent.
func (c *Circuit) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.shutdown(nil)
	if c.group != nil {
		_ = c.group.Wait()
	}
	return nil
}

// teardown closes the circuit from an internal failure path. Unlike Close
// it never waits on the loop group, because a loop may be the caller.
func (c *Circuit) teardown(err error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.shutdown(err)
}

func (c *Circuit) shutdown(cause error) {
	if c.Connected() {
		// Best effort; the server also times circuits out.
		if frame, err := packets.Encode(&packets.CloseCircuit{}, wire.Header{Sequence: c.peekSequence()}); err == nil {
			_, _ = c.conn.Write(frame)
		}
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.setState(StateDisconnected)

	c.mu.Lock()
	c.pending = make(map[uint32]*pendingAck)
	c.ackQueue = nil
	c.mu.Unlock()

	if cause != nil {
		c.log.Warn("circuit down", log.Error(cause))
		c.sink(Event{Circuit: c, Kind: EventDisconnected, Err: cause})
	} else {
		c.log.Info("circuit closed")
		c.sink(Event{Circuit: c, Kind: EventDisconnected})
	}
}

func (c *Circuit) peekSequence() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextSequenceLocked()
}

// receiveLoop reads frames off the socket and hands them to handleFrame.
// Socket errors after close are expected; any other error tears the
// circuit down as a transport failure.
func (c *Circuit) receiveLoop(ctx context.Context) error {
	buf := make([]byte, c.cfg.MaxPacketSize+512)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, err := c.conn.Read(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if c.closed.Load() {
				return nil
			}
			c.teardown(errors.Wrap(err, "transport failure"))
			return err
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		c.handleFrame(frame)
	}
}
