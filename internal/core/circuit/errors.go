package circuit

import "github.com/pkg/errors"

var (
	// ErrHandshakeTimeout means no region handshake arrived within the
	// configured window. Fatal for the circuit.
	ErrHandshakeTimeout = errors.New("circuit: handshake timeout")

	// ErrClosed is returned by operations on a closed circuit.
	ErrClosed = errors.New("circuit: closed")

	// ErrPacketTooLarge means the encoded frame exceeds the transport MTU
	// even after compression.
	ErrPacketTooLarge = errors.New("circuit: packet exceeds maximum size")

	// ErrAlreadyOpen is returned by Open on a circuit that is not in the
	// disconnected state.
	ErrAlreadyOpen = errors.New("circuit: already open")
)
