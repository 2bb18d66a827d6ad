// Package wire implements the byte-level protocol layer: the 4-byte frame
// header, the three frequency-tier type tags, the zero-run codec and the
// fixed-point quantization helpers.
package wire

import "github.com/pkg/errors"

// Header flag bits, byte 0 of every frame.
const (
	FlagAppendedAcks byte = 0x10
	FlagResent       byte = 0x20
	FlagReliable     byte = 0x40
	FlagZerocoded    byte = 0x80
)

const (
	// HeaderSize is the fixed frame header length: flags byte plus a
	// big-endian 24-bit sequence number.
	HeaderSize = 4

	// MaxSequence is the wrap boundary for the 24-bit sequence counter.
	MaxSequence uint32 = 0xFFFFFF
)

var (
	ErrShortFrame  = errors.New("wire: frame shorter than header")
	ErrBadSequence = errors.New("wire: sequence exceeds 24 bits")
)

// Header is the decoded form of the leading 4 bytes of a frame.
type Header struct {
	Flags    byte
	Sequence uint32
}

func (h Header) Reliable() bool     { return h.Flags&FlagReliable != 0 }
func (h Header) Resent() bool       { return h.Flags&FlagResent != 0 }
func (h Header) Zerocoded() bool    { return h.Flags&FlagZerocoded != 0 }
func (h Header) AppendedAcks() bool { return h.Flags&FlagAppendedAcks != 0 }

// ParseHeader decodes the leading 4 bytes of a frame.
func ParseHeader(frame []byte) (Header, error) {
	if len(frame) < HeaderSize {
		return Header{}, ErrShortFrame
	}
	return Header{
		Flags:    frame[0],
		Sequence: uint32(frame[1])<<16 | uint32(frame[2])<<8 | uint32(frame[3]),
	}, nil
}

// AppendTo appends the 4-byte encoding of h to dst.
func (h Header) AppendTo(dst []byte) ([]byte, error) {
	if h.Sequence > MaxSequence {
		return dst, ErrBadSequence
	}
	return append(dst, h.Flags, byte(h.Sequence>>16), byte(h.Sequence>>8), byte(h.Sequence)), nil
}

// Tier is the frequency tier of a packet type, trading type-ID space
// against per-frame overhead.
type Tier uint8

const (
	High Tier = iota
	Medium
	Low
)

func (t Tier) String() string {
	switch t {
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	default:
		return "unknown"
	}
}

// TagSize returns the encoded length of the tier marker plus type byte.
func (t Tier) TagSize() int {
	if t == High {
		return 1
	}
	return 4
}

// AppendTag appends the tier marker and type byte to dst. High tier has no
// marker; the type code itself is the first body byte.
func AppendTag(dst []byte, tier Tier, code byte) []byte {
	switch tier {
	case Medium:
		return append(dst, 0xFF, 0xFF, 0xFE, code)
	case Low:
		return append(dst, 0xFF, 0xFF, 0xFF, code)
	default:
		return append(dst, code)
	}
}

// ParseTag reads the type tag at the start of body and returns the tier,
// the type code and the number of bytes consumed. Marker bytes take
// priority: a body starting FF FF FF or FF FF FE is never interpreted as a
// high-tier type.
func ParseTag(body []byte) (Tier, byte, int, error) {
	if len(body) == 0 {
		return High, 0, 0, errors.New("wire: empty body")
	}
	if len(body) >= 4 && body[0] == 0xFF && body[1] == 0xFF {
		switch body[2] {
		case 0xFF:
			return Low, body[3], 4, nil
		case 0xFE:
			return Medium, body[3], 4, nil
		}
	}
	return High, body[0], 1, nil
}
