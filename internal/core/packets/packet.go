// Package packets defines the concrete protocol message types, their body
// codecs and the inbound decoder factory.
package packets

import (
	"github.com/gridsync/gridsync/internal/core/wire"
)

// Packet is one protocol message. Concrete types own their body layout;
// framing (header, tier tag, zero-coding, appended acks) belongs to the
// transport.
type Packet interface {
	// Tier is the frequency tier the type code lives in.
	Tier() wire.Tier
	// Type is the type code within the tier.
	Type() byte
	// Reliable reports whether the type is sent with delivery
	// confirmation by default.
	Reliable() bool
	// EncodeBody appends the body bytes, without tier tag, to dst.
	EncodeBody(dst []byte) ([]byte, error)
	// DecodeBody parses the body bytes following the tier tag.
	DecodeBody(body []byte) error
}

// Encode frames p for the wire: header, tier tag, body. Zero-coding is
// applied later by the sender, if at all.
func Encode(p Packet, h wire.Header) ([]byte, error) {
	return AppendFrame(make([]byte, 0, 64), p, h)
}

// AppendFrame is Encode into a caller-supplied buffer, for senders that
// recycle encode scratch.
func AppendFrame(dst []byte, p Packet, h wire.Header) ([]byte, error) {
	frame, err := h.AppendTo(dst)
	if err != nil {
		return nil, err
	}
	frame = wire.AppendTag(frame, p.Tier(), p.Type())
	return p.EncodeBody(frame)
}

// Vector3 is a protocol vector, three little-endian float32s on the wire.
type Vector3 struct {
	X, Y, Z float32
}

// Quaternion is a protocol rotation. Full layout is four float32s; the
// terse layout packs three components and derives W.
type Quaternion struct {
	X, Y, Z, W float32
}

// Identity is the no-rotation quaternion.
var Identity = Quaternion{W: 1}

func readVector3(r *wire.Reader) Vector3 {
	return Vector3{X: r.Float32(), Y: r.Float32(), Z: r.Float32()}
}

func appendVector3(dst []byte, v Vector3) []byte {
	dst = wire.AppendFloat32(dst, v.X)
	dst = wire.AppendFloat32(dst, v.Y)
	return wire.AppendFloat32(dst, v.Z)
}

func readQuaternion(r *wire.Reader) Quaternion {
	return Quaternion{X: r.Float32(), Y: r.Float32(), Z: r.Float32(), W: r.Float32()}
}

func appendQuaternion(dst []byte, q Quaternion) []byte {
	dst = wire.AppendFloat32(dst, q.X)
	dst = wire.AppendFloat32(dst, q.Y)
	dst = wire.AppendFloat32(dst, q.Z)
	return wire.AppendFloat32(dst, q.W)
}
