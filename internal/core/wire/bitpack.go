package wire

import (
	"math"

	"github.com/pkg/errors"
)

var ErrBitsExhausted = errors.New("wire: bit stream exhausted")

// BitReader extracts bit fields from a byte slice, MSB first within each
// byte. Used for the densely packed motion blocks of terse object updates.
type BitReader struct {
	buf []byte
	pos uint // bit offset
	err error
}

func NewBitReader(buf []byte) *BitReader {
	return &BitReader{buf: buf}
}

func (b *BitReader) Err() error { return b.err }

// Bits reads n (<= 32) bits as an unsigned integer.
func (b *BitReader) Bits(n uint) uint32 {
	if b.err != nil || n == 0 {
		return 0
	}
	if n > 32 {
		b.err = errors.New("wire: bit field wider than 32")
		return 0
	}
	if b.pos+n > uint(len(b.buf))*8 {
		b.err = ErrBitsExhausted
		return 0
	}
	var v uint32
	for i := uint(0); i < n; i++ {
		byteIdx := (b.pos + i) / 8
		bitIdx := 7 - (b.pos+i)%8
		v = v<<1 | uint32(b.buf[byteIdx]>>bitIdx)&1
	}
	b.pos += n
	return v
}

// SignedBits reads n bits and sign-extends on the MSB.
func (b *BitReader) SignedBits(n uint) int32 {
	v := b.Bits(n)
	if n == 0 || n > 32 {
		return 0
	}
	if v&(1<<(n-1)) != 0 {
		return int32(v) - int32(1)<<n
	}
	return int32(v)
}

// Unpack reads one quantized field described by r.
func (b *BitReader) Unpack(r Range) float32 {
	return Dequantize(b.Bits(r.Bits), r)
}

// PackedQuaternion decodes the protocol's 3-component rotation packing:
// x, y, z each as a 16-bit signed little-endian integer scaled by 32767,
// with w reconstructed from the unit-length constraint. The sign of w is
// fixed positive by protocol agreement.
func PackedQuaternion(buf []byte) (x, y, z, w float32, err error) {
	if len(buf) < 6 {
		return 0, 0, 0, 0, ErrShortBody
	}
	r := NewReader(buf)
	x = float32(r.Int16()) / 32767.0
	y = float32(r.Int16()) / 32767.0
	z = float32(r.Int16()) / 32767.0
	sum := float64(x*x + y*y + z*z)
	if sum > 1 {
		norm := float32(math.Sqrt(sum))
		x, y, z = x/norm, y/norm, z/norm
		sum = 1
	}
	w = float32(math.Sqrt(1 - sum))
	return x, y, z, w, nil
}
