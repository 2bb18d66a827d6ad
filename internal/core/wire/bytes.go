package wire

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Body fields are little-endian; only the header sequence and the tier
// markers are big-endian on the wire.

var ErrShortBody = errors.New("wire: body too short")

// Reader is a cursor over a packet body with a latched error. After the
// first short read every subsequent call returns a zero value, so decoders
// can read a whole layout and check Err once.
type Reader struct {
	buf []byte
	off int
	err error
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Err() error     { return r.err }
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = ErrShortBody
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Uint8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Int8() int8 { return int8(r.Uint8()) }

func (r *Reader) Bool() bool { return r.Uint8() != 0 }

func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) Int16() int16 { return int16(r.Uint16()) }

func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) Int32() int32 { return int32(r.Uint32()) }

func (r *Reader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) Float32() float32 {
	return math.Float32frombits(r.Uint32())
}

// Bytes returns the next n bytes without copying.
func (r *Reader) Bytes(n int) []byte {
	return r.take(n)
}

// Rest consumes and returns everything left in the buffer.
func (r *Reader) Rest() []byte {
	if r.err != nil {
		return nil
	}
	b := r.buf[r.off:]
	r.off = len(r.buf)
	return b
}

// CString reads a null-terminated UTF-8 string, consuming the terminator.
func (r *Reader) CString() string {
	if r.err != nil {
		return ""
	}
	for i := r.off; i < len(r.buf); i++ {
		if r.buf[i] == 0 {
			s := string(r.buf[r.off:i])
			r.off = i + 1
			return s
		}
	}
	r.err = errors.New("wire: unterminated string")
	return ""
}

func (r *Reader) UUID() uuid.UUID {
	b := r.take(16)
	if b == nil {
		return uuid.Nil
	}
	var u uuid.UUID
	copy(u[:], b)
	return u
}

func AppendUint16(dst []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(dst, v)
}

func AppendUint32(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}

func AppendUint64(dst []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, v)
}

func AppendInt16(dst []byte, v int16) []byte {
	return AppendUint16(dst, uint16(v))
}

func AppendInt32(dst []byte, v int32) []byte {
	return AppendUint32(dst, uint32(v))
}

func AppendFloat32(dst []byte, v float32) []byte {
	return AppendUint32(dst, math.Float32bits(v))
}

func AppendBool(dst []byte, v bool) []byte {
	if v {
		return append(dst, 1)
	}
	return append(dst, 0)
}

func AppendCString(dst []byte, s string) []byte {
	return append(append(dst, s...), 0)
}

func AppendUUID(dst []byte, u uuid.UUID) []byte {
	return append(dst, u[:]...)
}
