package packets

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/gridsync/gridsync/internal/core/wire"
)

// ObjectUpdate announces full object state for one or more objects.
type ObjectUpdate struct {
	RegionHandle uint64
	TimeDilation uint16
	Blocks       []ObjectBlock
}

// ObjectBlock is one object's worth of an ObjectUpdate. ObjectData is the
// type-dependent motion payload, kept opaque at the transport layer.
type ObjectBlock struct {
	LocalID    uint32
	State      byte
	FullID     uuid.UUID
	CRC        uint32
	PCode      byte
	Material   byte
	Scale      Vector3
	ObjectData []byte
}

func (*ObjectUpdate) Tier() wire.Tier { return wire.High }
func (*ObjectUpdate) Type() byte      { return HighObjectUpdate }
func (*ObjectUpdate) Reliable() bool  { return false }

func (p *ObjectUpdate) EncodeBody(dst []byte) ([]byte, error) {
	if len(p.Blocks) > 255 {
		return dst, errors.New("packets: too many object blocks")
	}
	dst = wire.AppendUint64(dst, p.RegionHandle)
	dst = wire.AppendUint16(dst, p.TimeDilation)
	dst = append(dst, byte(len(p.Blocks)))
	for _, b := range p.Blocks {
		if len(b.ObjectData) > 255 {
			return dst, errors.New("packets: object data too long")
		}
		dst = wire.AppendUint32(dst, b.LocalID)
		dst = append(dst, b.State)
		dst = wire.AppendUUID(dst, b.FullID)
		dst = wire.AppendUint32(dst, b.CRC)
		dst = append(dst, b.PCode, b.Material)
		dst = appendVector3(dst, b.Scale)
		dst = append(dst, byte(len(b.ObjectData)))
		dst = append(dst, b.ObjectData...)
	}
	return dst, nil
}

func (p *ObjectUpdate) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.RegionHandle = r.Uint64()
	p.TimeDilation = r.Uint16()
	count := int(r.Uint8())
	p.Blocks = make([]ObjectBlock, 0, count)
	for i := 0; i < count; i++ {
		var b ObjectBlock
		b.LocalID = r.Uint32()
		b.State = r.Uint8()
		b.FullID = r.UUID()
		b.CRC = r.Uint32()
		b.PCode = r.Uint8()
		b.Material = r.Uint8()
		b.Scale = readVector3(r)
		n := int(r.Uint8())
		b.ObjectData = r.Bytes(n)
		if r.Err() != nil {
			return r.Err()
		}
		p.Blocks = append(p.Blocks, b)
	}
	return r.Err()
}

// ImprovedTerseObjectUpdate carries compressed motion deltas. Each block's
// data length is one byte, or two when the first byte has its MSB set.
type ImprovedTerseObjectUpdate struct {
	RegionHandle uint64
	TimeDilation uint16
	Blocks       []TerseBlock
}

// TerseBlock holds one object's raw motion payload; DecodeMotion unpacks
// the quantized fields.
type TerseBlock struct {
	LocalID    uint32
	UpdateType byte
	Data       []byte
}

func (*ImprovedTerseObjectUpdate) Tier() wire.Tier { return wire.High }
func (*ImprovedTerseObjectUpdate) Type() byte      { return HighImprovedTerseObjectUpdate }
func (*ImprovedTerseObjectUpdate) Reliable() bool  { return false }

func (p *ImprovedTerseObjectUpdate) EncodeBody(dst []byte) ([]byte, error) {
	dst = wire.AppendUint64(dst, p.RegionHandle)
	dst = wire.AppendUint16(dst, p.TimeDilation)
	for _, b := range p.Blocks {
		if len(b.Data) >= 1<<15 {
			return dst, errors.New("packets: terse data too long")
		}
		dst = wire.AppendUint32(dst, b.LocalID)
		dst = append(dst, b.UpdateType)
		if len(b.Data) < 0x80 {
			dst = append(dst, byte(len(b.Data)))
		} else {
			dst = append(dst, byte(len(b.Data)>>8)|0x80, byte(len(b.Data)))
		}
		dst = append(dst, b.Data...)
	}
	return dst, nil
}

func (p *ImprovedTerseObjectUpdate) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.RegionHandle = r.Uint64()
	p.TimeDilation = r.Uint16()
	p.Blocks = nil
	for r.Err() == nil && r.Remaining() > 0 {
		var b TerseBlock
		b.LocalID = r.Uint32()
		b.UpdateType = r.Uint8()
		n := int(r.Uint8())
		if n&0x80 != 0 {
			n = (n&0x7F)<<8 | int(r.Uint8())
		}
		b.Data = r.Bytes(n)
		if r.Err() != nil {
			return r.Err()
		}
		p.Blocks = append(p.Blocks, b)
	}
	return r.Err()
}

// TerseMotion is the unpacked form of a terse block's data payload.
type TerseMotion struct {
	State           byte
	Avatar          bool
	CollisionPlane  [4]float32
	Position        Vector3
	Velocity        Vector3
	Acceleration    Vector3
	Rotation        Quaternion
	AngularVelocity Vector3
}

// DecodeMotion unpacks the quantized motion fields: position as three raw
// float32s, velocity and acceleration as 16-bit quantized components,
// rotation as the 3-component packing with W derived.
func (b *TerseBlock) DecodeMotion() (TerseMotion, error) {
	var m TerseMotion
	r := wire.NewReader(b.Data)
	m.State = r.Uint8()
	m.Avatar = r.Bool()
	if m.Avatar {
		for i := range m.CollisionPlane {
			m.CollisionPlane[i] = r.Float32()
		}
	}
	m.Position = readVector3(r)
	m.Velocity = readPackedVector3(r, wire.VelocityRange)
	m.Acceleration = readPackedVector3(r, wire.AngularRange)
	x, y, z, w, err := wire.PackedQuaternion(r.Bytes(6))
	if err != nil {
		return m, err
	}
	m.Rotation = Quaternion{X: x, Y: y, Z: z, W: w}
	m.AngularVelocity = readPackedVector3(r, wire.AngularRange)
	return m, r.Err()
}

func readPackedVector3(r *wire.Reader, rg wire.Range) Vector3 {
	return Vector3{
		X: wire.Uint16ToFloat(r.Uint16(), rg.Min, rg.Max),
		Y: wire.Uint16ToFloat(r.Uint16(), rg.Min, rg.Max),
		Z: wire.Uint16ToFloat(r.Uint16(), rg.Min, rg.Max),
	}
}
