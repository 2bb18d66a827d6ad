package packets

import (
	"github.com/google/uuid"

	"github.com/gridsync/gridsync/internal/core/wire"
)

// AgentUpdate streams the avatar's rotation, camera frame and control
// inputs. Highest-volume outbound type, always unreliable.
type AgentUpdate struct {
	AgentID      uuid.UUID
	SessionID    uuid.UUID
	BodyRotation Quaternion
	HeadRotation Quaternion
	CameraCenter Vector3
	CameraAt     Vector3
	CameraLeft   Vector3
	CameraUp     Vector3
	Far          float32
	ControlFlags uint32
	Flags        byte
	State        byte
}

func (*AgentUpdate) Tier() wire.Tier { return wire.High }
func (*AgentUpdate) Type() byte      { return HighAgentUpdate }
func (*AgentUpdate) Reliable() bool  { return false }

func (p *AgentUpdate) EncodeBody(dst []byte) ([]byte, error) {
	dst = wire.AppendUUID(dst, p.AgentID)
	dst = wire.AppendUUID(dst, p.SessionID)
	dst = appendQuaternion(dst, p.BodyRotation)
	dst = appendQuaternion(dst, p.HeadRotation)
	dst = appendVector3(dst, p.CameraCenter)
	dst = appendVector3(dst, p.CameraAt)
	dst = appendVector3(dst, p.CameraLeft)
	dst = appendVector3(dst, p.CameraUp)
	dst = wire.AppendFloat32(dst, p.Far)
	dst = wire.AppendUint32(dst, p.ControlFlags)
	return append(dst, p.Flags, p.State), nil
}

func (p *AgentUpdate) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.AgentID = r.UUID()
	p.SessionID = r.UUID()
	p.BodyRotation = readQuaternion(r)
	p.HeadRotation = readQuaternion(r)
	p.CameraCenter = readVector3(r)
	p.CameraAt = readVector3(r)
	p.CameraLeft = readVector3(r)
	p.CameraUp = readVector3(r)
	p.Far = r.Float32()
	p.ControlFlags = r.Uint32()
	p.Flags = r.Uint8()
	p.State = r.Uint8()
	return r.Err()
}

// AgentMovementComplete confirms the avatar's arrival in the region,
// carrying the authoritative spawn position.
type AgentMovementComplete struct {
	AgentID      uuid.UUID
	SessionID    uuid.UUID
	Position     Vector3
	LookAt       Vector3
	RegionHandle uint64
	Timestamp    uint32
}

func (*AgentMovementComplete) Tier() wire.Tier { return wire.Low }
func (*AgentMovementComplete) Type() byte      { return LowAgentMovementComplete }
func (*AgentMovementComplete) Reliable() bool  { return false }

func (p *AgentMovementComplete) EncodeBody(dst []byte) ([]byte, error) {
	dst = wire.AppendUUID(dst, p.AgentID)
	dst = wire.AppendUUID(dst, p.SessionID)
	dst = appendVector3(dst, p.Position)
	dst = appendVector3(dst, p.LookAt)
	dst = wire.AppendUint64(dst, p.RegionHandle)
	return wire.AppendUint32(dst, p.Timestamp), nil
}

func (p *AgentMovementComplete) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.AgentID = r.UUID()
	p.SessionID = r.UUID()
	p.Position = readVector3(r)
	p.LookAt = readVector3(r)
	p.RegionHandle = r.Uint64()
	p.Timestamp = r.Uint32()
	return r.Err()
}
