package packets

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/gridsync/gridsync/internal/core/wire"
)

// Low-frequency type codes.
const (
	LowUseCircuitCode         byte = 0x01
	LowRegionHandshake        byte = 0x04
	LowRegionHandshakeReply   byte = 0x05
	LowCompleteAgentMovement  byte = 0x07
	LowAgentMovementComplete  byte = 0x08
	LowLogoutRequest          byte = 0x09
	LowCloseCircuit           byte = 0x0A
	LowEconomyDataRequest     byte = 0x0B
	LowKillObject             byte = 0x0B
	LowChatFromSimulator      byte = 0x2C
	LowChatFromViewer         byte = 0x2E
	LowImprovedInstantMessage byte = 0x36
	LowAgentThrottle          byte = 0x51
	LowTransferPacket         byte = 0x22
	LowTransferInfo           byte = 0x23
	LowRequestXfer            byte = 0x24
	LowSendXfer               byte = 0x25
	LowConfirmXfer            byte = 0x26
	LowAssetUploadComplete    byte = 0x28
	LowPacketAck              byte = 0xF4
)

// Medium-frequency type codes.
const (
	MediumAgentWearablesUpdate  byte = 0xCE
	MediumAgentWearablesRequest byte = 0xCF
)

// High-frequency type codes.
const (
	HighStartPingCheck            byte = 0x01
	HighCompletePingCheck         byte = 0x02
	HighAgentUpdate               byte = 0x04
	HighObjectUpdate              byte = 0x05
	HighImprovedTerseObjectUpdate byte = 0x07
)

// ThrottleBufferSize is the fixed length of the AgentThrottle rate buffer,
// seven little-endian float32 rates in bytes per second.
const ThrottleBufferSize = 28

// UseCircuitCode opens a circuit: the first reliable message on a fresh
// endpoint, carrying the login-derived identifiers.
type UseCircuitCode struct {
	CircuitCode uint32
	SessionID   uuid.UUID
	AgentID     uuid.UUID
}

func (*UseCircuitCode) Tier() wire.Tier { return wire.Low }
func (*UseCircuitCode) Type() byte      { return LowUseCircuitCode }
func (*UseCircuitCode) Reliable() bool  { return true }

func (p *UseCircuitCode) EncodeBody(dst []byte) ([]byte, error) {
	dst = wire.AppendUint32(dst, p.CircuitCode)
	dst = wire.AppendUUID(dst, p.SessionID)
	return wire.AppendUUID(dst, p.AgentID), nil
}

func (p *UseCircuitCode) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.CircuitCode = r.Uint32()
	p.SessionID = r.UUID()
	p.AgentID = r.UUID()
	return r.Err()
}

// RegionHandshake is the server's reply to UseCircuitCode and promotes
// the circuit to connected.
type RegionHandshake struct {
	RegionFlags    uint32
	SimAccess      byte
	SimName        string
	SimOwner       uuid.UUID
	TerrainBase    [4]float32
	TerrainDetail  [4]float32
	WaterHeight    float32
	BillableFactor float32
	CacheID        uuid.UUID
	TerrainStartX  float32
	TerrainStartY  float32
	RegionID       uuid.UUID
}

func (*RegionHandshake) Tier() wire.Tier { return wire.Low }
func (*RegionHandshake) Type() byte      { return LowRegionHandshake }
func (*RegionHandshake) Reliable() bool  { return false }

func (p *RegionHandshake) EncodeBody(dst []byte) ([]byte, error) {
	dst = wire.AppendUint32(dst, p.RegionFlags)
	dst = append(dst, p.SimAccess)
	dst = wire.AppendCString(dst, p.SimName)
	dst = wire.AppendUUID(dst, p.SimOwner)
	for _, f := range p.TerrainBase {
		dst = wire.AppendFloat32(dst, f)
	}
	for _, f := range p.TerrainDetail {
		dst = wire.AppendFloat32(dst, f)
	}
	dst = wire.AppendFloat32(dst, p.WaterHeight)
	dst = wire.AppendFloat32(dst, p.BillableFactor)
	dst = wire.AppendUUID(dst, p.CacheID)
	dst = wire.AppendFloat32(dst, p.TerrainStartX)
	dst = wire.AppendFloat32(dst, p.TerrainStartY)
	return wire.AppendUUID(dst, p.RegionID), nil
}

func (p *RegionHandshake) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.RegionFlags = r.Uint32()
	p.SimAccess = r.Uint8()
	p.SimName = r.CString()
	p.SimOwner = r.UUID()
	for i := range p.TerrainBase {
		p.TerrainBase[i] = r.Float32()
	}
	for i := range p.TerrainDetail {
		p.TerrainDetail[i] = r.Float32()
	}
	p.WaterHeight = r.Float32()
	p.BillableFactor = r.Float32()
	p.CacheID = r.UUID()
	p.TerrainStartX = r.Float32()
	p.TerrainStartY = r.Float32()
	p.RegionID = r.UUID()
	return r.Err()
}

// RegionHandshakeReply acknowledges the region handshake.
type RegionHandshakeReply struct {
	AgentID   uuid.UUID
	SessionID uuid.UUID
	Flags     uint32
}

func (*RegionHandshakeReply) Tier() wire.Tier { return wire.Low }
func (*RegionHandshakeReply) Type() byte      { return LowRegionHandshakeReply }
func (*RegionHandshakeReply) Reliable() bool  { return true }

func (p *RegionHandshakeReply) EncodeBody(dst []byte) ([]byte, error) {
	dst = wire.AppendUUID(dst, p.AgentID)
	dst = wire.AppendUUID(dst, p.SessionID)
	return wire.AppendUint32(dst, p.Flags), nil
}

func (p *RegionHandshakeReply) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.AgentID = r.UUID()
	p.SessionID = r.UUID()
	p.Flags = r.Uint32()
	return r.Err()
}

// CompleteAgentMovement asks the region to finalize the avatar's arrival.
type CompleteAgentMovement struct {
	AgentID     uuid.UUID
	SessionID   uuid.UUID
	CircuitCode uint32
}

func (*CompleteAgentMovement) Tier() wire.Tier { return wire.Low }
func (*CompleteAgentMovement) Type() byte      { return LowCompleteAgentMovement }
func (*CompleteAgentMovement) Reliable() bool  { return true }

func (p *CompleteAgentMovement) EncodeBody(dst []byte) ([]byte, error) {
	dst = wire.AppendUUID(dst, p.AgentID)
	dst = wire.AppendUUID(dst, p.SessionID)
	return wire.AppendUint32(dst, p.CircuitCode), nil
}

func (p *CompleteAgentMovement) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.AgentID = r.UUID()
	p.SessionID = r.UUID()
	p.CircuitCode = r.Uint32()
	return r.Err()
}

// LogoutRequest asks the server to end the session.
type LogoutRequest struct {
	AgentID   uuid.UUID
	SessionID uuid.UUID
}

func (*LogoutRequest) Tier() wire.Tier { return wire.Low }
func (*LogoutRequest) Type() byte      { return LowLogoutRequest }
func (*LogoutRequest) Reliable() bool  { return true }

func (p *LogoutRequest) EncodeBody(dst []byte) ([]byte, error) {
	dst = wire.AppendUUID(dst, p.AgentID)
	return wire.AppendUUID(dst, p.SessionID), nil
}

func (p *LogoutRequest) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.AgentID = r.UUID()
	p.SessionID = r.UUID()
	return r.Err()
}

// CloseCircuit is a best-effort unreliable notice sent on teardown.
type CloseCircuit struct{}

func (*CloseCircuit) Tier() wire.Tier { return wire.Low }
func (*CloseCircuit) Type() byte      { return LowCloseCircuit }
func (*CloseCircuit) Reliable() bool  { return false }

func (*CloseCircuit) EncodeBody(dst []byte) ([]byte, error) { return dst, nil }
func (*CloseCircuit) DecodeBody([]byte) error               { return nil }

// EconomyDataRequest asks for currency and upload pricing. Sent once after
// the handshake completes.
type EconomyDataRequest struct{}

func (*EconomyDataRequest) Tier() wire.Tier { return wire.Low }
func (*EconomyDataRequest) Type() byte      { return LowEconomyDataRequest }
func (*EconomyDataRequest) Reliable() bool  { return false }

func (*EconomyDataRequest) EncodeBody(dst []byte) ([]byte, error) { return dst, nil }
func (*EconomyDataRequest) DecodeBody([]byte) error               { return nil }

// KillObject tells the client to drop one or more objects by local id. It
// shares the EconomyDataRequest type code; direction disambiguates.
type KillObject struct {
	LocalIDs []uint32
}

func (*KillObject) Tier() wire.Tier { return wire.Low }
func (*KillObject) Type() byte      { return LowKillObject }
func (*KillObject) Reliable() bool  { return false }

func (p *KillObject) EncodeBody(dst []byte) ([]byte, error) {
	if len(p.LocalIDs) > 255 {
		return dst, errors.New("packets: too many kill targets")
	}
	dst = append(dst, byte(len(p.LocalIDs)))
	for _, id := range p.LocalIDs {
		dst = wire.AppendUint32(dst, id)
	}
	return dst, nil
}

func (p *KillObject) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	count := int(r.Uint8())
	p.LocalIDs = make([]uint32, 0, count)
	for i := 0; i < count; i++ {
		p.LocalIDs = append(p.LocalIDs, r.Uint32())
	}
	return r.Err()
}

// AgentThrottle sets the per-category bandwidth budget for the circuit.
type AgentThrottle struct {
	AgentID     uuid.UUID
	SessionID   uuid.UUID
	CircuitCode uint32
	GenCounter  uint32
	Throttles   [ThrottleBufferSize]byte
}

// SetRates fills the throttle buffer from per-category rates in bytes per
// second: resend, land, wind, cloud, task, texture, asset.
func (p *AgentThrottle) SetRates(rates [7]float32) {
	buf := p.Throttles[:0]
	for _, r := range rates {
		buf = wire.AppendFloat32(buf, r)
	}
}

func (*AgentThrottle) Tier() wire.Tier { return wire.Low }
func (*AgentThrottle) Type() byte      { return LowAgentThrottle }
func (*AgentThrottle) Reliable() bool  { return true }

func (p *AgentThrottle) EncodeBody(dst []byte) ([]byte, error) {
	dst = wire.AppendUUID(dst, p.AgentID)
	dst = wire.AppendUUID(dst, p.SessionID)
	dst = wire.AppendUint32(dst, p.CircuitCode)
	dst = wire.AppendUint32(dst, p.GenCounter)
	dst = append(dst, ThrottleBufferSize)
	return append(dst, p.Throttles[:]...), nil
}

func (p *AgentThrottle) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.AgentID = r.UUID()
	p.SessionID = r.UUID()
	p.CircuitCode = r.Uint32()
	p.GenCounter = r.Uint32()
	n := int(r.Uint8())
	copy(p.Throttles[:], r.Bytes(n))
	return r.Err()
}

// PacketAck acknowledges reliable sequence numbers. It is produced and
// consumed by the circuit itself and never reaches the dispatch queue.
type PacketAck struct {
	Sequences []uint32
}

func (*PacketAck) Tier() wire.Tier { return wire.Low }
func (*PacketAck) Type() byte      { return LowPacketAck }
func (*PacketAck) Reliable() bool  { return false }

func (p *PacketAck) EncodeBody(dst []byte) ([]byte, error) {
	if len(p.Sequences) > 255 {
		return dst, errors.New("packets: too many acks in one batch")
	}
	dst = append(dst, byte(len(p.Sequences)))
	for _, seq := range p.Sequences {
		dst = wire.AppendUint32(dst, seq)
	}
	return dst, nil
}

func (p *PacketAck) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	count := int(r.Uint8())
	p.Sequences = make([]uint32, 0, count)
	for i := 0; i < count; i++ {
		p.Sequences = append(p.Sequences, r.Uint32())
	}
	return r.Err()
}

// StartPingCheck is the server's liveness probe. The circuit answers it
// inline with CompletePingCheck.
type StartPingCheck struct {
	PingID        byte
	OldestUnacked uint32
}

func (*StartPingCheck) Tier() wire.Tier { return wire.High }
func (*StartPingCheck) Type() byte      { return HighStartPingCheck }
func (*StartPingCheck) Reliable() bool  { return false }

func (p *StartPingCheck) EncodeBody(dst []byte) ([]byte, error) {
	dst = append(dst, p.PingID)
	return wire.AppendUint32(dst, p.OldestUnacked), nil
}

func (p *StartPingCheck) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.PingID = r.Uint8()
	p.OldestUnacked = r.Uint32()
	return r.Err()
}

// CompletePingCheck answers StartPingCheck, echoing the ping id.
type CompletePingCheck struct {
	PingID byte
}

func (*CompletePingCheck) Tier() wire.Tier { return wire.High }
func (*CompletePingCheck) Type() byte      { return HighCompletePingCheck }
func (*CompletePingCheck) Reliable() bool  { return false }

func (p *CompletePingCheck) EncodeBody(dst []byte) ([]byte, error) {
	return append(dst, p.PingID), nil
}

func (p *CompletePingCheck) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.PingID = r.Uint8()
	return r.Err()
}
