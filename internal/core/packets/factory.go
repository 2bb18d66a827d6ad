package packets

import (
	"github.com/pkg/errors"

	"github.com/gridsync/gridsync/internal/core/wire"
)

// ErrNoDecoder means the (tier, type) pair has no registered inbound
// decoder. The receive loop logs and drops such frames; it is never fatal.
var ErrNoDecoder = errors.New("packets: no decoder for type")

type typeKey struct {
	tier wire.Tier
	code byte
}

// decoders covers every type the client consumes. Outbound-only types are
// deliberately absent: an echo of our own message is dropped like any
// unknown type.
var decoders = map[typeKey]func() Packet{
	{wire.Low, LowRegionHandshake}:        func() Packet { return &RegionHandshake{} },
	{wire.Low, LowAgentMovementComplete}:  func() Packet { return &AgentMovementComplete{} },
	{wire.Low, LowKillObject}:             func() Packet { return &KillObject{} },
	{wire.Low, LowChatFromSimulator}:      func() Packet { return &ChatFromSimulator{} },
	{wire.Low, LowImprovedInstantMessage}: func() Packet { return &ImprovedInstantMessage{} },
	{wire.Low, LowTransferPacket}:         func() Packet { return &Transfer{} },
	{wire.Low, LowTransferInfo}:           func() Packet { return &TransferInfo{} },
	{wire.Low, LowRequestXfer}:            func() Packet { return &RequestXfer{} },
	{wire.Low, LowSendXfer}:               func() Packet { return &SendXfer{} },
	{wire.Low, LowConfirmXfer}:            func() Packet { return &ConfirmXfer{} },
	{wire.Low, LowAssetUploadComplete}:    func() Packet { return &AssetUploadComplete{} },
	{wire.Low, LowPacketAck}:              func() Packet { return &PacketAck{} },

	{wire.Medium, MediumAgentWearablesUpdate}: func() Packet { return &AgentWearablesUpdate{} },

	{wire.High, HighStartPingCheck}:            func() Packet { return &StartPingCheck{} },
	{wire.High, HighObjectUpdate}:              func() Packet { return &ObjectUpdate{} },
	{wire.High, HighImprovedTerseObjectUpdate}: func() Packet { return &ImprovedTerseObjectUpdate{} },
}

// Decode selects a decoder by tier and type code and parses body into a
// fresh packet. A missing decoder returns ErrNoDecoder; a malformed body
// returns the decode error. Neither aborts the caller's receive loop.
func Decode(tier wire.Tier, code byte, body []byte) (Packet, error) {
	newPacket, ok := decoders[typeKey{tier, code}]
	if !ok {
		return nil, errors.Wrapf(ErrNoDecoder, "%s 0x%02X", tier, code)
	}
	p := newPacket()
	if err := p.DecodeBody(body); err != nil {
		return nil, errors.Wrapf(err, "decoding %s 0x%02X", tier, code)
	}
	return p, nil
}

// DecodeFrame parses a complete non-zero-coded frame: header, tier tag,
// body. Appended acks must already be stripped.
func DecodeFrame(frame []byte) (wire.Header, Packet, error) {
	h, err := wire.ParseHeader(frame)
	if err != nil {
		return wire.Header{}, nil, err
	}
	tier, code, n, err := wire.ParseTag(frame[wire.HeaderSize:])
	if err != nil {
		return h, nil, err
	}
	p, err := Decode(tier, code, frame[wire.HeaderSize+n:])
	return h, p, err
}
