package packets

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/gridsync/gridsync/internal/core/wire"
)

// AgentWearablesRequest asks the server for the agent's current outfit.
type AgentWearablesRequest struct {
	AgentID   uuid.UUID
	SessionID uuid.UUID
}

func (*AgentWearablesRequest) Tier() wire.Tier { return wire.Medium }
func (*AgentWearablesRequest) Type() byte      { return MediumAgentWearablesRequest }
func (*AgentWearablesRequest) Reliable() bool  { return true }

func (p *AgentWearablesRequest) EncodeBody(dst []byte) ([]byte, error) {
	dst = wire.AppendUUID(dst, p.AgentID)
	return wire.AppendUUID(dst, p.SessionID), nil
}

func (p *AgentWearablesRequest) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.AgentID = r.UUID()
	p.SessionID = r.UUID()
	return r.Err()
}

// Wearable is one worn item in an AgentWearablesUpdate.
type Wearable struct {
	ItemID       uuid.UUID
	AssetID      uuid.UUID
	WearableType byte
}

// AgentWearablesUpdate lists the agent's worn items and visual parameters.
type AgentWearablesUpdate struct {
	AgentID       uuid.UUID
	SerialNum     uint32
	VisualVersion byte
	Wearables     []Wearable
	VisualParams  []byte
}

func (*AgentWearablesUpdate) Tier() wire.Tier { return wire.Medium }
func (*AgentWearablesUpdate) Type() byte      { return MediumAgentWearablesUpdate }
func (*AgentWearablesUpdate) Reliable() bool  { return false }

func (p *AgentWearablesUpdate) EncodeBody(dst []byte) ([]byte, error) {
	if len(p.Wearables) > 255 || len(p.VisualParams) > 255 {
		return dst, errors.New("packets: wearables update block overflow")
	}
	dst = wire.AppendUUID(dst, p.AgentID)
	dst = wire.AppendUint32(dst, p.SerialNum)
	dst = append(dst, p.VisualVersion)
	dst = append(dst, byte(len(p.Wearables)))
	for _, w := range p.Wearables {
		dst = wire.AppendUUID(dst, w.ItemID)
		dst = wire.AppendUUID(dst, w.AssetID)
		dst = append(dst, w.WearableType)
	}
	dst = append(dst, byte(len(p.VisualParams)))
	return append(dst, p.VisualParams...), nil
}

func (p *AgentWearablesUpdate) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.AgentID = r.UUID()
	p.SerialNum = r.Uint32()
	p.VisualVersion = r.Uint8()
	count := int(r.Uint8())
	p.Wearables = make([]Wearable, 0, count)
	for i := 0; i < count; i++ {
		p.Wearables = append(p.Wearables, Wearable{
			ItemID:       r.UUID(),
			AssetID:      r.UUID(),
			WearableType: r.Uint8(),
		})
	}
	n := int(r.Uint8())
	p.VisualParams = r.Bytes(n)
	return r.Err()
}
