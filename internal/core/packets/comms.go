package packets

import (
	"github.com/google/uuid"

	"github.com/gridsync/gridsync/internal/core/wire"
)

// Chat source classification, byte-valued on the wire.
const (
	ChatSourceSystem byte = 0
	ChatSourceAgent  byte = 1
	ChatSourceObject byte = 2
)

// Chat types.
const (
	ChatTypeWhisper byte = 0
	ChatTypeNormal  byte = 1
	ChatTypeShout   byte = 2
)

// ChatFromSimulator carries local chat heard by the avatar.
type ChatFromSimulator struct {
	FromName    string
	SourceID    uuid.UUID
	OwnerID     uuid.UUID
	SourceType  byte
	ChatType    byte
	Audible     int8
	Position    Vector3
	Message     string
	FromGroupID uuid.UUID
}

func (*ChatFromSimulator) Tier() wire.Tier { return wire.Low }
func (*ChatFromSimulator) Type() byte      { return LowChatFromSimulator }
func (*ChatFromSimulator) Reliable() bool  { return false }

func (p *ChatFromSimulator) EncodeBody(dst []byte) ([]byte, error) {
	dst = wire.AppendCString(dst, p.FromName)
	dst = wire.AppendUUID(dst, p.SourceID)
	dst = wire.AppendUUID(dst, p.OwnerID)
	dst = append(dst, p.SourceType, p.ChatType, byte(p.Audible))
	dst = appendVector3(dst, p.Position)
	dst = wire.AppendCString(dst, p.Message)
	return wire.AppendUUID(dst, p.FromGroupID), nil
}

func (p *ChatFromSimulator) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.FromName = r.CString()
	p.SourceID = r.UUID()
	p.OwnerID = r.UUID()
	p.SourceType = r.Uint8()
	p.ChatType = r.Uint8()
	p.Audible = r.Int8()
	p.Position = readVector3(r)
	p.Message = r.CString()
	if err := r.Err(); err != nil {
		return err
	}
	// The group id trailer is not always present.
	if r.Remaining() >= 16 {
		p.FromGroupID = r.UUID()
	}
	return r.Err()
}

// ChatFromViewer sends local chat on the given channel.
type ChatFromViewer struct {
	Message  string
	Channel  int32
	ChatType byte
}

func (*ChatFromViewer) Tier() wire.Tier { return wire.Low }
func (*ChatFromViewer) Type() byte      { return LowChatFromViewer }
func (*ChatFromViewer) Reliable() bool  { return true }

func (p *ChatFromViewer) EncodeBody(dst []byte) ([]byte, error) {
	dst = wire.AppendCString(dst, p.Message)
	dst = wire.AppendInt32(dst, p.Channel)
	return append(dst, p.ChatType), nil
}

func (p *ChatFromViewer) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.Message = r.CString()
	p.Channel = r.Int32()
	p.ChatType = r.Uint8()
	return r.Err()
}

// ImprovedInstantMessage carries direct messages, inventory offers and a
// number of other dialogs distinguished by the Dialog byte.
type ImprovedInstantMessage struct {
	FromAgentID    uuid.UUID
	FromAgentName  string
	FromGroup      bool
	Dialog         byte
	IMSessionID    uuid.UUID
	Message        string
	Offline        byte
	ParentEstateID uint32
	Position       Vector3
	RegionID       uuid.UUID
	Timestamp      uint32
	ToAgentID      uuid.UUID
	BinaryBucket   []byte
}

func (*ImprovedInstantMessage) Tier() wire.Tier { return wire.Low }
func (*ImprovedInstantMessage) Type() byte      { return LowImprovedInstantMessage }
func (*ImprovedInstantMessage) Reliable() bool  { return true }

func (p *ImprovedInstantMessage) EncodeBody(dst []byte) ([]byte, error) {
	dst = wire.AppendUUID(dst, p.FromAgentID)
	dst = wire.AppendCString(dst, p.FromAgentName)
	dst = wire.AppendBool(dst, p.FromGroup)
	dst = append(dst, p.Dialog)
	dst = wire.AppendUUID(dst, p.IMSessionID)
	dst = wire.AppendCString(dst, p.Message)
	dst = append(dst, p.Offline)
	dst = wire.AppendUint32(dst, p.ParentEstateID)
	dst = appendVector3(dst, p.Position)
	dst = wire.AppendUUID(dst, p.RegionID)
	dst = wire.AppendUint32(dst, p.Timestamp)
	dst = wire.AppendUUID(dst, p.ToAgentID)
	dst = wire.AppendUint16(dst, uint16(len(p.BinaryBucket)))
	return append(dst, p.BinaryBucket...), nil
}

func (p *ImprovedInstantMessage) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.FromAgentID = r.UUID()
	p.FromAgentName = r.CString()
	p.FromGroup = r.Bool()
	p.Dialog = r.Uint8()
	p.IMSessionID = r.UUID()
	p.Message = r.CString()
	p.Offline = r.Uint8()
	p.ParentEstateID = r.Uint32()
	p.Position = readVector3(r)
	p.RegionID = r.UUID()
	p.Timestamp = r.Uint32()
	p.ToAgentID = r.UUID()
	n := int(r.Uint16())
	p.BinaryBucket = r.Bytes(n)
	return r.Err()
}
