package packets

import (
	"github.com/google/uuid"

	"github.com/gridsync/gridsync/internal/core/wire"
)

// Two asset transfer schemes ride the reliable transport: the chunk-confirm
// Xfer scheme keyed by a 64-bit id, and the streaming Transfer scheme keyed
// by a content UUID. They are distinct consumer protocols and never share
// identifiers.

// XferFinalChunk is set on SendXfer.PacketNum to mark the last chunk.
const XferFinalChunk uint32 = 0x80000000

// RequestXfer starts an Xfer download (client request) or upload
// (server initiated).
type RequestXfer struct {
	XferID    uint64
	VFileID   uuid.UUID
	VFileType int16
	Filename  string
}

func (*RequestXfer) Tier() wire.Tier { return wire.Low }
func (*RequestXfer) Type() byte      { return LowRequestXfer }
func (*RequestXfer) Reliable() bool  { return true }

func (p *RequestXfer) EncodeBody(dst []byte) ([]byte, error) {
	dst = wire.AppendUint64(dst, p.XferID)
	dst = wire.AppendUUID(dst, p.VFileID)
	dst = wire.AppendInt16(dst, p.VFileType)
	return wire.AppendCString(dst, p.Filename), nil
}

func (p *RequestXfer) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.XferID = r.Uint64()
	p.VFileID = r.UUID()
	p.VFileType = r.Int16()
	p.Filename = r.CString()
	return r.Err()
}

// SendXfer carries one chunk of an Xfer transfer.
type SendXfer struct {
	XferID    uint64
	PacketNum uint32
	Data      []byte
}

// Final reports whether this is the last chunk of the transfer.
func (p *SendXfer) Final() bool { return p.PacketNum&XferFinalChunk != 0 }

func (*SendXfer) Tier() wire.Tier { return wire.Low }
func (*SendXfer) Type() byte      { return LowSendXfer }
func (*SendXfer) Reliable() bool  { return true }

func (p *SendXfer) EncodeBody(dst []byte) ([]byte, error) {
	dst = wire.AppendUint64(dst, p.XferID)
	dst = wire.AppendUint32(dst, p.PacketNum)
	return append(dst, p.Data...), nil
}

func (p *SendXfer) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.XferID = r.Uint64()
	p.PacketNum = r.Uint32()
	p.Data = r.Rest()
	return r.Err()
}

// ConfirmXfer acknowledges one Xfer chunk.
type ConfirmXfer struct {
	XferID    uint64
	PacketNum uint32
}

func (*ConfirmXfer) Tier() wire.Tier { return wire.Low }
func (*ConfirmXfer) Type() byte      { return LowConfirmXfer }
func (*ConfirmXfer) Reliable() bool  { return true }

func (p *ConfirmXfer) EncodeBody(dst []byte) ([]byte, error) {
	dst = wire.AppendUint64(dst, p.XferID)
	return wire.AppendUint32(dst, p.PacketNum), nil
}

func (p *ConfirmXfer) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.XferID = r.Uint64()
	p.PacketNum = r.Uint32()
	return r.Err()
}

// TransferInfo announces an upcoming streamed transfer.
type TransferInfo struct {
	TransferID uuid.UUID
	Channel    int32
	Target     int32
	Status     int32
	Size       int32
	Params     []byte
}

func (*TransferInfo) Tier() wire.Tier { return wire.Low }
func (*TransferInfo) Type() byte      { return LowTransferInfo }
func (*TransferInfo) Reliable() bool  { return false }

func (p *TransferInfo) EncodeBody(dst []byte) ([]byte, error) {
	dst = wire.AppendUUID(dst, p.TransferID)
	dst = wire.AppendInt32(dst, p.Channel)
	dst = wire.AppendInt32(dst, p.Target)
	dst = wire.AppendInt32(dst, p.Status)
	dst = wire.AppendInt32(dst, p.Size)
	return append(dst, p.Params...), nil
}

func (p *TransferInfo) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.TransferID = r.UUID()
	p.Channel = r.Int32()
	p.Target = r.Int32()
	p.Status = r.Int32()
	p.Size = r.Int32()
	p.Params = r.Rest()
	return r.Err()
}

// Transfer carries one chunk of a streamed transfer.
type Transfer struct {
	TransferID uuid.UUID
	Channel    int32
	Data       []byte
}

func (*Transfer) Tier() wire.Tier { return wire.Low }
func (*Transfer) Type() byte      { return LowTransferPacket }
func (*Transfer) Reliable() bool  { return false }

func (p *Transfer) EncodeBody(dst []byte) ([]byte, error) {
	dst = wire.AppendUUID(dst, p.TransferID)
	dst = wire.AppendInt32(dst, p.Channel)
	return append(dst, p.Data...), nil
}

func (p *Transfer) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.TransferID = r.UUID()
	p.Channel = r.Int32()
	p.Data = r.Rest()
	return r.Err()
}

// AssetUploadComplete reports the outcome of an asset upload.
type AssetUploadComplete struct {
	TransactionID uuid.UUID
	Success       bool
	AssetID       uuid.UUID
	AssetType     int8
}

func (*AssetUploadComplete) Tier() wire.Tier { return wire.Low }
func (*AssetUploadComplete) Type() byte      { return LowAssetUploadComplete }
func (*AssetUploadComplete) Reliable() bool  { return false }

func (p *AssetUploadComplete) EncodeBody(dst []byte) ([]byte, error) {
	dst = wire.AppendUUID(dst, p.TransactionID)
	dst = wire.AppendBool(dst, p.Success)
	dst = wire.AppendUUID(dst, p.AssetID)
	return append(dst, byte(p.AssetType)), nil
}

func (p *AssetUploadComplete) DecodeBody(body []byte) error {
	r := wire.NewReader(body)
	p.TransactionID = r.UUID()
	p.Success = r.Bool()
	p.AssetID = r.UUID()
	p.AssetType = r.Int8()
	return r.Err()
}
