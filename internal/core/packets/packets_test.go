package packets

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsync/gridsync/internal/core/wire"
)

var (
	testAgent   = uuid.MustParse("0e346d8b-4433-4d66-a6b0-fd37f8cd973b")
	testSession = uuid.MustParse("2f9c55e3-9c43-4b8d-8e4e-0c6dcd3f33aa")
)

func TestUseCircuitCodeLayout(t *testing.T) {
	p := &UseCircuitCode{CircuitCode: 0x01020304, SessionID: testSession, AgentID: testAgent}
	body, err := p.EncodeBody(nil)
	require.NoError(t, err)
	require.Len(t, body, 36)

	// Circuit code is little-endian, then session, then agent.
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, body[:4])
	assert.Equal(t, testSession[:], body[4:20])
	assert.Equal(t, testAgent[:], body[20:36])

	var got UseCircuitCode
	require.NoError(t, got.DecodeBody(body))
	assert.Equal(t, p, &got)
}

func TestChatFromSimulatorDecode(t *testing.T) {
	src := &ChatFromSimulator{
		FromName:   "Ruth",
		SourceID:   testAgent,
		SourceType: ChatSourceAgent,
		ChatType:   ChatTypeShout,
		Audible:    1,
		Position:   Vector3{X: 128, Y: 128, Z: 25.5},
		Message:    "hello avatar",
	}
	body, err := src.EncodeBody(nil)
	require.NoError(t, err)

	var got ChatFromSimulator
	require.NoError(t, got.DecodeBody(body))
	assert.Equal(t, src, &got)
}

func TestChatFromSimulatorWithoutGroupTrailer(t *testing.T) {
	// Older servers omit the trailing group id entirely.
	src := &ChatFromSimulator{FromName: "sys", Message: "ok"}
	body, err := src.EncodeBody(nil)
	require.NoError(t, err)
	body = body[:len(body)-16]

	var got ChatFromSimulator
	require.NoError(t, got.DecodeBody(body))
	assert.Equal(t, "ok", got.Message)
	assert.Equal(t, uuid.Nil, got.FromGroupID)
}

func TestImprovedInstantMessageRoundTrip(t *testing.T) {
	src := &ImprovedInstantMessage{
		FromAgentID:   testAgent,
		FromAgentName: "Ruth Themaid",
		Dialog:        19,
		IMSessionID:   testSession,
		Message:       "incoming inventory",
		Offline:       1,
		Position:      Vector3{X: 1, Y: 2, Z: 3},
		Timestamp:     1724572800,
		ToAgentID:     testSession,
		BinaryBucket:  []byte{0x06, 0xAA, 0xBB},
	}
	body, err := src.EncodeBody(nil)
	require.NoError(t, err)

	var got ImprovedInstantMessage
	require.NoError(t, got.DecodeBody(body))
	assert.Equal(t, src, &got)
}

func TestAgentThrottleRates(t *testing.T) {
	p := &AgentThrottle{AgentID: testAgent, SessionID: testSession, CircuitCode: 42}
	p.SetRates([7]float32{1500, 1000, 50, 50, 1500, 1500, 1000})

	body, err := p.EncodeBody(nil)
	require.NoError(t, err)
	// agent + session + code + gen + length byte + buffer
	require.Len(t, body, 16+16+4+4+1+ThrottleBufferSize)
	assert.Equal(t, byte(ThrottleBufferSize), body[40])

	var got AgentThrottle
	require.NoError(t, got.DecodeBody(body))
	assert.Equal(t, p.Throttles, got.Throttles)
}

func TestKillObjectDecode(t *testing.T) {
	src := &KillObject{LocalIDs: []uint32{100, 200, 300}}
	body, err := src.EncodeBody(nil)
	require.NoError(t, err)
	assert.Equal(t, byte(3), body[0])

	var got KillObject
	require.NoError(t, got.DecodeBody(body))
	assert.Equal(t, src.LocalIDs, got.LocalIDs)
}

func TestObjectUpdateRoundTrip(t *testing.T) {
	src := &ObjectUpdate{
		RegionHandle: 0x0000010000000200,
		TimeDilation: 65535,
		Blocks: []ObjectBlock{
			{
				LocalID:    7001,
				State:      1,
				FullID:     testAgent,
				CRC:        0xDEADBEEF,
				PCode:      9,
				Material:   3,
				Scale:      Vector3{X: 0.5, Y: 0.5, Z: 2},
				ObjectData: []byte{1, 2, 3, 4},
			},
			{LocalID: 7002, FullID: testSession},
		},
	}
	body, err := src.EncodeBody(nil)
	require.NoError(t, err)

	var got ObjectUpdate
	require.NoError(t, got.DecodeBody(body))
	require.Len(t, got.Blocks, 2)
	assert.Equal(t, src.Blocks[0], got.Blocks[0])
	assert.Equal(t, uint32(7002), got.Blocks[1].LocalID)
}

func TestTerseUpdateTwoByteLength(t *testing.T) {
	src := &ImprovedTerseObjectUpdate{
		RegionHandle: 1,
		TimeDilation: 30000,
		Blocks: []TerseBlock{
			{LocalID: 1, UpdateType: 0, Data: make([]byte, 0x90)},
			{LocalID: 2, UpdateType: 0, Data: []byte{9}},
		},
	}
	body, err := src.EncodeBody(nil)
	require.NoError(t, err)

	var got ImprovedTerseObjectUpdate
	require.NoError(t, got.DecodeBody(body))
	require.Len(t, got.Blocks, 2)
	assert.Len(t, got.Blocks[0].Data, 0x90)
	assert.Equal(t, []byte{9}, got.Blocks[1].Data)
}

func TestTerseMotionDecode(t *testing.T) {
	data := []byte{2, 0} // state, not an avatar
	data = appendVector3(data, Vector3{X: 100, Y: 200, Z: 30})
	for _, v := range []float32{1, -2, 0} { // velocity
		data = wire.AppendUint16(data, wire.FloatToUint16(v, -128, 128))
	}
	for _, v := range []float32{0, 0, 0} { // acceleration
		data = wire.AppendUint16(data, wire.FloatToUint16(v, -64, 64))
	}
	data = wire.AppendInt16(data, 0) // rotation x, y, z; w derived
	data = wire.AppendInt16(data, 0)
	data = wire.AppendInt16(data, 0)
	for _, v := range []float32{0, 0, 0.5} { // angular velocity
		data = wire.AppendUint16(data, wire.FloatToUint16(v, -64, 64))
	}

	b := TerseBlock{LocalID: 5, Data: data}
	m, err := b.DecodeMotion()
	require.NoError(t, err)

	assert.Equal(t, byte(2), m.State)
	assert.False(t, m.Avatar)
	assert.Equal(t, Vector3{X: 100, Y: 200, Z: 30}, m.Position)
	assert.InDelta(t, 1, m.Velocity.X, float64(wire.VelocityRange.Error()))
	assert.InDelta(t, -2, m.Velocity.Y, float64(wire.VelocityRange.Error()))
	assert.InDelta(t, 1, m.Rotation.W, 1e-4)
	assert.InDelta(t, 0.5, m.AngularVelocity.Z, float64(wire.AngularRange.Error()))
}

func TestSendXferFinalChunk(t *testing.T) {
	p := &SendXfer{XferID: 42, PacketNum: 3 | XferFinalChunk, Data: []byte{1, 2}}
	assert.True(t, p.Final())

	body, err := p.EncodeBody(nil)
	require.NoError(t, err)

	var got SendXfer
	require.NoError(t, got.DecodeBody(body))
	assert.True(t, got.Final())
	assert.Equal(t, uint32(3), got.PacketNum&^XferFinalChunk)
	assert.Equal(t, []byte{1, 2}, got.Data)
}

func TestAgentWearablesUpdateDecode(t *testing.T) {
	src := &AgentWearablesUpdate{
		AgentID:       testAgent,
		SerialNum:     3,
		VisualVersion: 1,
		Wearables: []Wearable{
			{ItemID: testSession, AssetID: testAgent, WearableType: 5},
		},
		VisualParams: []byte{128, 64, 32},
	}
	body, err := src.EncodeBody(nil)
	require.NoError(t, err)

	var got AgentWearablesUpdate
	require.NoError(t, got.DecodeBody(body))
	assert.Equal(t, src, &got)
}
