package wire

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroCodecRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		frame []byte
	}{
		{"header only", []byte{0x40, 0, 0, 1, 0x05, 0xAA}},
		{"no zeros", []byte{0x40, 0, 0, 1, 0x05, 0xAA, 1, 2, 3, 4}},
		{"single zero", []byte{0x40, 0, 0, 1, 0x05, 0xAA, 0, 7}},
		{"zero run", append([]byte{0x40, 0, 0, 1, 0x05, 0xAA}, make([]byte, 300)...)},
		{"trailing zeros", append([]byte{0, 0, 0, 2, 0x05, 0x01, 9}, 0, 0, 0)},
		{"zeros in prefix", []byte{0, 0, 0, 0, 0, 0, 1, 0, 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enc := ZeroEncode(tc.frame)
			dec, err := ZeroDecode(enc)
			require.NoError(t, err)
			assert.Equal(t, tc.frame, dec)
		})
	}
}

func TestZeroCodecRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		frame := make([]byte, 6+rng.Intn(600))
		for j := range frame {
			// Bias toward zeros so runs actually occur.
			if rng.Intn(3) > 0 {
				frame[j] = byte(rng.Intn(256))
			}
		}
		frame[0] &^= FlagAppendedAcks

		enc := ZeroEncode(frame)
		dec, err := ZeroDecode(enc)
		require.NoError(t, err)
		require.True(t, bytes.Equal(frame, dec), "round trip mismatch at iteration %d", i)
	}
}

func TestZeroEncodeShrinksReliableBody(t *testing.T) {
	// Reliable frame, sequence 1, high-frequency type 0x05, then a body of
	// 20 zero bytes followed by 4 non-zero bytes.
	frame := []byte{FlagReliable, 0, 0, 1, 0x05}
	frame = append(frame, make([]byte, 20)...)
	frame = append(frame, 0xDE, 0xAD, 0xBE, 0xEF)
	require.Len(t, frame, 29)

	enc := ZeroEncode(frame)
	// 6 verbatim bytes, one (0x00, 19) pair for the remaining zeros, then
	// the 4 trailing bytes.
	assert.Equal(t, 12, len(enc))
	assert.Equal(t, frame[:6], enc[:6])
	assert.Equal(t, []byte{0x00, 19}, enc[6:8])

	dec, err := ZeroDecode(enc)
	require.NoError(t, err)
	assert.Equal(t, frame, dec)
}

func TestZeroCodecPreservesAckTrailer(t *testing.T) {
	frame := []byte{FlagReliable | FlagAppendedAcks, 0, 0, 3, 0xFF, 0xFF}
	frame = append(frame, 0xFF, 0x04)
	frame = append(frame, make([]byte, 10)...)
	// Two appended acks whose encodings contain zero bytes, then the count.
	frame = append(frame, 0x05, 0x00, 0x00, 0x00)
	frame = append(frame, 0x07, 0x00, 0x00, 0x00)
	frame = append(frame, 0x02)

	enc := ZeroEncode(frame)
	// The 9-byte trailer survives verbatim at the end.
	assert.Equal(t, frame[len(frame)-9:], enc[len(enc)-9:])

	dec, err := ZeroDecode(enc)
	require.NoError(t, err)
	assert.Equal(t, frame, dec)
}

func TestZeroEncodeFrameOpportunistic(t *testing.T) {
	t.Run("compressible", func(t *testing.T) {
		frame := append([]byte{FlagZerocoded, 0, 0, 1, 0x05, 0x01}, make([]byte, 50)...)
		out := ZeroEncodeFrame(frame)
		assert.Less(t, len(out), len(frame))
		assert.NotZero(t, out[0]&FlagZerocoded)
	})

	t.Run("incompressible", func(t *testing.T) {
		frame := []byte{FlagZerocoded, 0, 0, 1, 0x05, 0x01, 2, 3, 4, 5}
		out := ZeroEncodeFrame(frame)
		assert.Equal(t, len(frame), len(out))
		assert.Zero(t, out[0]&FlagZerocoded)
		assert.Equal(t, frame[1:], out[1:])
	})
}

func TestZeroDecodeTruncatedRun(t *testing.T) {
	frame := []byte{0, 0, 0, 1, 0x05, 0x01, 0x00}
	_, err := ZeroDecode(frame)
	assert.ErrorIs(t, err, ErrTruncatedRun)
}
