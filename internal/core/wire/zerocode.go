package wire

import "github.com/pkg/errors"

// zeroPrefix is the run of leading bytes the codec never touches: the
// 4-byte header and the first two body bytes.
const zeroPrefix = 6

var ErrTruncatedRun = errors.New("wire: zero run truncated")

// ZeroEncode collapses runs of zero bytes in frame into (0x00, count)
// pairs, leaving the first 6 bytes verbatim. When the header carries the
// appended-acks flag the ack trailer at the end of the frame is copied
// verbatim as well. The result is freshly allocated; frame is not modified.
//
// Callers should only ship the encoded form when it is strictly smaller,
// clearing FlagZerocoded otherwise. See ZeroEncodeFrame.
func ZeroEncode(frame []byte) []byte {
	if len(frame) <= zeroPrefix {
		out := make([]byte, len(frame))
		copy(out, frame)
		return out
	}

	body := frame[zeroPrefix:]
	var trailer []byte
	if frame[0]&FlagAppendedAcks != 0 {
		if n := ackTrailerLen(frame); n > 0 && len(body) >= n {
			trailer = body[len(body)-n:]
			body = body[:len(body)-n]
		}
	}

	out := make([]byte, 0, len(frame))
	out = append(out, frame[:zeroPrefix]...)
	for i := 0; i < len(body); {
		if body[i] != 0 {
			out = append(out, body[i])
			i++
			continue
		}
		run := 0
		for i < len(body) && body[i] == 0 {
			run++
			i++
		}
		for run > 255 {
			out = append(out, 0x00, 0xFF)
			run -= 255
		}
		out = append(out, 0x00, byte(run))
	}
	return append(out, trailer...)
}

// ZeroDecode expands a zero-encoded frame back to its original bytes.
// The appended-acks trailer, when present, was copied verbatim by the
// encoder and is restored as-is.
func ZeroDecode(frame []byte) ([]byte, error) {
	if len(frame) <= zeroPrefix {
		out := make([]byte, len(frame))
		copy(out, frame)
		return out, nil
	}

	body := frame[zeroPrefix:]
	var trailer []byte
	if frame[0]&FlagAppendedAcks != 0 {
		n := ackTrailerLen(frame)
		if n <= 0 || len(body) < n {
			return nil, errors.New("wire: appended acks exceed frame")
		}
		trailer = body[len(body)-n:]
		body = body[:len(body)-n]
	}

	out := make([]byte, 0, len(frame)*2)
	out = append(out, frame[:zeroPrefix]...)
	for i := 0; i < len(body); i++ {
		b := body[i]
		if b != 0 {
			out = append(out, b)
			continue
		}
		i++
		if i >= len(body) {
			return nil, ErrTruncatedRun
		}
		for n := int(body[i]); n > 0; n-- {
			out = append(out, 0)
		}
	}
	return append(out, trailer...), nil
}

// ZeroEncodeFrame applies opportunistic compression: it returns the
// zero-encoded frame with FlagZerocoded set when that is strictly smaller,
// and the original frame with the flag cleared otherwise. The input frame's
// flag byte must already reflect the caller's intent to compress.
func ZeroEncodeFrame(frame []byte) []byte {
	enc := ZeroEncode(frame)
	if len(enc) < len(frame) {
		enc[0] |= FlagZerocoded
		return enc
	}
	out := make([]byte, len(frame))
	copy(out, frame)
	out[0] &^= FlagZerocoded
	return out
}

// ackTrailerLen returns the byte length of the appended-acks trailer,
// reading the trailing count byte: N 4-byte sequence numbers plus the
// count itself.
func ackTrailerLen(frame []byte) int {
	if len(frame) == 0 {
		return 0
	}
	return int(frame[len(frame)-1])*4 + 1
}
