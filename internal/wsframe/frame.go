// Package wsframe implements RFC 6455 WebSocket frame decoding and
// encoding: masking, control frames, and the three-tier payload-length
// encoding (spec §4.10). No third-party WebSocket library is used here —
// this package is the spec's own deliverable (see DESIGN.md).
package wsframe

import (
	"encoding/binary"
	"errors"
)

// Opcode is the 4-bit RFC 6455 frame opcode.
type Opcode byte

const (
	Continuation Opcode = 0x0
	Text         Opcode = 0x1
	Binary       Opcode = 0x2
	Close        Opcode = 0x8
	Ping         Opcode = 0x9
	Pong         Opcode = 0xA
)

// ErrProtocol is returned for any RFC 6455 violation: non-zero reserved
// bits, an unmasked client frame, or a malformed length field.
var ErrProtocol = errors.New("wsframe: protocol error")

// Frame is one decoded WebSocket frame.
type Frame struct {
	Fin        bool
	Opcode     Opcode
	Masked     bool
	MaskKey    [4]byte
	PayloadLen int
	Payload    []byte
}

// IsComplete reports whether the frame's payload buffer holds exactly as
// many bytes as its declared length (spec §8 "Frame completeness").
func (f *Frame) IsComplete() bool {
	return len(f.Payload) == f.PayloadLen
}

// Decode attempts to parse one frame from the front of buf. It returns the
// decoded frame, the number of bytes consumed, and whether a complete
// frame was available. If the available bytes don't yet form a complete
// frame, ok is false and n is 0 — callers should wait for more data. A
// protocol violation (non-zero reserved bits, an unmasked frame when
// requireMask is true, or a 64-bit length with its most significant bit
// set) returns ErrProtocol.
func Decode(buf []byte, requireMask bool) (frame Frame, n int, ok bool, err error) {
	if len(buf) < 2 {
		return Frame{}, 0, false, nil
	}

	first := buf[0]
	fin := first&0x80 != 0
	rsv := first & 0x70
	if rsv != 0 {
		return Frame{}, 0, false, ErrProtocol
	}
	opcode := Opcode(first & 0x0F)

	second := buf[1]
	masked := second&0x80 != 0
	if requireMask && !masked {
		return Frame{}, 0, false, ErrProtocol
	}

	lenField := int(second & 0x7F)
	pos := 2

	var payloadLen int
	switch {
	case lenField < 126:
		payloadLen = lenField
	case lenField == 126:
		if len(buf)-pos < 2 {
			return Frame{}, 0, false, nil
		}
		payloadLen = int(binary.BigEndian.Uint16(buf[pos : pos+2]))
		pos += 2
	default: // 127
		if len(buf)-pos < 8 {
			return Frame{}, 0, false, nil
		}
		v := binary.BigEndian.Uint64(buf[pos : pos+8])
		if v>>63 != 0 {
			return Frame{}, 0, false, ErrProtocol
		}
		payloadLen = int(v)
		pos += 8
	}

	var maskKey [4]byte
	if masked {
		if len(buf)-pos < 4 {
			return Frame{}, 0, false, nil
		}
		copy(maskKey[:], buf[pos:pos+4])
		pos += 4
	}

	if len(buf)-pos < payloadLen {
		return Frame{}, 0, false, nil
	}

	payload := make([]byte, payloadLen)
	copy(payload, buf[pos:pos+payloadLen])
	if masked {
		for i := range payload {
			payload[i] ^= maskKey[i%4]
		}
	}
	pos += payloadLen

	return Frame{
		Fin:        fin,
		Opcode:     opcode,
		Masked:     masked,
		MaskKey:    maskKey,
		PayloadLen: payloadLen,
		Payload:    payload,
	}, pos, true, nil
}

// maxSegment bounds each encoded segment to 2^32/8 bytes, per spec §4.10.
// It is a var, not a const, solely so tests can shrink it to exercise the
// multi-segment continuation path without allocating gigabytes.
var maxSegment = (1 << 32) / 8

// Encode chunks payload into one or more unmasked server-to-client frames.
// The first segment carries opcode (TEXT/BIN on a data message, or the
// control opcode for CLOSE/PING/PONG); subsequent segments, when payload
// exceeds maxSegment, carry CONTINUATION. Every opcode is segmented the
// same way, so a control payload no longer than maxSegment is one frame.
// FIN is set on the last segment only.
func Encode(opcode Opcode, payload []byte) [][]byte {
	if len(payload) == 0 {
		return [][]byte{encodeSegment(opcode, nil, true)}
	}

	var segments [][]byte
	for offset := 0; offset < len(payload); offset += maxSegment {
		end := offset + maxSegment
		if end > len(payload) {
			end = len(payload)
		}
		segOpcode := opcode
		if offset > 0 {
			segOpcode = Continuation
		}
		fin := end == len(payload)
		segments = append(segments, encodeSegment(segOpcode, payload[offset:end], fin))
	}
	return segments
}

func encodeSegment(opcode Opcode, payload []byte, fin bool) []byte {
	out := make([]byte, 0, len(payload)+10)

	first := byte(opcode) & 0x0F
	if fin {
		first |= 0x80
	}
	out = append(out, first)

	n := len(payload)
	switch {
	case n < 126:
		out = append(out, byte(n))
	case n <= 0xFFFF:
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(n))
		out = append(out, 126)
		out = append(out, lenBuf[:]...)
	default:
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(n))
		out = append(out, 127)
		out = append(out, lenBuf[:]...)
	}

	out = append(out, payload...)
	return out
}

// EncodeMasked is Encode's client-to-server counterpart: every segment
// carries a mask bit and is XORed against mask before being written. It
// exists for the round-trip invariant in spec §8 and for tests that act as
// the client side of the handshake.
func EncodeMasked(opcode Opcode, payload []byte, mask [4]byte) [][]byte {
	segments := Encode(opcode, payload)
	for i, seg := range segments {
		segments[i] = remaskSegment(seg, mask)
	}
	return segments
}

// remaskSegment rewrites an unmasked encoded segment (as produced by
// encodeSegment) into a masked one: it sets the mask bit, inserts the
// 4-byte key after the length field, and XORs the payload.
func remaskSegment(seg []byte, mask [4]byte) []byte {
	first := seg[0]
	second := seg[1]
	lenField := second & 0x7F

	headerLen := 2
	switch lenField {
	case 126:
		headerLen += 2
	case 127:
		headerLen += 8
	}

	payload := append([]byte(nil), seg[headerLen:]...)
	for i := range payload {
		payload[i] ^= mask[i%4]
	}

	out := make([]byte, 0, len(seg)+4)
	out = append(out, first, second|0x80)
	out = append(out, seg[2:headerLen]...)
	out = append(out, mask[:]...)
	out = append(out, payload...)
	return out
}
