// Package usblink implements the USB link driver (§4.5): byte-oriented
// framing to an external LON transceiver over a serial endpoint, in
// either the U50 (code-packet header, sequence+ack) or U61 (bare
// sync+zero header) wire profile.
package usblink

import "errors"

// Sync is the frame-sync byte that begins every frame (§4.5/§6).
const Sync byte = 0x7E

// Escape is the prefix byte used to stuff a literal Sync or Escape byte
// appearing inside the message body (§4.5/§6).
const Escape byte = 0x0F

// Profile selects the wire variant (§4.5).
type Profile uint8

const (
	// ProfileU61 uses a bare 2-byte sync+zero header with no
	// sequence/ack code-packet.
	ProfileU61 Profile = iota
	// ProfileU50 uses a 4-byte code-packet header: sync, code byte
	// (3-bit sequence, ack bit, 4-bit command), parameter, checksum.
	ProfileU50
)

// ErrChecksum is returned when a received frame's trailing checksum byte
// does not validate.
var ErrChecksum = errors.New("usblink: checksum mismatch")

// ErrTruncatedFrame is returned when the parser runs out of bytes before
// a complete frame (sync..checksum) was assembled.
var ErrTruncatedFrame = errors.New("usblink: truncated frame")

// Checksum computes the 8-bit checksum of §4.5/§6: the negation (mod 256)
// of the sum of the preceding frame bytes, so that appending it makes the
// whole frame (including the checksum byte) sum to zero mod 256.
func Checksum(b []byte) byte {
	var sum byte
	for _, c := range b {
		sum += c
	}
	return byte(-sum)
}

// stuff applies escape stuffing to payload, prefixing every Sync or
// Escape byte with Escape (§4.5/S4).
func stuff(payload []byte) []byte {
	out := make([]byte, 0, len(payload))
	for _, c := range payload {
		if c == Sync || c == Escape {
			out = append(out, Escape)
		}
		out = append(out, c)
	}
	return out
}

// unstuff reverses stuff, returning the original payload bytes.
func unstuff(b []byte) ([]byte, error) {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c == Escape {
			i++
			if i >= len(b) {
				return nil, ErrTruncatedFrame
			}
			out = append(out, b[i])
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// CodePacket is the U50 profile's 4-byte header (§4.5/§6): sequence,
// ack-bit, and command packed into one byte, plus a parameter byte and a
// checksum covering just the code packet.
type CodePacket struct {
	Seq     uint8 // 3 bits
	Ack     bool
	Command uint8 // 4 bits
	Param   byte
}

func (c CodePacket) codeByte() byte {
	b := c.Seq & 0x7
	if c.Ack {
		b |= 1 << 3
	}
	b |= (c.Command & 0xF) << 4
	return b
}

func decodeCodeByte(b byte) (seq uint8, ack bool, cmd uint8) {
	seq = b & 0x7
	ack = b&(1<<3) != 0
	cmd = (b >> 4) & 0xF
	return
}

// EncodeFrame serializes a message under the given profile: for U61 a
// bare sync+zero header, for U50 a sync + code-packet header, followed
// in both cases by the escape-stuffed message and a trailing checksum
// over every preceding byte (§4.5/§6, S4).
func EncodeFrame(profile Profile, cp CodePacket, message []byte) []byte {
	var b []byte
	switch profile {
	case ProfileU50:
		b = append(b, Sync, cp.codeByte(), cp.Param)
		b = append(b, Checksum(b))
	default:
		b = append(b, Sync, 0x00)
	}
	b = append(b, stuff(message)...)
	b = append(b, Checksum(b))
	return b
}

// Frame is one decoded USB-link frame.
type Frame struct {
	Profile Profile
	CP      CodePacket
	Message []byte
}

// DecodeFrame parses a complete frame (sync..checksum) assembled by the
// uplink parser state machine. profile must match how the frame was
// produced; U50 frames are distinguished from U61 ones by the caller's
// interface configuration, not by any self-describing bit, matching how
// the transceiver profile is fixed per physical interface.
func DecodeFrame(profile Profile, raw []byte) (Frame, error) {
	if len(raw) < 3 || raw[0] != Sync {
		return Frame{}, ErrTruncatedFrame
	}
	if Checksum(raw[:len(raw)-1]) != raw[len(raw)-1] {
		return Frame{}, ErrChecksum
	}
	body := raw[1 : len(raw)-1]

	f := Frame{Profile: profile}
	switch profile {
	case ProfileU50:
		if len(body) < 3 {
			return Frame{}, ErrTruncatedFrame
		}
		seq, ack, cmd := decodeCodeByte(body[0])
		f.CP = CodePacket{Seq: seq, Ack: ack, Command: cmd, Param: body[1]}
		// body[2] is the code-packet's own checksum, already validated
		// as part of the whole-frame checksum above; the message begins
		// after it.
		msg, err := unstuff(body[3:])
		if err != nil {
			return Frame{}, err
		}
		f.Message = msg
	default:
		if len(body) < 1 || body[0] != 0x00 {
			return Frame{}, ErrTruncatedFrame
		}
		msg, err := unstuff(body[1:])
		if err != nil {
			return Frame{}, err
		}
		f.Message = msg
	}
	return f, nil
}
