package engine

import "fmt"

// PDUFormat identifies which layer's PDU immediately follows the NPDU
// header (§6).
type PDUFormat uint8

const (
	PDUTransport PDUFormat = iota
	PDUSession
	PDUAuth
	PDUApplication
)

// domainLenCodes maps the 2-bit wire code to the four legal domain-ID
// lengths {0, 1, 3, 6} (§3), following the same compact
// bit-shift-over-a-fixed-struct style as the teacher's cs104/apci.go
// newIFrame/parse functions.
var domainLenCodes = [4]uint8{0, 1, 3, 6}

func domainLenToCode(n uint8) (uint8, bool) {
	for code, v := range domainLenCodes {
		if v == n {
			return uint8(code), true
		}
	}
	return 0, false
}

// NPDU is the native layer-3 frame of §6: a header byte
// (priority/altpath/delta-backlog), a second byte
// (pdu-format/address-format/version/domain-length), source subnet+node,
// destination-by-format fields, domain-ID bytes, and payload.
type NPDU struct {
	Priority     bool
	AltPath      bool
	DeltaBacklog uint8 // 6 bits, 0..63 (§4.3)
	PDUFmt       PDUFormat
	AddrFmt      WireAddrFormat
	Version      uint8 // 1 bit
	DomainLen    uint8 // 0, 1, 3, or 6
	SrcSubnet    uint8
	SrcNode      uint8
	Dest         Addr
	DomainID     [6]byte
	Payload      []byte
}

// ErrInvalidMessageLength flags an NPDU whose payload or encoding would
// violate the size bounds of §8 (0..228 bytes of application payload).
var ErrInvalidMessageLength = fmt.Errorf("engine: invalid message length")

const maxPayload = 228

// Encode renders n as a native frame byte slice.
func (n NPDU) Encode() ([]byte, error) {
	if len(n.Payload) > maxPayload {
		return nil, ErrInvalidMessageLength
	}
	if n.DeltaBacklog > 0x3F {
		return nil, fmt.Errorf("engine: delta backlog out of range")
	}
	code, ok := domainLenToCode(n.DomainLen)
	if !ok {
		return nil, fmt.Errorf("engine: invalid domain length %d", n.DomainLen)
	}

	b := make([]byte, 0, 2+2+6+6+len(n.Payload))

	var h0 byte = n.DeltaBacklog & 0x3F
	if n.Priority {
		h0 |= 1 << 7
	}
	if n.AltPath {
		h0 |= 1 << 6
	}
	b = append(b, h0)

	h1 := (byte(n.PDUFmt) << 6) | (byte(n.AddrFmt) << 3) | ((n.Version & 1) << 2) | (code & 0x3)
	b = append(b, h1)

	b = append(b, n.SrcSubnet, n.SrcNode)

	switch n.AddrFmt {
	case WireBroadcast:
		b = append(b, n.Dest.Subnet)
	case WireGroup:
		b = append(b, n.Dest.GroupID)
	case WireSubnetNode:
		b = append(b, n.Dest.Subnet, n.Dest.Node)
	case WireUniqueID:
		b = append(b, n.Dest.UniqueID[:]...)
	case WireGroupAck:
		b = append(b, n.Dest.GroupID, n.Dest.Member)
	case WireTurnaround, WireNone:
		// no destination fields
	}

	b = append(b, n.DomainID[:n.DomainLen]...)
	b = append(b, n.Payload...)
	return b, nil
}

// Decode parses a native frame byte slice into an NPDU.
func Decode(b []byte) (NPDU, error) {
	if len(b) < 4 {
		return NPDU{}, fmt.Errorf("engine: frame too short")
	}
	var n NPDU
	h0, h1 := b[0], b[1]
	n.Priority = h0&(1<<7) != 0
	n.AltPath = h0&(1<<6) != 0
	n.DeltaBacklog = h0 & 0x3F

	n.PDUFmt = PDUFormat(h1 >> 6)
	n.AddrFmt = WireAddrFormat((h1 >> 3) & 0x7)
	n.Version = (h1 >> 2) & 1
	code := h1 & 0x3
	if int(code) >= len(domainLenCodes) {
		return NPDU{}, fmt.Errorf("engine: invalid domain length code")
	}
	n.DomainLen = domainLenCodes[code]

	rest := b[2:]
	if len(rest) < 2 {
		return NPDU{}, fmt.Errorf("engine: frame too short")
	}
	n.SrcSubnet, n.SrcNode = rest[0], rest[1]
	rest = rest[2:]

	switch n.AddrFmt {
	case WireBroadcast:
		if len(rest) < 1 {
			return NPDU{}, fmt.Errorf("engine: frame too short")
		}
		n.Dest.Subnet = rest[0]
		rest = rest[1:]
	case WireGroup:
		if len(rest) < 1 {
			return NPDU{}, fmt.Errorf("engine: frame too short")
		}
		n.Dest.GroupID = rest[0]
		rest = rest[1:]
	case WireSubnetNode:
		if len(rest) < 2 {
			return NPDU{}, fmt.Errorf("engine: frame too short")
		}
		n.Dest.Subnet, n.Dest.Node = rest[0], rest[1]
		rest = rest[2:]
	case WireUniqueID:
		if len(rest) < 6 {
			return NPDU{}, fmt.Errorf("engine: frame too short")
		}
		copy(n.Dest.UniqueID[:], rest[:6])
		rest = rest[6:]
	case WireGroupAck:
		if len(rest) < 2 {
			return NPDU{}, fmt.Errorf("engine: frame too short")
		}
		n.Dest.GroupID, n.Dest.Member = rest[0], rest[1]
		rest = rest[2:]
	case WireTurnaround, WireNone:
	}

	if len(rest) < int(n.DomainLen) {
		return NPDU{}, fmt.Errorf("engine: frame too short")
	}
	copy(n.DomainID[:n.DomainLen], rest[:n.DomainLen])
	n.Payload = append([]byte(nil), rest[n.DomainLen:]...)
	if len(n.Payload) > maxPayload {
		return NPDU{}, ErrInvalidMessageLength
	}
	return n, nil
}
