package lsudp

import "fmt"

// AddrFormat mirrors engine.WireAddrFormat's numeric values so the root
// package can convert between them by simple cast; lsudp stays a leaf
// package and does not import engine.
type AddrFormat uint8

const (
	AddrBroadcast AddrFormat = iota
	AddrGroup
	AddrSubnetNode
	AddrUniqueID
	AddrGroupAck
	AddrTurnaround
	AddrNone
)

// Frame is the decoded LS/UDP payload of §4.4/§6: a two-byte header
// (version, pdu-format, address-format, priority, MCR flag), an optional
// enclosed destination address, an optional arbitrary-source block, and
// the native payload with its own addressing bytes stripped.
type Frame struct {
	Version    uint8 // 2 bits
	PDUFormat  uint8 // 2 bits
	AddrFormat AddrFormat
	Priority   bool
	MCR        bool // multicast completion request

	// EnclosedDest carries the destination address fields for formats
	// that need them on the wire (broadcast/group/subnet-node/unique-id).
	EnclosedDest []byte

	// ArbitrarySource is present iff the sender cannot use its derived
	// address (§4.4): {subnet, node, domainLen, domain[:domainLen]}.
	HasArbitrarySource bool
	ArbSubnet          uint8
	ArbNode            uint8
	ArbDomainLen       uint8
	ArbDomain          [6]byte

	Payload []byte
}

// announcementPDUFormat is a reserved pdu-format value identifying the
// periodic mapping-announcement message (§4.4): never forwarded upward,
// only consumed to refresh the mapping table.
const announcementPDUFormat = 0x3

// IsAnnouncement reports whether the frame is a mapping announcement.
func (f Frame) IsAnnouncement() bool { return f.PDUFormat == announcementPDUFormat }

func enclosedDestLen(f AddrFormat) int {
	switch f {
	case AddrBroadcast:
		return 1
	case AddrGroup:
		return 1
	case AddrSubnetNode:
		return 2
	case AddrUniqueID:
		return 6
	case AddrGroupAck:
		return 2
	default: // turnaround, none
		return 0
	}
}

// Encode serializes f to its wire bytes.
func (f Frame) Encode() ([]byte, error) {
	if len(f.EnclosedDest) != enclosedDestLen(f.AddrFormat) {
		return nil, fmt.Errorf("lsudp: enclosed dest length %d, want %d", len(f.EnclosedDest), enclosedDestLen(f.AddrFormat))
	}
	var b []byte
	h0 := (f.Version&0x3)<<6 | (f.PDUFormat&0x3)<<4 | byte(f.AddrFormat)&0x7
	if f.HasArbitrarySource {
		h0 |= 1 << 3
	}
	var h1 byte
	if f.Priority {
		h1 |= 1 << 7
	}
	if f.MCR {
		h1 |= 1 << 6
	}
	b = append(b, h0, h1)
	b = append(b, f.EnclosedDest...)
	if f.HasArbitrarySource {
		b = append(b, f.ArbSubnet, f.ArbNode, f.ArbDomainLen)
		b = append(b, f.ArbDomain[:f.ArbDomainLen]...)
	}
	b = append(b, f.Payload...)
	return b, nil
}

// Decode parses wire bytes into a Frame.
func Decode(b []byte) (Frame, error) {
	if len(b) < 2 {
		return Frame{}, fmt.Errorf("lsudp: frame too short")
	}
	h0, h1 := b[0], b[1]
	f := Frame{
		Version:            h0 >> 6,
		PDUFormat:          (h0 >> 4) & 0x3,
		AddrFormat:         AddrFormat(h0 & 0x7),
		HasArbitrarySource: h0&(1<<3) != 0,
		Priority:           h1&(1<<7) != 0,
		MCR:                h1&(1<<6) != 0,
	}
	rest := b[2:]
	n := enclosedDestLen(f.AddrFormat)
	if len(rest) < n {
		return Frame{}, fmt.Errorf("lsudp: frame too short for enclosed dest")
	}
	f.EnclosedDest = append([]byte(nil), rest[:n]...)
	rest = rest[n:]

	if f.HasArbitrarySource {
		if len(rest) < 3 {
			return Frame{}, fmt.Errorf("lsudp: frame too short for arbitrary source")
		}
		f.ArbSubnet, f.ArbNode, f.ArbDomainLen = rest[0], rest[1], rest[2]
		rest = rest[3:]
		if len(rest) < int(f.ArbDomainLen) {
			return Frame{}, fmt.Errorf("lsudp: frame too short for arbitrary domain")
		}
		copy(f.ArbDomain[:f.ArbDomainLen], rest[:f.ArbDomainLen])
		rest = rest[f.ArbDomainLen:]
	}
	f.Payload = append([]byte(nil), rest...)
	return f, nil
}
