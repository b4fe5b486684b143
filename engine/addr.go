package engine

// WireAddrFormat enumerates the on-the-wire addressing formats of §4.3.
type WireAddrFormat uint8

const (
	WireBroadcast WireAddrFormat = iota
	WireGroup
	WireSubnetNode
	WireUniqueID
	WireGroupAck
	WireTurnaround
	WireNone
)

func (f WireAddrFormat) String() string {
	switch f {
	case WireBroadcast:
		return "broadcast"
	case WireGroup:
		return "group"
	case WireSubnetNode:
		return "subnet-node"
	case WireUniqueID:
		return "unique-id"
	case WireGroupAck:
		return "group-ack"
	case WireTurnaround:
		return "turnaround"
	default:
		return "none"
	}
}

// Multicast reports whether the format has multicast (one-to-many)
// semantics (§4.3).
func (f WireAddrFormat) Multicast() bool {
	return f == WireBroadcast || f == WireGroup
}

// Addr is a fully-resolved destination for an outgoing message: the wire
// format plus whichever fields that format needs.
type Addr struct {
	Format    WireAddrFormat
	DomainIdx uint8
	Subnet    uint8
	Node      uint8
	GroupID   uint8
	Member    uint8 // member index within a group, for response correlation
	UniqueID  [6]byte
}
