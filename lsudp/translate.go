package lsudp

import (
	"fmt"
	"net"
	"time"

	"github.com/izot-community/lonstack/clog"
	"github.com/izot-community/lonstack/engine"
)

// FrameHandler is the upward collaborator (engine.Engine) that consumes a
// rewritten native frame received off the wire.
type FrameHandler interface {
	HandleFrame(raw []byte) error
}

// Link is the LS/UDP transport: it rewrites outgoing native frames to
// LS/UDP and back on receive, and owns the mapping table and the
// periodic announcement broadcast (§4.4/§6). It implements
// engine.LinkSender.
type Link struct {
	conn      *net.UDPConn
	table     *Table
	handler   FrameHandler
	log       clog.Clog
	domainID  [6]byte
	domainLen uint8
	subnet    uint8
	node      uint8

	announceEvery time.Duration
	sinceAnnounce time.Duration
}

// DefaultAnnouncePeriod is the announcement interval (§12): 30s of
// accumulated Tick time. No jitter is applied, and Link has no setter
// for the interval.
const DefaultAnnouncePeriod = 30 * time.Second

// NewLink binds a UDP socket on Port and constructs a Link around it.
func NewLink(table *Table) (*Link, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: Port})
	if err != nil {
		return nil, fmt.Errorf("lsudp: listen: %w", err)
	}
	return &Link{conn: conn, table: table, announceEvery: DefaultAnnouncePeriod}, nil
}

// SetHandler installs the upward collaborator.
func (l *Link) SetHandler(h FrameHandler) { l.handler = h }

// SetLogProvider installs a diagnostic log sink.
func (l *Link) SetLogProvider(p clog.LogProvider) { l.log.SetLogProvider(p) }

// SetSource configures this device's own LS addressing, used as the
// domain of unicast destination lookups and as the source fields of the
// announcement message. The socket does not join any multicast group.
func (l *Link) SetSource(domainID []byte, domainLen, subnet, node uint8) {
	copy(l.domainID[:], domainID)
	l.domainLen = domainLen
	l.subnet = subnet
	l.node = node
}

// Close releases the UDP socket.
func (l *Link) Close() error { return l.conn.Close() }

// SendFrame rewrites a native NPDU-encoded frame to LS/UDP and transmits
// it to dest, satisfying engine.LinkSender.
func (l *Link) SendFrame(dest engine.Addr, raw []byte) error {
	n, err := engine.Decode(raw)
	if err != nil {
		return err
	}

	f := Frame{
		Version:    0,
		PDUFormat:  0,
		AddrFormat: AddrFormat(n.AddrFmt),
		Priority:   false,
		Payload:    n.Payload,
	}
	f.EnclosedDest = encodeEnclosedDest(f.AddrFormat, dest)

	key := LSAddr{Domain: n.DomainID, DomainLen: n.DomainLen, Subnet: n.SrcSubnet, Node: n.SrcNode}
	if _, ok := l.table.Lookup(key); !ok {
		f.HasArbitrarySource = true
		f.ArbSubnet, f.ArbNode = n.SrcSubnet, n.SrcNode
		f.ArbDomainLen = n.DomainLen
		f.ArbDomain = n.DomainID
	}

	wire, err := f.Encode()
	if err != nil {
		return err
	}

	ip, err := l.resolveDest(n.AddrFmt, dest)
	if err != nil {
		return err
	}
	_, err = l.conn.WriteToUDP(wire, &net.UDPAddr{IP: ip, Port: Port})
	return err
}

func (l *Link) resolveDest(fmtV engine.WireAddrFormat, dest engine.Addr) (net.IP, error) {
	switch fmtV {
	case engine.WireBroadcast:
		return Multicast(McastBroadcast, 0), nil
	case engine.WireGroup:
		return Multicast(McastGroup, dest.GroupID), nil
	default:
		key := LSAddr{Domain: l.domainID, DomainLen: l.domainLen, Subnet: dest.Subnet, Node: dest.Node}
		return l.table.ResolveDestination(key)
	}
}

func encodeEnclosedDest(f AddrFormat, dest engine.Addr) []byte {
	switch f {
	case AddrBroadcast:
		return []byte{dest.Subnet}
	case AddrGroup:
		return []byte{dest.GroupID}
	case AddrSubnetNode:
		return []byte{dest.Subnet, dest.Node}
	case AddrUniqueID:
		return dest.UniqueID[:]
	case AddrGroupAck:
		return []byte{dest.GroupID, dest.Member}
	default:
		return nil
	}
}

// ReadLoop blocks reading UDP datagrams, rewriting each to a native frame
// and passing it to the installed handler, until the socket is closed.
// It is meant to run on its own goroutine; it does not participate in the
// cooperative event-pump model since it is the boundary where real
// asynchronous I/O enters the stack.
func (l *Link) ReadLoop() error {
	buf := make([]byte, 2048)
	for {
		n, from, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}
		if err := l.handleDatagram(buf[:n], from.IP); err != nil {
			l.log.Warn("lsudp: dropping malformed datagram: %v", err)
		}
	}
}

func (l *Link) handleDatagram(b []byte, srcIP net.IP) error {
	f, err := Decode(b)
	if err != nil {
		return err
	}

	if f.HasArbitrarySource {
		key := LSAddr{Domain: f.ArbDomain, DomainLen: f.ArbDomainLen, Subnet: f.ArbSubnet, Node: f.ArbNode}
		l.table.UpdateArbitrary(key, srcIP)
	}

	if f.IsAnnouncement() {
		return l.handleAnnouncement(f)
	}

	n := engine.NPDU{
		PDUFmt:    engine.PDUFormat(f.PDUFormat),
		AddrFmt:   engine.WireAddrFormat(f.AddrFormat),
		DomainLen: f.ArbDomainLen,
		SrcSubnet: f.ArbSubnet,
		SrcNode:   f.ArbNode,
		DomainID:  f.ArbDomain,
		Payload:   f.Payload,
	}
	dest, err := decodeEnclosedDest(f.AddrFormat, f.EnclosedDest)
	if err != nil {
		return err
	}
	n.Dest = dest

	raw, err := n.Encode()
	if err != nil {
		return err
	}
	if l.handler == nil {
		return nil
	}
	return l.handler.HandleFrame(raw)
}

func decodeEnclosedDest(f AddrFormat, b []byte) (engine.Addr, error) {
	switch f {
	case AddrBroadcast:
		return engine.Addr{Format: engine.WireBroadcast, Subnet: b[0]}, nil
	case AddrGroup:
		return engine.Addr{Format: engine.WireGroup, GroupID: b[0]}, nil
	case AddrSubnetNode:
		return engine.Addr{Format: engine.WireSubnetNode, Subnet: b[0], Node: b[1]}, nil
	case AddrUniqueID:
		var a engine.Addr
		a.Format = engine.WireUniqueID
		copy(a.UniqueID[:], b)
		return a, nil
	case AddrGroupAck:
		return engine.Addr{Format: engine.WireGroupAck, GroupID: b[0], Member: b[1]}, nil
	default:
		return engine.Addr{Format: engine.WireAddrFormat(f)}, nil
	}
}

// announcement is the periodic mapping-announcement payload: a device
// broadcasts its own LS address so peers can (re)populate their mapping
// tables without waiting for a unicast exchange (§4.4, §12).
type announcement struct {
	Domain    [6]byte
	DomainLen uint8
	Subnet    uint8
	Node      uint8
}

func (a announcement) marshal() []byte {
	b := make([]byte, 9)
	copy(b, a.Domain[:])
	b[6] = a.DomainLen
	b[7] = a.Subnet
	b[8] = a.Node
	return b
}

func unmarshalAnnouncement(b []byte) (announcement, error) {
	if len(b) < 9 {
		return announcement{}, fmt.Errorf("lsudp: short announcement")
	}
	var a announcement
	copy(a.Domain[:], b[:6])
	a.DomainLen, a.Subnet, a.Node = b[6], b[7], b[8]
	return a, nil
}

func (l *Link) handleAnnouncement(f Frame) error {
	a, err := unmarshalAnnouncement(f.Payload)
	if err != nil {
		return err
	}
	key := LSAddr{Domain: a.Domain, DomainLen: a.DomainLen, Subnet: a.Subnet, Node: a.Node}
	l.table.UpdateDerived(key)
	return nil
}

// Tick advances the mapping table's aging timer and, once the
// announcement interval has elapsed, multicasts this device's own
// mapping-announcement message. dt is the elapsed time since the
// previous call, matching the cooperative event-pump model used
// elsewhere in the stack.
func (l *Link) Tick(dt time.Duration) error {
	l.table.Tick()
	l.sinceAnnounce += dt
	if l.sinceAnnounce < l.announceEvery {
		return nil
	}
	l.sinceAnnounce = 0
	return l.sendAnnouncement()
}

func (l *Link) sendAnnouncement() error {
	a := announcement{Domain: l.domainID, DomainLen: l.domainLen, Subnet: l.subnet, Node: l.node}
	f := Frame{
		PDUFormat:  announcementPDUFormat,
		AddrFormat: AddrBroadcast,
		Payload:    a.marshal(),
	}
	f.EnclosedDest = []byte{0} // domain-wide broadcast, subnet 0
	wire, err := f.Encode()
	if err != nil {
		return err
	}
	dest := Multicast(McastBroadcast, 0)
	_, err = l.conn.WriteToUDP(wire, &net.UDPAddr{IP: dest, Port: Port})
	return err
}
