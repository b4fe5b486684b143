// Package lsudp implements the LS/UDP translation layer (§4.4):
// bidirectional rewriting between the native layer-3 frame format and a
// UDP-carried encoding, including derived and arbitrary IP-address
// mapping.
//
// The address derivation is a fixed, narrow byte computation (four bytes
// from a domain/subnet/node triple), not a general TCP/IP header
// construction problem, so it is implemented directly over net.IP rather
// than adopting a general-purpose header-construction package such as
// gvisor's pkg/tcpip/header (see DESIGN.md/SPEC_FULL.md for that
// decision).
package lsudp

import (
	"errors"
	"net"
)

// Port is the customary LON/IP (LS/UDP) UDP port (§6).
const Port = 1628

// ErrInvalidDomainLen mirrors config.ErrInvalidDomainLen without an
// import, keeping lsudp a leaf package.
var ErrInvalidDomainLen = errors.New("lsudp: domain length must be 0, 1, or 3 for derivation")

// DerivedUnicast computes the §4.4 derived IPv4 address for an LS device
// with the given domain bytes (only lengths 0, 1, and 3 have a derivation
// rule; length 6 has none and must use arbitrary addressing), subnet, and
// node.
func DerivedUnicast(domainID []byte, domainLen int, subnet, node uint8) (net.IP, error) {
	var a, b byte
	switch domainLen {
	case 0:
		a, b = 192, 168
	case 1:
		a, b = 10, domainID[0]
	case 3:
		a, b = domainID[0], domainID[1]
	default:
		return nil, ErrInvalidDomainLen
	}
	return net.IPv4(a, b, subnet, node), nil
}

// McastType selects the byte distinguishing a broadcast multicast address
// from a group multicast address (§4.4).
type McastType byte

const (
	McastBroadcast McastType = 0
	McastGroup     McastType = 1
)

// Multicast computes the §4.4 multicast address for a domain broadcast,
// subnet broadcast, or group, using the fixed 239.192 prefix.
//
// S1: domain-broadcast -> 239.192.0.0; subnet=3 broadcast -> 239.192.0.3;
// group=42 -> 239.192.1.42.
func Multicast(kind McastType, subnetOrGroup uint8) net.IP {
	return net.IPv4(239, 192, byte(kind), subnetOrGroup)
}
