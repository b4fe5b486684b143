package engine

import (
	"time"

	"github.com/izot-community/lonstack/tcs"
)

// Service selects the outgoing service type (§4.3).
type Service uint8

const (
	Unacknowledged Service = iota
	Repeated
	Acknowledged
	RequestResponse
)

func (s Service) String() string {
	switch s {
	case Repeated:
		return "repeated"
	case Acknowledged:
		return "acknowledged"
	case RequestResponse:
		return "request-response"
	default:
		return "unacknowledged"
	}
}

// pending tracks one in-flight outgoing transaction through the send
// pipeline (§4.3): retry/repeat bookkeeping, per-destination ack state,
// and (for request/response) the responses collected so far.
type pending struct {
	tag       uint32
	service   Service
	priority  bool
	dests     []Addr
	tids      []uint8 // per-destination TID, Acknowledged/RequestResponse only
	acked     []bool
	responses [][]byte
	payload   []byte
	pduFmt    PDUFormat
	auth      bool
	attempt   int           // wire copies sent so far
	maxAttempts int         // RetryCount+1 or RepeatCount
	sent        bool        // at least one wire copy went out
	lastSentAt  time.Duration // clock time of the most recent wire copy
	supersededBy *pending
	done        bool
}

// allAcked reports whether every destination has acknowledged.
func (p *pending) allAcked() bool {
	for _, a := range p.acked {
		if !a {
			return false
		}
	}
	return true
}

// deltaBacklog computes the 6-bit back-pressure hint (§4.3) from the
// engine's current pending-transaction count, capped at the field width.
func deltaBacklog(pendingCount int) uint8 {
	if pendingCount > 0x3F {
		return 0x3F
	}
	return uint8(pendingCount)
}

// priorityIdx maps the send-side priority flag to the tcs table's
// fixed priority-slot index (§4.2).
func priorityIdx(priority bool) uint8 {
	if priority {
		return 1
	}
	return 0
}

// tcsDestFor derives a's tcs.Dest equality tuple for transaction-control
// bookkeeping, picking the pair of address fields that identify a peer
// under a's wire format (§4.2).
func tcsDestFor(a Addr, domainID [6]byte, domainLen uint8) tcs.Dest {
	d := tcs.Dest{Format: tcs.AddrFormat(a.Format), DomainID: domainID, DomainLen: domainLen}
	switch a.Format {
	case WireGroup, WireGroupAck:
		d.A, d.B = a.GroupID, a.Member
	case WireBroadcast:
		d.A = a.Subnet
	default:
		d.A, d.B = a.Subnet, a.Node
	}
	return d
}
