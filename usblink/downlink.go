package usblink

import "time"

// downState is the downlink (send) state machine of §4.5: START -> IDLE
// -> one of CP_ACK_WAIT | MSG_ACK_WAIT | CP_MSG_REQ_ACK_WAIT |
// CP_RESPONSE_WAIT -> IDLE.
type downState uint8

const (
	downStart downState = iota
	downIdle
	downCPAckWait
	downMsgAckWait
	downCPMsgReqAckWait
	downCPResponseWait
)

// AckWaitTime bounds how long the downlink waits for a sequence ack
// before declaring a timeout and resyncing (§4.5).
const AckWaitTime = 200 * time.Millisecond

// MaxUIDRetries bounds the startup handshake's attempts to read the
// interface's unique ID (§4.5, §12).
const MaxUIDRetries = 3

// outbound is one queued downlink transmission awaiting its turn.
type outbound struct {
	frame    []byte
	wantsAck bool
	seq      uint8
}

// downlink tracks the send-side state machine and its sequence counter.
// It is not safe for concurrent use beyond the one goroutine that also
// owns Parser; Interface.queueLock guards enqueue from other goroutines.
type downlink struct {
	state     downState
	seq       uint8
	waiting   *outbound
	waitSince time.Duration
	elapsed   time.Duration
}

func newDownlink() *downlink {
	return &downlink{state: downStart}
}

// Advance moves the waiting transmission's elapsed clock forward and
// reports whether an ack-wait timeout has just occurred (triggering
// NI_RESYNC).
func (d *downlink) Advance(dt time.Duration) bool {
	d.elapsed += dt
	if d.state == downIdle || d.waiting == nil {
		return false
	}
	if d.elapsed-d.waitSince >= AckWaitTime {
		d.state = downIdle
		d.waiting = nil
		return true
	}
	return false
}

// BeginSend transitions from IDLE into the appropriate ack-wait state for
// the outbound frame. It assigns ob.seq from the 3-bit sequence counter
// and increments the counter on every call, whatever the profile; the
// frame bytes, already encoded by Interface.Send, are not rewritten.
func (d *downlink) BeginSend(ob *outbound, msgAck, cpAck bool) {
	ob.seq = d.seq
	d.seq = (d.seq + 1) & 0x7
	d.waiting = ob
	d.waitSince = d.elapsed
	switch {
	case cpAck && msgAck:
		d.state = downCPMsgReqAckWait
	case cpAck:
		d.state = downCPAckWait
	case msgAck:
		d.state = downMsgAckWait
	default:
		d.state = downIdle
		d.waiting = nil
	}
}

// Ack reports the sequence number acknowledged by the peer; returns true
// iff it matched the outstanding transmission, retiring the wait.
func (d *downlink) Ack(seq uint8) bool {
	if d.waiting == nil || d.waiting.seq != seq {
		return false
	}
	d.waiting = nil
	d.state = downIdle
	return true
}

func (d *downlink) Idle() bool { return d.state == downIdle || d.state == downStart }
