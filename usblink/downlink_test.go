package usblink

import (
	"testing"
	"time"
)

func TestDownlinkAckRetiresWait(t *testing.T) {
	d := newDownlink()
	ob := &outbound{frame: []byte{0x7E}}
	d.BeginSend(ob, true, false)
	if d.Idle() {
		t.Fatalf("expected busy state after BeginSend with ack requested")
	}
	if !d.Ack(ob.seq) {
		t.Fatalf("expected ack to match outstanding sequence")
	}
	if !d.Idle() {
		t.Fatalf("expected idle after matching ack")
	}
}

func TestDownlinkAckWaitTimeout(t *testing.T) {
	d := newDownlink()
	ob := &outbound{frame: []byte{0x7E}}
	d.BeginSend(ob, true, false)

	if timedOut := d.Advance(AckWaitTime - time.Millisecond); timedOut {
		t.Fatalf("did not expect timeout before AckWaitTime elapses")
	}
	if timedOut := d.Advance(2 * time.Millisecond); !timedOut {
		t.Fatalf("expected timeout once AckWaitTime has elapsed")
	}
	if !d.Idle() {
		t.Fatalf("expected idle after timeout")
	}
}

func TestDownlinkNoAckNeededGoesIdleImmediately(t *testing.T) {
	d := newDownlink()
	ob := &outbound{frame: []byte{0x7E}}
	d.BeginSend(ob, false, false)
	if !d.Idle() {
		t.Fatalf("expected immediate idle for a fire-and-forget send")
	}
}

func TestDownlinkSequenceIncrements(t *testing.T) {
	d := newDownlink()
	var seqs []uint8
	for i := 0; i < 10; i++ {
		ob := &outbound{}
		d.BeginSend(ob, true, false)
		seqs = append(seqs, ob.seq)
		d.Ack(ob.seq)
	}
	for i, s := range seqs {
		if s != uint8(i&0x7) {
			t.Fatalf("sequence %d: got %d want %d (3-bit wraparound)", i, s, uint8(i&0x7))
		}
	}
}
