package engine

import (
	"testing"
	"time"

	"github.com/izot-community/lonstack/internal/ticker"
	"github.com/izot-community/lonstack/tcs"
)

type recordingLink struct {
	order []Addr
	frames [][]byte
}

func (l *recordingLink) SendFrame(dest Addr, raw []byte) error {
	l.order = append(l.order, dest)
	l.frames = append(l.frames, raw)
	return nil
}

type recordingCallbacks struct {
	completed []struct {
		tag     uint32
		success bool
	}
	arrived   []IncomingMsg
	responses []IncomingMsg
}

func (c *recordingCallbacks) MsgArrived(m IncomingMsg)      { c.arrived = append(c.arrived, m) }
func (c *recordingCallbacks) ResponseArrived(m IncomingMsg) { c.responses = append(c.responses, m) }
func (c *recordingCallbacks) MsgCompleted(tag uint32, success bool) {
	c.completed = append(c.completed, struct {
		tag     uint32
		success bool
	}{tag, success})
}

func newTestEngine() (*Engine, *recordingLink, *recordingCallbacks) {
	var clk ticker.Clock
	table := tcs.New(8, func() time.Duration { return clk.Now() })
	e := New(DefaultConfig(), &clk, table)
	link := &recordingLink{}
	cb := &recordingCallbacks{}
	e.SetLink(link)
	e.SetCallbacks(cb)
	e.SetSource(nil, 0, 1, 1)
	return e, link, cb
}

// TestPriorityPrecedence reproduces scenario S5: with one normal and one
// priority send queued, the next pump iteration drains the priority entry
// first.
func TestPriorityPrecedence(t *testing.T) {
	e, link, _ := newTestEngine()
	normalDest := Addr{Format: WireSubnetNode, Subnet: 1, Node: 2}
	priorityDest := Addr{Format: WireSubnetNode, Subnet: 1, Node: 3}

	if _, err := e.Send(Unacknowledged, false, false, PDUApplication, []Addr{normalDest}, []byte{1}); err != nil {
		t.Fatalf("send normal: %v", err)
	}
	if _, err := e.Send(Unacknowledged, true, false, PDUApplication, []Addr{priorityDest}, []byte{2}); err != nil {
		t.Fatalf("send priority: %v", err)
	}

	e.Pump(0)
	if len(link.order) != 1 || link.order[0].Node != 3 {
		t.Fatalf("expected priority dest sent first, got %+v", link.order)
	}
	e.Pump(0)
	if len(link.order) != 2 || link.order[1].Node != 2 {
		t.Fatalf("expected normal dest sent second, got %+v", link.order)
	}
}

// TestMsgCompletedInvariant reproduces §8 invariant 2: exactly one
// MsgCompleted per successful Send.
func TestMsgCompletedInvariant(t *testing.T) {
	e, _, cb := newTestEngine()
	dest := Addr{Format: WireSubnetNode, Subnet: 1, Node: 2}
	tag, err := e.Send(Unacknowledged, false, false, PDUApplication, []Addr{dest}, []byte{1})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	e.Pump(0)
	e.Pump(0)
	count := 0
	for _, c := range cb.completed {
		if c.tag == tag {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one MsgCompleted for tag %d, got %d", tag, count)
	}
}

// TestDuplicateFrameSuppressed reproduces scenario S3.
func TestDuplicateFrameSuppressed(t *testing.T) {
	e, _, cb := newTestEngine()
	frame := NPDU{
		PDUFmt:    PDUSession,
		AddrFmt:   WireSubnetNode,
		SrcSubnet: 9,
		SrcNode:   9,
		Dest:      Addr{Subnet: 1, Node: 1},
		Payload:   []byte{5, 0xAA},
	}
	raw, err := frame.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := e.HandleFrame(raw); err != nil {
		t.Fatalf("first HandleFrame: %v", err)
	}
	if err := e.HandleFrame(raw); err != nil {
		t.Fatalf("replay HandleFrame: %v", err)
	}
	if len(cb.arrived) != 1 {
		t.Fatalf("expected exactly one MsgArrived for tid 5, got %d", len(cb.arrived))
	}

	frame.Payload = []byte{6, 0xBB}
	raw2, _ := frame.Encode()
	if err := e.HandleFrame(raw2); err != nil {
		t.Fatalf("HandleFrame tid 6: %v", err)
	}
	if len(cb.arrived) != 2 {
		t.Fatalf("expected second MsgArrived for new tid, got %d", len(cb.arrived))
	}
}

// lastFrameTID decodes the most recent frame sent to dest and returns its
// leading TID byte.
func lastFrameTID(t *testing.T, link *recordingLink) uint8 {
	t.Helper()
	n, err := Decode(link.frames[len(link.frames)-1])
	if err != nil {
		t.Fatalf("decode sent frame: %v", err)
	}
	if len(n.Payload) == 0 {
		t.Fatalf("sent frame carries no payload")
	}
	return n.Payload[0]
}

// TestAcknowledgedCompletesOnAck reproduces the acknowledged-service
// completion path: a matching ack frame drives exactly one MsgCompleted.
func TestAcknowledgedCompletesOnAck(t *testing.T) {
	e, link, cb := newTestEngine()
	peer := Addr{Format: WireSubnetNode, Subnet: 2, Node: 9}

	tag, err := e.Send(Acknowledged, false, false, PDUApplication, []Addr{peer}, []byte{0x11})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	e.Pump(0)
	if len(link.frames) != 1 {
		t.Fatalf("expected one wire copy sent, got %d", len(link.frames))
	}
	tid := lastFrameTID(t, link)

	ack := NPDU{
		PDUFmt:    PDUTransport,
		AddrFmt:   WireSubnetNode,
		SrcSubnet: peer.Subnet,
		SrcNode:   peer.Node,
		Dest:      Addr{Subnet: 1, Node: 1},
		Payload:   []byte{tid},
	}
	raw, err := ack.Encode()
	if err != nil {
		t.Fatalf("encode ack: %v", err)
	}
	if err := e.HandleFrame(raw); err != nil {
		t.Fatalf("HandleFrame ack: %v", err)
	}
	e.Pump(0)

	count := 0
	for _, c := range cb.completed {
		if c.tag == tag {
			count++
			if !c.success {
				t.Fatalf("expected successful completion, got failure")
			}
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one MsgCompleted for tag %d, got %d", tag, count)
	}
	if len(link.frames) != 1 {
		t.Fatalf("expected no retransmission once acked, got %d wire copies", len(link.frames))
	}
}

// TestRequestResponseDeliversResponseAndCompletes reproduces the
// request/response completion path, including response_arrived delivery.
func TestRequestResponseDeliversResponseAndCompletes(t *testing.T) {
	e, link, cb := newTestEngine()
	peer := Addr{Format: WireSubnetNode, Subnet: 2, Node: 9}

	tag, err := e.Send(RequestResponse, false, false, PDUApplication, []Addr{peer}, []byte{0x22})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	e.Pump(0)
	tid := lastFrameTID(t, link)

	reply := NPDU{
		PDUFmt:    PDUSession,
		AddrFmt:   WireSubnetNode,
		SrcSubnet: peer.Subnet,
		SrcNode:   peer.Node,
		Dest:      Addr{Subnet: 1, Node: 1},
		Payload:   []byte{tid, 0x99},
	}
	raw, err := reply.Encode()
	if err != nil {
		t.Fatalf("encode reply: %v", err)
	}
	if err := e.HandleFrame(raw); err != nil {
		t.Fatalf("HandleFrame reply: %v", err)
	}
	e.Pump(0)

	if len(cb.completed) != 1 || cb.completed[0].tag != tag || !cb.completed[0].success {
		t.Fatalf("expected one successful completion for tag %d, got %+v", tag, cb.completed)
	}
	if len(cb.responses) != 1 || cb.responses[0].TID != tid || string(cb.responses[0].Data) != "\x99" {
		t.Fatalf("expected one response_arrived with the reply payload, got %+v", cb.responses)
	}
}

// TestRepeatedFiresConfiguredCount reproduces the repeated-service fire
// loop: RepeatCount copies at RepeatInterval spacing, then unconditional
// completion.
func TestRepeatedFiresConfiguredCount(t *testing.T) {
	var clk ticker.Clock
	table := tcs.New(8, func() time.Duration { return clk.Now() })
	cfg := DefaultConfig()
	cfg.RepeatCount = 3
	cfg.RepeatInterval = 50 * time.Millisecond
	e := New(cfg, &clk, table)
	link := &recordingLink{}
	cb := &recordingCallbacks{}
	e.SetLink(link)
	e.SetCallbacks(cb)
	e.SetSource(nil, 0, 1, 1)

	dest := Addr{Format: WireSubnetNode, Subnet: 4, Node: 4}
	tag, err := e.Send(Repeated, false, false, PDUApplication, []Addr{dest}, []byte{0x33})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	e.Pump(0) // first copy goes out
	if len(link.frames) != 1 {
		t.Fatalf("expected 1 wire copy after first pump, got %d", len(link.frames))
	}
	e.Pump(10 * time.Millisecond) // interval not yet elapsed
	if len(link.frames) != 1 {
		t.Fatalf("expected no retransmission before interval elapses, got %d", len(link.frames))
	}
	e.Pump(50 * time.Millisecond) // second copy
	if len(link.frames) != 2 {
		t.Fatalf("expected 2 wire copies, got %d", len(link.frames))
	}
	e.Pump(50 * time.Millisecond) // third copy, RepeatCount reached
	if len(link.frames) != 3 {
		t.Fatalf("expected 3 wire copies, got %d", len(link.frames))
	}
	e.Pump(50 * time.Millisecond) // now completes
	if len(cb.completed) != 1 || cb.completed[0].tag != tag || !cb.completed[0].success {
		t.Fatalf("expected one successful completion for tag %d, got %+v", tag, cb.completed)
	}
	if len(link.frames) != 3 {
		t.Fatalf("expected no further wire copies after completion, got %d", len(link.frames))
	}
}

// TestAcknowledgedRetriesThenFails reproduces retry/backoff exhaustion:
// with no ack ever arriving, the engine retransmits RetryCount times
// spaced by Config.BackoffFor before giving up with MsgCompleted(false).
func TestAcknowledgedRetriesThenFails(t *testing.T) {
	var clk ticker.Clock
	table := tcs.New(8, func() time.Duration { return clk.Now() })
	cfg := DefaultConfig()
	cfg.RetryCount = 2
	cfg.RetryTimer = 10 * time.Millisecond
	e := New(cfg, &clk, table)
	link := &recordingLink{}
	cb := &recordingCallbacks{}
	e.SetLink(link)
	e.SetCallbacks(cb)
	e.SetSource(nil, 0, 1, 1)

	dest := Addr{Format: WireSubnetNode, Subnet: 5, Node: 5}
	tag, err := e.Send(Acknowledged, false, false, PDUApplication, []Addr{dest}, []byte{0x44})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	e.Pump(0) // attempt 1
	e.Pump(10 * time.Millisecond) // backoff(0)=10ms elapsed -> attempt 2
	if len(link.frames) != 2 {
		t.Fatalf("expected 2 wire copies, got %d", len(link.frames))
	}
	e.Pump(20 * time.Millisecond) // backoff(1)=20ms elapsed -> attempt 3 (maxAttempts reached)
	if len(link.frames) != 3 {
		t.Fatalf("expected 3 wire copies, got %d", len(link.frames))
	}
	e.Pump(20 * time.Millisecond) // attempt(3) >= maxAttempts(3) -> fail
	if len(cb.completed) != 1 || cb.completed[0].tag != tag || cb.completed[0].success {
		t.Fatalf("expected one failed completion for tag %d, got %+v", tag, cb.completed)
	}
}
