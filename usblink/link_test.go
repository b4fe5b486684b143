package usblink

import "testing"

// TestPriorityDrainOrder reproduces §4.5's "drain order on send: priority
// first, then normal," mirroring the engine's equivalent scenario S5.
func TestPriorityDrainOrder(t *testing.T) {
	ifc := newInterface(nil, ProfileU61)

	if err := ifc.Send(false, false, CodePacket{}, []byte{1}); err != nil {
		t.Fatalf("send normal: %v", err)
	}
	if err := ifc.Send(true, false, CodePacket{}, []byte{2}); err != nil {
		t.Fatalf("send priority: %v", err)
	}

	first, ok := ifc.nextOutbound()
	if !ok {
		t.Fatalf("expected a queued outbound frame")
	}
	wantFirst := EncodeFrame(ProfileU61, CodePacket{}, []byte{2})
	if string(first.frame) != string(wantFirst) {
		t.Fatalf("expected priority frame drained first")
	}

	second, ok := ifc.nextOutbound()
	if !ok {
		t.Fatalf("expected a second queued outbound frame")
	}
	wantSecond := EncodeFrame(ProfileU61, CodePacket{}, []byte{1})
	if string(second.frame) != string(wantSecond) {
		t.Fatalf("expected normal frame drained second")
	}
}

func TestSendQueueRejectsWhenFull(t *testing.T) {
	ifc := newInterface(nil, ProfileU61)
	for i := 0; i < queueDepth; i++ {
		if err := ifc.Send(false, false, CodePacket{}, []byte{byte(i)}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if err := ifc.Send(false, false, CodePacket{}, []byte{0xFF}); err == nil {
		t.Fatalf("expected queue-full error once capacity is exhausted")
	}
	if ifc.Stats.TxRejects != 1 {
		t.Fatalf("expected TxRejects=1, got %d", ifc.Stats.TxRejects)
	}
}

func TestPumpTransmitsQueuedFrameWhenIdle(t *testing.T) {
	ifc := newInterface(nil, ProfileU61)
	if err := ifc.Send(false, false, CodePacket{}, []byte{9}); err != nil {
		t.Fatalf("send: %v", err)
	}
	ifc.Pump(0)
	if ifc.priorityQ.Len() != 0 || ifc.normalQ.Len() != 0 {
		t.Fatalf("expected queued frame to be drained by Pump")
	}
}

func TestRxBytesFlowIntoParser(t *testing.T) {
	var got [][]byte
	ifc := newInterface(nil, ProfileU61)
	ifc.OnMsg = func(msg []byte) { got = append(got, msg) }

	wire := EncodeFrame(ProfileU61, CodePacket{}, []byte{0x11, 0x22})
	ifc.PushRx(wire)
	ifc.Pump(0)

	if len(got) != 1 {
		t.Fatalf("expected one assembled message via Pump, got %d", len(got))
	}
	if ifc.Stats.RxPackets != 1 {
		t.Fatalf("expected RxPackets=1, got %d", ifc.Stats.RxPackets)
	}
}
