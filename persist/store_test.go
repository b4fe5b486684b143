package persist

import (
	"testing"

	"github.com/izot-community/lonstack/internal/ticker"
)

func maxSizes() map[Segment]int {
	return map[Segment]int{
		SegmentNetworkImage:    256,
		SegmentApplicationData: 256,
		SegmentSecurityII:      64,
		SegmentNodeDefinition:  64,
		SegmentUniqueID:        16,
		SegmentISIConnections:  64,
		SegmentISIPersistent:   64,
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dev := NewMemDevice(64*1024, 4096)
	s, err := NewStore(dev, maxSizes(), false)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	payload := []byte("hello lon")
	if err := s.WriteSegment(SegmentApplicationData, payload, 0xCAFE); err != nil {
		t.Fatalf("WriteSegment: %v", err)
	}
	got, err := s.ReadSegment(SegmentApplicationData)
	if err != nil {
		t.Fatalf("ReadSegment: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("round-trip mismatch: got %q want %q", got, payload)
	}
}

// TestPowerCutBetweenEnterAndExit reproduces scenario S2: a power cut
// between enter_transaction and exit_transaction must leave the segment
// is_in_transaction=true, i.e. treated as empty on the next "boot."
func TestPowerCutBetweenEnterAndExit(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteSegment(SegmentApplicationData, []byte("committed"), 1); err != nil {
		t.Fatalf("initial commit: %v", err)
	}

	// Simulate a fresh write that crashes after EnterTransaction but
	// before ExitTransaction: call OpenForWrite (which enters + erases)
	// and stop there, never calling ExitTransaction.
	if _, err := s.OpenForWrite(SegmentApplicationData, 5); err != nil {
		t.Fatalf("OpenForWrite: %v", err)
	}

	inTx, err := s.IsInTransaction(SegmentApplicationData)
	if err != nil {
		t.Fatalf("IsInTransaction: %v", err)
	}
	if !inTx {
		t.Fatal("expected in-transaction after simulated power cut")
	}

	h, err := s.OpenForRead(SegmentApplicationData)
	if err != nil {
		t.Fatalf("OpenForRead: %v", err)
	}
	if h != nil {
		t.Fatal("expected nil read handle for in-transaction segment")
	}
}

func TestExitRequiresEraseSinceEnter(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteSegment(SegmentApplicationData, []byte("v1"), 1); err != nil {
		t.Fatalf("commit v1: %v", err)
	}
	if err := s.EnterTransaction(SegmentApplicationData); err != nil {
		t.Fatalf("enter: %v", err)
	}
	inTx, _ := s.IsInTransaction(SegmentApplicationData)
	if !inTx {
		t.Fatal("expected in-transaction after EnterTransaction")
	}
	// Without an erase, attempting to mark valid again should not be
	// reachable through the AND-only write discipline: writing the valid
	// pattern over a zeroed state word cannot set any bit, so it stays
	// invalid. We exercise this directly against the device to show the
	// invariant, since Store only exposes the safe path (OpenForWrite).
	if err := s.writeTxRecord(SegmentApplicationData, sigValid, stateValid); err != nil {
		t.Fatalf("writeTxRecord: %v", err)
	}
	inTx, _ = s.IsInTransaction(SegmentApplicationData)
	if !inTx {
		t.Fatal("expected still in-transaction: AND-only write cannot set cleared bits without erase")
	}
}

func TestMaxSizeSecurityIICompiledOut(t *testing.T) {
	dev := NewMemDevice(64*1024, 4096)
	s, err := NewStore(dev, maxSizes(), true)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if got := s.GetMaxSize(SegmentSecurityII); got != 0 {
		t.Fatalf("expected 0 for compiled-out SecurityII, got %d", got)
	}
}

func TestSchedulerCoalescesAndFlushesOneAtATime(t *testing.T) {
	s := newTestStore(t)
	var clk ticker.Clock
	sched := NewScheduler(s, &clk, 0xBEEF)

	sched.MarkDirty(SegmentApplicationData, []byte("a"))
	sched.MarkDirty(SegmentApplicationData, []byte("ab")) // coalesce, only latest kept
	sched.MarkDirty(SegmentNodeDefinition, []byte("nd"))

	if !sched.AnyDirty() {
		t.Fatal("expected dirty segments pending")
	}
	clk.Advance(DefaultGuardBand)
	if errs := sched.Tick(); len(errs) != 0 {
		t.Fatalf("unexpected flush errors: %v", errs)
	}
	if sched.AnyDirty() {
		t.Fatal("expected no dirty segments after flush")
	}

	got, err := s.ReadSegment(SegmentApplicationData)
	if err != nil {
		t.Fatalf("ReadSegment: %v", err)
	}
	if string(got) != "ab" {
		t.Fatalf("expected coalesced payload 'ab', got %q", got)
	}
}

func TestAppDataCodecRoundTrip(t *testing.T) {
	in := AppData{Version: 1, Fields: map[string][]byte{"k": {1, 2, 3}}}
	b, err := EncodeAppData(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeAppData(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Version != in.Version || string(out.Fields["k"]) != string(in.Fields["k"]) {
		t.Fatalf("round-trip mismatch: %+v vs %+v", out, in)
	}
}
