package lsudp

import (
	"bytes"
	"testing"
)

// TestEncodeDecodeRoundTrip reproduces the §8 invariant: LS/UDP
// encode(decode(frame)) = frame for every legal layer-3 frame.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Frame{
		{
			AddrFormat:   AddrSubnetNode,
			EnclosedDest: []byte{3, 7},
			Payload:      []byte{0x01, 0x02, 0x03},
		},
		{
			AddrFormat:   AddrBroadcast,
			EnclosedDest: []byte{0},
			Priority:     true,
			Payload:      []byte{},
		},
		{
			AddrFormat:   AddrGroup,
			EnclosedDest: []byte{42},
			MCR:          true,
			Payload:      []byte{0xAA},
		},
		{
			AddrFormat:   AddrUniqueID,
			EnclosedDest: []byte{1, 2, 3, 4, 5, 6},
			Payload:      []byte{0xFF, 0xEE, 0xDD},
		},
		{
			AddrFormat:         AddrSubnetNode,
			EnclosedDest:       []byte{1, 1},
			HasArbitrarySource: true,
			ArbSubnet:          9,
			ArbNode:            9,
			ArbDomainLen:       3,
			ArbDomain:          [6]byte{0x10, 0x20, 0x30},
			Payload:            []byte{0x55},
		},
		{
			AddrFormat:   AddrTurnaround,
			EnclosedDest: nil,
			Payload:      []byte{0x1, 0x2, 0x3, 0x4, 0x5},
		},
	}

	for i, want := range cases {
		wire, err := want.Encode()
		if err != nil {
			t.Fatalf("case %d: encode: %v", i, err)
		}
		got, err := Decode(wire)
		if err != nil {
			t.Fatalf("case %d: decode: %v", i, err)
		}
		if got.Version != want.Version || got.PDUFormat != want.PDUFormat ||
			got.AddrFormat != want.AddrFormat || got.Priority != want.Priority ||
			got.MCR != want.MCR || got.HasArbitrarySource != want.HasArbitrarySource {
			t.Fatalf("case %d: header mismatch: got %+v want %+v", i, got, want)
		}
		if !bytes.Equal(got.EnclosedDest, want.EnclosedDest) && len(got.EnclosedDest)+len(want.EnclosedDest) != 0 {
			t.Fatalf("case %d: enclosed dest mismatch: got %v want %v", i, got.EnclosedDest, want.EnclosedDest)
		}
		if want.HasArbitrarySource {
			if got.ArbSubnet != want.ArbSubnet || got.ArbNode != want.ArbNode || got.ArbDomainLen != want.ArbDomainLen {
				t.Fatalf("case %d: arbitrary source mismatch: got %+v want %+v", i, got, want)
			}
			if !bytes.Equal(got.ArbDomain[:got.ArbDomainLen], want.ArbDomain[:want.ArbDomainLen]) {
				t.Fatalf("case %d: arbitrary domain mismatch", i)
			}
		}
		if !bytes.Equal(got.Payload, want.Payload) && len(got.Payload)+len(want.Payload) != 0 {
			t.Fatalf("case %d: payload mismatch: got %v want %v", i, got.Payload, want.Payload)
		}

		// re-encoding the decoded frame must reproduce the same wire bytes.
		wire2, err := got.Encode()
		if err != nil {
			t.Fatalf("case %d: re-encode: %v", i, err)
		}
		if !bytes.Equal(wire, wire2) {
			t.Fatalf("case %d: re-encode mismatch: got %v want %v", i, wire2, wire)
		}
	}
}

func TestDecodeRejectsShortFrames(t *testing.T) {
	if _, err := Decode([]byte{0x00}); err == nil {
		t.Fatalf("expected error on 1-byte frame")
	}
	f := Frame{AddrFormat: AddrUniqueID, EnclosedDest: make([]byte, 6)}
	wire, _ := f.Encode()
	if _, err := Decode(wire[:len(wire)-2]); err == nil {
		t.Fatalf("expected error on truncated unique-id dest")
	}
}

func TestEncodeRejectsWrongEnclosedDestLength(t *testing.T) {
	f := Frame{AddrFormat: AddrSubnetNode, EnclosedDest: []byte{1}}
	if _, err := f.Encode(); err == nil {
		t.Fatalf("expected error for short subnet/node dest")
	}
}
