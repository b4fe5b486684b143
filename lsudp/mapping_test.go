package lsudp

import (
	"net"
	"testing"
)

// TestDerivedAddressS1 reproduces scenario S1: domain-broadcast,
// subnet-broadcast, and group multicast addresses.
func TestDerivedAddressS1(t *testing.T) {
	if got := Multicast(McastBroadcast, 0); !got.Equal(net.IPv4(239, 192, 0, 0)) {
		t.Fatalf("domain broadcast: got %v", got)
	}
	if got := Multicast(McastBroadcast, 3); !got.Equal(net.IPv4(239, 192, 0, 3)) {
		t.Fatalf("subnet 3 broadcast: got %v", got)
	}
	if got := Multicast(McastGroup, 42); !got.Equal(net.IPv4(239, 192, 1, 42)) {
		t.Fatalf("group 42: got %v", got)
	}
}

func TestDerivedUnicast(t *testing.T) {
	ip, err := DerivedUnicast(nil, 0, 5, 6)
	if err != nil || !ip.Equal(net.IPv4(192, 168, 5, 6)) {
		t.Fatalf("domainLen 0: got %v, %v", ip, err)
	}
	ip, err = DerivedUnicast([]byte{0x22}, 1, 5, 6)
	if err != nil || !ip.Equal(net.IPv4(10, 0x22, 5, 6)) {
		t.Fatalf("domainLen 1: got %v, %v", ip, err)
	}
	ip, err = DerivedUnicast([]byte{1, 2, 3}, 3, 5, 6)
	if err != nil || !ip.Equal(net.IPv4(1, 2, 5, 6)) {
		t.Fatalf("domainLen 3: got %v, %v", ip, err)
	}
	if _, err := DerivedUnicast(nil, 6, 5, 6); err != ErrInvalidDomainLen {
		t.Fatalf("domainLen 6: expected ErrInvalidDomainLen, got %v", err)
	}
}

func TestTableAging(t *testing.T) {
	tbl := NewTable()
	tbl.SetAgeLimit(2)
	key := LSAddr{Subnet: 1, Node: 1}
	tbl.UpdateDerived(key)

	if _, ok := tbl.Lookup(key); !ok {
		t.Fatalf("expected entry present immediately after update")
	}
	tbl.Tick()
	if _, ok := tbl.Lookup(key); !ok {
		t.Fatalf("expected entry present after one tick (age limit 2)")
	}
	tbl.Tick()
	if _, ok := tbl.Lookup(key); ok {
		t.Fatalf("expected entry expired after two ticks")
	}
}

func TestArbitraryOverridesDerivedForResolution(t *testing.T) {
	tbl := NewTable()
	key := LSAddr{Subnet: 1, Node: 1}
	tbl.UpdateDerived(key)
	arbIP := net.IPv4(203, 0, 113, 9)
	tbl.UpdateArbitrary(key, arbIP)

	got, err := tbl.ResolveDestination(key)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !got.Equal(arbIP) {
		t.Fatalf("expected arbitrary IP %v, got %v", arbIP, got)
	}
}

func TestResolveFallsBackToDerived(t *testing.T) {
	tbl := NewTable()
	key := LSAddr{Subnet: 2, Node: 3}
	got, err := tbl.ResolveDestination(key)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := net.IPv4(192, 168, 2, 3)
	if !got.Equal(want) {
		t.Fatalf("expected derived IP %v, got %v", want, got)
	}
}
