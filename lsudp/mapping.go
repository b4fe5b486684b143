package lsudp

import "net"

// MapState is the mapping-table entry state (§4.4).
type MapState uint8

const (
	StateAvailable MapState = iota
	StateDerived
	StateArbitrary
)

func (s MapState) String() string {
	switch s {
	case StateDerived:
		return "derived"
	case StateArbitrary:
		return "arbitrary"
	default:
		return "available"
	}
}

// LSAddr is the native addressing key the mapping table is indexed by.
type LSAddr struct {
	Domain    [6]byte
	DomainLen uint8
	Subnet    uint8
	Node      uint8
}

// MapEntry is one row of the LS address mapping table (§4.4).
type MapEntry struct {
	State       MapState
	Domain      [6]byte
	DomainLen   uint8
	Subnet      uint8
	Node        uint8
	ArbitraryIP net.IP
	Age         int // decremented by the aging timer; past the limit reverts to available
}

// DefaultAgeLimit is how many aging-timer ticks an entry survives without
// a refreshing receive before reverting to "available" (§4.4).
const DefaultAgeLimit = 10

// Table is the LS-address-to-IP mapping table (§4.4). Link updates it
// from received frames that carry an arbitrary-source block and from
// received announcements; a frame without an arbitrary-source block
// leaves it unchanged.
type Table struct {
	entries  map[LSAddr]*MapEntry
	ageLimit int
}

// NewTable creates an empty mapping table.
func NewTable() *Table {
	return &Table{entries: make(map[LSAddr]*MapEntry), ageLimit: DefaultAgeLimit}
}

// SetAgeLimit overrides DefaultAgeLimit.
func (t *Table) SetAgeLimit(n int) { t.ageLimit = n }

// UpdateDerived records (or refreshes) a derived-address mapping learned
// from a received announcement.
func (t *Table) UpdateDerived(key LSAddr) {
	e, ok := t.entries[key]
	if !ok {
		e = &MapEntry{}
		t.entries[key] = e
	}
	if e.State != StateArbitrary {
		e.State = StateDerived
	}
	e.Domain, e.DomainLen, e.Subnet, e.Node = key.Domain, key.DomainLen, key.Subnet, key.Node
	e.Age = t.ageLimit
}

// UpdateArbitrary records a mapping carried via an arbitrary-source
// header block (§4.4): the sender cannot use its derived address, so it
// ships its LS source (and IP) explicitly.
func (t *Table) UpdateArbitrary(key LSAddr, ip net.IP) {
	e, ok := t.entries[key]
	if !ok {
		e = &MapEntry{}
		t.entries[key] = e
	}
	e.State = StateArbitrary
	e.Domain, e.DomainLen, e.Subnet, e.Node = key.Domain, key.DomainLen, key.Subnet, key.Node
	e.ArbitraryIP = ip
	e.Age = t.ageLimit
}

// Lookup returns the current mapping entry for key, if any.
func (t *Table) Lookup(key LSAddr) (*MapEntry, bool) {
	e, ok := t.entries[key]
	return e, ok
}

// ResolveDestination returns the UDP destination IP for key: the
// arbitrary IP if the table holds one, otherwise the derived address.
func (t *Table) ResolveDestination(key LSAddr) (net.IP, error) {
	if e, ok := t.entries[key]; ok && e.State == StateArbitrary {
		return e.ArbitraryIP, nil
	}
	return DerivedUnicast(key.Domain[:key.DomainLen], int(key.DomainLen), key.Subnet, key.Node)
}

// Tick ages every entry by one tick, reverting entries whose age has
// dropped to zero back to "available" (§4.4: "A table-aging timer
// decrements the age counter; entries past their limit revert to
// available").
func (t *Table) Tick() {
	for k, e := range t.entries {
		if e.Age > 0 {
			e.Age--
		}
		if e.Age == 0 {
			delete(t.entries, k)
		}
	}
}

// Len reports the number of live mapping entries (for diagnostics/tests).
func (t *Table) Len() int { return len(t.entries) }
