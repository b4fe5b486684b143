// Package tcs implements the transaction control sublayer (§4.2): per-
// destination transaction-ID allocation and duplicate detection shared by
// the engine's transport and session layers.
package tcs

import (
	"errors"
	"time"
)

// EvictionAge is the minimum age before an entry may be evicted to make
// room for a new destination (§3, §4.2).
const EvictionAge = 24 * time.Second

// ErrNoFreeEntry is returned when the table is full and no entry is old
// enough to evict.
var ErrNoFreeEntry = errors.New("tcs: no free entry")

// ValidateResult is the outcome of an incoming duplicate check.
type ValidateResult uint8

const (
	NotCurrent ValidateResult = iota
	Current
)

// AddrFormat mirrors config.AddrFormat without importing it, keeping tcs
// a leaf package; Dest is computed by the caller from whatever address
// representation it holds.
type AddrFormat uint8

// Dest is the destination-equality tuple of §4.2: {address-format,
// domain-ID, subnet, node|group|broadcast|unique-ID}.
type Dest struct {
	Format   AddrFormat
	DomainID [6]byte
	DomainLen uint8
	A, B     uint8 // subnet+node, or group-id+0, or broadcast subnet+0
}

type entry struct {
	used            bool
	dest            Dest
	lastTID         uint8 // last TID we allocated when sending to dest
	hasIncoming     bool
	lastIncomingTID uint8 // last TID dest used when sending to us
	timestamp       time.Duration
}

// Table is the bounded transaction control table (§3). Priority is a
// small fixed set of slots (e.g. normal=0, priority=1) each tracking its
// own in-flight outgoing transaction for TransDone/OverrideTrans.
type Table struct {
	entries []entry
	inFlight map[uint8]uint8 // priority slot -> tid of the open outgoing transaction
	now      func() time.Duration
}

// New creates a Table with the given fixed capacity.
func New(capacity int, now func() time.Duration) *Table {
	return &Table{
		entries:  make([]entry, capacity),
		inFlight: make(map[uint8]uint8),
		now:      now,
	}
}

func (t *Table) find(dest Dest) int {
	for i := range t.entries {
		if t.entries[i].used && t.entries[i].dest == dest {
			return i
		}
	}
	return -1
}

func (t *Table) freeSlot() int {
	for i := range t.entries {
		if !t.entries[i].used {
			return i
		}
	}
	// Evict the oldest entry older than EvictionAge.
	oldest := -1
	var oldestAge time.Duration
	now := t.now()
	for i := range t.entries {
		age := now - t.entries[i].timestamp
		if age < EvictionAge {
			continue
		}
		if oldest == -1 || age > oldestAge {
			oldest = i
			oldestAge = age
		}
	}
	return oldest
}

// NewTrans allocates a TID for dest distinct from the last TID recorded
// for that destination, updating the table (§4.2).
func (t *Table) NewTrans(priority uint8, dest Dest) (uint8, error) {
	idx := t.find(dest)
	if idx == -1 {
		idx = t.freeSlot()
		if idx == -1 {
			return 0, ErrNoFreeEntry
		}
		t.entries[idx] = entry{used: true, dest: dest, lastTID: 0xFF, timestamp: t.now()}
	}
	e := &t.entries[idx]
	next := e.lastTID + 1 // wraps mod 256, distinct from lastTID by construction
	if next == e.lastTID {
		next++
	}
	e.lastTID = next
	e.timestamp = t.now()
	t.inFlight[priority] = next
	return next, nil
}

// TransDone marks the current outgoing transaction on priority as
// complete, freeing the in-flight slot.
func (t *Table) TransDone(priority uint8) {
	delete(t.inFlight, priority)
}

// OverrideTrans records tid as the open outgoing transaction on
// priority's slot. NewTrans does not consult it, so the next TID
// allocated for a destination is unchanged.
func (t *Table) OverrideTrans(priority uint8, tid uint8) {
	t.inFlight[priority] = tid
}

// ValidateTrans performs the incoming duplicate check (§4.2): CURRENT if
// dest has already been seen sending this exact tid (a replay), which
// should be answered from the cached response instead of re-invoking the
// application. The priority argument is accepted for API parity with §4.2
// but incoming duplicate detection keys off the destination tuple, not
// the priority slot — a replay can arrive on either queue.
//
// This extends §4.2's two-argument signature with the destination tuple:
// at the real call site the destination is already known from the
// received frame, and a per-priority-only check cannot distinguish two
// different peers that happen to choose the same tid.
func (t *Table) ValidateTrans(dest Dest, priority uint8, tid uint8) ValidateResult {
	idx := t.find(dest)
	if idx == -1 {
		idx = t.freeSlot()
		if idx == -1 {
			// Table full and nothing evictable: conservatively treat as
			// not-current so the application still runs rather than
			// silently dropping a legitimate new request.
			return NotCurrent
		}
		t.entries[idx] = entry{used: true, dest: dest, lastTID: 0xFF, timestamp: t.now()}
	}
	e := &t.entries[idx]
	if e.hasIncoming && e.lastIncomingTID == tid {
		return Current
	}
	e.hasIncoming = true
	e.lastIncomingTID = tid
	e.timestamp = t.now()
	return NotCurrent
}

// Len reports the table's fixed capacity.
func (t *Table) Len() int { return len(t.entries) }
