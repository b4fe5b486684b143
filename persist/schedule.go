package persist

import (
	"time"

	"github.com/izot-community/lonstack/internal/ticker"
)

// DefaultGuardBand is the default single guard-band timer duration (§4.1).
const DefaultGuardBand = 1 * time.Second

// Scheduler batches dirty-segment commits behind one guard-band timer, so
// several rapid config changes coalesce into a single flash write per
// segment instead of one per change.
type Scheduler struct {
	store      *Store
	clock      *ticker.Clock
	guard      *ticker.Timer
	guardBand  time.Duration
	pending    map[Segment][]byte
	appSig     uint32
	order      []Segment // serialization order: one segment at a time
}

// NewScheduler creates a Scheduler bound to store and clock, using
// appSig to stamp every committed header (§3: "binds stored data to a
// specific application build").
func NewScheduler(store *Store, clock *ticker.Clock, appSig uint32) *Scheduler {
	return &Scheduler{
		store:     store,
		clock:     clock,
		guard:     ticker.New(clock),
		guardBand: DefaultGuardBand,
		pending:   make(map[Segment][]byte),
		appSig:    appSig,
	}
}

// SetGuardBand overrides the default 1s guard-band timer.
func (s *Scheduler) SetGuardBand(d time.Duration) { s.guardBand = d }

// MarkDirty stages payload for seg and (re)starts the guard-band timer.
// "Dirty bit set => timer (re)started" per §4.1.
func (s *Scheduler) MarkDirty(seg Segment, payload []byte) {
	if _, already := s.pending[seg]; !already {
		s.order = append(s.order, seg)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.pending[seg] = cp
	s.guard.Start(s.guardBand)
}

// Dirty reports whether seg has a pending, uncommitted write.
func (s *Scheduler) Dirty(seg Segment) bool {
	_, ok := s.pending[seg]
	return ok
}

// AnyDirty reports whether any segment has a pending commit — the gate
// the device-lifecycle pump checks before honoring a physical reset
// request (§4.6: "guaranteeing that no dirty segment is lost on reset").
func (s *Scheduler) AnyDirty() bool { return len(s.pending) > 0 }

// Tick checks the guard-band timer and, on expiry, flushes every dirty
// segment one at a time (§4.1: "Serialization is one segment at a time").
// It must be called once per event-pump iteration.
func (s *Scheduler) Tick() []error {
	if !s.guard.Expired() {
		return nil
	}
	return s.Flush()
}

// Flush commits every pending segment immediately, regardless of the
// guard-band timer — the application may force this before reboot (§4.1).
func (s *Scheduler) Flush() []error {
	var errs []error
	for _, seg := range s.order {
		payload, ok := s.pending[seg]
		if !ok {
			continue
		}
		if err := s.store.WriteSegment(seg, payload, s.appSig); err != nil {
			errs = append(errs, err)
			continue // leave it dirty, retried next guard-band expiry
		}
		delete(s.pending, seg)
	}
	s.order = s.order[:0]
	for seg := range s.pending {
		s.order = append(s.order, seg)
	}
	if len(s.pending) == 0 {
		s.guard.Stop()
	} else {
		s.guard.Start(s.guardBand)
	}
	return errs
}
