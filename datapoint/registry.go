// Package datapoint implements the data-point registry (§4.7): static
// registration, bind/unbind, propagate/poll, update receipt, and binding
// queries. All data-points are declared once at startup; there is no
// runtime creation.
package datapoint

import (
	"errors"
	"time"

	"github.com/izot-community/lonstack/config"
	"github.com/izot-community/lonstack/engine"
)

// ErrIndexInvalid is returned for an out-of-range data-point index.
var ErrIndexInvalid = errors.New("datapoint: index out of range")

// Sender is the outgoing collaborator (engine.Engine) a propagate uses to
// put an update on the wire.
type Sender interface {
	Send(service engine.Service, priority bool, auth bool, pduFmt engine.PDUFormat, dests []engine.Addr, payload []byte) (uint32, error)
	Supersede(oldTag, newTag uint32) bool
}

// CompletionHandler is notified once a propagate's underlying send
// completes (§4.7: "fire the completion event with success=true
// immediately" for an unbound DP, or on the engine's MsgCompleted for a
// bound one).
type CompletionHandler func(index uint16, success bool)

// UpdateHandler is notified when a bound update is received for a DP
// (§4.7's update_occurred).
type UpdateHandler func(index uint16)

// entry is the runtime state the registry keeps alongside each
// config.Datapoint: its aliases, its destinations, and its in-flight
// propagate bookkeeping.
type entry struct {
	dp      *config.Datapoint
	aliases []config.Alias
	dests   []engine.Addr
	sync    bool // sync attribute: "send each" vs "send latest only"

	pendingTag   uint32
	pendingAlive bool

	rate *rateObserver
}

// Registry owns the set of statically-declared data-points and drives
// their propagate/poll/update-receipt behavior (§4.7).
type Registry struct {
	entries []entry
	addrs   *config.AddressTable
	sender  Sender

	onCompletion CompletionHandler
	onUpdate     UpdateHandler
}

// New constructs a Registry sized for count data-points (0..count-1),
// bound to addrs for selector/destination resolution and sender for
// outgoing propagates.
func New(count int, addrs *config.AddressTable, sender Sender) *Registry {
	return &Registry{entries: make([]entry, count), addrs: addrs, sender: sender}
}

// SetCompletionHandler installs the propagate-completion callback.
func (r *Registry) SetCompletionHandler(h CompletionHandler) { r.onCompletion = h }

// SetUpdateHandler installs the update-occurred callback.
func (r *Registry) SetUpdateHandler(h UpdateHandler) { r.onUpdate = h }

// Register declares the data-point at index, capturing its static
// definition. sync selects "send each" (true) vs "send latest only"
// (false) semantics for Propagate (§4.7).
func (r *Registry) Register(index uint16, dp *config.Datapoint, sync bool) error {
	if int(index) >= len(r.entries) {
		return ErrIndexInvalid
	}
	r.entries[index] = entry{dp: dp, sync: sync}
	return nil
}

// AddAlias attaches a secondary selector/address binding to the DP at
// index (§4.7/§3).
func (r *Registry) AddAlias(index uint16, a config.Alias) error {
	e, err := r.get(index)
	if err != nil {
		return err
	}
	e.aliases = append(e.aliases, a)
	return nil
}

// BindDestinations sets the outgoing destinations used by Propagate;
// ordinarily derived by the root package from the DP's address-table
// binding, kept explicit here so Registry does not need its own address
// resolution logic.
func (r *Registry) BindDestinations(index uint16, dests []engine.Addr) error {
	e, err := r.get(index)
	if err != nil {
		return err
	}
	e.dests = dests
	return nil
}

func (r *Registry) get(index uint16) (*entry, error) {
	if int(index) >= len(r.entries) || r.entries[index].dp == nil {
		return nil, ErrIndexInvalid
	}
	return &r.entries[index], nil
}

// IsBound reports whether the DP at index is bound: its primary selector
// is bound, its address index is set, or any alias is bound (§4.7).
func (r *Registry) IsBound(index uint16) (bool, error) {
	e, err := r.get(index)
	if err != nil {
		return false, err
	}
	if e.dp.PrimarySelectorBound() || e.dp.AddressIndex != config.NoAddress {
		return true, nil
	}
	for _, a := range e.aliases {
		if !a.Unbound() {
			return true, nil
		}
	}
	return false, nil
}

// serviceFor maps a DP's declared wire service to the engine's send
// service (§4.3/§4.7).
func serviceFor(s config.ServiceType) engine.Service {
	switch s {
	case config.ServiceAcknowledged:
		return engine.Acknowledged
	case config.ServiceRequest:
		return engine.RequestResponse
	default:
		return engine.Unacknowledged
	}
}

// Propagate sends the current value of the DP at index to its bound
// destinations, using its declared service type. An unbound DP fires the
// completion callback with success=true immediately, without touching
// the transport (§4.7). A non-sync DP supersedes any of its own earlier
// un-sent propagate ("send latest only"); a sync DP queues every call
// independently ("send each").
func (r *Registry) Propagate(index uint16) error {
	e, err := r.get(index)
	if err != nil {
		return err
	}

	bound, err := r.IsBound(index)
	if err != nil {
		return err
	}
	if !bound {
		if r.onCompletion != nil {
			r.onCompletion(index, true)
		}
		return nil
	}

	svc := serviceFor(e.dp.Service)
	tag, err := r.sender.Send(svc, e.dp.Priority, e.dp.Authenticated, engine.PDUApplication, e.dests, e.dp.Value())
	if err != nil {
		return err
	}

	if e.rate == nil {
		e.rate = newRateObserver(e.dp.MaxRateEstimate)
	}
	if mean, _ := e.rate.Observe(time.Now()); mean > 0 {
		e.dp.MeanRateEstimate = mean
	}

	if !e.sync && e.pendingAlive {
		r.sender.Supersede(e.pendingTag, tag)
	}
	e.pendingTag = tag
	e.pendingAlive = true
	return nil
}

// NotifyCompleted is invoked by the root package's engine.Callbacks
// adapter when a tagged send completes, correlating it back to whichever
// DP propagate produced that tag.
func (r *Registry) NotifyCompleted(tag uint32, success bool) {
	for i := range r.entries {
		e := &r.entries[i]
		if e.dp == nil || !e.pendingAlive || e.pendingTag != tag {
			continue
		}
		e.pendingAlive = false
		if r.onCompletion != nil {
			r.onCompletion(uint16(i), success)
		}
		return
	}
}

// Poll emits a request for the current value from every output bound to
// the input DP at index; results arrive asynchronously via update_occurred
// (§4.7).
func (r *Registry) Poll(index uint16) error {
	e, err := r.get(index)
	if err != nil {
		return err
	}
	if e.dp.Dir != config.DirInput {
		return nil
	}
	_, err = r.sender.Send(engine.RequestResponse, e.dp.Priority, e.dp.Authenticated, engine.PDUApplication, e.dests, nil)
	return err
}

// HandleUpdate processes a received update for the DP at index: copies
// value into storage, flags the segment dirty when the DP is persistent
// or configuration-class via persistFlag, and fires update_occurred
// (§4.7).
func (r *Registry) HandleUpdate(index uint16, value []byte, persistFlag func(uint16)) error {
	e, err := r.get(index)
	if err != nil {
		return err
	}
	if err := e.dp.SetValue(value); err != nil {
		return err
	}
	if (e.dp.Persistent || e.dp.ConfigClass) && persistFlag != nil {
		persistFlag(index)
	}
	if r.onUpdate != nil {
		r.onUpdate(index)
	}
	return nil
}
