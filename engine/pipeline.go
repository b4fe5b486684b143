// Package engine implements the protocol engine (§4.3): the
// session/transport/auth/network layers, bounded priority and normal send
// queues, and the four service types. One Pump call sends one queued
// message (priority first) and services retry/repeat timers; received
// frames are handled synchronously by HandleFrame. A Send that finds its
// queue full returns the queue's error rather than blocking.
package engine

import (
	"errors"
	"time"

	"github.com/izot-community/lonstack/clog"
	"github.com/izot-community/lonstack/internal/queue"
	"github.com/izot-community/lonstack/internal/ticker"
	"github.com/izot-community/lonstack/tcs"
)

// LinkSender is the downstream collaborator (lsudp or usblink) that
// actually puts bytes on the wire. The engine depends only on this
// interface, not on either concrete transport.
type LinkSender interface {
	SendFrame(dest Addr, raw []byte) error
}

const sendQueueCapacity = 32

// Engine is one stack's protocol engine instance.
type Engine struct {
	cfg       Config
	domainID  [6]byte
	domainLen uint8
	srcSubnet uint8
	srcNode   uint8

	link      LinkSender
	callbacks Callbacks
	tcsTable  *tcs.Table
	clock     *ticker.Clock
	log       clog.Clog

	priorityQ *queue.Queue[*pending]
	normalQ   *queue.Queue[*pending]
	inFlight  map[uint32]*pending // tag -> transaction, across both queues

	nextTag uint32
	auths   map[uint8]Authenticator // keyed by domain index
}

// New constructs an Engine. link may be nil until SetLink is called
// (useful when the transport is wired up after the engine itself, as
// cmd/lonstackd does).
func New(cfg Config, clock *ticker.Clock, table *tcs.Table) *Engine {
	return &Engine{
		cfg:       cfg,
		clock:     clock,
		tcsTable:  table,
		callbacks: noopCallbacks{},
		priorityQ: queue.New[*pending](sendQueueCapacity),
		normalQ:   queue.New[*pending](sendQueueCapacity),
		inFlight:  make(map[uint32]*pending),
		auths:     make(map[uint8]Authenticator),
	}
}

// SetLink installs the downstream transport.
func (e *Engine) SetLink(l LinkSender) { e.link = l }

// SetCallbacks installs the application callback surface.
func (e *Engine) SetCallbacks(cb Callbacks) {
	if cb == nil {
		cb = noopCallbacks{}
	}
	e.callbacks = cb
}

// SetLogProvider installs a diagnostic log sink.
func (e *Engine) SetLogProvider(p clog.LogProvider) { e.log.SetLogProvider(p) }

// SetSource configures this device's own addressing, used as the NPDU
// source fields and to resolve WireTurnaround destinations.
func (e *Engine) SetSource(domainID []byte, domainLen, subnet, node uint8) {
	copy(e.domainID[:], domainID)
	e.domainLen = domainLen
	e.srcSubnet = subnet
	e.srcNode = node
}

// SetAuthenticator installs the Authenticator used for domain index idx.
func (e *Engine) SetAuthenticator(domainIdx uint8, a Authenticator) {
	e.auths[domainIdx] = a
}

// PendingCount is used for the delta-backlog hint (§4.3).
func (e *Engine) PendingCount() int { return len(e.inFlight) }

// Send enqueues an outgoing message and returns a tag identifying it for
// the later MsgCompleted event (§8 invariant 2: exactly one MsgCompleted
// per successful Send). priority traffic is drained before normal (§5,
// S5).
func (e *Engine) Send(service Service, priority bool, auth bool, pduFmt PDUFormat, dests []Addr, payload []byte) (uint32, error) {
	if len(payload) > maxPayload {
		return 0, ErrInvalidMessageLength
	}
	e.nextTag++
	tag := e.nextTag

	maxAttempts := 1
	switch service {
	case Repeated:
		maxAttempts = int(e.cfg.RepeatCount)
	case Acknowledged, RequestResponse:
		maxAttempts = int(e.cfg.RetryCount) + 1
	}

	p := &pending{
		tag:         tag,
		service:     service,
		priority:    priority,
		dests:       dests,
		acked:       make([]bool, len(dests)),
		responses:   make([][]byte, len(dests)),
		payload:     payload,
		pduFmt:      pduFmt,
		auth:        auth,
		maxAttempts: maxAttempts,
	}

	if service == Acknowledged || service == RequestResponse {
		p.tids = make([]uint8, len(dests))
		for i, dest := range dests {
			tid, err := e.tcsTable.NewTrans(priorityIdx(priority), tcsDestFor(dest, e.domainID, e.domainLen))
			if err != nil {
				return 0, err
			}
			p.tids[i] = tid
		}
	}

	q := e.normalQ
	if priority {
		q = e.priorityQ
	}
	if err := q.Push(p); err != nil {
		return 0, err
	}
	e.inFlight[tag] = p
	return tag, nil
}

// Supersede drops an un-sent, non-sync propagate in favor of a newer one
// for the same logical source, per §5's cancellation rule: "Once the
// first wire copy has been sent, the transaction runs to its configured
// retry count or timeout."
func (e *Engine) Supersede(oldTag uint32, newTag uint32) bool {
	old, ok := e.inFlight[oldTag]
	if !ok || old.sent || old.done {
		return false
	}
	newer, ok := e.inFlight[newTag]
	if !ok {
		return false
	}
	old.supersededBy = newer
	old.done = true
	return true
}

// Pump advances the engine by one event-pump iteration: dt is the elapsed
// time since the previous call. It drains one send-side unit of work
// (priority first) and services retry timers for in-flight transactions.
func (e *Engine) Pump(dt time.Duration) {
	e.clock.Advance(dt)

	if p, err := e.priorityQ.Pop(); err == nil {
		e.step(p)
	} else if p, err := e.normalQ.Pop(); err == nil {
		e.step(p)
	}

	for tag, p := range e.inFlight {
		if p.done {
			delete(e.inFlight, tag)
			continue
		}
		if !p.sent {
			continue
		}
		switch p.service {
		case Acknowledged, RequestResponse:
			if p.allAcked() {
				e.complete(p, true)
				continue
			}
			if p.attempt >= p.maxAttempts {
				e.log.Warn("engine: transaction %d exhausted retries", p.tag)
				e.complete(p, false)
				continue
			}
			if e.clock.Now()-p.lastSentAt >= e.cfg.BackoffFor(p.attempt-1) {
				e.transmit(p, true)
			}
		case Repeated:
			if p.attempt >= p.maxAttempts {
				e.complete(p, true)
				continue
			}
			if e.clock.Now()-p.lastSentAt >= e.cfg.RepeatInterval {
				e.transmit(p, false)
			}
		default:
			e.complete(p, true)
		}
	}
}

func (e *Engine) step(p *pending) {
	if p.supersededBy != nil || p.done {
		return
	}
	e.transmit(p, false)
	p.sent = true
}

// transmit sends one more wire copy of p to each destination, skipping
// already-acknowledged destinations when skipAcked is set (a retry of an
// Acknowledged/RequestResponse transaction, §4.3).
func (e *Engine) transmit(p *pending, skipAcked bool) {
	for i, dest := range p.dests {
		if skipAcked && p.acked[i] {
			continue
		}
		raw, err := e.encode(p, i, dest)
		if err != nil {
			e.log.Error("engine: encode failed: %v", err)
			continue
		}
		if e.link == nil {
			continue
		}
		if err := e.link.SendFrame(dest, raw); err != nil {
			e.log.Warn("engine: send to %v failed: %v", dest, err)
			continue
		}
	}
	p.attempt++
	p.lastSentAt = e.clock.Now()
}

func (e *Engine) encode(p *pending, idx int, dest Addr) ([]byte, error) {
	pduFmt := p.pduFmt
	payload := p.payload
	switch p.service {
	case Acknowledged:
		pduFmt = PDUTransport
		payload = append([]byte{p.tids[idx]}, p.payload...)
	case RequestResponse:
		pduFmt = PDUSession
		payload = append([]byte{p.tids[idx]}, p.payload...)
	}
	n := NPDU{
		DeltaBacklog: deltaBacklog(e.PendingCount()),
		PDUFmt:       pduFmt,
		AddrFmt:      dest.Format,
		DomainLen:    e.domainLen,
		SrcSubnet:    e.srcSubnet,
		SrcNode:      e.srcNode,
		Dest:         dest,
		DomainID:     e.domainID,
		Payload:      payload,
	}
	return n.Encode()
}

// sendAck transmits the bare transport-layer acknowledgment for an
// Acknowledged-service message just delivered to the application; the
// receiving transport layer generates this automatically, not the
// application (§4.3).
func (e *Engine) sendAck(dest Addr, tid uint8) {
	if e.link == nil {
		return
	}
	n := NPDU{
		DeltaBacklog: deltaBacklog(e.PendingCount()),
		PDUFmt:       PDUTransport,
		AddrFmt:      dest.Format,
		DomainLen:    e.domainLen,
		SrcSubnet:    e.srcSubnet,
		SrcNode:      e.srcNode,
		Dest:         dest,
		DomainID:     e.domainID,
		Payload:      []byte{tid},
	}
	raw, err := n.Encode()
	if err != nil {
		e.log.Error("engine: ack encode failed: %v", err)
		return
	}
	if err := e.link.SendFrame(dest, raw); err != nil {
		e.log.Warn("engine: ack send to %v failed: %v", dest, err)
	}
}

// ErrNoLink is returned by SendResponseFrame when no transport is attached.
var ErrNoLink = errors.New("engine: no link attached")

// SendResponseFrame replies to a RequestResponse-service message, echoing
// the original request's tid so the requester's matchOutstanding can
// correlate it. Sent once, synchronously, bypassing the retry queue
// entirely: a reply is inherently send-once (§8 invariant 3).
func (e *Engine) SendResponseFrame(dest Addr, tid uint8, payload []byte) error {
	if e.link == nil {
		return ErrNoLink
	}
	if len(payload) > maxPayload {
		return ErrInvalidMessageLength
	}
	n := NPDU{
		DeltaBacklog: deltaBacklog(e.PendingCount()),
		PDUFmt:       PDUSession,
		AddrFmt:      dest.Format,
		DomainLen:    e.domainLen,
		SrcSubnet:    e.srcSubnet,
		SrcNode:      e.srcNode,
		Dest:         dest,
		DomainID:     e.domainID,
		Payload:      append([]byte{tid}, payload...),
	}
	raw, err := n.Encode()
	if err != nil {
		return err
	}
	return e.link.SendFrame(dest, raw)
}

// matchOutstanding checks whether an inbound PDUSession/PDUTransport frame
// is actually the ack/response to one of our own outstanding sends, rather
// than a fresh request. On a match it records the ack (and, for a
// RequestResponse, the response payload and fires ResponseArrived) and
// returns true so the caller skips dup-check and application dispatch.
func (e *Engine) matchOutstanding(pduFmt PDUFormat, src Addr, tid uint8, data []byte) bool {
	wantService := Acknowledged
	if pduFmt == PDUSession {
		wantService = RequestResponse
	}
	for _, p := range e.inFlight {
		if p.service != wantService || !p.sent || p.done {
			continue
		}
		for i, dest := range p.dests {
			if dest != src || p.tids[i] != tid || p.acked[i] {
				continue
			}
			p.acked[i] = true
			if wantService == RequestResponse {
				p.responses[i] = data
				e.callbacks.ResponseArrived(IncomingMsg{
					Src:     src,
					Service: RequestResponse,
					TID:     tid,
					Data:    data,
				})
			}
			return true
		}
	}
	return false
}

func (e *Engine) complete(p *pending, success bool) {
	p.done = true
	delete(e.inFlight, p.tag)
	e.callbacks.MsgCompleted(p.tag, success)
}

// HandleFrame processes one received native frame (the Link->Network leg
// of the receive pipeline), validating duplicates via tcs and dispatching
// to the application callbacks.
func (e *Engine) HandleFrame(raw []byte) error {
	n, err := Decode(raw)
	if err != nil {
		return err
	}

	src := tcs.Dest{
		Format:    tcs.AddrFormat(n.AddrFmt),
		DomainID:  n.DomainID,
		DomainLen: n.DomainLen,
		A:         n.SrcSubnet,
		B:         n.SrcNode,
	}

	// Authentication mismatches are delivered, not dropped (§4.3: "still
	// delivered - policy is the application's"). A frame in the auth PDU
	// format is delivered with Authenticated=false and every other frame
	// with Authenticated=true; no challenge/response check (Authenticator,
	// auth.go) is run on the receive path.
	authOK := n.PDUFmt != PDUAuth

	msg := IncomingMsg{
		Src:           Addr{Format: n.AddrFmt, Subnet: n.SrcSubnet, Node: n.SrcNode},
		Authenticated: authOK,
		Data:          n.Payload,
	}

	switch n.PDUFmt {
	case PDUSession, PDUTransport:
		if len(n.Payload) == 0 {
			return ErrInvalidMessageLength
		}
		tid := n.Payload[0] // the first payload byte carries the TID for acknowledged/request services
		appData := n.Payload[1:]
		msgSrc := Addr{Format: n.AddrFmt, Subnet: n.SrcSubnet, Node: n.SrcNode}
		if e.matchOutstanding(n.PDUFmt, msgSrc, tid, appData) {
			return nil
		}
		if e.tcsTable.ValidateTrans(src, 0, tid) == tcs.Current {
			e.log.Debug("engine: suppressing duplicate tid %d from %v", tid, src)
			return nil
		}
		msg.TID = tid
		msg.Data = appData
		if n.PDUFmt == PDUTransport {
			msg.Service = Acknowledged
		} else {
			msg.Service = RequestResponse
		}
		e.callbacks.MsgArrived(msg)
		if n.PDUFmt == PDUTransport {
			e.sendAck(msgSrc, tid)
		}
	default:
		e.callbacks.MsgArrived(msg)
	}
	return nil
}
