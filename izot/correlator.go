package izot

import "github.com/izot-community/lonstack/engine"

// pendingRequest tracks one request-service msg_arrived awaiting exactly
// one send_response or release_correlator call (§8 invariant 3). Every
// inbound RequestResponse message is assigned a correlator on arrival;
// an application that has no use for it just calls ReleaseCorrelator.
// Acknowledged-service messages are not correlated here: the engine
// generates their ack automatically at the transport layer.
type pendingRequest struct {
	src      engine.Addr
	tid      uint8
	answered bool
}

// nextCorrelator assigns a fresh, never-zero correlator to an inbound
// session-layer message and remembers its source and tid for SendResponse.
func (ctx *StackContext) nextCorrelator(src engine.Addr, tid uint8) uint32 {
	ctx.nextCorrelatorID++
	id := ctx.nextCorrelatorID
	ctx.correlators[id] = &pendingRequest{src: src, tid: tid}
	return id
}

// SendResponse answers the request identified by correlator, satisfying
// §8 invariant 3. Calling it twice for the same correlator, or after
// ReleaseCorrelator, returns ErrInvalidOperation.
func (ctx *StackContext) SendResponse(correlator uint32, payload []byte) error {
	p, ok := ctx.correlators[correlator]
	if !ok || p.answered {
		return ErrInvalidOperation
	}
	p.answered = true
	delete(ctx.correlators, correlator)
	return ctx.Engine.SendResponseFrame(p.src, p.tid, payload)
}

// ReleaseCorrelator discards a request without sending a reply, the other
// half of invariant 3's "exactly once" contract.
func (ctx *StackContext) ReleaseCorrelator(correlator uint32) error {
	p, ok := ctx.correlators[correlator]
	if !ok || p.answered {
		return ErrInvalidOperation
	}
	p.answered = true
	delete(ctx.correlators, correlator)
	return nil
}
