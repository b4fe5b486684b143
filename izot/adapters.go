package izot

import (
	"github.com/izot-community/lonstack/engine"
	"github.com/izot-community/lonstack/lifecycle"
)

// The following methods make StackContext satisfy engine.Callbacks and
// lifecycle.Callbacks, fanning each event out to the host's Registrar
// (§9: "Each event fires if let Some(cb) = ctx.callbacks.x { cb(...) }").

// Offline implements lifecycle.Callbacks.
func (ctx *StackContext) Offline() { ctx.Callbacks.fireOffline() }

// Online implements lifecycle.Callbacks.
func (ctx *StackContext) Online() { ctx.Callbacks.fireOnline() }

// Reset implements lifecycle.Callbacks, recording the cause in Status
// before notifying the host.
func (ctx *StackContext) Reset(cause lifecycle.ResetCause) {
	ctx.status.ResetCause = cause
	ctx.Callbacks.fireReset(cause)
}

// ServiceLEDState implements lifecycle.Callbacks.
func (ctx *StackContext) ServiceLEDState(s lifecycle.LEDState) { ctx.Callbacks.fireServiceLed(s) }

// MsgArrived implements engine.Callbacks. A wink command is intercepted
// and delivered as the Wink event instead of an ordinary message (§4.3);
// a request-service message is assigned a correlator so the application
// can answer it exactly once via SendResponse (§8 invariant 3). An
// acknowledged-service message is not correlated: the engine already
// sent its ack automatically at the transport layer.
func (ctx *StackContext) MsgArrived(msg engine.IncomingMsg) {
	if len(msg.Data) > 0 && msg.Data[0] == winkOpcode {
		ctx.Callbacks.fireWink()
		return
	}
	if msg.Service == engine.RequestResponse {
		msg.Correlator = ctx.nextCorrelator(msg.Src, msg.TID)
	}
	ctx.Callbacks.fireMsgArrived(msg)
}

// ResponseArrived implements engine.Callbacks.
func (ctx *StackContext) ResponseArrived(msg engine.IncomingMsg) { ctx.Callbacks.fireResponseArrived(msg) }

// MsgCompleted implements engine.Callbacks: it correlates the tag back to
// whichever data-point propagate produced it (firing
// DatapointUpdateCompleted through the registry's own completion
// handler) before notifying the host's MsgCompleted (§8 invariant 2).
func (ctx *StackContext) MsgCompleted(tag uint32, success bool) {
	if !success {
		ctx.status.TransmitErrors++
	}
	ctx.Datapoints.NotifyCompleted(tag, success)
	ctx.Callbacks.fireMsgCompleted(tag, success)
}
