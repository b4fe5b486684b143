package engine

// IncomingMsg is what the session layer hands up to the application for
// msg_arrived / response_arrived (§6).
type IncomingMsg struct {
	Src           Addr
	Service       Service
	TID           uint8
	Authenticated bool
	Data          []byte
	Correlator    uint32 // identifies a request so the app can reply exactly once (§8 invariant 3)
}

// Callbacks is the subset of the root package's registrar surface the
// engine itself needs to invoke, expressed as an interface so this
// package does not import the root package (avoiding an import cycle —
// the root package imports engine, not the other way around).
type Callbacks interface {
	MsgArrived(IncomingMsg)
	ResponseArrived(IncomingMsg)
	MsgCompleted(tag uint32, success bool)
}

// noopCallbacks is used when the engine is constructed without a
// registrar, so every call site can unconditionally invoke the interface.
type noopCallbacks struct{}

func (noopCallbacks) MsgArrived(IncomingMsg)         {}
func (noopCallbacks) ResponseArrived(IncomingMsg)     {}
func (noopCallbacks) MsgCompleted(uint32, bool)       {}
