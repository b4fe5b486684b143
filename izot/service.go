package izot

import "github.com/izot-community/lonstack/engine"

// PressServicePin emits the broadcast service-message containing the
// device's unique ID and program-ID, and fires the ServicePinPressed
// event (§4.3: "The service pin emits a broadcast service-message
// containing the unique ID and the program-ID").
func (ctx *StackContext) PressServicePin() error {
	uid, err := ctx.UniqueID()
	if err != nil {
		return err
	}
	ctx.Callbacks.fireServicePinPressed()
	payload := make([]byte, 0, 1+len(uid)+len(ctx.programID))
	payload = append(payload, serviceMessageCode)
	payload = append(payload, uid[:]...)
	payload = append(payload, ctx.programID[:]...)
	_, err = ctx.Engine.Send(engine.Unacknowledged, true, false, engine.PDUApplication,
		[]engine.Addr{{Format: engine.WireBroadcast}}, payload)
	return err
}

// HoldServicePin fires the ServicePinHeld event, for a service pin held
// down past the press threshold (e.g. to trigger a factory reset), left
// to the host application's own long-press detection.
func (ctx *StackContext) HoldServicePin() { ctx.Callbacks.fireServicePinHeld() }

// Wink fires the wink event directly, for a host-driven "identify this
// device" trigger distinct from a wink command arriving over the wire
// (which MsgArrived already intercepts, see adapters.go).
func (ctx *StackContext) Wink() { ctx.Callbacks.fireWink() }

// MemoryRead delegates to the host's registered MemoryRead callback.
func (ctx *StackContext) MemoryRead(offset uint32, n int) ([]byte, error) {
	if ctx.Callbacks.MemoryRead == nil {
		return nil, ErrCallbackNotRegistered
	}
	return ctx.Callbacks.MemoryRead(offset, n)
}

// MemoryWrite delegates to the host's registered MemoryWrite callback.
func (ctx *StackContext) MemoryWrite(offset uint32, data []byte) error {
	if ctx.Callbacks.MemoryWrite == nil {
		return ErrCallbackNotRegistered
	}
	return ctx.Callbacks.MemoryWrite(offset, data)
}

// GetCurrentDatapointSize delegates to the host's registered callback,
// for data-points declared ConfigurableSize (§3).
func (ctx *StackContext) GetCurrentDatapointSize(index uint16) (int, error) {
	if ctx.Callbacks.GetCurrentDatapointSize == nil {
		return 0, ErrCallbackNotRegistered
	}
	return ctx.Callbacks.GetCurrentDatapointSize(index)
}

// SerializeAppData delegates to the host's registered callback for
// encoding the application-data segment's contents.
func (ctx *StackContext) SerializeAppData() ([]byte, error) {
	if ctx.Callbacks.SerializeAppData == nil {
		return nil, ErrCallbackNotRegistered
	}
	return ctx.Callbacks.SerializeAppData()
}

// DeserializeAppData delegates to the host's registered callback for
// decoding a previously committed application-data segment.
func (ctx *StackContext) DeserializeAppData(data []byte) error {
	if ctx.Callbacks.DeserializeAppData == nil {
		return ErrCallbackNotRegistered
	}
	return ctx.Callbacks.DeserializeAppData(data)
}
