package izot

import (
	"github.com/izot-community/lonstack/config"
	"github.com/izot-community/lonstack/persist"
)

// RegisterDatapoint declares the data-point at index: it allocates its
// storage, binds it, and registers it with the data-point registry in
// one call, since config.Datapoint.Bind and datapoint.Registry.Register
// are otherwise two separate steps the host would have to sequence
// itself (§3, §4.7).
func (ctx *StackContext) RegisterDatapoint(index uint16, size uint8, dir config.Direction, svc config.ServiceType, sync bool) error {
	if int(index) >= len(ctx.Image.Datapoints) {
		return ErrIndexInvalid
	}
	dp := &ctx.Image.Datapoints[index]
	dp.Index = index
	dp.Size = size
	dp.Dir = dir
	dp.Service = svc
	dp.AddressIndex = config.NoAddress
	dp.Selector = config.UnboundSelector(index)
	if err := dp.Bind(make([]byte, size)); err != nil {
		return err
	}
	return ctx.Datapoints.Register(index, dp, sync)
}

// BindDatapoint points the data-point at index at the address-table entry
// idx and gives it the real connection selector, making it bound for
// propagate/poll purposes (§4.7).
func (ctx *StackContext) BindDatapoint(index uint16, selector uint16, addressIdx uint16) error {
	if int(index) >= len(ctx.Image.Datapoints) {
		return ErrIndexInvalid
	}
	ctx.Image.Datapoints[index].Selector = selector
	ctx.Image.Datapoints[index].AddressIndex = addressIdx
	ctx.Image.Recompute()
	return nil
}

// Propagate sends the data-point at index's current value to its bound
// destinations (§4.7).
func (ctx *StackContext) Propagate(index uint16) error { return ctx.Datapoints.Propagate(index) }

// Poll requests the current value of every output bound to the input
// data-point at index (§4.7).
func (ctx *StackContext) Poll(index uint16) error { return ctx.Datapoints.Poll(index) }

// HandleDatapointUpdate applies a received update to the data-point at
// index, flagging its segment dirty when persistent/config-class (§4.7).
func (ctx *StackContext) HandleDatapointUpdate(index uint16, value []byte) error {
	return ctx.Datapoints.HandleUpdate(index, value, ctx.flagPersistent)
}

func (ctx *StackContext) flagPersistent(uint16) {
	if ctx.Callbacks.SerializeAppData == nil {
		ctx.status.recordError("izot: data-point marked persistent but no SerializeAppData callback registered")
		return
	}
	data, err := ctx.Callbacks.SerializeAppData()
	if err != nil {
		ctx.status.recordError("izot: serialize app data: " + err.Error())
		return
	}
	ctx.Scheduler.MarkDirty(persist.SegmentApplicationData, data)
}
