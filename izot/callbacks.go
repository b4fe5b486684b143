package izot

import (
	"github.com/izot-community/lonstack/engine"
	"github.com/izot-community/lonstack/lifecycle"
	"github.com/izot-community/lonstack/persist"
)

// Registrar is the host application's callback surface (§6, §9): one
// optional function-valued field per event, replacing the source's
// handler-by-function-pointer table. Setting a field nil unregisters it;
// setting it again replaces whichever handler was bound before. There is
// no inheritance hierarchy, matching §9's design note.
type Registrar struct {
	Reset             func(cause lifecycle.ResetCause)
	Wink              func()
	Online            func()
	Offline           func()
	ServicePinPressed func()
	ServicePinHeld    func()

	DatapointUpdateOccurred  func(index uint16)
	DatapointUpdateCompleted func(index uint16, success bool)

	MsgArrived      func(msg engine.IncomingMsg)
	ResponseArrived func(msg engine.IncomingMsg)
	MsgCompleted    func(tag uint32, success bool)

	FilterMsgArrived      func(msg engine.IncomingMsg) bool
	FilterResponseArrived func(msg engine.IncomingMsg) bool
	FilterMsgCompleted    func(tag uint32, success bool) bool

	MemoryRead              func(offset uint32, n int) ([]byte, error)
	MemoryWrite             func(offset uint32, data []byte) error
	ServiceLedStatus        func(state lifecycle.LEDState)
	GetCurrentDatapointSize func(index uint16) (int, error)

	SegmentOpenForRead      func(seg persist.Segment) error
	SegmentClose            func(seg persist.Segment) error
	SegmentRead             func(seg persist.Segment, offset int, buf []byte) (int, error)
	SegmentWrite            func(seg persist.Segment, offset int, data []byte) error
	SegmentEnterTransaction func(seg persist.Segment) error
	SegmentExitTransaction  func(seg persist.Segment) error
	SegmentIsInTransaction  func(seg persist.Segment) (bool, error)

	SerializeAppData   func() ([]byte, error)
	DeserializeAppData func(data []byte) error
}

func (r *Registrar) fireReset(cause lifecycle.ResetCause) {
	if r.Reset != nil {
		r.Reset(cause)
	}
}

func (r *Registrar) fireOnline() {
	if r.Online != nil {
		r.Online()
	}
}

func (r *Registrar) fireOffline() {
	if r.Offline != nil {
		r.Offline()
	}
}

func (r *Registrar) fireServiceLed(s lifecycle.LEDState) {
	if r.ServiceLedStatus != nil {
		r.ServiceLedStatus(s)
	}
}

func (r *Registrar) fireServicePinPressed() {
	if r.ServicePinPressed != nil {
		r.ServicePinPressed()
	}
}

func (r *Registrar) fireServicePinHeld() {
	if r.ServicePinHeld != nil {
		r.ServicePinHeld()
	}
}

func (r *Registrar) fireWink() {
	if r.Wink != nil {
		r.Wink()
	}
}

func (r *Registrar) fireDatapointUpdateOccurred(index uint16) {
	if r.DatapointUpdateOccurred != nil {
		r.DatapointUpdateOccurred(index)
	}
}

func (r *Registrar) fireDatapointUpdateCompleted(index uint16, success bool) {
	if r.DatapointUpdateCompleted != nil {
		r.DatapointUpdateCompleted(index, success)
	}
}

// fireMsgArrived applies FilterMsgArrived (when registered) before
// delivering, per §6: the filter handler may suppress delivery.
func (r *Registrar) fireMsgArrived(msg engine.IncomingMsg) {
	if r.FilterMsgArrived != nil && !r.FilterMsgArrived(msg) {
		return
	}
	if r.MsgArrived != nil {
		r.MsgArrived(msg)
	}
}

func (r *Registrar) fireResponseArrived(msg engine.IncomingMsg) {
	if r.FilterResponseArrived != nil && !r.FilterResponseArrived(msg) {
		return
	}
	if r.ResponseArrived != nil {
		r.ResponseArrived(msg)
	}
}

func (r *Registrar) fireMsgCompleted(tag uint32, success bool) {
	if r.FilterMsgCompleted != nil && !r.FilterMsgCompleted(tag, success) {
		return
	}
	if r.MsgCompleted != nil {
		r.MsgCompleted(tag, success)
	}
}
