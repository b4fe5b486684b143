package usblink

import (
	"fmt"
	"sync"
	"time"

	"github.com/daedaluz/goserial"

	"github.com/izot-community/lonstack/clog"
	"github.com/izot-community/lonstack/internal/queue"
)

// queueDepth is the bound of each per-priority send queue (§4.5). The
// receive side has no per-priority queues; received bytes go through the
// single ring of ringCapacity bytes.
const queueDepth = 16

// ringCapacity is the receive ring buffer's byte capacity, sized to
// comfortably hold several max-length frames between pump iterations.
const ringCapacity = 1024

// MessageHandler receives a fully decoded, unstuffed application message
// from an uplink frame.
type MessageHandler func(msg []byte)

// Interface is one USB-attached transceiver: its serial transport, the
// uplink parser, the downlink ack-wait state machine, priority/normal
// send queues, and its statistics counters.
//
// Only Interface needs locks (§5): stateLock guards the downlink state
// machine and sequence counter, queueLock guards the send queues,
// because an optional platform-specific receive handler may push raw
// bytes into the ring buffer from an interrupt or ISR context rather
// than the pump goroutine.
type Interface struct {
	Profile Profile
	OnMsg   MessageHandler
	Stats   Stats

	port *goserial.Port
	ring *queue.Ring

	parser *Parser
	down   *downlink

	stateLock sync.Mutex
	queueLock sync.Mutex
	priorityQ *queue.Queue[outbound]
	normalQ   *queue.Queue[outbound]

	log clog.Clog
}

// Open opens the serial device at path and constructs an Interface around
// it using the given wire profile.
func Open(path string, profile Profile) (*Interface, error) {
	port, err := goserial.Open(path, goserial.NewOptions().SetReadTimeout(0))
	if err != nil {
		return nil, fmt.Errorf("usblink: open %s: %w", path, err)
	}
	return newInterface(port, profile), nil
}

func newInterface(port *goserial.Port, profile Profile) *Interface {
	ifc := &Interface{
		Profile:   profile,
		port:      port,
		ring:      queue.NewRing(ringCapacity),
		down:      newDownlink(),
		priorityQ: queue.New[outbound](queueDepth),
		normalQ:   queue.New[outbound](queueDepth),
	}
	ifc.parser = &Parser{
		Profile:    profile,
		Frames:     ifc.onFrame,
		FrameError: ifc.onFrameError,
	}
	return ifc
}

// SetLogProvider installs a diagnostic log sink.
func (ifc *Interface) SetLogProvider(p clog.LogProvider) { ifc.log.SetLogProvider(p) }

// Close releases the underlying serial port.
func (ifc *Interface) Close() error {
	if ifc.port == nil {
		return nil
	}
	return ifc.port.Close()
}

func (ifc *Interface) onFrame(f Frame) {
	ifc.Stats.incRxPackets()
	ifc.Stats.addRxBytes(len(f.Message))
	if ifc.OnMsg != nil {
		ifc.OnMsg(f.Message)
	}
}

func (ifc *Interface) onFrameError(err error) {
	switch err {
	case ErrChecksum:
		ifc.Stats.incChecksumErr()
	default:
		ifc.Stats.incFrameErr()
	}
}

// Send enqueues an outbound application message for transmission,
// priority entries draining ahead of normal ones (§4.5). wantsAck
// requests the downlink ack-wait states rather than a fire-and-forget
// send.
func (ifc *Interface) Send(priority bool, wantsAck bool, cp CodePacket, msg []byte) error {
	ob := outbound{frame: EncodeFrame(ifc.Profile, cp, msg), wantsAck: wantsAck}

	ifc.queueLock.Lock()
	defer ifc.queueLock.Unlock()
	q := ifc.normalQ
	if priority {
		q = ifc.priorityQ
	}
	if err := q.Push(ob); err != nil {
		ifc.Stats.incTxRejects()
		return err
	}
	return nil
}

// PushRx feeds raw bytes read off the wire into the receive ring buffer.
// Safe to call from a platform receive handler running outside the pump
// goroutine.
func (ifc *Interface) PushRx(b []byte) {
	ifc.queueLock.Lock()
	n := ifc.ring.Write(b)
	ifc.queueLock.Unlock()
	if n < len(b) {
		ifc.Stats.incRingDrops()
	}
}

// ReadFromPort performs one non-blocking drain of the serial port into
// the receive ring, for callers driving I/O themselves rather than via an
// OS interrupt handler.
func (ifc *Interface) ReadFromPort() error {
	if ifc.port == nil {
		return nil
	}
	buf := make([]byte, maxBytesPerIteration)
	n, err := ifc.port.ReadTimeout(buf, 0)
	if n > 0 {
		ifc.PushRx(buf[:n])
	}
	if err != nil {
		return err
	}
	return nil
}

// Pump advances the interface by one event-pump iteration (§5): it drains
// a bounded chunk of the receive ring into the parser, advances the
// downlink ack-wait timer (resyncing the parser on timeout), and if idle,
// dequeues and transmits the next outbound frame (priority first).
func (ifc *Interface) Pump(dt time.Duration) {
	ifc.drainRing()

	ifc.stateLock.Lock()
	timedOut := ifc.down.Advance(dt)
	idle := ifc.down.Idle()
	ifc.stateLock.Unlock()
	if timedOut {
		ifc.Stats.incAckTimeoutErr()
		ifc.parser.Reset()
	}
	if !idle {
		return
	}

	ob, ok := ifc.nextOutbound()
	if !ok {
		return
	}
	if err := ifc.transmit(ob); err != nil {
		ifc.Stats.incTxAborts()
		ifc.log.Warn("usblink: transmit failed: %v", err)
	}
}

func (ifc *Interface) drainRing() {
	buf := make([]byte, maxBytesPerIteration)
	ifc.queueLock.Lock()
	n := ifc.ring.Read(buf)
	depth := ifc.ring.Len()
	ifc.queueLock.Unlock()
	ifc.Stats.noteRingDepth(depth)
	if n == 0 {
		return
	}
	if ifc.parser.Idle() {
		ifc.parser.ExpectedLen = n
	}
	ifc.parser.Feed(buf[:n])
}

func (ifc *Interface) nextOutbound() (outbound, bool) {
	ifc.queueLock.Lock()
	defer ifc.queueLock.Unlock()
	if ob, err := ifc.priorityQ.Pop(); err == nil {
		return ob, true
	}
	if ob, err := ifc.normalQ.Pop(); err == nil {
		return ob, true
	}
	return outbound{}, false
}

func (ifc *Interface) transmit(ob outbound) error {
	ifc.stateLock.Lock()
	ifc.down.BeginSend(&ob, ob.wantsAck, false)
	ifc.stateLock.Unlock()

	if ifc.port == nil {
		return nil
	}
	_, err := ifc.port.Write(ob.frame)
	return err
}

// Ack records the peer's acknowledgement of seq, retiring the downlink
// wait state.
func (ifc *Interface) Ack(seq uint8) bool {
	ifc.stateLock.Lock()
	defer ifc.stateLock.Unlock()
	return ifc.down.Ack(seq)
}
