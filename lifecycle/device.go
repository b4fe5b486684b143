package lifecycle

import (
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/izot-community/lonstack/clog"
)

// DirtyChecker reports whether the persistent store has any uncommitted
// segment, the gate a physical reset must wait on (§4.6).
type DirtyChecker interface {
	AnyDirty() bool
}

// Callbacks is the application surface notified of lifecycle events; a
// capability interface in the same style as engine.Callbacks, so
// lifecycle does not need to import the root izot package.
type Callbacks interface {
	Offline()
	Online()
	Reset(cause ResetCause)
	ServiceLEDState(s LEDState)
}

type noopCallbacks struct{}

func (noopCallbacks) Offline()                {}
func (noopCallbacks) Online()                 {}
func (noopCallbacks) Reset(ResetCause)         {}
func (noopCallbacks) ServiceLEDState(LEDState) {}

// Device owns the lifecycle state machine, the service LED, the
// persistent-store dirty check, and the physical reset pin, and drives
// all of it from one Pump call per §4.6/§5.
type Device struct {
	machine *Machine
	led     *ServiceLED
	dirty   DirtyChecker
	cb      Callbacks
	log     clog.Clog

	resetPin gpio.PinOut

	resetPending     bool
	resetCause       ResetCause
	checksumRecomputer func()
}

// NewDevice constructs a Device. dirty and resetPin may be nil (a device
// without a reachable persistent store or board-level reset pin still
// runs, it just never requests a physical reboot).
func NewDevice(dirty DirtyChecker, resetPin gpio.PinOut) *Device {
	return &Device{
		machine:  NewMachine(),
		led:      NewServiceLED(nil),
		dirty:    dirty,
		cb:       noopCallbacks{},
		resetPin: resetPin,
	}
}

// SetCallbacks installs the application callback surface.
func (d *Device) SetCallbacks(cb Callbacks) {
	if cb == nil {
		cb = noopCallbacks{}
	}
	d.cb = cb
}

// SetLogProvider installs a diagnostic log sink.
func (d *Device) SetLogProvider(p clog.LogProvider) { d.log.SetLogProvider(p) }

// SetServiceLEDPin wires a real GPIO output for the service LED.
func (d *Device) SetServiceLEDPin(pin gpio.PinOut) { d.led = NewServiceLED(pin) }

// SetChecksumRecomputer installs the callback invoked whenever
// EffectRecomputeChecksumAndPersist fires (§4.6: "recompute checksum,
// persist"). The root package wires this to config.Image's checksum
// routine plus a persist.Scheduler.MarkDirty call.
func (d *Device) SetChecksumRecomputer(f func()) { d.checksumRecomputer = f }

// State returns the current configuration state.
func (d *Device) State() State { return d.machine.State }

// Mode returns the current application mode.
func (d *Device) Mode() AppMode { return d.machine.Mode }

// AppOffLine requests the AppOffLine transition.
func (d *Device) AppOffLine() { d.apply(EventAppOffLine, 0) }

// AppOnLine requests the AppOnLine transition.
func (d *Device) AppOnLine() { d.apply(EventAppOnLine, 0) }

// RequestAppReset requests a software reset (§4.6: "set reset-pending,
// cause=SoftwareReset").
func (d *Device) RequestAppReset() { d.apply(EventAppReset, 0) }

// ChangeState requests a configuration-state transition, e.g. on
// checksum self-heal (S6) or a successful commissioning exchange.
func (d *Device) ChangeState(s State) { d.apply(EventChangeState, s) }

// RequestPhysicalReset requests a board-level reset once any pending
// persistent commit has flushed (§4.6).
func (d *Device) RequestPhysicalReset() { d.apply(EventPhysicalReset, 0) }

func (d *Device) apply(ev Event, target State) {
	effects := d.machine.Transition(ev, target)
	for _, e := range effects {
		d.runEffect(e)
	}
	d.led.SetState(LEDForState(d.machine.State))
	d.cb.ServiceLEDState(d.led.State())
}

func (d *Device) runEffect(e Effect) {
	switch e.Kind {
	case EffectEmitOffline:
		d.cb.Offline()
	case EffectEmitOnline:
		d.cb.Online()
	case EffectRecomputeChecksumAndPersist:
		if d.checksumRecomputer != nil {
			d.checksumRecomputer()
		}
	case EffectRequestSoftwareReset:
		d.resetPending = true
		d.resetCause = ResetSoftware
	case EffectRequestPhysicalReset:
		d.resetPending = true
		d.resetCause = ResetPhysical
	}
}

// Pump advances the service LED's blink phase and, once a reset is
// pending and the persistent store has no dirty segment left to flush,
// fires the Reset callback and toggles the physical reset pin (§4.6:
// "polls is_physical_reset_requested AND !persistent_commit_scheduled
// before invoking board reboot").
func (d *Device) Pump(dt time.Duration) {
	d.led.Tick(dt)
	if !d.resetPending {
		return
	}
	if d.dirty != nil && d.dirty.AnyDirty() {
		return
	}
	cause := d.resetCause
	d.resetPending = false
	d.resetCause = ResetNone
	d.cb.Reset(cause)
	if d.resetPin != nil {
		if err := d.resetPin.Out(gpio.High); err != nil {
			d.log.Warn("lifecycle: reset pin write failed: %v", err)
		}
	}
}

// ResetPending reports whether a reset is queued awaiting a clean
// persistent store.
func (d *Device) ResetPending() bool { return d.resetPending }
