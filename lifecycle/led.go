package lifecycle

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// LEDState is the service-LED state machine of §4.6: BLINKING while
// unconfigured, OFF while config-online, ON while no-application-unconfig.
type LEDState uint8

const (
	LEDBlinking LEDState = iota
	LEDOff
	LEDOn
)

func (s LEDState) String() string {
	switch s {
	case LEDBlinking:
		return "blinking"
	case LEDOff:
		return "off"
	default:
		return "on"
	}
}

// BlinkPeriod is the service LED's blink half-period while BLINKING.
const BlinkPeriod = 500 * time.Millisecond

// LEDForState derives the service-LED state from the configuration state
// (§4.6).
func LEDForState(s State) LEDState {
	switch s {
	case ConfigOnLine, ConfigOffLine, SoftOffLine:
		return LEDOff
	case NoApplicationUnconfig:
		return LEDOn
	default:
		return LEDBlinking
	}
}

// ServiceLED drives a physical LED pin to match a LEDState, blinking it
// itself when BLINKING via the pump's elapsed-time argument rather than a
// background goroutine, consistent with the stack's cooperative
// concurrency model.
type ServiceLED struct {
	pin      gpio.PinOut
	state    LEDState
	blinking bool
	phase    time.Duration
}

// NewServiceLED wraps a GPIO output pin (e.g. from periph.io/x/host's
// board driver registration) as the service LED.
func NewServiceLED(pin gpio.PinOut) *ServiceLED {
	return &ServiceLED{pin: pin, state: LEDOff}
}

// SetState transitions the LED's target state. A steady ON or OFF state
// is written to the pin here; BLINKING is driven by Tick. Device reports
// every resulting state to its ServiceLEDState callback, so callers
// without real hardware (tests, headless builds) can still observe
// transitions.
func (l *ServiceLED) SetState(s LEDState) {
	if l.state == s {
		return
	}
	l.state = s
	l.phase = 0
	if s != LEDBlinking {
		l.blinking = false
		l.setPin(s == LEDOn)
	}
}

// Tick advances the blink phase when BLINKING; a no-op otherwise. dt is
// the elapsed time since the previous call.
func (l *ServiceLED) Tick(dt time.Duration) {
	if l.state != LEDBlinking {
		return
	}
	l.phase += dt
	for l.phase >= BlinkPeriod {
		l.phase -= BlinkPeriod
		l.blinking = !l.blinking
		l.setPin(l.blinking)
	}
}

func (l *ServiceLED) setPin(on bool) {
	if l.pin == nil {
		return
	}
	level := gpio.Low
	if on {
		level = gpio.High
	}
	_ = l.pin.Out(level)
}

// State reports the LED's current logical state.
func (l *ServiceLED) State() LEDState { return l.state }
