package lifecycle

import "testing"

type fakeDirty struct{ dirty bool }

func (f *fakeDirty) AnyDirty() bool { return f.dirty }

type recordingCallbacks struct {
	offline   int
	online    int
	resets    []ResetCause
	ledStates []LEDState
}

func (c *recordingCallbacks) Offline()                   { c.offline++ }
func (c *recordingCallbacks) Online()                    { c.online++ }
func (c *recordingCallbacks) Reset(cause ResetCause)      { c.resets = append(c.resets, cause) }
func (c *recordingCallbacks) ServiceLEDState(s LEDState)  { c.ledStates = append(c.ledStates, s) }

// TestChecksumSelfHealS6 reproduces scenario S6: external corruption is
// modeled by the caller invoking ChangeState(ApplicationUnconfig)
// directly (the checksum-mismatch detector's job, not this package's);
// Device must take the new state and request a software reset. The
// Offline event of S6 comes from the detector's own AppOffLine call,
// which this test does not make.
func TestChecksumSelfHealS6(t *testing.T) {
	dirty := &fakeDirty{}
	cb := &recordingCallbacks{}
	d := NewDevice(dirty, nil)
	d.SetCallbacks(cb)

	d.AppOnLine()
	d.ChangeState(ApplicationUnconfig)
	d.RequestAppReset()

	if d.State() != ApplicationUnconfig {
		t.Fatalf("expected state ApplicationUnconfig, got %v", d.State())
	}
	if cb.online != 1 {
		t.Fatalf("expected one Online callback from AppOnLine, got %d", cb.online)
	}
	if !d.ResetPending() {
		t.Fatalf("expected reset pending after RequestAppReset")
	}

	d.Pump(0)
	if len(cb.resets) != 1 || cb.resets[0] != ResetSoftware {
		t.Fatalf("expected one software reset callback, got %+v", cb.resets)
	}
	if d.ResetPending() {
		t.Fatalf("expected reset no longer pending after Pump")
	}
}

func TestPhysicalResetWaitsForCleanStore(t *testing.T) {
	dirty := &fakeDirty{dirty: true}
	cb := &recordingCallbacks{}
	d := NewDevice(dirty, nil)
	d.SetCallbacks(cb)

	d.RequestPhysicalReset()
	d.Pump(0)
	if len(cb.resets) != 0 {
		t.Fatalf("expected reset withheld while store is dirty, got %+v", cb.resets)
	}

	dirty.dirty = false
	d.Pump(0)
	if len(cb.resets) != 1 || cb.resets[0] != ResetPhysical {
		t.Fatalf("expected physical reset once store is clean, got %+v", cb.resets)
	}
}

func TestServiceLEDBlinksWhileUnconfigured(t *testing.T) {
	dirty := &fakeDirty{}
	cb := &recordingCallbacks{}
	d := NewDevice(dirty, nil)
	d.SetCallbacks(cb)

	if d.led.State() != LEDOff {
		t.Fatalf("expected initial LED state off before any transition, got %v", d.led.State())
	}
	d.AppOnLine() // triggers the led sync in apply() without changing State
	if d.led.State() != LEDBlinking {
		t.Fatalf("expected LED blinking for ApplicationUnconfig state, got %v", d.led.State())
	}

	d.Pump(BlinkPeriod)
	if !d.led.blinking {
		t.Fatalf("expected blink phase toggled after one BlinkPeriod tick")
	}
}
