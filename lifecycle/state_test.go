package lifecycle

import "testing"

func TestAppOnLineOffLineTransitions(t *testing.T) {
	m := NewMachine()
	effects := m.Transition(EventAppOnLine, 0)
	if m.Mode != AppOnLine {
		t.Fatalf("expected mode on-line, got %v", m.Mode)
	}
	if len(effects) != 1 || effects[0].Kind != EffectEmitOnline {
		t.Fatalf("expected EffectEmitOnline, got %+v", effects)
	}

	effects = m.Transition(EventAppOffLine, 0)
	if m.Mode != AppOffLine {
		t.Fatalf("expected mode off-line, got %v", m.Mode)
	}
	if len(effects) != 1 || effects[0].Kind != EffectEmitOffline {
		t.Fatalf("expected EffectEmitOffline, got %+v", effects)
	}
}

func TestChangeStateToUnconfigForcesNotRunning(t *testing.T) {
	m := NewMachine()
	m.Transition(EventAppOnLine, 0)
	effects := m.Transition(EventChangeState, NoApplicationUnconfig)
	if m.State != NoApplicationUnconfig {
		t.Fatalf("expected state no-application-unconfig, got %v", m.State)
	}
	if m.Mode != AppNotRunning {
		t.Fatalf("expected mode forced to not-running, got %v", m.Mode)
	}
	if len(effects) != 1 || effects[0].Kind != EffectRecomputeChecksumAndPersist {
		t.Fatalf("expected recompute-checksum effect, got %+v", effects)
	}
}

func TestAppResetRequestsSoftwareReset(t *testing.T) {
	m := NewMachine()
	effects := m.Transition(EventAppReset, 0)
	if len(effects) != 1 || effects[0].Kind != EffectRequestSoftwareReset {
		t.Fatalf("expected EffectRequestSoftwareReset, got %+v", effects)
	}
}

func TestLEDForState(t *testing.T) {
	cases := map[State]LEDState{
		ApplicationUnconfig:   LEDBlinking,
		NoApplicationUnconfig: LEDOn,
		ConfigOnLine:          LEDOff,
		ConfigOffLine:         LEDOff,
	}
	for s, want := range cases {
		if got := LEDForState(s); got != want {
			t.Fatalf("state %v: got LED %v, want %v", s, got, want)
		}
	}
}
