// Package lifecycle implements the device lifecycle state machine of
// §4.6: configuration state, application mode, the service-LED state
// machine, and physical-reset gating on the persistent store's dirty
// flag.
package lifecycle

// State is the device configuration state (§4.6).
type State uint8

const (
	ApplicationUnconfig State = iota
	NoApplicationUnconfig
	ConfigOffLine
	ConfigOnLine
	SoftOffLine // set only by ChangeState(SoftOffLine); AppOffLine changes Mode, not State
	StateInvalid
)

func (s State) String() string {
	switch s {
	case ApplicationUnconfig:
		return "application-unconfig"
	case NoApplicationUnconfig:
		return "no-application-unconfig"
	case ConfigOffLine:
		return "config-offline"
	case ConfigOnLine:
		return "config-online"
	case SoftOffLine:
		return "soft-offline"
	default:
		return "invalid"
	}
}

// AppMode is the application mode (§4.6).
type AppMode uint8

const (
	AppOffLine AppMode = iota
	AppOnLine
	AppNotRunning
)

func (m AppMode) String() string {
	switch m {
	case AppOffLine:
		return "off-line"
	case AppOnLine:
		return "on-line"
	default:
		return "not-running"
	}
}

// ResetCause records why a reset was requested, surfaced to the
// application through the Callbacks.Reset argument so it can log or
// report it.
type ResetCause uint8

const (
	ResetNone ResetCause = iota
	ResetSoftware
	ResetPhysical
)

// Event is an input to Transition (§4.6's "Mode=...").
type Event uint8

const (
	EventAppOffLine Event = iota
	EventAppOnLine
	EventAppReset
	EventChangeState
	EventPhysicalReset
)

// EffectKind names the side effect an Effect asks the caller to perform;
// Transition itself is pure and never calls back directly.
type EffectKind uint8

const (
	EffectNone EffectKind = iota
	EffectEmitOffline
	EffectEmitOnline
	EffectRecomputeChecksumAndPersist
	EffectRequestSoftwareReset
	EffectRequestPhysicalReset
)

// Effect is one requested side effect of a Transition call.
type Effect struct {
	Kind EffectKind
}

// Machine holds the lifecycle's current state and mode and applies
// Transition calls against them. It does not itself know about GPIO,
// persistence, or the pump loop — Device wires those in.
type Machine struct {
	State State
	Mode  AppMode
}

// NewMachine starts in ApplicationUnconfig/NOT_RUNNING, the state an
// unconfigured device powers up in.
func NewMachine() *Machine {
	return &Machine{State: ApplicationUnconfig, Mode: AppNotRunning}
}

// Transition advances the state machine per §4.6's transition table and
// returns the side effects the caller must perform. target is only
// meaningful for EventChangeState.
func (m *Machine) Transition(ev Event, target State) []Effect {
	switch ev {
	case EventAppOffLine:
		if m.Mode == AppOnLine || m.Mode == AppOffLine {
			m.Mode = AppOffLine
			return []Effect{{Kind: EffectEmitOffline}}
		}
		return nil
	case EventAppOnLine:
		m.Mode = AppOnLine
		return []Effect{{Kind: EffectEmitOnline}}
	case EventAppReset:
		return []Effect{{Kind: EffectRequestSoftwareReset}}
	case EventChangeState:
		m.State = target
		effects := []Effect{{Kind: EffectRecomputeChecksumAndPersist}}
		if target == NoApplicationUnconfig || target == StateInvalid {
			m.Mode = AppNotRunning
		}
		return effects
	case EventPhysicalReset:
		return []Effect{{Kind: EffectRequestPhysicalReset}}
	}
	return nil
}
