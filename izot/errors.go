package izot

import "errors"

// Sentinel errors not already defined by a lower layer (§7). Layer-local
// errors (engine.ErrTransactionTimeout, persist.ErrEepromWriteFail,
// config.ErrCnfgChecksumError, and so on) are returned as-is rather than
// wrapped in a root-package equivalent.
var (
	// ErrStackNotInitialized is the §7 taxonomy entry for an operation
	// attempted before New has completed. No function in this package
	// returns it.
	ErrStackNotInitialized = errors.New("izot: stack not initialized")

	// ErrCallbackNotRegistered is returned when an operation needs a
	// host-supplied callback (memory access, segment I/O, app-data
	// serialization) that has not been registered.
	ErrCallbackNotRegistered = errors.New("izot: callback not registered")

	// ErrIndexInvalid mirrors the taxonomy entry distinct from the
	// package-local datapoint/config errors of the same name, for
	// operations that index directly into the root package's own tables.
	ErrIndexInvalid = errors.New("izot: index out of range")

	// ErrInvalidParameter is the §7 taxonomy entry for a malformed caller
	// argument that isn't specifically a bad index or length. No function
	// in this package returns it.
	ErrInvalidParameter = errors.New("izot: invalid parameter")

	// ErrInvalidMessageLength mirrors config.ErrInvalidMessageLength in the
	// root package's taxonomy. No function in this package returns it;
	// size errors surface as the config/engine sentinels.
	ErrInvalidMessageLength = errors.New("izot: invalid message length")

	// ErrInvalidOperation is returned when a call is well-formed but not
	// valid in the stack's current state (e.g. answering a correlator that
	// was already answered or released).
	ErrInvalidOperation = errors.New("izot: invalid operation")

	// ErrDeviceUniqueIdNotAvailable is returned when an operation needing
	// the device's unique ID is attempted before the USB handshake (or
	// equivalent) has populated it.
	ErrDeviceUniqueIdNotAvailable = errors.New("izot: device unique id not available")

	// ErrNoIpAddress is returned when LS/UDP transport is required but no
	// local address could be bound.
	ErrNoIpAddress = errors.New("izot: no ip address")

	// ErrStackInitializationFailure covers an unrecoverable failure to
	// bring up the flash subsystem or any other fatal init dependency
	// (§7: "Fatal only: unrecoverable failure to initialize flash
	// subsystem").
	ErrStackInitializationFailure = errors.New("izot: stack initialization failure")
)
