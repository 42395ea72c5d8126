package instancemanager

import "errors"

// ErrVersionMismatch is returned by Update when the caller's
// expected version no longer matches the current version. The driver
// loop retries on this error after re-reading GetState.
var ErrVersionMismatch = errors.New("instancemanager: version mismatch")

// ErrIllegalTransition is returned by Update when any event in the
// batch names a transition not present in the state machine's
// transition table, or a create that reuses an existing id. The whole
// batch is rejected; the driver loop logs it like any other tick error
// and builds a fresh batch on the next tick.
var ErrIllegalTransition = errors.New("instancemanager: illegal transition")

// ErrUnknownInstance is returned by Update when an event names an
// instance id not present in the current state.
var ErrUnknownInstance = errors.New("instancemanager: unknown instance")
