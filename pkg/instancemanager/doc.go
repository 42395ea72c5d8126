// Package instancemanager implements the Instance Manager's
// optimistic-concurrency contract: GetState returns the current
// instance set and its version; Update accepts a batch of transition
// events and applies them atomically only if the caller's expected
// version still matches, validating every event against the state
// machine in pkg/instance before committing any of them.
//
// InstanceManager wraps a pkg/instancestore.Store for persistence. It
// holds no opinion about how its Update calls reach it — pkg/manager's
// Raft FSM calls it directly from Apply, and a non-replicated build
// could call it directly from an HTTP handler.
package instancemanager
