package provider

import "github.com/cuemby/corescale/pkg/types"

// CloudProvider is the adapter the Reconciler drives to launch and
// terminate cloud instances, and polls for their observed state. All
// methods must be safe for concurrent use; Launch/Terminate are
// expected to be asynchronous (the provider may still be working a
// request when the next tick's NonTerminated/PollErrors is called).
type CloudProvider interface {
	// Launch requests count instances of nodeType, tagged with
	// requestID so a later LaunchNodeError can be correlated back to
	// the Instance that solicited it.
	Launch(nodeType string, count int, requestID string) error

	// Terminate requests that the instances behind cloudInstanceIDs be
	// torn down, tagged with requestID for the same reason as Launch.
	Terminate(cloudInstanceIDs []string, requestID string) error

	// NonTerminated returns every cloud instance the provider currently
	// considers live, keyed by CloudInstanceID.
	NonTerminated() (map[string]types.CloudInstance, error)

	// PollErrors drains and returns every LaunchNodeError/
	// TerminateNodeError accumulated since the last call.
	PollErrors() ([]types.ProviderError, error)
}
