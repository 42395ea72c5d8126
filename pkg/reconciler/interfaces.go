package reconciler

import "github.com/cuemby/corescale/pkg/types"

// ClusterStateSource supplies the ray cluster's observed node states
// and aggregate resource demand. Implemented by whatever gossip/
// heartbeat client the deployment runs; this package never talks to
// it directly.
type ClusterStateSource interface {
	NodeStates() ([]types.NodeState, error)
	ResourceDemand() (types.ClusterResourceState, error)
}

// InstallObserver reports ray-install outcomes for instances the
// reconciler moved to RAY_INSTALLING. Implemented by whatever
// installer the deployment runs.
type InstallObserver interface {
	PollErrors() ([]types.InstallError, error)
}
