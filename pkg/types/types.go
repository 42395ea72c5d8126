package types

import "time"

// InstanceStatus is a node in the Instance Manager's state machine. See
// pkg/instance for the legal-transition table and reachable-status sets.
type InstanceStatus string

const (
	InstanceQueued            InstanceStatus = "QUEUED"
	InstanceRequested         InstanceStatus = "REQUESTED"
	InstanceAllocated         InstanceStatus = "ALLOCATED"
	InstanceAllocationFailed  InstanceStatus = "ALLOCATION_FAILED"
	InstanceRayInstalling     InstanceStatus = "RAY_INSTALLING"
	InstanceRayInstallFailed  InstanceStatus = "RAY_INSTALL_FAILED"
	InstanceRayRunning        InstanceStatus = "RAY_RUNNING"
	InstanceRayStopping       InstanceStatus = "RAY_STOPPING"
	InstanceRayStopped        InstanceStatus = "RAY_STOPPED"
	InstanceTerminating       InstanceStatus = "TERMINATING"
	InstanceTerminated        InstanceStatus = "TERMINATED"
	InstanceTerminationFailed InstanceStatus = "TERMINATION_FAILED"
)

// StatusTransition is one entry in an Instance's append-only history.
type StatusTransition struct {
	Status    InstanceStatus
	Timestamp time.Time
}

// Instance is a single node managed by the Instance Manager. It is
// created in InstanceQueued and never resurrected once it reaches a
// terminal status (InstanceAllocationFailed or InstanceTerminated).
type Instance struct {
	InstanceID       string
	InstanceType     string
	Status           InstanceStatus
	CloudInstanceID  string // set once bound to a CloudInstance
	LaunchRequestID  string // set once a launch was solicited
	LaunchConfigHash string // config fingerprint at launch time
	Details          string // human-readable detail of the last transition
	History          []StatusTransition
}

// TransitionTime returns the timestamp of the instance's first
// transition into status, or the zero Time if it never reached it.
// Used by the allocation pass to sort request-bearing instances by the
// age of their REQUESTED transition (oldest first, for FIFO fairness).
func (i *Instance) TransitionTime(status InstanceStatus) time.Time {
	for _, t := range i.History {
		if t.Status == status {
			return t.Timestamp
		}
	}
	return time.Time{}
}

// CloudInstance is a VM observed from the cloud-provider adapter. Its
// lifecycle is owned by the adapter; the core never mutates it, only
// reads it through non_terminated()/poll_errors().
type CloudInstance struct {
	CloudInstanceID string
	NodeType        string
	LaunchRequestID string
}

// RayNodeStatus is the coarse status the gossip/heartbeat layer reports
// for a live cluster member.
type RayNodeStatus string

const (
	RayNodeRunning  RayNodeStatus = "RUNNING"
	RayNodeIdle     RayNodeStatus = "IDLE"
	RayNodeDraining RayNodeStatus = "DRAINING"
	RayNodeDead     RayNodeStatus = "DEAD"
)

// ResourceVector is a mapping from resource name (e.g. "CPU", "GPU",
// "memory") to a non-negative quantity.
type ResourceVector map[string]float64

// NodeState is an observed live cluster member, keyed by an opaque
// node id and back-linked to the CloudInstance that hosts it.
type NodeState struct {
	NodeID          string
	CloudInstanceID string
	RayNodeTypeName string
	Total           ResourceVector
	Available       ResourceVector
	IdleDurationMs  int64
	Status          RayNodeStatus
}

// NodeTypeConfig is the static configuration for one allowed worker
// shape.
type NodeTypeConfig struct {
	Name             string
	Resources        ResourceVector
	Labels           map[string]string
	MinWorkerNodes   int
	MaxWorkerNodes   int
	LaunchConfigHash string
}
