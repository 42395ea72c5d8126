package instance

import (
	"time"

	"github.com/cuemby/corescale/pkg/types"
)

// transitions is the legal-transition table from spec.md §3's diagram.
// QUEUED's "(cancel)" branch has no other terminal status to land on,
// so it is modeled as a direct transition to TERMINATED. RAY_INSTALLING
// already holds a bound cloud instance (set at ALLOCATED), so canceling
// it needs the same provider-termination handshake as ALLOCATED/
// RAY_RUNNING rather than a direct terminal jump. Every status that holds
// a bound cloud instance may also move straight to TERMINATED, which is
// how the sync pass records a cloud instance the provider no longer
// reports.
var transitions = map[types.InstanceStatus][]types.InstanceStatus{
	types.InstanceQueued: {
		types.InstanceRequested,
		types.InstanceTerminated,
	},
	types.InstanceRequested: {
		types.InstanceAllocated,
		types.InstanceAllocationFailed,
	},
	types.InstanceAllocationFailed: {},
	types.InstanceAllocated: {
		types.InstanceRayInstalling,
		types.InstanceTerminating,
		types.InstanceTerminated,
	},
	types.InstanceRayInstalling: {
		types.InstanceRayRunning,
		types.InstanceRayInstallFailed,
		types.InstanceTerminating,
		types.InstanceTerminated,
	},
	types.InstanceRayInstallFailed: {
		types.InstanceTerminating,
		types.InstanceTerminated,
	},
	types.InstanceRayRunning: {
		types.InstanceRayStopping,
		types.InstanceTerminating,
		types.InstanceTerminated,
	},
	types.InstanceRayStopping: {
		types.InstanceRayStopped,
		types.InstanceTerminated,
	},
	types.InstanceRayStopped: {
		types.InstanceTerminating,
		types.InstanceTerminated,
	},
	types.InstanceTerminating: {
		types.InstanceTerminated,
		types.InstanceTerminationFailed,
	},
	types.InstanceTerminationFailed: {
		types.InstanceTerminating,
		types.InstanceTerminated,
	},
	types.InstanceTerminated: {},
}

// CanTransition reports whether from -> to is a legal edge in the
// state machine.
func CanTransition(from, to types.InstanceStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether status has no legal outgoing transitions.
func IsTerminal(status types.InstanceStatus) bool {
	return len(transitions[status]) == 0
}

// ReachableStatuses returns the set of statuses downstream of status in
// the transition DAG (its own forward transitive closure), following
// the TERMINATING <-> TERMINATION_FAILED cycle without looping forever.
// Used to suppress a reconciled transition that the instance has
// already moved past (spec.md §4.2(c)).
func ReachableStatuses(status types.InstanceStatus) map[types.InstanceStatus]bool {
	reachable := map[types.InstanceStatus]bool{}
	queue := []types.InstanceStatus{status}
	visited := map[types.InstanceStatus]bool{status: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range transitions[cur] {
			reachable[next] = true
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return reachable
}

// CanReach reports whether to is in ReachableStatuses(from) or equals
// from itself.
func CanReach(from, to types.InstanceStatus) bool {
	if from == to {
		return true
	}
	return ReachableStatuses(from)[to]
}

// NewInstance creates an instance in its initial QUEUED status.
func NewInstance(id, instanceType string, at time.Time) *types.Instance {
	return &types.Instance{
		InstanceID:   id,
		InstanceType: instanceType,
		Status:       types.InstanceQueued,
		History: []types.StatusTransition{
			{Status: types.InstanceQueued, Timestamp: at},
		},
	}
}

// Apply appends a transition to the instance's history and updates its
// status and optional fields, without checking legality — callers
// (the Instance Manager) must validate with CanTransition first.
func Apply(inst *types.Instance, to types.InstanceStatus, at time.Time, cloudInstanceID, details string) {
	inst.Status = to
	if cloudInstanceID != "" {
		inst.CloudInstanceID = cloudInstanceID
	}
	if details != "" {
		inst.Details = details
	}
	inst.History = append(inst.History, types.StatusTransition{Status: to, Timestamp: at})
}
