package reconciler

import (
	"sort"
	"time"

	"github.com/cuemby/corescale/pkg/instance"
	"github.com/cuemby/corescale/pkg/instancemanager"
	"github.com/cuemby/corescale/pkg/types"
)

// SyncFrom folds external observations into the Instance Manager
// through four purely passive passes, each applied with its own
// optimistic-concurrency Update so a collision in one pass never
// blocks the others from retrying on the next tick.
func SyncFrom(
	im *instancemanager.InstanceManager,
	rayNodes []types.NodeState,
	nonTerminatedCloudInstances map[string]types.CloudInstance,
	providerErrors []types.ProviderError,
	installErrors []types.InstallError,
	at time.Time,
) error {
	if err := handleCloudInstanceAllocation(im, nonTerminatedCloudInstances, providerErrors, at); err != nil {
		return err
	}
	if err := handleCloudInstanceTerminated(im, nonTerminatedCloudInstances, providerErrors, at); err != nil {
		return err
	}
	if err := handleRayStatusTransition(im, rayNodes, at); err != nil {
		return err
	}
	if err := handleRayInstallFailed(im, installErrors, at); err != nil {
		return err
	}
	return nil
}

// handleCloudInstanceAllocation reconciles REQUESTED instances against
// unassigned cloud instances of the same type (-> ALLOCATED) or a
// matching launch error (-> ALLOCATION_FAILED).
func handleCloudInstanceAllocation(
	im *instancemanager.InstanceManager,
	nonTerminated map[string]types.CloudInstance,
	providerErrors []types.ProviderError,
	at time.Time,
) error {
	instances, version, err := im.GetState()
	if err != nil {
		return err
	}

	var requested []*types.Instance
	assigned := map[string]bool{}
	for _, inst := range instances {
		if inst.CloudInstanceID != "" {
			assigned[inst.CloudInstanceID] = true
		}
		if inst.Status == types.InstanceRequested && inst.LaunchRequestID != "" {
			requested = append(requested, inst)
		}
	}
	sort.SliceStable(requested, func(i, j int) bool {
		return requested[i].TransitionTime(types.InstanceRequested).Before(
			requested[j].TransitionTime(types.InstanceRequested))
	})

	unassignedByType := map[string][]types.CloudInstance{}
	for id, ci := range nonTerminated {
		if !assigned[id] {
			unassignedByType[ci.NodeType] = append(unassignedByType[ci.NodeType], ci)
		}
	}

	launchErrors := map[string]types.LaunchNodeError{}
	for _, e := range providerErrors {
		if le, ok := e.(types.LaunchNodeError); ok {
			launchErrors[le.RequestID] = le
		}
	}

	var transitions []instancemanager.TransitionEvent
	for _, inst := range requested {
		pool := unassignedByType[inst.InstanceType]
		if len(pool) > 0 {
			ci := pool[len(pool)-1]
			unassignedByType[inst.InstanceType] = pool[:len(pool)-1]
			transitions = append(transitions, instancemanager.TransitionEvent{
				InstanceID:      inst.InstanceID,
				NewStatus:       types.InstanceAllocated,
				CloudInstanceID: ci.CloudInstanceID,
			})
			continue
		}
		if le, ok := launchErrors[inst.LaunchRequestID]; ok && le.NodeType == inst.InstanceType {
			transitions = append(transitions, instancemanager.TransitionEvent{
				InstanceID: inst.InstanceID,
				NewStatus:  types.InstanceAllocationFailed,
				Details:    le.Details,
			})
		}
	}

	return applyIfAny(im, version, transitions, at)
}

// handleCloudInstanceTerminated transitions instances whose cloud
// instance has vanished to TERMINATED, and TERMINATING instances with
// a matching termination error to TERMINATION_FAILED.
func handleCloudInstanceTerminated(
	im *instancemanager.InstanceManager,
	nonTerminated map[string]types.CloudInstance,
	providerErrors []types.ProviderError,
	at time.Time,
) error {
	instances, version, err := im.GetState()
	if err != nil {
		return err
	}

	termErrors := map[string]types.TerminateNodeError{}
	for _, e := range providerErrors {
		if te, ok := e.(types.TerminateNodeError); ok {
			termErrors[te.CloudInstanceID] = te
		}
	}

	var transitions []instancemanager.TransitionEvent
	for _, inst := range instances {
		if inst.CloudInstanceID == "" || instance.IsTerminal(inst.Status) {
			continue
		}
		if inst.Status == types.InstanceTerminating {
			if te, ok := termErrors[inst.CloudInstanceID]; ok {
				transitions = append(transitions, instancemanager.TransitionEvent{
					InstanceID: inst.InstanceID,
					NewStatus:  types.InstanceTerminationFailed,
					Details:    te.Details,
				})
				continue
			}
		}
		if _, ok := nonTerminated[inst.CloudInstanceID]; !ok && instance.CanTransition(inst.Status, types.InstanceTerminated) {
			transitions = append(transitions, instancemanager.TransitionEvent{
				InstanceID: inst.InstanceID,
				NewStatus:  types.InstanceTerminated,
			})
		}
	}

	return applyIfAny(im, version, transitions, at)
}

// handleRayStatusTransition folds the ray cluster's observed node
// statuses into the matching instance, never regressing an instance
// past a status it has already reconciled to or beyond.
func handleRayStatusTransition(im *instancemanager.InstanceManager, rayNodes []types.NodeState, at time.Time) error {
	instances, version, err := im.GetState()
	if err != nil {
		return err
	}

	byCloudInstanceID := map[string]*types.Instance{}
	for _, inst := range instances {
		if inst.CloudInstanceID != "" {
			byCloudInstanceID[inst.CloudInstanceID] = inst
		}
	}

	var transitions []instancemanager.TransitionEvent
	for _, node := range rayNodes {
		if node.CloudInstanceID == "" {
			continue
		}
		inst, ok := byCloudInstanceID[node.CloudInstanceID]
		if !ok {
			continue
		}
		reconciled, ok := reconciledStatusFromRayStatus(node.Status)
		if !ok {
			continue
		}
		if inst.Status == reconciled || instance.CanReach(reconciled, inst.Status) {
			continue
		}
		transitions = append(transitions, instancemanager.TransitionEvent{
			InstanceID: inst.InstanceID,
			NewStatus:  reconciled,
			Details:    "reconciled from ray node status " + string(node.Status),
		})
	}

	return applyIfAny(im, version, transitions, at)
}

func reconciledStatusFromRayStatus(s types.RayNodeStatus) (types.InstanceStatus, bool) {
	switch s {
	case types.RayNodeRunning, types.RayNodeIdle:
		return types.InstanceRayRunning, true
	case types.RayNodeDead:
		return types.InstanceRayStopped, true
	case types.RayNodeDraining:
		return types.InstanceRayStopping, true
	default:
		return "", false
	}
}

// handleRayInstallFailed transitions RAY_INSTALLING instances with a
// matching install error to RAY_INSTALL_FAILED.
func handleRayInstallFailed(im *instancemanager.InstanceManager, installErrors []types.InstallError, at time.Time) error {
	instances, version, err := im.GetState()
	if err != nil {
		return err
	}

	errorsByInstance := map[string]types.InstallError{}
	for _, e := range installErrors {
		errorsByInstance[e.InstanceID] = e
	}

	var transitions []instancemanager.TransitionEvent
	for _, inst := range instances {
		if inst.Status != types.InstanceRayInstalling {
			continue
		}
		if e, ok := errorsByInstance[inst.InstanceID]; ok {
			transitions = append(transitions, instancemanager.TransitionEvent{
				InstanceID: inst.InstanceID,
				NewStatus:  types.InstanceRayInstallFailed,
				Details:    e.Details,
			})
		}
	}

	return applyIfAny(im, version, transitions, at)
}

func applyIfAny(im *instancemanager.InstanceManager, version int64, transitions []instancemanager.TransitionEvent, at time.Time) error {
	if len(transitions) == 0 {
		return nil
	}
	_, err := im.Update(version, instancemanager.Batch{Transitions: transitions}, at)
	return err
}
