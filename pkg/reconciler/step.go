package reconciler

import (
	"time"

	"github.com/cuemby/corescale/pkg/instance"
	"github.com/cuemby/corescale/pkg/instancemanager"
	"github.com/cuemby/corescale/pkg/provider"
	"github.com/cuemby/corescale/pkg/scheduler"
	"github.com/cuemby/corescale/pkg/types"
	"github.com/google/uuid"
)

// StepConfig holds the static and per-tick inputs StepNext needs
// beyond the Instance Manager itself.
type StepConfig struct {
	NodeTypeConfigs    map[string]types.NodeTypeConfig
	MaxNumNodes        *int
	IdleTimeoutS       int
	ConserveGPUNodes   bool
	RequestTimeout     time.Duration
	TerminatingTimeout time.Duration
}

// StepNext implements the reconciler's active half (spec.md §4.3):
// call the scheduler, create QUEUED instances and request launches for
// its to_launch decisions, transition to_terminate decisions and
// stalled ray nodes toward TERMINATING, reap leaked cloud instances,
// and force-fail instances stuck past their REQUESTED/TERMINATING
// timeout.
func StepNext(
	im *instancemanager.InstanceManager,
	demand types.ClusterResourceState,
	rayNodes map[string]types.NodeState,
	nonTerminated map[string]types.CloudInstance,
	cfg StepConfig,
	sched *scheduler.Scheduler,
	cp provider.CloudProvider,
	at time.Time,
) error {
	instances, version, err := im.GetState()
	if err != nil {
		return err
	}

	views := buildInstanceViews(instances, rayNodes)
	reply := sched.Schedule(types.SchedulingRequest{
		NodeTypeConfigs:            cfg.NodeTypeConfigs,
		MaxNumNodes:                cfg.MaxNumNodes,
		IdleTimeoutS:               cfg.IdleTimeoutS,
		ResourceRequests:           demand.ResourceRequests,
		GangResourceRequests:       demand.GangResourceRequests,
		ClusterResourceConstraints: demand.ClusterResourceConstraints,
		CurrentInstances:           views,
		ConserveGPUNodes:           cfg.ConserveGPUNodes,
		NowMs:                      at.UnixMilli(),
	})

	var batch instancemanager.Batch

	for _, ld := range reply.ToLaunch {
		if err := cp.Launch(ld.InstanceType, ld.Count, ld.RequestID); err != nil {
			continue
		}
		hash := cfg.NodeTypeConfigs[ld.InstanceType].LaunchConfigHash
		for i := 0; i < ld.Count; i++ {
			id := uuid.New().String()
			batch.Creates = append(batch.Creates, instancemanager.CreateInstance{
				InstanceID:       id,
				InstanceType:     ld.InstanceType,
				LaunchRequestID:  ld.RequestID,
				LaunchConfigHash: hash,
			})
			batch.Transitions = append(batch.Transitions, instancemanager.TransitionEvent{
				InstanceID: id,
				NewStatus:  types.InstanceRequested,
			})
		}
	}

	byInstanceID := make(map[string]*types.Instance, len(instances))
	for _, inst := range instances {
		byInstanceID[inst.InstanceID] = inst
	}

	var toTerminateCloudIDs []string
	handled := map[string]bool{}
	for _, td := range reply.ToTerminate {
		inst, ok := byInstanceID[td.InstanceID]
		if !ok {
			continue
		}

		// spec.md §4.3(2): running/allocated instances go through
		// TERMINATING so the provider termination can be confirmed or
		// retried; instances still pending with no (or no longer
		// relevant) cloud resource land directly on a terminal status.
		var nextStatus types.InstanceStatus
		switch inst.Status {
		case types.InstanceQueued:
			nextStatus = types.InstanceTerminated
		case types.InstanceRequested:
			nextStatus = types.InstanceAllocationFailed
		case types.InstanceAllocated, types.InstanceRayInstalling, types.InstanceRayRunning:
			nextStatus = types.InstanceTerminating
		default:
			continue
		}
		if !instance.CanTransition(inst.Status, nextStatus) {
			continue
		}

		batch.Transitions = append(batch.Transitions, instancemanager.TransitionEvent{
			InstanceID: td.InstanceID,
			NewStatus:  nextStatus,
			Details:    string(td.Cause),
		})
		handled[td.InstanceID] = true
		if nextStatus == types.InstanceTerminating && inst.CloudInstanceID != "" {
			toTerminateCloudIDs = append(toTerminateCloudIDs, inst.CloudInstanceID)
		}
	}

	for _, inst := range instances {
		if handled[inst.InstanceID] {
			continue
		}
		switch inst.Status {
		case types.InstanceRayStopped, types.InstanceRayInstallFailed:
			if instance.CanTransition(inst.Status, types.InstanceTerminating) {
				batch.Transitions = append(batch.Transitions, instancemanager.TransitionEvent{
					InstanceID: inst.InstanceID,
					NewStatus:  types.InstanceTerminating,
				})
				if inst.CloudInstanceID != "" {
					toTerminateCloudIDs = append(toTerminateCloudIDs, inst.CloudInstanceID)
				}
			}
		case types.InstanceRequested:
			if cfg.RequestTimeout > 0 && at.Sub(inst.TransitionTime(types.InstanceRequested)) > cfg.RequestTimeout {
				batch.Transitions = append(batch.Transitions, instancemanager.TransitionEvent{
					InstanceID: inst.InstanceID,
					NewStatus:  types.InstanceAllocationFailed,
					Details:    "timed out waiting for cloud instance allocation",
				})
			}
		case types.InstanceTerminating:
			if cfg.TerminatingTimeout > 0 && at.Sub(inst.TransitionTime(types.InstanceTerminating)) > cfg.TerminatingTimeout {
				batch.Transitions = append(batch.Transitions, instancemanager.TransitionEvent{
					InstanceID: inst.InstanceID,
					NewStatus:  types.InstanceTerminationFailed,
					Details:    "timed out waiting for cloud instance termination",
				})
			}
		}
	}

	if len(toTerminateCloudIDs) > 0 {
		_ = cp.Terminate(toTerminateCloudIDs, "terminate-"+uuid.New().String())
	}

	if err := reapLeakedCloudInstances(byInstanceID, nonTerminated, cp); err != nil {
		return err
	}

	if len(batch.Creates) == 0 && len(batch.Transitions) == 0 {
		return nil
	}
	_, err = im.Update(version, batch, at)
	return err
}

// reapLeakedCloudInstances terminates any non-terminated cloud
// instance that no known IM instance is bound to (spec.md §4.3.1.a).
func reapLeakedCloudInstances(byInstanceID map[string]*types.Instance, nonTerminated map[string]types.CloudInstance, cp provider.CloudProvider) error {
	bound := map[string]bool{}
	for _, inst := range byInstanceID {
		if inst.CloudInstanceID != "" {
			bound[inst.CloudInstanceID] = true
		}
	}
	var leaked []string
	for id := range nonTerminated {
		if !bound[id] {
			leaked = append(leaked, id)
		}
	}
	if len(leaked) == 0 {
		return nil
	}
	return cp.Terminate(leaked, "reap-leaked-"+uuid.New().String())
}

// buildInstanceViews joins IM instances with observed NodeState,
// keyed by cloud instance id, producing the scheduler's input shape.
func buildInstanceViews(instances []*types.Instance, rayNodes map[string]types.NodeState) []types.InstanceView {
	views := make([]types.InstanceView, 0, len(instances))
	for _, inst := range instances {
		view := types.InstanceView{
			InstanceID:       inst.InstanceID,
			InstanceType:     inst.InstanceType,
			Status:           inst.Status,
			LaunchConfigHash: inst.LaunchConfigHash,
		}
		if inst.CloudInstanceID != "" {
			if ns, ok := rayNodes[inst.CloudInstanceID]; ok {
				n := ns
				view.Node = &n
			}
		}
		views = append(views, view)
	}
	return views
}

// indexNodeStates keys a ray node-state slice by its cloud instance id
// for StepNext/buildInstanceViews lookups.
func indexNodeStates(nodes []types.NodeState) map[string]types.NodeState {
	out := make(map[string]types.NodeState, len(nodes))
	for _, n := range nodes {
		if n.CloudInstanceID != "" {
			out[n.CloudInstanceID] = n
		}
	}
	return out
}
