package reconciler

import (
	"testing"
	"time"

	"github.com/cuemby/corescale/pkg/instancemanager"
	"github.com/cuemby/corescale/pkg/provider"
	"github.com/cuemby/corescale/pkg/scheduler"
	"github.com/cuemby/corescale/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestStepNextCreatesAndLaunchesQueuedInstances(t *testing.T) {
	im := newTestIM(t)
	cp := provider.NewFakeProvider()
	now := time.Unix(1000, 0)

	cfg := StepConfig{
		NodeTypeConfigs: map[string]types.NodeTypeConfig{
			"t1": {Name: "t1", MinWorkerNodes: 1, MaxWorkerNodes: 5},
		},
	}

	err := StepNext(im, types.ClusterResourceState{}, nil, nil, cfg, scheduler.New(), cp, now)
	require.NoError(t, err)

	instances, _, err := im.GetState()
	require.NoError(t, err)
	require.Len(t, instances, 1)
	require.Equal(t, types.InstanceRequested, instances[0].Status)
	require.NotEmpty(t, instances[0].LaunchRequestID)

	nodes, err := cp.NonTerminated()
	require.NoError(t, err)
	require.Len(t, nodes, 1)
}

func TestStepNextTerminatesOutdatedInstance(t *testing.T) {
	im := newTestIM(t)
	cp := provider.NewFakeProvider()
	now := time.Unix(1000, 0)

	_, err := im.Update(0, instancemanager.Batch{
		Creates: []instancemanager.CreateInstance{{InstanceID: "i1", InstanceType: "t1", LaunchConfigHash: "h2"}},
		Transitions: []instancemanager.TransitionEvent{
			{InstanceID: "i1", NewStatus: types.InstanceRequested},
		},
	}, now)
	require.NoError(t, err)
	_, err = im.Update(1, instancemanager.Batch{
		Transitions: []instancemanager.TransitionEvent{
			{InstanceID: "i1", NewStatus: types.InstanceAllocated, CloudInstanceID: "cloud-1"},
		},
	}, now)
	require.NoError(t, err)
	_, err = im.Update(2, instancemanager.Batch{
		Transitions: []instancemanager.TransitionEvent{
			{InstanceID: "i1", NewStatus: types.InstanceRayInstalling},
		},
	}, now)
	require.NoError(t, err)
	_, err = im.Update(3, instancemanager.Batch{
		Transitions: []instancemanager.TransitionEvent{
			{InstanceID: "i1", NewStatus: types.InstanceRayRunning},
		},
	}, now)
	require.NoError(t, err)

	cfg := StepConfig{
		NodeTypeConfigs: map[string]types.NodeTypeConfig{
			"t1": {Name: "t1", MaxWorkerNodes: 5, LaunchConfigHash: "h1"},
		},
	}
	rayNodes := map[string]types.NodeState{
		"cloud-1": {NodeID: "ray-1", CloudInstanceID: "cloud-1",
			Total: types.ResourceVector{"CPU": 1}, Available: types.ResourceVector{"CPU": 1}},
	}

	err = StepNext(im, types.ClusterResourceState{}, rayNodes, nil, cfg, scheduler.New(), cp, now)
	require.NoError(t, err)

	instances, _, err := im.GetState()
	require.NoError(t, err)
	require.Equal(t, types.InstanceTerminating, instances[0].Status)
}

func TestStepNextReapsLeakedCloudInstance(t *testing.T) {
	im := newTestIM(t)
	cp := provider.NewFakeProvider()
	now := time.Unix(1000, 0)

	require.NoError(t, cp.Launch("t1", 1, "external"))
	nodes, err := cp.NonTerminated()
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	cfg := StepConfig{NodeTypeConfigs: map[string]types.NodeTypeConfig{}}
	err = StepNext(im, types.ClusterResourceState{}, nil, nodes, cfg, scheduler.New(), cp, now)
	require.NoError(t, err)

	remaining, err := cp.NonTerminated()
	require.NoError(t, err)
	require.Empty(t, remaining)
}

// TestStepNextTerminatesExcessPendingInstance reproduces the scheduler
// decision built by TestSchedulePerTypeCapEviction (a RAY_INSTALLING
// instance evicted to stay under max_worker_nodes_per_type) and checks
// StepNext actually carries it through: a to_terminate decision on a
// not-yet-running instance must still land on TERMINATING rather than
// being silently dropped.
func TestStepNextTerminatesExcessPendingInstance(t *testing.T) {
	im := newTestIM(t)
	cp := provider.NewFakeProvider()
	now := time.Unix(1000, 0)

	_, err := im.Update(0, instancemanager.Batch{
		Creates: []instancemanager.CreateInstance{{InstanceID: "i0", InstanceType: "t1"}},
		Transitions: []instancemanager.TransitionEvent{
			{InstanceID: "i0", NewStatus: types.InstanceRequested},
		},
	}, now)
	require.NoError(t, err)
	_, err = im.Update(1, instancemanager.Batch{
		Transitions: []instancemanager.TransitionEvent{
			{InstanceID: "i0", NewStatus: types.InstanceAllocated, CloudInstanceID: "cloud-0"},
		},
	}, now)
	require.NoError(t, err)
	_, err = im.Update(2, instancemanager.Batch{
		Transitions: []instancemanager.TransitionEvent{
			{InstanceID: "i0", NewStatus: types.InstanceRayInstalling},
		},
	}, now)
	require.NoError(t, err)

	cfg := StepConfig{
		NodeTypeConfigs: map[string]types.NodeTypeConfig{
			"t1": {Name: "t1", MaxWorkerNodes: 0},
		},
	}

	err = StepNext(im, types.ClusterResourceState{}, nil, nil, cfg, scheduler.New(), cp, now)
	require.NoError(t, err)

	instances, _, err := im.GetState()
	require.NoError(t, err)
	require.Len(t, instances, 1)
	require.Equal(t, types.InstanceTerminating, instances[0].Status)
}

func TestStepNextFailsRequestedInstanceAfterTimeout(t *testing.T) {
	im := newTestIM(t)
	cp := provider.NewFakeProvider()
	start := time.Unix(1000, 0)

	_, err := im.Update(0, instancemanager.Batch{
		Creates: []instancemanager.CreateInstance{{InstanceID: "i1", InstanceType: "t1"}},
		Transitions: []instancemanager.TransitionEvent{
			{InstanceID: "i1", NewStatus: types.InstanceRequested},
		},
	}, start)
	require.NoError(t, err)

	cfg := StepConfig{
		NodeTypeConfigs: map[string]types.NodeTypeConfig{"t1": {Name: "t1"}},
		RequestTimeout:  time.Minute,
	}

	err = StepNext(im, types.ClusterResourceState{}, nil, nil, cfg, scheduler.New(), cp, start.Add(2*time.Minute))
	require.NoError(t, err)

	instances, _, err := im.GetState()
	require.NoError(t, err)
	require.Equal(t, types.InstanceAllocationFailed, instances[0].Status)
}
