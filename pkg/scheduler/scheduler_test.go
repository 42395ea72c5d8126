package scheduler

import (
	"testing"

	"github.com/cuemby/corescale/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestScheduleMinWorkersOnly(t *testing.T) {
	req := types.SchedulingRequest{
		NodeTypeConfigs: map[string]types.NodeTypeConfig{
			"t1": {Name: "t1", MinWorkerNodes: 1, MaxWorkerNodes: 10},
			"t2": {Name: "t2", MinWorkerNodes: 0, MaxWorkerNodes: 10},
			"t3": {Name: "t3", MinWorkerNodes: 2, MaxWorkerNodes: 10},
		},
	}

	reply := New().Schedule(req)

	assert.ElementsMatch(t, []types.LaunchDecision{
		{InstanceType: "t1", Count: 1, RequestID: "launch-0-t1"},
		{InstanceType: "t3", Count: 2, RequestID: "launch-0-t3"},
	}, stripTimestamps(reply.ToLaunch))
	assert.Empty(t, reply.ToTerminate)
}

func TestSchedulePerTypeCapEviction(t *testing.T) {
	req := types.SchedulingRequest{
		NodeTypeConfigs: map[string]types.NodeTypeConfig{
			"t1": {Name: "t1", MinWorkerNodes: 0, MaxWorkerNodes: 1},
		},
		CurrentInstances: []types.InstanceView{
			{InstanceID: "i0", InstanceType: "t1", Status: types.InstanceRayInstalling},
			{InstanceID: "i1", InstanceType: "t1", Status: types.InstanceRayRunning, Node: &types.NodeState{
				Total: types.ResourceVector{"CPU": 4}, Available: types.ResourceVector{"CPU": 4},
			}},
			{InstanceID: "i2", InstanceType: "t1", Status: types.InstanceRayRunning, Node: &types.NodeState{
				Total: types.ResourceVector{"CPU": 4}, Available: types.ResourceVector{"CPU": 2},
			}},
		},
	}

	reply := New().Schedule(req)

	require.Len(t, reply.ToTerminate, 2)
	assert.Equal(t, "i0", reply.ToTerminate[0].InstanceID)
	assert.Equal(t, "i1", reply.ToTerminate[1].InstanceID)
	for _, d := range reply.ToTerminate {
		assert.Equal(t, types.CauseMaxNumNodesPerType, d.Cause)
	}
}

func TestScheduleMultiRequestPacking(t *testing.T) {
	cfgs := map[string]types.NodeTypeConfig{
		"t1": {Name: "t1", Resources: types.ResourceVector{"CPU": 1, "GPU": 1}, MaxWorkerNodes: 1},
		"t2": {Name: "t2", Resources: types.ResourceVector{"CPU": 3}, MaxWorkerNodes: 1},
	}
	requests := []types.ResourceRequest{
		{Bundle: types.ResourceVector{"CPU": 1}, Count: 3},
		{Bundle: types.ResourceVector{"CPU": 1, "GPU": 1}, Count: 1},
	}

	reply := New().Schedule(types.SchedulingRequest{NodeTypeConfigs: cfgs, ResourceRequests: requests})
	assert.ElementsMatch(t, []string{"t1", "t2"}, launchedTypes(reply.ToLaunch))
	assert.Empty(t, reply.InfeasibleResourceRequests)

	reversed := []types.ResourceRequest{requests[1], requests[0]}
	reply2 := New().Schedule(types.SchedulingRequest{NodeTypeConfigs: cfgs, ResourceRequests: reversed})
	assert.ElementsMatch(t, launchedTypes(reply.ToLaunch), launchedTypes(reply2.ToLaunch))
}

func TestScheduleFragmentation(t *testing.T) {
	cfgs := map[string]types.NodeTypeConfig{
		"t1": {Name: "t1", Resources: types.ResourceVector{"CPU": 1, "GPU": 1}, MaxWorkerNodes: 1},
		"t2": {Name: "t2", Resources: types.ResourceVector{"CPU": 3}, MaxWorkerNodes: 1},
	}
	req := types.SchedulingRequest{
		NodeTypeConfigs: cfgs,
		CurrentInstances: []types.InstanceView{
			{InstanceID: "i1", InstanceType: "t1", Status: types.InstanceRayRunning, Node: &types.NodeState{
				Total: types.ResourceVector{"CPU": 1, "GPU": 1}, Available: types.ResourceVector{"CPU": 0, "GPU": 1},
			}},
		},
		ResourceRequests: []types.ResourceRequest{
			{Bundle: types.ResourceVector{"CPU": 1}, Count: 2},
			{Bundle: types.ResourceVector{"CPU": 1, "GPU": 1}, Count: 1},
		},
	}

	reply := New().Schedule(req)

	assert.Equal(t, []string{"t2"}, launchedTypes(reply.ToLaunch))
	require.Len(t, reply.InfeasibleResourceRequests, 1)
	assert.Equal(t, types.ResourceVector{"CPU": 1, "GPU": 1}, reply.InfeasibleResourceRequests[0].Bundle)
}

func TestScheduleGangAtomicity(t *testing.T) {
	cfgs := map[string]types.NodeTypeConfig{
		"t1": {Name: "t1", Resources: types.ResourceVector{"CPU": 2}, MaxWorkerNodes: 5},
	}
	gang := types.GangResourceRequest{Requests: []types.ResourceRequest{
		{Bundle: types.ResourceVector{"CPU": 3}, Constraints: []types.PlacementConstraint{
			{Type: types.AffinityConstraint, LabelName: "group", LabelValue: "g1"},
		}},
		{Bundle: types.ResourceVector{"CPU": 3}, Constraints: []types.PlacementConstraint{
			{Type: types.AffinityConstraint, LabelName: "group", LabelValue: "g1"},
		}},
	}}

	reply := New().Schedule(types.SchedulingRequest{
		NodeTypeConfigs:      cfgs,
		GangResourceRequests: []types.GangResourceRequest{gang},
	})

	assert.Empty(t, reply.ToLaunch)
	require.Len(t, reply.InfeasibleGangResourceRequests, 1)
}

func TestScheduleOutdatedReplacement(t *testing.T) {
	cfgs := map[string]types.NodeTypeConfig{
		"t1": {Name: "t1", MinWorkerNodes: 2, MaxWorkerNodes: 5, LaunchConfigHash: "h1"},
	}
	req := types.SchedulingRequest{
		NodeTypeConfigs: cfgs,
		CurrentInstances: []types.InstanceView{
			{InstanceID: "old", InstanceType: "t1", Status: types.InstanceRayRunning, LaunchConfigHash: "h1",
				Node: &types.NodeState{Total: types.ResourceVector{"CPU": 1}, Available: types.ResourceVector{"CPU": 1}}},
			{InstanceID: "stale", InstanceType: "t1", Status: types.InstanceRayRunning, LaunchConfigHash: "h2",
				Node: &types.NodeState{Total: types.ResourceVector{"CPU": 1}, Available: types.ResourceVector{"CPU": 1}}},
		},
	}

	reply := New().Schedule(req)

	require.Len(t, reply.ToTerminate, 1)
	assert.Equal(t, "stale", reply.ToTerminate[0].InstanceID)
	assert.Equal(t, types.CauseOutdated, reply.ToTerminate[0].Cause)
	assert.Equal(t, []string{"t1"}, launchedTypes(reply.ToLaunch))
	require.Len(t, reply.ToLaunch, 1)
	assert.Equal(t, 1, reply.ToLaunch[0].Count)
}

func TestScheduleIdleTerminationBoundary(t *testing.T) {
	cfgs := map[string]types.NodeTypeConfig{
		"t1": {Name: "t1", MaxWorkerNodes: 5},
	}
	makeReq := func(idleMs int64) types.SchedulingRequest {
		return types.SchedulingRequest{
			NodeTypeConfigs: cfgs,
			IdleTimeoutS:    10,
			CurrentInstances: []types.InstanceView{
				{InstanceID: "i1", InstanceType: "t1", Status: types.InstanceRayRunning, Node: &types.NodeState{
					Total: types.ResourceVector{"CPU": 1}, Available: types.ResourceVector{"CPU": 1}, IdleDurationMs: idleMs,
				}},
			},
		}
	}

	atThreshold := New().Schedule(makeReq(10_000))
	assert.Empty(t, atThreshold.ToTerminate, "idle_duration_ms == timeout must NOT trigger termination")

	overThreshold := New().Schedule(makeReq(10_001))
	require.Len(t, overThreshold.ToTerminate, 1)
	assert.Equal(t, types.CauseIdle, overThreshold.ToTerminate[0].Cause)
}

func TestScheduleIdleNeverTerminatesBelowMinWorkers(t *testing.T) {
	cfgs := map[string]types.NodeTypeConfig{
		"t1": {Name: "t1", MinWorkerNodes: 1, MaxWorkerNodes: 5},
	}
	req := types.SchedulingRequest{
		NodeTypeConfigs: cfgs,
		IdleTimeoutS:    10,
		CurrentInstances: []types.InstanceView{
			{InstanceID: "i1", InstanceType: "t1", Status: types.InstanceRayRunning, Node: &types.NodeState{
				Total: types.ResourceVector{"CPU": 1}, Available: types.ResourceVector{"CPU": 1}, IdleDurationMs: 999_999,
			}},
		},
	}

	reply := New().Schedule(req)
	assert.Empty(t, reply.ToTerminate, "min_worker_nodes takes precedence over idle termination")
}

func TestScheduleDeterministic(t *testing.T) {
	cfgs := map[string]types.NodeTypeConfig{
		"t1": {Name: "t1", MinWorkerNodes: 2, MaxWorkerNodes: 10},
		"t2": {Name: "t2", MinWorkerNodes: 1, MaxWorkerNodes: 10},
	}
	req := types.SchedulingRequest{NodeTypeConfigs: cfgs, MaxNumNodes: intPtr(20)}

	first := New().Schedule(req)
	second := New().Schedule(req)
	assert.Equal(t, first, second)
}

func stripTimestamps(decisions []types.LaunchDecision) []types.LaunchDecision {
	out := make([]types.LaunchDecision, len(decisions))
	for i, d := range decisions {
		d.RequestTsMs = 0
		out[i] = d
	}
	return out
}

func launchedTypes(decisions []types.LaunchDecision) []string {
	out := make([]string, len(decisions))
	for i, d := range decisions {
		out[i] = d.InstanceType
	}
	return out
}
