package scheduler

import (
	"testing"

	"github.com/cuemby/corescale/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestScoreConserveGPUNodes(t *testing.T) {
	gpuNode := &node{total: types.ResourceVector{"CPU": 1, "GPU": 1}}
	cpuOnlyNode := &node{total: types.ResourceVector{"CPU": 1}}
	cpuOnlyRequest := []types.ResourceRequest{{Bundle: types.ResourceVector{"CPU": 1}}}

	assert.False(t, score(gpuNode, cpuOnlyRequest, false, true).gpuOK,
		"a node with spare GPU capacity must not be gpu_ok for a non-GPU placement once conserving")
	assert.True(t, score(gpuNode, cpuOnlyRequest, false, false).gpuOK,
		"gpu_ok is always true when conserveGPUNodes is off")
	assert.True(t, score(cpuOnlyNode, cpuOnlyRequest, false, true).gpuOK,
		"a node with no GPU capacity at all is never penalized")

	gpuRequest := []types.ResourceRequest{{Bundle: types.ResourceVector{"GPU": 1}}}
	assert.True(t, score(gpuNode, gpuRequest, false, true).gpuOK,
		"a GPU node stays gpu_ok when the placement actually needs its GPU")
}

// TestTrySchedulePrefersGPUNodeWhenNotConserving and its counterpart
// below pin down that trySchedule actually threads conserveGPUNodes
// into score() rather than ignoring it: the same two candidate nodes
// receive the CPU-only placement depending on the flag alone.
func TestTrySchedulePrefersGPUNodeWhenNotConserving(t *testing.T) {
	gpuNode := &node{
		nodeType: "gpu", total: types.ResourceVector{"CPU": 1, "GPU": 1},
		available: types.ResourceVector{"CPU": 1, "GPU": 0.01}, availableConstraints: types.ResourceVector{"CPU": 1, "GPU": 0.01},
		labels: map[string]string{}, status: nodeRunning,
	}
	cpuNode := &node{
		nodeType: "cpu", total: types.ResourceVector{"CPU": 2},
		available: types.ResourceVector{"CPU": 2}, availableConstraints: types.ResourceVector{"CPU": 2},
		labels: map[string]string{}, status: nodeRunning,
	}
	requests := []types.ResourceRequest{{Bundle: types.ResourceVector{"CPU": 1}}}

	result := trySchedule([]*node{gpuNode, cpuNode}, requests, false, map[string]int{}, nil, nil, 2, false)

	assert.Empty(t, result.unscheduled)
	assert.Equal(t, 0.0, result.existing[0].available["CPU"], "the already-busy GPU node should win on utilization")
	assert.Equal(t, 2.0, result.existing[1].available["CPU"], "the idle CPU-only node should be left untouched")
}

func TestTrySchedulePrefersNonGPUNodeWhenConserving(t *testing.T) {
	gpuNode := &node{
		nodeType: "gpu", total: types.ResourceVector{"CPU": 1, "GPU": 1},
		available: types.ResourceVector{"CPU": 1, "GPU": 0.01}, availableConstraints: types.ResourceVector{"CPU": 1, "GPU": 0.01},
		labels: map[string]string{}, status: nodeRunning,
	}
	cpuNode := &node{
		nodeType: "cpu", total: types.ResourceVector{"CPU": 2},
		available: types.ResourceVector{"CPU": 2}, availableConstraints: types.ResourceVector{"CPU": 2},
		labels: map[string]string{}, status: nodeRunning,
	}
	requests := []types.ResourceRequest{{Bundle: types.ResourceVector{"CPU": 1}}}

	result := trySchedule([]*node{gpuNode, cpuNode}, requests, false, map[string]int{}, nil, nil, 2, true)

	assert.Empty(t, result.unscheduled)
	assert.Equal(t, 1.0, result.existing[0].available["CPU"], "the GPU node is conserved and must stay untouched")
	assert.Equal(t, 1.0, result.existing[1].available["CPU"], "the CPU-only node should absorb the placement instead")
}
