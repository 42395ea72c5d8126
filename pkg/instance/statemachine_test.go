package instance

import (
	"testing"

	"github.com/cuemby/corescale/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from types.InstanceStatus
		to   types.InstanceStatus
		want bool
	}{
		{"queued to requested", types.InstanceQueued, types.InstanceRequested, true},
		{"requested to allocated", types.InstanceRequested, types.InstanceAllocated, true},
		{"requested to allocation failed", types.InstanceRequested, types.InstanceAllocationFailed, true},
		{"allocation failed is terminal", types.InstanceAllocationFailed, types.InstanceTerminating, false},
		{"no regression ray running to allocated", types.InstanceRayRunning, types.InstanceAllocated, false},
		{"ray running to ray stopping", types.InstanceRayRunning, types.InstanceRayStopping, true},
		{"termination failed retries", types.InstanceTerminationFailed, types.InstanceTerminating, true},
		{"terminated is terminal", types.InstanceTerminated, types.InstanceTerminating, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(types.InstanceAllocationFailed))
	assert.True(t, IsTerminal(types.InstanceTerminated))
	assert.False(t, IsTerminal(types.InstanceRayRunning))
}

func TestReachableStatuses(t *testing.T) {
	reachable := ReachableStatuses(types.InstanceRayRunning)
	assert.True(t, reachable[types.InstanceRayStopping])
	assert.True(t, reachable[types.InstanceRayStopped])
	assert.True(t, reachable[types.InstanceTerminating])
	assert.True(t, reachable[types.InstanceTerminated])
	assert.False(t, reachable[types.InstanceAllocated])
}

func TestCanReach(t *testing.T) {
	// Current status already downstream of the reconciled status implied
	// by a ray observation: the reconciler must skip, not regress.
	assert.True(t, CanReach(types.InstanceRayStopped, types.InstanceTerminating))
	assert.True(t, CanReach(types.InstanceRayRunning, types.InstanceRayRunning))
	assert.False(t, CanReach(types.InstanceRayStopped, types.InstanceRayRunning))
}
