package scheduler

import (
	"github.com/cuemby/corescale/pkg/types"
	"github.com/samber/lo"
)

// nodeStatus is the scheduler-internal lifecycle of a SchedulingNode,
// distinct from types.InstanceStatus: it describes what the scheduler
// intends to do with the node this pass, not the Instance Manager's
// view of it.
type nodeStatus string

const (
	nodeToLaunch    nodeStatus = "TO_LAUNCH"
	nodePending     nodeStatus = "PENDING"
	nodeRunning     nodeStatus = "RUNNING"
	nodeToTerminate nodeStatus = "TO_TERMINATE"
)

// node is the ephemeral, scheduler-internal SchedulingNode of spec.md
// §3. It exists only for the lifetime of one schedule() call.
type node struct {
	nodeType string
	total    types.ResourceVector

	// available is consumed by ordinary/gang resource requests;
	// availableConstraints is a separate pool consumed only by
	// cluster resource constraints, so the two concerns never
	// double-subtract from the same capacity (spec.md §4.4 phase 5).
	available            types.ResourceVector
	availableConstraints types.ResourceVector

	labels map[string]string
	status nodeStatus

	requests    []types.ResourceRequest
	constraints []types.ResourceRequest

	imInstanceID     string
	rayNodeID        string
	idleDurationMs   int64
	launchConfigHash string
	cause            types.TerminateCause
}

// newNodeFromLiveState builds a RUNNING node from an observed
// NodeState, the first branch of Phase 0.
func newNodeFromLiveState(nodeType string, ns *types.NodeState, launchConfigHash, imInstanceID string) *node {
	return &node{
		nodeType:             nodeType,
		total:                cloneResources(ns.Total),
		available:            cloneResources(ns.Available),
		availableConstraints: cloneResources(ns.Available),
		labels:               map[string]string{},
		status:               nodeRunning,
		imInstanceID:         imInstanceID,
		rayNodeID:            ns.NodeID,
		idleDurationMs:       ns.IdleDurationMs,
		launchConfigHash:     launchConfigHash,
	}
}

// newPendingNode builds a PENDING node from a node-type's full
// capacity, the second branch of Phase 0: an instance still en route
// to RAY_RUNNING reserves its whole declared shape.
func newPendingNode(nodeType string, cfg types.NodeTypeConfig, imInstanceID string) *node {
	return &node{
		nodeType:             nodeType,
		total:                cloneResources(cfg.Resources),
		available:            cloneResources(cfg.Resources),
		availableConstraints: cloneResources(cfg.Resources),
		labels:               map[string]string{},
		status:               nodePending,
		imInstanceID:         imInstanceID,
		launchConfigHash:     cfg.LaunchConfigHash,
	}
}

// newLaunchNode builds a fresh TO_LAUNCH node, used by the min-workers
// phase and for the bin-packer's launch candidates.
func newLaunchNode(nodeType string, cfg types.NodeTypeConfig) *node {
	return &node{
		nodeType:             nodeType,
		total:                cloneResources(cfg.Resources),
		available:            cloneResources(cfg.Resources),
		availableConstraints: cloneResources(cfg.Resources),
		labels:               map[string]string{},
		status:               nodeToLaunch,
		launchConfigHash:     cfg.LaunchConfigHash,
	}
}

// clone returns a deep copy of n, used by the bin-packer to probe a
// placement without mutating the committed pool (spec.md §9 "deep copy
// of the context").
func (n *node) clone() *node {
	cp := *n
	cp.total = cloneResources(n.total)
	cp.available = cloneResources(n.available)
	cp.availableConstraints = cloneResources(n.availableConstraints)
	cp.labels = make(map[string]string, len(n.labels))
	for k, v := range n.labels {
		cp.labels[k] = v
	}
	cp.requests = append([]types.ResourceRequest{}, n.requests...)
	cp.constraints = append([]types.ResourceRequest{}, n.constraints...)
	return &cp
}

// pool selects the resource vector a placement attempt consumes from:
// the constraint pool when satisfying a ClusterResourceConstraint, the
// real pool otherwise.
func (n *node) pool(isConstraint bool) types.ResourceVector {
	if isConstraint {
		return n.availableConstraints
	}
	return n.available
}

// dominates reports whether pool covers bundle elementwise.
func dominates(pool, bundle types.ResourceVector) bool {
	for res, need := range bundle {
		if pool[res] < need {
			return false
		}
	}
	return true
}

// satisfiesAntiAffinity reports whether placing a request with these
// constraints on n is legal: no ANTI_AFFINITY constraint may match an
// existing label already imprinted on the node.
func satisfiesAntiAffinity(n *node, constraints []types.PlacementConstraint) bool {
	for _, c := range constraints {
		if c.Type != types.AntiAffinityConstraint {
			continue
		}
		if v, ok := n.labels[c.LabelName]; ok && v == c.LabelValue {
			return false
		}
	}
	return true
}

// commit subtracts bundle from the chosen pool, records req against
// the node, and imprints any AFFINITY/ANTI_AFFINITY (label, value)
// pair onto the node's labels. A label key never changes value once
// set (spec.md §4.6.1).
func (n *node) commit(req types.ResourceRequest, isConstraint bool) {
	pool := n.pool(isConstraint)
	for res, qty := range req.Bundle {
		pool[res] -= qty
	}
	if isConstraint {
		n.constraints = append(n.constraints, req)
	} else {
		n.requests = append(n.requests, req)
	}
	for _, c := range req.Constraints {
		if _, exists := n.labels[c.LabelName]; !exists {
			n.labels[c.LabelName] = c.LabelValue
		}
	}
}

// nonTerminating reports whether the node still counts toward
// min/max_worker_nodes and max_num_nodes bookkeeping.
func (n *node) nonTerminating() bool {
	return n.status != nodeToTerminate
}

// runningRay reports whether the node is actually running ray
// (as opposed to pending allocation/install), used by the termination
// sort (spec.md §4.5).
func (n *node) runningRay() bool {
	return n.status == nodeRunning
}

// avgUtilization is the mean per-resource utilization (total-available)/total
// over resources with non-zero total, used by both the termination sort
// and the utilization score.
func (n *node) avgUtilization() float64 {
	var sum float64
	var count int
	for res, total := range n.total {
		if total <= 0 {
			continue
		}
		sum += (total - n.available[res]) / total
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func cloneResources(rv types.ResourceVector) types.ResourceVector {
	return lo.Assign(types.ResourceVector{}, rv)
}
