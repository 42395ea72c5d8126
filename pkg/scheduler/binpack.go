package scheduler

import (
	"sort"

	"github.com/cuemby/corescale/pkg/types"
)

// placementScore is the 4-tuple of spec.md §4.7, compared
// lexicographically with higher preferred in every position.
type placementScore struct {
	gpuOK       bool
	numMatching int
	minUtil     float64
	avgUtil     float64
}

// less reports whether a scores strictly below b.
func (a placementScore) less(b placementScore) bool {
	if a.gpuOK != b.gpuOK {
		return !a.gpuOK && b.gpuOK
	}
	if a.numMatching != b.numMatching {
		return a.numMatching < b.numMatching
	}
	if a.minUtil != b.minUtil {
		return a.minUtil < b.minUtil
	}
	return a.avgUtil < b.avgUtil
}

// score computes n's utilization score over the requests placed onto
// it in this round (spec.md §4.7). isConstraint selects which
// resource pool utilization is measured against.
func score(n *node, placedThisRound []types.ResourceRequest, isConstraint, conserveGPUNodes bool) placementScore {
	gpuOK := true
	if conserveGPUNodes && n.total["GPU"] > 0 {
		requiresGPU := false
		for _, r := range placedThisRound {
			if r.Bundle["GPU"] > 0 {
				requiresGPU = true
				break
			}
		}
		if !requiresGPU {
			gpuOK = false
		}
	}

	numMatching := 0
	for _, r := range placedThisRound {
		for res := range r.Bundle {
			if _, ok := n.total[res]; ok {
				numMatching++
			}
		}
	}

	pool := n.pool(isConstraint)
	var sum float64
	var count int
	min := 0.0
	first := true
	for res, total := range n.total {
		if total <= 0 {
			continue
		}
		u := (total - pool[res]) / total
		if first || u < min {
			min = u
			first = false
		}
		sum += u
		count++
	}
	avg := 0.0
	if count > 0 {
		avg = sum / float64(count)
	}
	return placementScore{gpuOK: gpuOK, numMatching: numMatching, minUtil: min, avgUtil: avg}
}

// schedulable reports whether req can be placed onto n, consuming
// from the constraint pool or the real pool per isConstraint.
func schedulable(n *node, req types.ResourceRequest, isConstraint bool) bool {
	return satisfiesAntiAffinity(n, req.Constraints) && dominates(n.pool(isConstraint), req.Bundle)
}

// trySchedulePass simulates placing every request in order onto a
// clone of n, greedily taking each request that still fits. It
// returns the resulting clone and the subsequence of requests that
// were placed (used for scoring) along with those left over.
func trySchedulePass(n *node, requests []types.ResourceRequest, isConstraint bool) (result *node, placed, remaining []types.ResourceRequest) {
	clone := n.clone()
	for _, req := range requests {
		if schedulable(clone, req, isConstraint) {
			clone.commit(req, isConstraint)
			placed = append(placed, req)
		} else {
			remaining = append(remaining, req)
		}
	}
	return clone, placed, remaining
}

// tryScheduleResult is trySchedule's outcome. existing[i] is the final
// state of existingNodes[i] (unchanged if it received no commitment);
// newlyLaunched holds any fresh nodes the bin-packer created.
type tryScheduleResult struct {
	existing        []*node
	newlyLaunched   []*node
	availableByType map[string]int
	unscheduled     []types.ResourceRequest
}

// trySchedule is the greedy bin-packer of spec.md §4.6: repeatedly
// pick the (candidate, placements) pair with the best score, commit
// it, and continue with whatever that candidate left unplaced. Fresh
// TO_LAUNCH candidates (one per type with remaining capacity) compete
// with the existing nodes from the first round, and a launched type is
// offered again while availableByType and maxNumNodes allow. It never mutates
// existingNodes; callers adopt or discard the result (the gang pass
// discards it on partial failure).
func trySchedule(
	existingNodes []*node,
	requests []types.ResourceRequest,
	isConstraint bool,
	availableByType map[string]int,
	nodeTypeConfigs map[string]types.NodeTypeConfig,
	maxNumNodes *int,
	nonTerminatingCount int,
	conserveGPUNodes bool,
) tryScheduleResult {
	type candidate struct {
		n        *node
		origIdx  int // index into existingNodes, or -1 for a fresh launch candidate
		nodeType string
	}

	availByType := make(map[string]int, len(availableByType))
	for k, v := range availableByType {
		availByType[k] = v
	}
	sortedTypes := sortedKeys(nodeTypeConfigs)

	pool := make([]candidate, 0, len(existingNodes)+len(sortedTypes))
	for i, n := range existingNodes {
		pool = append(pool, candidate{n: n, origIdx: i})
	}
	// Seed one fresh TO_LAUNCH candidate per type with remaining
	// capacity alongside the existing nodes, rather than only after
	// the existing pool is exhausted: a request unplaceable on any
	// existing node (e.g. it needs a resource no existing node has
	// spare capacity for) must still be able to trigger a launch in
	// the very first round.
	canLaunchMore := func(launchedSoFar int) bool {
		return maxNumNodes == nil || nonTerminatingCount+launchedSoFar < *maxNumNodes
	}
	for _, t := range sortedTypes {
		if availByType[t] > 0 && canLaunchMore(0) {
			pool = append(pool, candidate{n: newLaunchNode(t, nodeTypeConfigs[t]), origIdx: -1, nodeType: t})
		}
	}

	existingResult := append([]*node{}, existingNodes...)
	var newlyLaunched []*node

	unscheduled := append([]types.ResourceRequest{}, requests...)
	launchedCount := 0

	for len(unscheduled) > 0 {
		if len(pool) == 0 {
			break
		}

		type attempt struct {
			poolIdx int
			result  *node
			remain  []types.ResourceRequest
			sc      placementScore
		}
		var best *attempt
		for i, c := range pool {
			result, placed, remain := trySchedulePass(c.n, unscheduled, isConstraint)
			if len(placed) == 0 {
				continue
			}
			sc := score(result, placed, isConstraint, conserveGPUNodes)
			a := &attempt{poolIdx: i, result: result, remain: remain, sc: sc}
			if best == nil || best.sc.less(a.sc) {
				best = a
			}
		}
		if best == nil {
			break
		}

		winner := pool[best.poolIdx]
		pool = append(pool[:best.poolIdx:best.poolIdx], pool[best.poolIdx+1:]...)
		unscheduled = best.remain

		if winner.origIdx >= 0 {
			existingResult[winner.origIdx] = best.result
		} else {
			availByType[winner.nodeType]--
			launchedCount++
			newlyLaunched = append(newlyLaunched, best.result)
			if availByType[winner.nodeType] > 0 && canLaunchMore(launchedCount) {
				pool = append(pool, candidate{n: newLaunchNode(winner.nodeType, nodeTypeConfigs[winner.nodeType]), origIdx: -1, nodeType: winner.nodeType})
			}
		}
	}

	return tryScheduleResult{
		existing:        existingResult,
		newlyLaunched:   newlyLaunched,
		availableByType: availByType,
		unscheduled:     unscheduled,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
