package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cuemby/corescale/pkg/instance"
	"github.com/cuemby/corescale/pkg/types"
)

// Scheduler implements the Resource-Demand Scheduler of spec.md §4.4:
// a pure function of its input, schedule(SchedulingRequest) ->
// SchedulingReply. It holds no state between calls and performs no
// I/O, matching the IResourceScheduler contract the Reconciler's
// step_next invokes once per tick.
type Scheduler struct{}

// New returns a ready Scheduler. It takes no dependencies: every input
// the algorithm needs arrives through Schedule's argument.
func New() *Scheduler {
	return &Scheduler{}
}

// scheduleContext is the mutable working state threaded through the
// eight phases, mirroring spec.md §4.4's "mutable ScheduleContext
// holding the set of SchedulingNodes".
type scheduleContext struct {
	nodes            []*node
	availableByType  map[string]int
	nodeTypeConfigs  map[string]types.NodeTypeConfig
	maxNumNodes      *int
	idleTimeoutS     int
	conserveGPUNodes bool
}

func (c *scheduleContext) nonTerminatingCount() int {
	n := 0
	for _, nd := range c.nodes {
		if nd.nonTerminating() {
			n++
		}
	}
	return n
}

// liveIndices returns the subset of c.nodes still in play, along with
// their positions in c.nodes so commitments can be written back.
func (c *scheduleContext) liveIndices() ([]*node, []int) {
	var live []*node
	var idx []int
	for i, nd := range c.nodes {
		if nd.nonTerminating() {
			live = append(live, nd)
			idx = append(idx, i)
		}
	}
	return live, idx
}

// tryScheduleLive invokes the bin-packer over the currently live nodes
// without mutating the context, so callers can check feasibility
// before deciding whether to commit (constraints and gangs are
// all-or-nothing; see apply).
func (c *scheduleContext) tryScheduleLive(requests []types.ResourceRequest, isConstraint bool) (ok bool, result tryScheduleResult, idx []int) {
	live, idx := c.liveIndices()
	result = trySchedule(live, requests, isConstraint, c.availableByType, c.nodeTypeConfigs, c.maxNumNodes, c.nonTerminatingCount(), c.conserveGPUNodes)
	ok = len(result.unscheduled) == 0
	return ok, result, idx
}

// apply commits a tryScheduleLive result into the context: updated
// node state, newly launched nodes, and the shrunk availableByType.
func (c *scheduleContext) apply(result tryScheduleResult, idx []int) {
	for i, n := range result.existing {
		c.nodes[idx[i]] = n
	}
	c.nodes = append(c.nodes, result.newlyLaunched...)
	c.availableByType = result.availableByType
}

// Schedule implements spec.md §4.4's eight ordered phases.
func (s *Scheduler) Schedule(req types.SchedulingRequest) types.SchedulingReply {
	ctx := buildContext(req)

	terminateOutdatedNodes(ctx)
	enforceMinWorkerNodes(ctx)
	enforceMaxWorkerNodesPerType(ctx)
	enforceMaxNumNodes(ctx, req.MaxNumNodes)

	var infeasibleConstraints []types.ClusterResourceConstraint
	for _, constraint := range req.ClusterResourceConstraints {
		ok, result, idx := ctx.tryScheduleLive(constraint.MinBundles, true)
		if !ok {
			infeasibleConstraints = append(infeasibleConstraints, constraint)
			continue
		}
		ctx.apply(result, idx)
	}

	infeasibleGangs := scheduleGangs(ctx, req.GangResourceRequests)
	infeasibleRequests := scheduleOrdinary(ctx, req.ResourceRequests)

	terminateIdleNodes(ctx)

	return types.SchedulingReply{
		ToLaunch:                             buildToLaunch(ctx, req.NowMs),
		ToTerminate:                          buildToTerminate(ctx, req.MaxNumNodes),
		InfeasibleResourceRequests:           infeasibleRequests,
		InfeasibleGangResourceRequests:       infeasibleGangs,
		InfeasibleClusterResourceConstraints: infeasibleConstraints,
	}
}

// buildContext implements Phase 0.
func buildContext(req types.SchedulingRequest) *scheduleContext {
	ctx := &scheduleContext{
		availableByType:  map[string]int{},
		nodeTypeConfigs:  req.NodeTypeConfigs,
		maxNumNodes:      req.MaxNumNodes,
		idleTimeoutS:     req.IdleTimeoutS,
		conserveGPUNodes: req.ConserveGPUNodes,
	}

	existingCount := map[string]int{}
	for _, inst := range req.CurrentInstances {
		cfg, hasConfig := req.NodeTypeConfigs[inst.InstanceType]

		switch {
		case inst.Node != nil:
			n := newNodeFromLiveState(inst.InstanceType, inst.Node, inst.LaunchConfigHash, inst.InstanceID)
			ctx.nodes = append(ctx.nodes, n)
			existingCount[inst.InstanceType]++
		case hasConfig && instance.CanReach(inst.Status, types.InstanceRayRunning):
			n := newPendingNode(inst.InstanceType, cfg, inst.InstanceID)
			ctx.nodes = append(ctx.nodes, n)
			existingCount[inst.InstanceType]++
		default:
			// Neither live nor still able to reach RAY_RUNNING:
			// excluded from the scheduling context entirely.
		}
	}

	for t, cfg := range req.NodeTypeConfigs {
		ctx.availableByType[t] = cfg.MaxWorkerNodes - existingCount[t]
	}
	return ctx
}

// terminateOutdatedNodes implements Phase 1.
func terminateOutdatedNodes(ctx *scheduleContext) {
	for _, n := range ctx.nodes {
		if n.status != nodeRunning {
			continue
		}
		cfg, ok := ctx.nodeTypeConfigs[n.nodeType]
		if !ok || cfg.LaunchConfigHash == "" {
			continue
		}
		if cfg.LaunchConfigHash != n.launchConfigHash {
			n.status = nodeToTerminate
			n.cause = types.CauseOutdated
		}
	}
}

// enforceMinWorkerNodes implements Phase 2.
func enforceMinWorkerNodes(ctx *scheduleContext) {
	for _, t := range sortedKeys(ctx.nodeTypeConfigs) {
		cfg := ctx.nodeTypeConfigs[t]
		live := 0
		for _, n := range ctx.nodes {
			if n.nodeType == t && n.nonTerminating() {
				live++
			}
		}
		for live < cfg.MinWorkerNodes {
			ctx.nodes = append(ctx.nodes, newLaunchNode(t, cfg))
			ctx.availableByType[t]--
			live++
		}
	}
}

// enforceMaxWorkerNodesPerType implements Phase 3.
func enforceMaxWorkerNodesPerType(ctx *scheduleContext) {
	for _, t := range sortedKeys(ctx.nodeTypeConfigs) {
		cfg := ctx.nodeTypeConfigs[t]
		var live []*node
		for _, n := range ctx.nodes {
			if n.nodeType == t && n.nonTerminating() {
				live = append(live, n)
			}
		}
		excess := len(live) - cfg.MaxWorkerNodes
		if excess <= 0 {
			continue
		}
		for _, n := range selectForTermination(live, excess) {
			n.status = nodeToTerminate
			n.cause = types.CauseMaxNumNodesPerType
		}
	}
}

// enforceMaxNumNodes implements Phase 4.
func enforceMaxNumNodes(ctx *scheduleContext, maxNumNodes *int) {
	if maxNumNodes == nil {
		return
	}
	var live []*node
	for _, n := range ctx.nodes {
		if n.nonTerminating() {
			live = append(live, n)
		}
	}
	excess := len(live) - *maxNumNodes
	if excess <= 0 {
		return
	}
	for _, n := range selectForTermination(live, excess) {
		n.status = nodeToTerminate
		n.cause = types.CauseMaxNumNodes
	}
}

// selectForTermination sorts candidates ascending by
// (running_ray, -idle_duration_ms, avg_utilization) per spec.md §4.5
// and returns the first k.
func selectForTermination(candidates []*node, k int) []*node {
	sorted := append([]*node{}, candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.runningRay() != b.runningRay() {
			return !a.runningRay()
		}
		if a.idleDurationMs != b.idleDurationMs {
			return a.idleDurationMs > b.idleDurationMs
		}
		return a.avgUtilization() < b.avgUtilization()
	})
	if k > len(sorted) {
		k = len(sorted)
	}
	return sorted[:k]
}

// scheduleGangs implements Phase 6. Gangs are tried in descending
// order of (total placement constraints, member count); each is
// all-or-nothing.
func scheduleGangs(ctx *scheduleContext, gangs []types.GangResourceRequest) []types.GangResourceRequest {
	ordered := append([]types.GangResourceRequest{}, gangs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := totalConstraints(ordered[i]), totalConstraints(ordered[j])
		if a != b {
			return a > b
		}
		return len(ordered[i].Requests) > len(ordered[j].Requests)
	})

	var infeasible []types.GangResourceRequest
	for _, gang := range ordered {
		fused := fuseAffinity(gang.Requests)
		ok, result, idx := ctx.tryScheduleLive(fused, false)
		if !ok {
			infeasible = append(infeasible, gang)
			continue
		}
		ctx.apply(result, idx)
	}
	return infeasible
}

func totalConstraints(g types.GangResourceRequest) int {
	n := 0
	for _, r := range g.Requests {
		n += len(r.Constraints)
	}
	return n
}

// fuseAffinity merges gang members whose AFFINITY constraints share
// the same (label_name, label_value): their bundles are summed and
// their constraints unioned, since they must land on the same node.
func fuseAffinity(requests []types.ResourceRequest) []types.ResourceRequest {
	type key struct{ name, value string }
	groups := map[key][]types.ResourceRequest{}
	var ungrouped []types.ResourceRequest
	var order []key

	for _, r := range requests {
		var affinityKey *key
		for _, c := range r.Constraints {
			if c.Type == types.AffinityConstraint {
				k := key{c.LabelName, c.LabelValue}
				affinityKey = &k
				break
			}
		}
		if affinityKey == nil {
			ungrouped = append(ungrouped, r)
			continue
		}
		if _, seen := groups[*affinityKey]; !seen {
			order = append(order, *affinityKey)
		}
		groups[*affinityKey] = append(groups[*affinityKey], r)
	}

	fused := append([]types.ResourceRequest{}, ungrouped...)
	for _, k := range order {
		members := groups[k]
		if len(members) == 1 {
			fused = append(fused, members[0])
			continue
		}
		bundle := types.ResourceVector{}
		var constraints []types.PlacementConstraint
		seenConstraint := map[types.PlacementConstraint]bool{}
		for _, m := range members {
			for res, qty := range m.Bundle {
				bundle[res] += qty
			}
			for _, c := range m.Constraints {
				if !seenConstraint[c] {
					seenConstraint[c] = true
					constraints = append(constraints, c)
				}
			}
		}
		fused = append(fused, types.ResourceRequest{Bundle: bundle, Constraints: constraints, Count: 1})
	}
	return fused
}

// scheduleOrdinary implements Phase 7. Each request's Count copies are
// expanded into individual single-copy requests, then sorted
// descending by (len(constraints), len(bundle), sum(bundle), a
// canonical bundle signature) — hardest first, per spec.md §4.4.
func scheduleOrdinary(ctx *scheduleContext, requests []types.ResourceRequest) []types.ResourceRequest {
	var expanded []types.ResourceRequest
	for _, r := range requests {
		count := r.Count
		if count <= 0 {
			count = 1
		}
		single := r
		single.Count = 1
		for i := 0; i < count; i++ {
			expanded = append(expanded, single)
		}
	}

	sort.SliceStable(expanded, func(i, j int) bool {
		a, b := expanded[i], expanded[j]
		if len(a.Constraints) != len(b.Constraints) {
			return len(a.Constraints) > len(b.Constraints)
		}
		if len(a.Bundle) != len(b.Bundle) {
			return len(a.Bundle) > len(b.Bundle)
		}
		if sa, sb := bundleSum(a.Bundle), bundleSum(b.Bundle); sa != sb {
			return sa > sb
		}
		return bundleSignature(a.Bundle) < bundleSignature(b.Bundle)
	})

	_, result, idx := ctx.tryScheduleLive(expanded, false)
	ctx.apply(result, idx)
	return result.unscheduled
}

func bundleSum(bundle types.ResourceVector) float64 {
	var sum float64
	for _, v := range bundle {
		sum += v
	}
	return sum
}

func bundleSignature(bundle types.ResourceVector) string {
	keys := sortedKeys(bundle)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, bundle[k]))
	}
	return strings.Join(parts, ",")
}

// terminateIdleNodes implements Phase 8. min_worker_nodes takes
// precedence over idle termination (spec.md B3): a type is never
// idle-drained below its configured floor.
func terminateIdleNodes(ctx *scheduleContext) {
	thresholdMs := int64(ctx.idleTimeoutS) * 1000

	live := map[string]int{}
	for _, n := range ctx.nodes {
		if n.nonTerminating() {
			live[n.nodeType]++
		}
	}

	for _, n := range ctx.nodes {
		if n.status != nodeRunning || len(n.constraints) > 0 || n.idleDurationMs <= thresholdMs {
			continue
		}
		min := ctx.nodeTypeConfigs[n.nodeType].MinWorkerNodes
		if live[n.nodeType] <= min {
			continue
		}
		n.status = nodeToTerminate
		n.cause = types.CauseIdle
		live[n.nodeType]--
	}
}

// buildToLaunch aggregates every node still marked TO_LAUNCH into one
// LaunchDecision per node type, sorted by type for determinism.
func buildToLaunch(ctx *scheduleContext, nowMs int64) []types.LaunchDecision {
	counts := map[string]int{}
	for _, n := range ctx.nodes {
		if n.status == nodeToLaunch {
			counts[n.nodeType]++
		}
	}
	var out []types.LaunchDecision
	for _, t := range sortedKeys(counts) {
		out = append(out, types.LaunchDecision{
			InstanceType: t,
			Count:        counts[t],
			RequestID:    fmt.Sprintf("launch-%d-%s", nowMs, t),
			RequestTsMs:  nowMs,
		})
	}
	return out
}

// buildToTerminate collects every node marked TO_TERMINATE, sorted by
// instance id for determinism.
func buildToTerminate(ctx *scheduleContext, maxNumNodes *int) []types.TerminateDecision {
	var terminating []*node
	for _, n := range ctx.nodes {
		if n.status == nodeToTerminate {
			terminating = append(terminating, n)
		}
	}
	sort.SliceStable(terminating, func(i, j int) bool {
		return terminating[i].imInstanceID < terminating[j].imInstanceID
	})

	var out []types.TerminateDecision
	for _, n := range terminating {
		d := types.TerminateDecision{
			ID:         fmt.Sprintf("terminate-%s", n.imInstanceID),
			InstanceID: n.imInstanceID,
			RayNodeID:  n.rayNodeID,
			Cause:      n.cause,
		}
		switch n.cause {
		case types.CauseMaxNumNodes:
			d.MaxNumNodes = maxNumNodes
		case types.CauseMaxNumNodesPerType:
			if cfg, ok := ctx.nodeTypeConfigs[n.nodeType]; ok {
				v := cfg.MaxWorkerNodes
				d.MaxNumNodesPerType = &v
			}
		case types.CauseIdle:
			v := n.idleDurationMs
			d.IdleDurationMs = &v
		}
		out = append(out, d)
	}
	return out
}
