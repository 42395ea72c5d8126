package types

// PlacementConstraintType is a per-bundle directive governing
// co-location against other bundles on the same node.
type PlacementConstraintType string

const (
	AffinityConstraint     PlacementConstraintType = "AFFINITY"
	AntiAffinityConstraint PlacementConstraintType = "ANTI_AFFINITY"
)

// PlacementConstraint pins or repels a bundle relative to a
// (label_name, label_value) pair on the target node.
type PlacementConstraint struct {
	Type       PlacementConstraintType
	LabelName  string
	LabelValue string
}

// ResourceRequest is a single bundle to place atomically on one node.
type ResourceRequest struct {
	Bundle      ResourceVector
	Constraints []PlacementConstraint
	Count       int // number of identical copies of this bundle requested
}

// GangResourceRequest is a set of bundles that must all be placed, or
// all rejected.
type GangResourceRequest struct {
	Requests []ResourceRequest
}

// ClusterResourceConstraint is a cluster-wide minimum capacity the
// scheduler must be able to satisfy simultaneously, independent of
// pending demand.
type ClusterResourceConstraint struct {
	MinBundles []ResourceRequest
}

// ClusterResourceState is the aggregate demand snapshot passed to
// Reconciler.StepNext.
type ClusterResourceState struct {
	ResourceRequests          []ResourceRequest
	GangResourceRequests      []GangResourceRequest
	ClusterResourceConstraints []ClusterResourceConstraint
}

// SchedulingRequest is the pure-function input to the
// Resource-Demand Scheduler.
type SchedulingRequest struct {
	NodeTypeConfigs            map[string]NodeTypeConfig
	MaxNumNodes                *int
	IdleTimeoutS               int
	ResourceRequests           []ResourceRequest
	GangResourceRequests       []GangResourceRequest
	ClusterResourceConstraints []ClusterResourceConstraint
	CurrentInstances           []InstanceView

	// ConserveGPUNodes enables the gpu_ok penalty in the utilization
	// score (spec.md §4.7): a node with idle GPU capacity is avoided
	// for GPU-free work when this is set.
	ConserveGPUNodes bool

	// NowMs is supplied by the caller so schedule() stays a pure
	// function of its inputs (spec.md P5) while still being able to
	// stamp deterministic request ids/timestamps on its output.
	NowMs int64
}

// InstanceView is the slice of Instance + NodeState the scheduler needs
// to build its context, decoupled from the Instance Manager's full
// record so the scheduler stays a pure function of its inputs.
type InstanceView struct {
	InstanceID       string
	InstanceType     string
	Status           InstanceStatus
	LaunchConfigHash string
	Node             *NodeState // nil if no live NodeState is known yet
}

// TerminateCause values are shown as strings in logs and
// tests; kept as typed constants per the rest of the enum convention.
type TerminateCause string

const (
	CauseMaxNumNodes        TerminateCause = "MAX_NUM_NODES"
	CauseMaxNumNodesPerType TerminateCause = "MAX_NUM_NODE_PER_TYPE"
	CauseIdle               TerminateCause = "IDLE"
	CauseOutdated           TerminateCause = "OUTDATED"
)

// LaunchDecision asks the reconciler to request count new instances of
// InstanceType from the cloud-provider adapter.
type LaunchDecision struct {
	InstanceType string
	Count        int
	RequestID    string
	RequestTsMs  int64
}

// TerminateDecision asks the reconciler to tear down one instance.
type TerminateDecision struct {
	ID                    string
	InstanceID            string
	RayNodeID             string
	Cause                 TerminateCause
	MaxNumNodes           *int
	MaxNumNodesPerType    *int
	IdleDurationMs        *int64
}

// SchedulingReply is the pure-function output of the Resource-Demand
// Scheduler. InfeasibleGangResourceRequests and
// InfeasibleClusterResourceConstraints hold each unsatisfied input
// unchanged. InfeasibleResourceRequests holds one entry with Count 1 per
// copy that could not be placed, not the original Count-bearing request.
type SchedulingReply struct {
	ToLaunch                      []LaunchDecision
	ToTerminate                   []TerminateDecision
	InfeasibleResourceRequests    []ResourceRequest
	InfeasibleGangResourceRequests []GangResourceRequest
	InfeasibleClusterResourceConstraints []ClusterResourceConstraint
}
