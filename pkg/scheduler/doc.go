/*
Package scheduler implements the Resource-Demand Scheduler: a pure
function, schedule(SchedulingRequest) -> SchedulingReply, that decides
which node types to launch and which instances to terminate given the
current instance set, aggregate demand, and cluster-wide resource
constraints.

It proceeds through eight ordered phases over a mutable scheduling
context: build context from current instances, terminate outdated
nodes, enforce min then max worker counts per type, enforce the global
node cap, satisfy cluster resource constraints, place gang requests
atomically, place ordinary requests, and finally terminate idle nodes.
Phases 5 through 7 share a greedy bin-packer (binpack.go) that scores
each candidate node by how well it explains the demand being packed
and commits the best-scoring candidate each round; fresh launch
candidates, one per node type with remaining capacity, sit in the
candidate pool beside the existing nodes from the first round.

The scheduler never performs I/O and never mutates its input; it is
safe to call concurrently and its output is a deterministic function
of its input.
*/
package scheduler
