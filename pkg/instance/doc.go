// Package instance defines the Instance Manager's state machine: the
// legal transitions between types.InstanceStatus values, and the
// reachable-status query the reconciler uses to avoid applying a
// regressive transition (spec.md §3, §4.2(c)).
package instance
