/*
Package types defines the data model shared across the autoscaler
control core: instances tracked by the Instance Manager, the
cloud-provider and ray-cluster observations the reconciler consumes,
node-type configuration, and the scheduler's request/reply vocabulary.

Enums follow the same pattern as the rest of the codebase: a typed
string with a const block of values, e.g.

	type InstanceStatus string
	const (
	    InstanceQueued InstanceStatus = "QUEUED"
	    ...
	)

Optional fields are pointers or pointer-like zero values (empty string
id fields) rather than a separate "has" bool, matching how the original
instance manager models optional bindings (cloud_instance_id,
launch_request_id).
*/
package types
