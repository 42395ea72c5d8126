/*
Package provider defines the cloud-provider adapter boundary the
Reconciler's SyncFrom/StepNext passes read from and write to:
launch/terminate requests going out, non-terminated cloud instances and
provider errors coming back. The core never touches a real VM; it only
ever talks to this interface, grounded on
ray.autoscaler.v2.instance_manager.node_provider's NodeProviderAdapter
contract.

FakeProvider is an in-memory implementation used by pkg/reconciler's
tests and the CLI's local smoke-test mode, mirroring the shape of
test_node_provider.py's MockProvider fixture: queued launches/
terminations apply synchronously, and injectable errors let tests
exercise the allocation-failure and termination-failure paths.
*/
package provider
