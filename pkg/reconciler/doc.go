/*
Package reconciler drives the Instance Manager toward the state the
rest of the system observes. It has two halves, called once per tick
in order:

SyncFrom performs four passive passes that fold external state into
the Instance Manager without ever issuing a provider request:
allocation (REQUESTED -> ALLOCATED/ALLOCATION_FAILED), cloud
termination (* -> TERMINATED/TERMINATION_FAILED), ray status
(* -> RAY_RUNNING/RAY_STOPPING/RAY_STOPPED) and install failure
(RAY_INSTALLING -> RAY_INSTALL_FAILED). Each pass reads the current
state once, computes a batch of transitions, and applies it with one
optimistic-concurrency Update call, skipping the call entirely when it
finds nothing to change.

StepNext performs the active half: it calls the scheduler with the
current instance view and demand, then creates QUEUED instances for
its to_launch decisions, requests launches from the cloud-provider
adapter, transitions to_terminate instances toward TERMINATING, and
force-fails instances stuck past the REQUESTED/TERMINATING timeout.

Reconciler wires both halves to a ticker, following the teacher's
Start/Stop/run loop shape. The ray cluster's node states and resource
demand, and the installer's errors, are supplied through the
ClusterStateSource and InstallObserver interfaces rather than concrete
clients: both the gossip/heartbeat layer and the installer are external
collaborators this package never talks to directly.
*/
package reconciler
