/*
Package manager implements the control core's Raft-replicated node:
the Instance Manager wrapped in an InstanceManagerFSM, bootstrapped or
joined into a Raft quorum, driving the Reconciler on a ticker.

	┌──────────────────── MANAGER NODE ───────────────────────┐
	│                                                           │
	│  Manager.Apply(version, batch) ──▶ raft.Apply ──▶ FSM    │
	│                                                           │
	│  InstanceManagerFSM.Apply ──▶ InstanceManager.Update     │
	│  InstanceManagerFSM.Snapshot/Restore ──▶ LoadSnapshot     │
	│                                                           │
	│  Manager.Tick (ticker) ──▶ Reconciler.SyncFrom/StepNext  │
	└───────────────────────────────────────────────────────────┘

Only the Raft leader calls Tick; followers replicate the log and stay
read-only until elected. A 3-node cluster tolerates one failure, 5
tolerates two, matching the Raft quorum math the teacher's manager
package documents for its own cluster.
*/
package manager
