package manager

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cuemby/corescale/pkg/instancemanager"
	"github.com/cuemby/corescale/pkg/types"
	"github.com/hashicorp/raft"
)

// InstanceManagerFSM implements the Raft Finite State Machine over the
// Instance Manager: every replicated write is a single "update" op
// carrying the same (expected_version, batch) pair
// InstanceManager.Update accepts directly, so a command applies
// identically on every node that replays the log.
type InstanceManagerFSM struct {
	im *instancemanager.InstanceManager
}

// NewInstanceManagerFSM creates an FSM bound to im. im is shared with the
// Manager that issues commands through raft.Apply, so Apply's effect
// is visible to callers reading im immediately after a commit.
func NewInstanceManagerFSM(im *instancemanager.InstanceManager) *InstanceManagerFSM {
	return &InstanceManagerFSM{im: im}
}

// Command is the single op the FSM understands, wrapping an
// InstanceManager.Update call for replication.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// updatePayload is Command.Data for Op == "update".
type updatePayload struct {
	ExpectedVersion int64                 `json:"expected_version"`
	Batch           instancemanager.Batch `json:"batch"`
	AtUnixNano      int64                 `json:"at_unix_nano"`
}

// fsmResult is what Apply returns; Manager.Apply type-asserts it out
// of the raft.ApplyFuture's Response().
type fsmResult struct {
	Version int64
	Err     error
}

// Apply applies one committed Raft log entry to the Instance Manager.
func (f *InstanceManagerFSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fsmResult{Err: fmt.Errorf("fsm: unmarshal command: %w", err)}
	}

	switch cmd.Op {
	case "update":
		var payload updatePayload
		if err := json.Unmarshal(cmd.Data, &payload); err != nil {
			return fsmResult{Err: fmt.Errorf("fsm: unmarshal update payload: %w", err)}
		}
		version, err := f.im.Update(payload.ExpectedVersion, payload.Batch, time.Unix(0, payload.AtUnixNano))
		return fsmResult{Version: version, Err: err}
	default:
		return fsmResult{Err: fmt.Errorf("fsm: unknown command: %s", cmd.Op)}
	}
}

// Snapshot captures the Instance Manager's entire state for Raft's log
// compaction.
func (f *InstanceManagerFSM) Snapshot() (raft.FSMSnapshot, error) {
	instances, version, err := f.im.GetState()
	if err != nil {
		return nil, fmt.Errorf("fsm: snapshot: %w", err)
	}
	return &instanceManagerSnapshot{Instances: instances, Version: version}, nil
}

// Restore replaces the Instance Manager's state with a prior snapshot,
// called when a node restarts or joins the cluster.
func (f *InstanceManagerFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap instanceManagerSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("fsm: decode snapshot: %w", err)
	}
	return f.im.LoadSnapshot(snap.Instances, snap.Version)
}

type instanceManagerSnapshot struct {
	Instances []*types.Instance `json:"instances"`
	Version   int64             `json:"version"`
}

// Persist writes the snapshot to sink in one JSON document, matching
// the teacher's single-document snapshot format.
func (s *instanceManagerSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s); err != nil {
		sink.Cancel()
		return fmt.Errorf("fsm: persist snapshot: %w", err)
	}
	return sink.Close()
}

// Release is a no-op: the snapshot holds no resources beyond its
// in-memory slice.
func (s *instanceManagerSnapshot) Release() {}
