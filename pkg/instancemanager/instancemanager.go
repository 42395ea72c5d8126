package instancemanager

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/corescale/pkg/instance"
	"github.com/cuemby/corescale/pkg/instancestore"
	"github.com/cuemby/corescale/pkg/types"
)

// CreateInstance is a batch entry that adds a brand new instance in
// QUEUED status. Used by the reconciler's active step to turn a
// scheduler to_launch entry into IM state (spec.md §4.3.1).
type CreateInstance struct {
	InstanceID       string
	InstanceType     string
	LaunchRequestID  string
	LaunchConfigHash string
}

// TransitionEvent moves an existing instance to a new status,
// optionally binding its cloud_instance_id or attaching failure
// details.
type TransitionEvent struct {
	InstanceID      string
	NewStatus       types.InstanceStatus
	CloudInstanceID string
	Details         string
}

// Batch is the unit of atomicity for Update: every Create and every
// Transition in a batch either all apply or none do.
type Batch struct {
	Creates     []CreateInstance
	Transitions []TransitionEvent
}

// InstanceManager is the authoritative, version-stamped store of
// instances. It is safe for concurrent use.
type InstanceManager struct {
	mu      sync.Mutex
	store   instancestore.Store
	version int64
}

// New loads the current instance set and version out of store and
// returns a ready InstanceManager.
func New(store instancestore.Store) (*InstanceManager, error) {
	version, err := store.GetVersion()
	if err != nil {
		return nil, fmt.Errorf("instancemanager: load version: %w", err)
	}
	return &InstanceManager{store: store, version: version}, nil
}

// GetState returns every instance and the current version, matching
// spec.md §4.1's get_state(). Instances are returned sorted by id for
// deterministic iteration by callers.
func (m *InstanceManager) GetState() ([]*types.Instance, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	instances, err := m.store.ListInstances()
	if err != nil {
		return nil, 0, fmt.Errorf("instancemanager: list instances: %w", err)
	}
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].InstanceID < instances[j].InstanceID
	})
	return instances, m.version, nil
}

// LoadSnapshot overwrites the store with instances and version
// directly, bypassing transition validation: used by the Raft FSM to
// restore a follower from a leader's snapshot, where every instance is
// already known-valid history rather than a fresh event to validate.
func (m *InstanceManager) LoadSnapshot(instances []*types.Instance, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, inst := range instances {
		if err := m.store.PutInstance(inst); err != nil {
			return fmt.Errorf("instancemanager: restore %s: %w", inst.InstanceID, err)
		}
	}
	if err := m.store.SetVersion(version); err != nil {
		return fmt.Errorf("instancemanager: restore version: %w", err)
	}
	m.version = version
	return nil
}

// Update applies batch atomically iff expectedVersion equals the
// current version, returning the new version on success. Every event
// is validated before any of them are persisted: an illegal
// transition or a create that collides with an existing id aborts the
// whole batch with no partial effect.
func (m *InstanceManager) Update(expectedVersion int64, batch Batch, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if expectedVersion != m.version {
		return 0, ErrVersionMismatch
	}

	touched := make(map[string]*types.Instance, len(batch.Creates)+len(batch.Transitions))

	for _, c := range batch.Creates {
		if _, err := m.store.GetInstance(c.InstanceID); err == nil {
			return 0, fmt.Errorf("%w: %s already exists", ErrIllegalTransition, c.InstanceID)
		}
		inst := instance.NewInstance(c.InstanceID, c.InstanceType, at)
		inst.LaunchRequestID = c.LaunchRequestID
		inst.LaunchConfigHash = c.LaunchConfigHash
		touched[c.InstanceID] = inst
	}

	for _, ev := range batch.Transitions {
		inst, ok := touched[ev.InstanceID]
		if !ok {
			existing, err := m.store.GetInstance(ev.InstanceID)
			if err != nil {
				return 0, fmt.Errorf("%w: %s", ErrUnknownInstance, ev.InstanceID)
			}
			inst = existing
		}
		if !instance.CanTransition(inst.Status, ev.NewStatus) {
			return 0, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, inst.Status, ev.NewStatus)
		}
		instance.Apply(inst, ev.NewStatus, at, ev.CloudInstanceID, ev.Details)
		touched[ev.InstanceID] = inst
	}

	for _, inst := range touched {
		if err := m.store.PutInstance(inst); err != nil {
			return 0, fmt.Errorf("instancemanager: persist %s: %w", inst.InstanceID, err)
		}
	}

	m.version++
	if err := m.store.SetVersion(m.version); err != nil {
		return 0, fmt.Errorf("instancemanager: persist version: %w", err)
	}
	return m.version, nil
}

// Apply is Update under the name the API server's handle uses, so a
// bare InstanceManager can stand in for a Raft-backed Manager.
func (m *InstanceManager) Apply(expectedVersion int64, batch Batch, at time.Time) (int64, error) {
	return m.Update(expectedVersion, batch, at)
}
