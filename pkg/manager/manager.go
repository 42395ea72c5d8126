package manager

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/corescale/pkg/instancemanager"
	"github.com/cuemby/corescale/pkg/instancestore"
	"github.com/cuemby/corescale/pkg/log"
	"github.com/cuemby/corescale/pkg/metrics"
	"github.com/cuemby/corescale/pkg/provider"
	"github.com/cuemby/corescale/pkg/reconciler"
	"github.com/cuemby/corescale/pkg/scheduler"
	"github.com/cuemby/corescale/pkg/types"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"
)

// Manager is a control-core node: a Raft-replicated Instance Manager
// plus the Scheduler/Reconciler pair that drives it.
type Manager struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft  *raft.Raft
	fsm   *InstanceManagerFSM
	im    *instancemanager.InstanceManager
	store *instancestore.BoltStore

	sched    *scheduler.Scheduler
	recon    *reconciler.Reconciler
	cfg      reconciler.StepConfig
	stopTick chan struct{}

	logger zerolog.Logger
}

// Config holds configuration for creating a Manager.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	NodeTypeConfigs    map[string]types.NodeTypeConfig
	MaxNumNodes        *int
	IdleTimeoutS       int
	ConserveGPUNodes   bool
	RequestTimeout     time.Duration
	TerminatingTimeout time.Duration
}

// NewManager creates a new Manager instance.
func NewManager(cfg *Config, cp provider.CloudProvider, cluster reconciler.ClusterStateSource, installer reconciler.InstallObserver) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := instancestore.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	im, err := instancemanager.New(store)
	if err != nil {
		return nil, fmt.Errorf("failed to load instance manager: %w", err)
	}

	fsm := NewInstanceManagerFSM(im)
	sched := scheduler.New()

	stepCfg := reconciler.StepConfig{
		NodeTypeConfigs:    cfg.NodeTypeConfigs,
		MaxNumNodes:        cfg.MaxNumNodes,
		IdleTimeoutS:       cfg.IdleTimeoutS,
		ConserveGPUNodes:   cfg.ConserveGPUNodes,
		RequestTimeout:     cfg.RequestTimeout,
		TerminatingTimeout: cfg.TerminatingTimeout,
	}

	m := &Manager{
		nodeID:   cfg.NodeID,
		bindAddr: cfg.BindAddr,
		dataDir:  cfg.DataDir,
		fsm:      fsm,
		im:       im,
		store:    store,
		sched:    sched,
		cfg:      stepCfg,
		stopTick: make(chan struct{}),
		logger:   log.WithComponent("manager"),
	}
	m.recon = reconciler.New(im, sched, cp, cluster, installer, stepCfg)

	return m, nil
}

// Bootstrap initializes a new single-node Raft cluster.
func (m *Manager) Bootstrap() error {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-log.db"))
	if err != nil {
		return fmt.Errorf("failed to create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-stable.db"))
	if err != nil {
		return fmt.Errorf("failed to create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("failed to create raft: %w", err)
	}
	m.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: config.LocalID, Address: transport.LocalAddr()},
		},
	}
	future := m.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to bootstrap cluster: %w", err)
	}

	return nil
}

// Join adds this manager's raft instance to an existing cluster, to be
// joined via AddVoter called against the leader identified by
// leaderAddr by an operator (or CLI) holding leader access.
func (m *Manager) Join(leaderAddr string) error {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-log.db"))
	if err != nil {
		return fmt.Errorf("failed to create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-stable.db"))
	if err != nil {
		return fmt.Errorf("failed to create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("failed to create raft: %w", err)
	}
	m.raft = r

	m.logger.Info().Str("leader", leaderAddr).Msg("joined cluster, awaiting AddVoter from leader")
	return nil
}

// AddVoter adds a new manager node to the Raft cluster.
func (m *Manager) AddVoter(nodeID, address string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", m.LeaderAddr())
	}

	future := m.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	return future.Error()
}

// RemoveServer removes a server from the Raft cluster.
func (m *Manager) RemoveServer(nodeID string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader")
	}

	future := m.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	return future.Error()
}

// GetClusterServers returns information about all servers in the Raft cluster.
func (m *Manager) GetClusterServers() ([]raft.Server, error) {
	if m.raft == nil {
		return nil, fmt.Errorf("raft not initialized")
	}
	future := m.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}
	return future.Configuration().Servers, nil
}

// IsLeader returns true if this manager is the Raft leader.
func (m *Manager) IsLeader() bool {
	if m.raft == nil {
		return false
	}
	return m.raft.State() == raft.Leader
}

// LeaderAddr returns the address of the current Raft leader.
func (m *Manager) LeaderAddr() string {
	if m.raft == nil {
		return ""
	}
	return string(m.raft.Leader())
}

// GetRaftStats returns Raft statistics for the metrics collector.
func (m *Manager) GetRaftStats() map[string]interface{} {
	if m.raft == nil {
		return nil
	}

	stats := make(map[string]interface{})
	stats["state"] = m.raft.State().String()
	stats["last_log_index"] = m.raft.LastIndex()
	stats["applied_index"] = m.raft.AppliedIndex()
	stats["leader"] = string(m.raft.Leader())

	if configFuture := m.raft.GetConfiguration(); configFuture.Error() == nil {
		stats["peers"] = uint64(len(configFuture.Configuration().Servers))
	} else {
		stats["peers"] = uint64(0)
	}

	return stats
}

// NodeID returns the manager's node ID.
func (m *Manager) NodeID() string {
	return m.nodeID
}

// Apply submits an Instance Manager update through the Raft log,
// returning the new version on success.
func (m *Manager) Apply(expectedVersion int64, batch instancemanager.Batch, at time.Time) (int64, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftCommitDuration)

	if m.raft == nil {
		return 0, fmt.Errorf("raft not initialized")
	}

	data, err := json.Marshal(Command{Op: "update", Data: mustMarshal(updatePayload{
		ExpectedVersion: expectedVersion,
		Batch:           batch,
		AtUnixNano:      at.UnixNano(),
	})})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal command: %w", err)
	}

	future := m.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return 0, fmt.Errorf("failed to apply command: %w", err)
	}

	resp, ok := future.Response().(fsmResult)
	if !ok {
		return 0, fmt.Errorf("unexpected FSM response type")
	}
	return resp.Version, resp.Err
}

// GetState returns every instance and the current version, read
// locally without going through Raft.
func (m *Manager) GetState() ([]*types.Instance, int64, error) {
	return m.im.GetState()
}

// InstanceManager exposes the underlying Instance Manager for the
// local API server, which reads state directly rather than through
// raft.Apply.
func (m *Manager) InstanceManager() *instancemanager.InstanceManager {
	return m.im
}

// Tick drives one SyncFrom + StepNext cycle, matching the reconciler's
// own Tick but invoked by the CLI's ticker loop so Manager stays the
// single owner of the Raft-replicated write path.
func (m *Manager) Tick(at time.Time) error {
	if !m.IsLeader() {
		return nil
	}
	return m.recon.Tick(at)
}

// StartTicking runs Tick on a fixed interval until StopTicking is called.
func (m *Manager) StartTicking(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case t := <-ticker.C:
				if err := m.Tick(t); err != nil {
					m.logger.Error().Err(err).Msg("tick failed")
				}
			case <-m.stopTick:
				return
			}
		}
	}()
}

// StopTicking stops the ticker loop started by StartTicking.
func (m *Manager) StopTicking() {
	close(m.stopTick)
}

// Shutdown gracefully shuts down the manager.
func (m *Manager) Shutdown() error {
	if m.raft != nil {
		future := m.raft.Shutdown()
		if err := future.Error(); err != nil {
			return fmt.Errorf("failed to shutdown raft: %w", err)
		}
	}
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			return fmt.Errorf("failed to close store: %w", err)
		}
	}
	return nil
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
