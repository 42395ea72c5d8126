package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/corescale/pkg/api"
	"github.com/cuemby/corescale/pkg/client"
	"github.com/cuemby/corescale/pkg/instancemanager"
	"github.com/cuemby/corescale/pkg/log"
	"github.com/cuemby/corescale/pkg/manager"
	"github.com/cuemby/corescale/pkg/metrics"
	"github.com/cuemby/corescale/pkg/provider"
	"github.com/cuemby/corescale/pkg/types"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "autoscaler-core",
	Short: "Autoscaler control core - reconciler and resource-demand scheduler",
	Long: `The control core of a cluster autoscaler: a Raft-replicated Instance
Manager, a Reconciler that folds cloud/ray observations into it and
computes the next launch/terminate step, and a Resource-Demand
Scheduler that bin-packs pending resource requests onto nodes.

Delivered as a single binary, modeled on Ray's autoscaler v2.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"autoscaler-core version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// defaultNodeTypeConfigs builds the node-type catalog used by the
// local driver loop. The configuration loader is out of scope (see
// DESIGN.md), so this is the CLI's own stand-in for whatever source
// would ordinarily supply NodeTypeConfig values.
func defaultNodeTypeConfigs() map[string]types.NodeTypeConfig {
	return map[string]types.NodeTypeConfig{
		"cpu-4": {
			Name:           "cpu-4",
			Resources:      types.ResourceVector{"CPU": 4, "memory": 16384},
			MinWorkerNodes: 0,
			MaxWorkerNodes: 20,
		},
		"gpu-1": {
			Name:           "gpu-1",
			Resources:      types.ResourceVector{"CPU": 8, "memory": 32768, "GPU": 1},
			MinWorkerNodes: 0,
			MaxWorkerNodes: 4,
		},
	}
}

// noopCluster is the ClusterStateSource stand-in for the local driver
// loop: no real ray gossip/heartbeat client is wired up, so it reports
// an empty cluster and no pending demand. Operators exercising the
// core against a real ray deployment supply their own
// reconciler.ClusterStateSource instead of this binary's cluster init
// command.
type noopCluster struct{}

func (noopCluster) NodeStates() ([]types.NodeState, error) { return nil, nil }
func (noopCluster) ResourceDemand() (types.ClusterResourceState, error) {
	return types.ClusterResourceState{}, nil
}

type noopInstaller struct{}

func (noopInstaller) PollErrors() ([]types.InstallError, error) { return nil, nil }

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Manage the control-core Raft cluster",
}

var clusterInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new control-core cluster",
	Long: `Initialize a new control-core cluster with this node as the first
manager. Starts the Raft quorum, the Instance Manager, the Reconciler
driver loop, and the HTTP/metrics surface.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID, _ := cmd.Flags().GetString("node-id")
		bindAddr, _ := cmd.Flags().GetString("bind-addr")
		apiAddr, _ := cmd.Flags().GetString("api-addr")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		tickInterval, _ := cmd.Flags().GetDuration("tick-interval")
		idleTimeoutS, _ := cmd.Flags().GetInt("idle-timeout")
		maxNodes, _ := cmd.Flags().GetInt("max-nodes")
		conserveGPU, _ := cmd.Flags().GetBool("conserve-gpu-nodes")

		fmt.Println("Initializing control-core cluster...")
		fmt.Printf("  Node ID: %s\n", nodeID)
		fmt.Printf("  Raft Address: %s\n", bindAddr)
		fmt.Printf("  API Address: %s\n", apiAddr)
		fmt.Printf("  Data Directory: %s\n", dataDir)
		fmt.Println()

		mgr, err := manager.NewManager(&manager.Config{
			NodeID:             nodeID,
			BindAddr:           bindAddr,
			DataDir:            dataDir,
			NodeTypeConfigs:    defaultNodeTypeConfigs(),
			MaxNumNodes:        &maxNodes,
			IdleTimeoutS:       idleTimeoutS,
			ConserveGPUNodes:   conserveGPU,
			RequestTimeout:     2 * time.Minute,
			TerminatingTimeout: 2 * time.Minute,
		}, provider.NewFakeProvider(), noopCluster{}, noopInstaller{})
		if err != nil {
			return fmt.Errorf("failed to create manager: %v", err)
		}

		if err := mgr.Bootstrap(); err != nil {
			return fmt.Errorf("failed to bootstrap cluster: %v", err)
		}
		fmt.Println("✓ Cluster initialized successfully")

		metrics.SetVersion(Version)
		metrics.RegisterComponent("raft", true, "bootstrapped")
		metrics.RegisterComponent("provider", true, "ready")
		metrics.RegisterComponent("reconciler", false, "initializing")

		collector := manager.NewMetricsCollector(mgr)
		collector.Start()
		fmt.Println("✓ Metrics collector started")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				fmt.Printf("Metrics server error: %v\n", err)
			}
		}()
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", metricsAddr)

		apiServer := api.NewServer(mgr)
		errCh := make(chan error, 1)
		go func() {
			if err := apiServer.Start(apiAddr); err != nil {
				errCh <- fmt.Errorf("API server error: %v", err)
			}
		}()
		time.Sleep(200 * time.Millisecond)
		metrics.RegisterComponent("reconciler", true, "ready")
		fmt.Printf("✓ API listening on %s\n", apiAddr)

		mgr.StartTicking(tickInterval)
		fmt.Printf("✓ Reconciler ticking every %s\n", tickInterval)
		fmt.Println()
		fmt.Println("Manager is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		}

		mgr.StopTicking()
		collector.Stop()
		if err := mgr.Shutdown(); err != nil {
			return fmt.Errorf("failed to shutdown: %v", err)
		}
		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

var clusterJoinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join this node's Raft instance to an existing cluster",
	Long: `Starts this node's local Raft instance and awaits an AddVoter call
issued against the leader by the operator. There is no join-token
exchange: AddVoter must be called against the leader out of band.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID, _ := cmd.Flags().GetString("node-id")
		bindAddr, _ := cmd.Flags().GetString("bind-addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		leader, _ := cmd.Flags().GetString("leader")

		if leader == "" {
			return fmt.Errorf("--leader is required")
		}

		mgr, err := manager.NewManager(&manager.Config{
			NodeID:   nodeID,
			BindAddr: bindAddr,
			DataDir:  dataDir,
		}, provider.NewFakeProvider(), noopCluster{}, noopInstaller{})
		if err != nil {
			return fmt.Errorf("failed to create manager: %v", err)
		}

		if err := mgr.Join(leader); err != nil {
			return fmt.Errorf("failed to join cluster: %v", err)
		}

		fmt.Printf("Raft instance started at %s, awaiting AddVoter from leader %s\n", bindAddr, leader)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		return mgr.Shutdown()
	},
}

func init() {
	rootCmd.AddCommand(clusterCmd)
	clusterCmd.AddCommand(clusterInitCmd)
	clusterCmd.AddCommand(clusterJoinCmd)

	clusterInitCmd.Flags().String("node-id", "manager-1", "Unique node ID")
	clusterInitCmd.Flags().String("bind-addr", "127.0.0.1:7946", "Address for Raft communication")
	clusterInitCmd.Flags().String("api-addr", "127.0.0.1:8080", "Address for the instance-manager HTTP API")
	clusterInitCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for metrics/health endpoints")
	clusterInitCmd.Flags().String("data-dir", "./autoscaler-data", "Data directory for cluster state")
	clusterInitCmd.Flags().Duration("tick-interval", 5*time.Second, "Reconciler tick interval")
	clusterInitCmd.Flags().Int("idle-timeout", 60, "Idle seconds before a node is eligible for termination")
	clusterInitCmd.Flags().Int("max-nodes", 100, "Maximum total worker nodes")
	clusterInitCmd.Flags().Bool("conserve-gpu-nodes", true, "Penalize placing CPU-only demand on GPU nodes")

	clusterJoinCmd.Flags().String("node-id", "manager-2", "Unique node ID")
	clusterJoinCmd.Flags().String("bind-addr", "127.0.0.1:7947", "Address for Raft communication")
	clusterJoinCmd.Flags().String("data-dir", "./autoscaler-data-2", "Data directory for cluster state")
	clusterJoinCmd.Flags().String("leader", "", "Leader manager's Raft address")
}

var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "Inspect and mutate Instance Manager state over the HTTP API",
}

var instancesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all instances and the current version",
	RunE: func(cmd *cobra.Command, args []string) error {
		managerAddr, _ := cmd.Flags().GetString("manager")

		c := client.NewClient(managerAddr)
		instances, version, err := c.GetState()
		if err != nil {
			return fmt.Errorf("failed to fetch state: %v", err)
		}

		fmt.Printf("Version: %d\n\n", version)
		fmt.Printf("%-20s %-12s %-20s %-15s\n", "INSTANCE ID", "TYPE", "STATUS", "CLOUD INSTANCE")
		for _, inst := range instances {
			fmt.Printf("%-20s %-12s %-20s %-15s\n", inst.InstanceID, inst.InstanceType, inst.Status, inst.CloudInstanceID)
		}
		return nil
	},
}

var instancesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Queue a new instance of the given type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		managerAddr, _ := cmd.Flags().GetString("manager")
		instanceID, _ := cmd.Flags().GetString("instance-id")
		expectedVersion, _ := cmd.Flags().GetInt64("expected-version")

		c := client.NewClient(managerAddr)
		version, err := c.Update(expectedVersion, instancemanager.Batch{
			Creates: []instancemanager.CreateInstance{{
				InstanceID:   instanceID,
				InstanceType: args[0],
			}},
		})
		if err != nil {
			return fmt.Errorf("failed to create instance: %v", err)
		}

		fmt.Printf("Queued instance %s (type %s), new version %d\n", instanceID, args[0], version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(instancesCmd)
	instancesCmd.AddCommand(instancesListCmd)
	instancesCmd.AddCommand(instancesCreateCmd)

	instancesListCmd.Flags().String("manager", "127.0.0.1:8080", "Instance-manager API address")

	instancesCreateCmd.Flags().String("manager", "127.0.0.1:8080", "Instance-manager API address")
	instancesCreateCmd.Flags().String("instance-id", "", "Instance ID to assign (required)")
	instancesCreateCmd.Flags().Int64("expected-version", 0, "Expected current version, for optimistic concurrency")
	_ = instancesCreateCmd.MarkFlagRequired("instance-id")
}
