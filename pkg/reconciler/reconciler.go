package reconciler

import (
	"sync"
	"time"

	"github.com/cuemby/corescale/pkg/instancemanager"
	"github.com/cuemby/corescale/pkg/log"
	"github.com/cuemby/corescale/pkg/metrics"
	"github.com/cuemby/corescale/pkg/provider"
	"github.com/cuemby/corescale/pkg/scheduler"
	"github.com/rs/zerolog"
)

// Reconciler drives the Instance Manager toward the state the cluster
// and cloud provider report, once per tick: SyncFrom folds external
// observations in, StepNext computes and applies the next active step.
type Reconciler struct {
	im        *instancemanager.InstanceManager
	sched     *scheduler.Scheduler
	provider  provider.CloudProvider
	cluster   ClusterStateSource
	installer InstallObserver
	cfg       StepConfig

	logger zerolog.Logger
	mu     sync.Mutex
	stopCh chan struct{}
}

// New creates a Reconciler ready to Start.
func New(
	im *instancemanager.InstanceManager,
	sched *scheduler.Scheduler,
	cp provider.CloudProvider,
	cluster ClusterStateSource,
	installer InstallObserver,
	cfg StepConfig,
) *Reconciler {
	return &Reconciler{
		im:        im,
		sched:     sched,
		provider:  cp,
		cluster:   cluster,
		installer: installer,
		cfg:       cfg,
		logger:    log.WithComponent("reconciler"),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the reconciliation loop.
func (r *Reconciler) Start(interval time.Duration) {
	go r.run(interval)
}

// Stop stops the reconciler.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info().Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			if err := r.Tick(time.Now()); err != nil {
				r.logger.Error().Err(err).Msg("reconciliation cycle failed")
			}
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// Tick runs one SyncFrom + StepNext cycle.
func (r *Reconciler) Tick(at time.Time) error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	rayNodeList, err := r.cluster.NodeStates()
	if err != nil {
		return err
	}
	nonTerminated, err := r.provider.NonTerminated()
	if err != nil {
		return err
	}
	providerErrors, err := r.provider.PollErrors()
	if err != nil {
		return err
	}
	installErrors, err := r.installer.PollErrors()
	if err != nil {
		return err
	}

	if err := SyncFrom(r.im, rayNodeList, nonTerminated, providerErrors, installErrors, at); err != nil {
		r.logger.Error().Err(err).Msg("sync_from failed")
	}

	demand, err := r.cluster.ResourceDemand()
	if err != nil {
		return err
	}

	nodesByCloudInstanceID := indexNodeStates(rayNodeList)

	if err := StepNext(r.im, demand, nodesByCloudInstanceID, nonTerminated, r.cfg, r.sched, r.provider, at); err != nil {
		r.logger.Error().Err(err).Msg("step_next failed")
	}
	return nil
}
