package manager

import (
	"time"

	"github.com/cuemby/corescale/pkg/metrics"
)

// MetricsCollector periodically samples gauges off a Manager for
// Prometheus scraping, matching the teacher's ticker-driven collector
// idiom in pkg/metrics/collector.go.
type MetricsCollector struct {
	manager *Manager
	stopCh  chan struct{}
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector(mgr *Manager) *MetricsCollector {
	return &MetricsCollector{
		manager: mgr,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics.
func (c *MetricsCollector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *MetricsCollector) Stop() {
	close(c.stopCh)
}

func (c *MetricsCollector) collect() {
	c.collectInstanceMetrics()
	c.collectRaftMetrics()
}

func (c *MetricsCollector) collectInstanceMetrics() {
	instances, version, err := c.manager.GetState()
	if err != nil {
		return
	}

	counts := make(map[string]map[string]int)
	for _, inst := range instances {
		if counts[inst.InstanceType] == nil {
			counts[inst.InstanceType] = make(map[string]int)
		}
		counts[inst.InstanceType][string(inst.Status)]++
	}

	for instanceType, statuses := range counts {
		for status, count := range statuses {
			metrics.InstancesTotal.WithLabelValues(instanceType, status).Set(float64(count))
		}
	}
	metrics.InstanceManagerVersion.Set(float64(version))
}

func (c *MetricsCollector) collectRaftMetrics() {
	if c.manager.IsLeader() {
		metrics.RaftLeader.Set(1)
	} else {
		metrics.RaftLeader.Set(0)
	}

	stats := c.manager.GetRaftStats()
	if stats == nil {
		return
	}
	if lastIndex, ok := stats["last_log_index"].(uint64); ok {
		metrics.RaftLogIndex.Set(float64(lastIndex))
	}
	if appliedIndex, ok := stats["applied_index"].(uint64); ok {
		metrics.RaftAppliedIndex.Set(float64(appliedIndex))
	}
	if peers, ok := stats["peers"].(uint64); ok {
		metrics.RaftPeers.Set(float64(peers))
	}
}
