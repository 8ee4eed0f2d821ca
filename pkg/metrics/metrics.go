package metrics

import (
	"time"
)

// RecordHTTPRequest records an ops endpoint request with its duration
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordTopologyRefresh records one refresh attempt sequence and its outcome
func (r *Registry) RecordTopologyRefresh(success bool, duration time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	r.TopologyRefreshesTotal.WithLabelValues(result).Inc()
	r.TopologyRefreshDuration.Observe(duration.Seconds())
	if success {
		r.TopologyLastRefreshUnix.Set(float64(time.Now().Unix()))
	}
}

// UpdateTopologySnapshot updates the gauges describing the current snapshot
func (r *Registry) UpdateTopologySnapshot(totalNodes, masters, replicas, slotsCovered int) {
	r.TopologyNodesTotal.Set(float64(totalNodes))
	r.TopologyMastersTotal.Set(float64(masters))
	r.TopologyReplicasTotal.Set(float64(replicas))
	r.TopologySlotsCovered.Set(float64(slotsCovered))
}

// RecordRoutingLookup records the outcome of a slot routing lookup
func (r *Registry) RecordRoutingLookup(result string) {
	r.RoutingLookupsTotal.WithLabelValues(result).Inc()
}

// RecordPoolBorrow records a pool borrow attempt and its wait time
func (r *Registry) RecordPoolBorrow(result string, wait time.Duration) {
	r.PoolBorrowsTotal.WithLabelValues(result).Inc()
	r.PoolBorrowWaitDuration.Observe(wait.Seconds())
}

// RecordCommand records an executed command and its duration
func (r *Registry) RecordCommand(mode, result string, duration time.Duration) {
	r.ExecutorCommandsTotal.WithLabelValues(mode, result).Inc()
	r.ExecutorCommandDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordRedirect records a followed redirect
func (r *Registry) RecordRedirect(kind string) {
	r.ExecutorRedirectsTotal.WithLabelValues(kind).Inc()
}

// RecordNodeError records a command error against the node that produced it
func (r *Registry) RecordNodeError(addr string) {
	r.NodeErrorsTotal.WithLabelValues(addr).Inc()
}

// RecordJournalEvent records a journal event by type
func (r *Registry) RecordJournalEvent(eventType string) {
	r.JournalEventsTotal.WithLabelValues(eventType).Inc()
}
