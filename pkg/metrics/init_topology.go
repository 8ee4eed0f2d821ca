package metrics

func (r *Registry) initTopologyMetrics() {
	r.TopologyRefreshesTotal = r.counterVec("topology_refreshes_total",
		"Total number of topology refresh attempts",
		"result") // success, failure

	r.TopologyRefreshDuration = r.histogram("topology_refresh_duration_seconds",
		"Duration of topology refreshes in seconds",
		[]float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0})

	r.TopologyCandidateErrorsTotal = r.counterVec("topology_candidate_errors_total",
		"Topology fetch failures per candidate node",
		"addr")

	r.TopologyNodesTotal = r.gauge("topology_nodes_total",
		"Total number of nodes in the last topology snapshot")

	r.TopologyMastersTotal = r.gauge("topology_masters_total",
		"Number of master nodes in the last topology snapshot")

	r.TopologyReplicasTotal = r.gauge("topology_replicas_total",
		"Number of replica nodes in the last topology snapshot")

	r.TopologySlotsCovered = r.gauge("topology_slots_covered",
		"Number of hash slots served by a master in the last snapshot")

	r.TopologyCacheHitsTotal = r.counter("topology_cache_hits_total",
		"Topology reads answered from the cached snapshot")

	r.TopologyLastRefreshUnix = r.gauge("topology_last_refresh_timestamp_seconds",
		"Unix timestamp of the last successful topology refresh")
}
