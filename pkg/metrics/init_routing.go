package metrics

func (r *Registry) initRoutingMetrics() {
	r.RoutingLookupsTotal = r.counterVec("routing_lookups_total",
		"Total number of slot routing lookups",
		"result") // hit, unserved, cross_slot, no_keys
}
