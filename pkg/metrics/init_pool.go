package metrics

func (r *Registry) initPoolMetrics() {
	r.PoolActiveConnections = r.gaugeVec("pool_active_connections",
		"Connections currently borrowed from the pool, per node",
		"addr")

	r.PoolIdleConnections = r.gaugeVec("pool_idle_connections",
		"Idle connections held by the pool, per node",
		"addr")

	r.PoolBorrowsTotal = r.counterVec("pool_borrows_total",
		"Total number of pool borrow attempts",
		"result") // success, timeout, error

	r.PoolBorrowWaitDuration = r.histogram("pool_borrow_wait_seconds",
		"Time spent waiting for a pooled connection",
		[]float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0})

	r.PoolConnectionsCreated = r.counter("pool_connections_created_total",
		"Total number of connections opened by pools")

	r.PoolConnectionsDestroyed = r.counter("pool_connections_destroyed_total",
		"Total number of pooled connections closed")
}
