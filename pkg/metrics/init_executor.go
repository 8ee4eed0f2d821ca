package metrics

func (r *Registry) initExecutorMetrics() {
	r.ExecutorCommandsTotal = r.counterVec("executor_commands_total",
		"Total number of executed commands",
		"mode", "result") // mode: single, arbitrary, all, multikey

	r.ExecutorCommandDuration = r.histogramVec("executor_command_duration_seconds",
		"Duration of command execution in seconds",
		[]float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		"mode")

	r.ExecutorRedirectsTotal = r.counterVec("executor_redirects_total",
		"Total number of redirects followed during execution",
		"kind") // moved, ask

	r.ExecutorRedirectsExhausted = r.counter("executor_redirects_exhausted_total",
		"Commands abandoned after exceeding the redirect limit")

	r.ExecutorTasksInFlight = r.gauge("executor_tasks_in_flight",
		"Node tasks currently executing")

	r.ExecutorBatchFanout = r.histogram("executor_batch_fanout",
		"Number of node tasks dispatched per batch command",
		[]float64{1, 2, 4, 8, 16, 32, 64})

	r.NodeErrorsTotal = r.counterVec("node_errors_total",
		"Command errors recorded per node",
		"addr")
}
