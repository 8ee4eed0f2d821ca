package metrics

func (r *Registry) initSystemMetrics() {
	r.UptimeSeconds = r.gauge("uptime_seconds",
		"Time since the client started in seconds")

	r.GoRoutines = r.gauge("goroutines",
		"Number of goroutines")

	r.MemoryAllocBytes = r.gauge("memory_alloc_bytes",
		"Bytes of allocated heap objects")

	r.MemorySysBytes = r.gauge("memory_sys_bytes",
		"Total bytes of memory obtained from the OS")
}
