package metrics

func (r *Registry) initJournalMetrics() {
	r.JournalEventsTotal = r.counterVec("journal_events_total",
		"Total number of recorded journal events",
		"type")

	r.JournalDroppedTotal = r.counter("journal_dropped_total",
		"Journal events dropped because the ring was full")

	r.JournalSinkErrorsTotal = r.counter("journal_sink_errors_total",
		"Failures while exporting journal events to a sink")
}
