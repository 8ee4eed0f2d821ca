package metrics

func (r *Registry) initTransportMetrics() {
	r.TransportConnectsTotal = r.counterVec("transport_connects_total",
		"Total number of transport connection attempts",
		"result") // success, failure

	r.TransportHandshakesTotal = r.counterVec("transport_handshakes_total",
		"Total number of authentication handshakes",
		"result") // success, rejected, error

	r.TransportRequestsTotal = r.counterVec("transport_requests_total",
		"Total number of request/response round trips",
		"result") // ok, error, moved, ask

	r.TransportBytesSent = r.counter("transport_bytes_sent_total",
		"Total bytes written to the wire, after framing")

	r.TransportBytesReceived = r.counter("transport_bytes_received_total",
		"Total bytes read from the wire, after framing")

	r.TransportFramesCompressed = r.counter("transport_frames_compressed_total",
		"Frames sent with snappy compression applied")
}
