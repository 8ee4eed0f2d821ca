package health

import (
	"encoding/json"
	"net/http"
)

// handler serves one probe class. With binary set, degraded answers
// 503; the health report keeps degraded at 200 because a degraded
// client still serves.
func handler(evaluate func() Response, binary bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := evaluate()

		code := http.StatusOK
		if resp.Status == StatusUnhealthy || (binary && resp.Status != StatusHealthy) {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(resp)
	}
}

// HTTPHandler serves the full health report
func (hc *HealthChecker) HTTPHandler() http.HandlerFunc {
	return handler(hc.Check, false)
}

// ReadinessHandler serves the readiness report. Readiness is binary:
// degraded is not ready.
func (hc *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return handler(hc.CheckReadiness, true)
}

// LivenessHandler serves the liveness report
func (hc *HealthChecker) LivenessHandler() http.HandlerFunc {
	return handler(hc.CheckLiveness, true)
}
