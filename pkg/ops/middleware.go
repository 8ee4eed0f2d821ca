package ops

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/dd0wney/cluso-kvclient/pkg/logging"
)

// systemSampleInterval is how often the process gauges refresh
const systemSampleInterval = 10 * time.Second

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request served",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Latency(time.Since(start)),
		)
	})
}

// metricsMiddleware tracks request counts, latency, and in-flight load
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		s.registry.HTTPRequestsInFlight.Inc()
		defer s.registry.HTTPRequestsInFlight.Dec()

		wrapper := &metricsResponseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapper, r)

		s.registry.RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(wrapper.statusCode), time.Since(start))
	})
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status code
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *metricsResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// sampleSystem keeps the process gauges current while the server runs.
// The first sample lands before the first tick so /metrics never
// serves zeroed gauges.
func (s *Server) sampleSystem() {
	ticker := time.NewTicker(systemSampleInterval)
	defer ticker.Stop()

	for {
		s.recordSystemGauges()
		select {
		case <-ticker.C:
		case <-s.samplerStop:
			return
		}
	}
}

func (s *Server) recordSystemGauges() {
	s.registry.UptimeSeconds.Set(time.Since(s.started).Seconds())
	s.registry.GoRoutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	s.registry.MemoryAllocBytes.Set(float64(m.Alloc))
	s.registry.MemorySysBytes.Set(float64(m.Sys))
}
